package feeds

import (
	"fmt"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"fourpisky-feeds/pkg/feed"
	"fourpisky-feeds/pkg/ivorn"
	"fourpisky-feeds/voevent"
)

// ASAS-SN feed defaults.
const (
	AsassnURL       = "http://www.astronomy.ohio-state.edu/asassn/transients.html"
	AsassnSubstream = "ASASSN"

	asassnParamsGroup = "asassn_params"
	asassnURLsGroup   = "asassn_urls"

	// Angular resolution of the survey, used as the error radius.
	asassnErrorArcsec = 16.0
)

// Row keys, in column order.
const (
	KeyIDAsassn           = "id_assasn"
	KeyIDOther            = "id_other"
	KeyATelURL            = "atel_url"
	KeyRA                 = "ra"
	KeyDec                = "dec"
	KeyDetectionTimestamp = "detection_timestamp"
	KeyMagV               = "mag_v"
	KeySDSSURL            = "sdss_url"
	KeyDSSURL             = "dss_url"
	KeyVizierURL          = "vizier_url"
	KeySpecClass          = "spec_class"
	KeyComment            = "comment"
)

var (
	asassnHeaders = []string{
		"ASAS-SN", "Other", "ATEL", "RA", "Dec", "Discovery",
		"V/g", "SDSS", "DSS", "Vizier", "Spectroscopic Class", "Comments",
	}
	asassnKeys = []string{
		KeyIDAsassn, KeyIDOther, KeyATelURL, KeyRA, KeyDec, KeyDetectionTimestamp,
		KeyMagV, KeySDSSURL, KeyDSSURL, KeyVizierURL, KeySpecClass, KeyComment,
	}
	asassnLinkOnly = map[string]bool{
		KeyATelURL: true, KeySDSSURL: true, KeyDSSURL: true, KeyVizierURL: true,
	}
)

// AsassnConfig tunes the ASAS-SN adapter.
type AsassnConfig struct {
	URL       string
	HashRange *feed.ByteRange
	// Rows detected on or before this instant are ignored.
	EarliestReparse time.Time
	// External ids known to carry corrupt data.
	BadIDs []string
	// Manual id corrections keyed by the raw detection timestamp.
	TimestampOverrides map[string]string
}

// DefaultAsassnConfig returns the production settings.
func DefaultAsassnConfig() AsassnConfig {
	return AsassnConfig{
		URL:             AsassnURL,
		HashRange:       &feed.ByteRange{Start: 0, End: 10000},
		EarliestReparse: time.Date(2017, 10, 18, 0, 0, 0, 0, time.UTC),
		BadIDs: []string{
			"ASASSN-15uh",   // datestamp replaced with junk
			"ASASSN-15co",   // datestamp replaced with junk
			"Comet ASASSN1", // moving object
		},
		TimestampOverrides: map[string]string{
			"2013-09-14.53": "iPTF13dge", // malformed href in the other-id column
		},
	}
}

// AsassnRow is one row of the ASAS-SN transient table.
type AsassnRow struct {
	Params map[string]string
	Links  map[string][]Link
}

// Fields returns the text params plus the first href of each link column.
func (r *AsassnRow) Fields() map[string]string {
	out := make(map[string]string, len(r.Params)+len(r.Links))
	for k, v := range r.Params {
		out[k] = v
	}
	for k, links := range r.Links {
		if len(links) > 0 {
			out[k+"_href"] = links[0].Href
		}
	}
	return out
}

// Asassn scrapes the ASAS-SN transient listing.
type Asassn struct {
	cfg  AsassnConfig
	opts Options
}

// NewAsassn creates the ASAS-SN adapter.
func NewAsassn(cfg AsassnConfig, opts Options) *Asassn {
	return &Asassn{cfg: cfg, opts: opts}
}

func (a *Asassn) Name() string { return "ASASSN webpage" }
func (a *Asassn) URL() string { return a.cfg.URL }
func (a *Asassn) Substream() string { return AsassnSubstream }
func (a *Asassn) HashRange() *feed.ByteRange { return a.cfg.HashRange }

// Parse splits the transient table into rows, dropping denylisted rows and
// rows detected before the reparse cutoff.
func (a *Asassn) Parse(content []byte) ([]feed.Record, error) {
	doc, err := htmlDocument(content)
	if err != nil {
		return nil, &feed.ParseError{Feed: a.Name(), Reason: err.Error()}
	}
	cells, err := asassnCells(doc)
	if err != nil {
		return nil, &feed.ParseError{Feed: a.Name(), Reason: err.Error()}
	}

	logger := a.opts.logger()
	ncols := len(asassnHeaders)
	var records []feed.Record
	for start := 0; start < cells.Length(); start += ncols {
		row := asassnRow(cells.Slice(start, start+ncols))

		if id := row.Params[KeyIDAsassn]; slices.Contains(a.cfg.BadIDs, id) {
			logger.Warn("Removed bad ASASSN row", "feed", a.Name(), "id", id)
			continue
		}

		detected, err := parseAsassnTimestamp(row.Params[KeyDetectionTimestamp])
		if err == nil && !detected.After(a.cfg.EarliestReparse) {
			continue
		}
		// Rows with an unreadable timestamp are kept so that id derivation
		// reports them.
		records = append(records, row)
	}
	return records, nil
}

func asassnCells(doc *goquery.Document) (*goquery.Selection, error) {
	table := doc.Find("table").First()
	if table.Length() == 0 {
		return nil, fmt.Errorf("no table found")
	}
	rows := table.Find("tr")
	if rows.Length() < 2 {
		return nil, fmt.Errorf("expected two header rows, found %d rows", rows.Length())
	}

	var headers []string
	rows.Eq(0).Children().Each(func(_ int, s *goquery.Selection) {
		headers = append(headers, strings.TrimSpace(s.Text()))
	})
	if !slices.Equal(headers, asassnHeaders) {
		return nil, fmt.Errorf("header row changed: %q", headers)
	}

	// The listing emits bare cells after the header rows; the HTML parser
	// gathers them into implicit rows, so collect every data cell in order.
	cells := rows.Slice(2, goquery.ToEnd).ChildrenFiltered("td")
	if cells.Length()%len(asassnHeaders) != 0 {
		return nil, fmt.Errorf("%d data cells is not a multiple of %d columns", cells.Length(), len(asassnHeaders))
	}
	return cells, nil
}

func asassnRow(cells *goquery.Selection) *AsassnRow {
	row := &AsassnRow{
		Params: make(map[string]string),
		Links:  make(map[string][]Link),
	}
	cells.Each(func(i int, cell *goquery.Selection) {
		key := asassnKeys[i]
		text := strings.TrimSpace(leadingText(cell))
		if text != "" && !asassnLinkOnly[key] && !isPlaceholder(text) {
			row.Params[key] = text
		}
		cell.ChildrenFiltered("[href]").Each(func(_ int, child *goquery.Selection) {
			href, _ := child.Attr("href")
			row.Links[key] = append(row.Links[key], Link{Text: strings.TrimSpace(child.Text()), Href: href})
		})
	})
	return row
}

// parseAsassnTimestamp reads "YYYY-MM-DD" or "YYYY-MM-DD.ff", where the
// fractional part is a fraction of a day.
func parseAsassnTimestamp(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("missing detection timestamp")
	}
	datePart, fracPart, hasFrac := strings.Cut(s, ".")

	parts := strings.Split(datePart, "-")
	if len(parts) != 3 {
		return time.Time{}, fmt.Errorf("malformed date %q", s)
	}
	var ymd [3]int
	for i, p := range parts {
		n, err := strconv.Atoi(p)
		if err != nil {
			return time.Time{}, fmt.Errorf("malformed date %q: %w", s, err)
		}
		ymd[i] = n
	}
	day := time.Date(ymd[0], time.Month(ymd[1]), ymd[2], 0, 0, 0, 0, time.UTC)
	if day.Year() != ymd[0] || int(day.Month()) != ymd[1] || day.Day() != ymd[2] {
		return time.Time{}, fmt.Errorf("invalid date %q", s)
	}
	if !hasFrac {
		return day, nil
	}

	frac, err := strconv.ParseFloat("0."+fracPart, 64)
	if err != nil {
		return time.Time{}, fmt.Errorf("malformed day fraction %q: %w", s, err)
	}
	offset := time.Duration(frac * float64(24*time.Hour)).Round(time.Microsecond)
	return day.Add(offset), nil
}

// asassnFeedID renders "YYYY-MM-DD.ff_<external id>" so that ids sort in
// detection order.
func asassnFeedID(detected time.Time, external string) feed.ID {
	startOfDay := time.Date(detected.Year(), detected.Month(), detected.Day(), 0, 0, 0, 0, time.UTC)
	frac := detected.Sub(startOfDay).Seconds() / 86400
	hundredths := int(math.Round(frac * 100))
	if hundredths > 99 {
		hundredths = 99
	}
	return feed.ID(fmt.Sprintf("%s.%02d_%s", detected.Format("2006-01-02"), hundredths, external))
}

// FeedID derives the sortable id of a row.
func (a *Asassn) FeedID(rec feed.Record) (feed.ID, error) {
	row, ok := rec.(*AsassnRow)
	if !ok {
		return "", &feed.IdentityError{Feed: a.Name(), Reason: fmt.Sprintf("unexpected record type %T", rec)}
	}

	external, err := a.externalID(row)
	if err != nil {
		return "", &feed.IdentityError{Feed: a.Name(), Reason: err.Error(), Fields: row.Fields()}
	}
	detected, err := parseAsassnTimestamp(row.Params[KeyDetectionTimestamp])
	if err != nil {
		return "", &feed.IdentityError{Feed: a.Name(), Reason: err.Error(), Fields: row.Fields()}
	}
	return asassnFeedID(detected, external), nil
}

func (a *Asassn) externalID(row *AsassnRow) (string, error) {
	if id, ok := a.cfg.TimestampOverrides[row.Params[KeyDetectionTimestamp]]; ok {
		return id, nil
	}

	if id, ok := row.Params[KeyIDAsassn]; ok {
		if strings.HasPrefix(id, "ASASSN") || strings.HasPrefix(id, "ASASN") {
			return id, nil
		}
		return "", fmt.Errorf("unrecognised id format: %s", id)
	}
	if alt := strings.TrimSpace(row.Params[KeyIDOther]); alt != "" {
		return alt, nil
	}
	if links := row.Links[KeyIDOther]; len(links) > 0 && links[0].Text != "" {
		return links[0].Text, nil
	}
	return "", fmt.Errorf("no id found")
}

// DuplicatePrefixes matches any event sharing the detection timestamp, since
// ASAS-SN renames transients but keeps their discovery time.
func (a *Asassn) DuplicatePrefixes(id feed.ID) []string {
	timestamp, _, _ := strings.Cut(feed.StreamID(id), "_")
	return []string{ivorn.StreamPrefix(a.Substream()) + timestamp}
}

// BuildEvent assembles the outbound packet for a row.
func (a *Asassn) BuildEvent(rec feed.Record, id feed.ID, now time.Time) (*voevent.VOEvent, error) {
	row, ok := rec.(*AsassnRow)
	if !ok {
		return nil, fmt.Errorf("unexpected record type %T", rec)
	}

	detected, err := parseAsassnTimestamp(row.Params[KeyDetectionTimestamp])
	if err != nil {
		return nil, err
	}
	ra, err := voevent.ParseRA(row.Params[KeyRA])
	if err != nil {
		return nil, err
	}
	dec, err := voevent.ParseDec(row.Params[KeyDec])
	if err != nil {
		return nil, err
	}

	v := voevent.New(feed.IVORN(a, id), a.opts.role(), a.opts.Author, ivorn.AuthorIVORN(), now)
	v.AddReference(a.cfg.URL, "")
	v.How.Description = []string{"Parsed from ASASSN listings page by 4PiSky-Bot."}
	v.SetWhereWhen(voevent.Position{RA: ra, Dec: dec, Err: asassnErrorArcsec / 3600}, detected)

	var params []voevent.Param
	for _, key := range []string{KeyIDAsassn, KeyIDOther, KeyDetectionTimestamp, KeyRA, KeyDec, KeySpecClass, KeyComment} {
		if val, ok := row.Params[key]; ok {
			params = append(params, voevent.Param{Name: key, Value: val})
		}
	}
	if mag, ok := row.Params[KeyMagV]; ok {
		params = append(params, voevent.Param{Name: KeyMagV, Value: mag, Unit: "mag", UCD: "phot.mag"})
	}
	if links := row.Links[KeyIDOther]; len(links) > 0 {
		params = append(params, voevent.Param{Name: KeyIDOther, Value: links[0].Text})
	}

	var urls []voevent.Param
	for _, key := range asassnKeys {
		if links := row.Links[key]; len(links) > 0 {
			urls = append(urls, voevent.Param{Name: key, Value: links[0].Href})
		}
	}

	v.AddGroup(asassnParamsGroup, params...)
	v.AddGroup(asassnURLsGroup, urls...)
	return v, nil
}
