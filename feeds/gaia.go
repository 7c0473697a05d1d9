package feeds

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"
	"time"

	"fourpisky-feeds/pkg/feed"
	"fourpisky-feeds/pkg/ivorn"
	"fourpisky-feeds/timescale"
	"fourpisky-feeds/voevent"
)

// Gaia feed defaults.
const (
	GaiaURL       = "http://gsaweb.ast.cam.ac.uk/alerts/alerts.csv"
	GaiaSubstream = "GAIA"
	gaiaAlertPage = "http://gsaweb.ast.cam.ac.uk/alerts/alert/%s/"

	gaiaParamsGroup = "gaia_params"

	// Worst case: an SDSS reference position at r=22.
	gaiaErrorArcsec = 0.1
)

// CSV columns, header names with the comment marker and padding removed.
const (
	GaiaName           = "Name"
	GaiaDate           = "Date"
	GaiaPublished      = "Published"
	GaiaRA             = "RaDeg"
	GaiaDec            = "DecDeg"
	GaiaAlertMag       = "AlertMag"
	GaiaHistoricMag    = "HistoricMag"
	GaiaHistoricStdDev = "HistoricStdDev"
	GaiaClass          = "Class"
	GaiaComment        = "Comment"
)

var gaiaColumns = []string{
	GaiaName, GaiaDate, GaiaRA, GaiaDec, GaiaAlertMag, GaiaHistoricMag,
	GaiaHistoricStdDev, GaiaClass, GaiaPublished, GaiaComment,
}

// GaiaConfig tunes the Gaia adapter.
type GaiaConfig struct {
	URL       string
	HashRange *feed.ByteRange
}

// DefaultGaiaConfig returns the production settings.
func DefaultGaiaConfig() GaiaConfig {
	return GaiaConfig{
		URL:       GaiaURL,
		HashRange: &feed.ByteRange{Start: 0, End: 10000},
	}
}

// GaiaRow is one line of the alerts CSV.
type GaiaRow struct {
	Values map[string]string
}

// Fields returns the row values.
func (r *GaiaRow) Fields() map[string]string {
	out := make(map[string]string, len(r.Values))
	for k, v := range r.Values {
		out[k] = v
	}
	return out
}

// Gaia reads the Gaia science alerts CSV.
type Gaia struct {
	cfg  GaiaConfig
	opts Options
}

// NewGaia creates the Gaia adapter.
func NewGaia(cfg GaiaConfig, opts Options) *Gaia {
	return &Gaia{cfg: cfg, opts: opts}
}

func (g *Gaia) Name() string { return "GAIA science alerts" }
func (g *Gaia) URL() string { return g.cfg.URL }
func (g *Gaia) Substream() string { return GaiaSubstream }
func (g *Gaia) HashRange() *feed.ByteRange { return g.cfg.HashRange }

// Parse reads every alert row.
func (g *Gaia) Parse(content []byte) ([]feed.Record, error) {
	r := csv.NewReader(bytes.NewReader(content))
	r.TrimLeadingSpace = true
	r.LazyQuotes = true

	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, &feed.ParseError{Feed: g.Name(), Reason: "empty content"}
	}
	if err != nil {
		return nil, &feed.ParseError{Feed: g.Name(), Reason: fmt.Sprintf("read header: %v", err)}
	}
	for i, h := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(h), "#"))
	}
	for _, col := range gaiaColumns {
		if !slices.Contains(header, col) {
			return nil, &feed.ParseError{Feed: g.Name(), Reason: fmt.Sprintf("header %q lacks column %s", header, col)}
		}
	}

	var records []feed.Record
	for {
		fields, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, &feed.ParseError{Feed: g.Name(), Reason: err.Error()}
		}
		row := &GaiaRow{Values: make(map[string]string, len(header))}
		for i, h := range header {
			row.Values[h] = strings.TrimSpace(fields[i])
		}
		records = append(records, row)
	}
	return records, nil
}

// FeedID is the Gaia alert name, which is already unique.
func (g *Gaia) FeedID(rec feed.Record) (feed.ID, error) {
	row, ok := rec.(*GaiaRow)
	if !ok {
		return "", &feed.IdentityError{Feed: g.Name(), Reason: fmt.Sprintf("unexpected record type %T", rec)}
	}
	name := row.Values[GaiaName]
	if name == "" {
		return "", &feed.IdentityError{Feed: g.Name(), Reason: "empty alert name", Fields: row.Fields()}
	}
	return feed.ID(name), nil
}

// DuplicatePrefixes is the full identifier: Gaia alerts are never renamed.
func (g *Gaia) DuplicatePrefixes(id feed.ID) []string {
	return []string{feed.IVORN(g, id)}
}

// parseGaiaDate reads the CSV timestamp, which is on the TCB scale.
func parseGaiaDate(s string) (time.Time, error) {
	for _, layout := range []string{
		"2006-01-02 15:04:05.999999999",
		"2006-01-02T15:04:05.999999999",
		"2006-01-02",
	} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognised Gaia date %q", s)
}

// BuildEvent assembles the outbound packet for an alert.
func (g *Gaia) BuildEvent(rec feed.Record, id feed.ID, now time.Time) (*voevent.VOEvent, error) {
	row, ok := rec.(*GaiaRow)
	if !ok {
		return nil, fmt.Errorf("unexpected record type %T", rec)
	}

	ra, err := strconv.ParseFloat(row.Values[GaiaRA], 64)
	if err != nil {
		return nil, fmt.Errorf("parse RaDeg: %w", err)
	}
	dec, err := strconv.ParseFloat(row.Values[GaiaDec], 64)
	if err != nil {
		return nil, fmt.Errorf("parse DecDeg: %w", err)
	}
	tcb, err := parseGaiaDate(row.Values[GaiaDate])
	if err != nil {
		return nil, err
	}

	v := voevent.New(feed.IVORN(g, id), g.opts.role(), g.opts.Author, ivorn.AuthorIVORN(), now)
	v.AddReference(g.cfg.URL, "")
	v.AddReference(fmt.Sprintf(gaiaAlertPage, row.Values[GaiaName]), "alert page")
	v.How.Description = []string{"Parsed from GAIA Science Alerts listings by 4PiSky-Bot."}
	v.SetWhereWhen(voevent.Position{RA: ra, Dec: dec, Err: gaiaErrorArcsec / 3600}, timescale.TCBToUTC(tcb))

	params := []voevent.Param{{Name: GaiaName, Value: row.Values[GaiaName]}}
	for _, key := range []string{GaiaClass, GaiaDate, GaiaPublished, GaiaRA, GaiaDec, GaiaComment} {
		params = append(params, voevent.Param{Name: key, Value: row.Values[key]})
	}
	for _, key := range []string{GaiaAlertMag, GaiaHistoricMag, GaiaHistoricStdDev} {
		params = append(params, voevent.Param{Name: key, Value: row.Values[key], Unit: "mag", UCD: "phot.mag"})
	}
	v.AddGroup(gaiaParamsGroup, params...)
	return v, nil
}
