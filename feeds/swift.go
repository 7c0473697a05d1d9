package feeds

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"fourpisky-feeds/eventstore"
	"fourpisky-feeds/pkg/feed"
	"fourpisky-feeds/pkg/ivorn"
	"fourpisky-feeds/voevent"
)

// Swift burst-analysis defaults.
const (
	SwiftURLTemplate   = "http://gcn.gsfc.nasa.gov/notices_s/%s/BA/"
	SwiftSubstream     = "SWIFT-ANNOTATE"
	SwiftTriggerPrefix = "ivo://nasa.gsfc.gcn/SWIFT#BAT_GRB_Pos_"
	SwiftTriggerStream = "nasa.gsfc.gcn/SWIFT"

	swiftDurationGroup = "duration"
	battblocksWarning  = "WARNING: battblocks failed."
	durationBlockLines = 9

	battblocksDescription = "If true, the source page carries the 'battblocks failed' warning: " +
		"the duration analysis is bad, usually because the source is not a GRB."
)

// SwiftConfig tunes the Swift burst-analysis adapter.
type SwiftConfig struct {
	URLTemplate string
	// LookBack bounds how old a trigger packet may be.
	LookBack time.Duration
}

// DefaultSwiftConfig returns the production settings.
func DefaultSwiftConfig() SwiftConfig {
	return SwiftConfig{
		URLTemplate: SwiftURLTemplate,
		LookBack:    7 * 24 * time.Hour,
	}
}

// Durations are the BAT duration estimates in seconds.
type Durations struct {
	T90, T90Err float64
	T50, T50Err float64
}

// SwiftDuration is the duration analysis of one burst. Durations is nil when
// the page reports that battblocks failed.
type SwiftDuration struct {
	BattblocksFailed bool
	Durations        *Durations
}

// Fields returns the record as strings.
func (r *SwiftDuration) Fields() map[string]string {
	out := map[string]string{"battblocks_failed": strconv.FormatBool(r.BattblocksFailed)}
	if d := r.Durations; d != nil {
		out["t90"] = formatFloat(d.T90)
		out["t90_err"] = formatFloat(d.T90Err)
		out["t50"] = formatFloat(d.T50)
		out["t50_err"] = formatFloat(d.T50Err)
	}
	return out
}

// Swift reads the burst-analysis page for one BAT GRB trigger.
type Swift struct {
	cfg       SwiftConfig
	opts      Options
	trigger   *voevent.VOEvent
	triggerID string
}

// SwiftTriggerID extracts the short trigger number from a BAT GRB position
// packet identifier.
func SwiftTriggerID(triggerIVORN string) (string, error) {
	rest, ok := strings.CutPrefix(triggerIVORN, SwiftTriggerPrefix)
	if !ok {
		return "", fmt.Errorf("%s is not a Swift BAT GRB position packet", triggerIVORN)
	}
	id, _, _ := strings.Cut(rest, "-")
	if id == "" {
		return "", fmt.Errorf("no trigger id in %s", triggerIVORN)
	}
	return id, nil
}

// NewSwift creates the adapter for the given trigger packet.
func NewSwift(trigger *voevent.VOEvent, cfg SwiftConfig, opts Options) (*Swift, error) {
	id, err := SwiftTriggerID(trigger.IVORN)
	if err != nil {
		return nil, err
	}
	return &Swift{cfg: cfg, opts: opts, trigger: trigger, triggerID: id}, nil
}

func (s *Swift) Name() string { return fmt.Sprintf("SwiftTrigger_%s_analysis", s.triggerID) }
func (s *Swift) URL() string { return fmt.Sprintf(s.cfg.URLTemplate, s.triggerID) }
func (s *Swift) Substream() string { return SwiftSubstream }
func (s *Swift) HashRange() *feed.ByteRange { return nil }

// TriggerID returns the short trigger number.
func (s *Swift) TriggerID() string { return s.triggerID }

// Parse extracts the duration block from the first preformatted section.
// When the section repeats the block the last one wins. A page without a
// complete block yields no records.
func (s *Swift) Parse(content []byte) ([]feed.Record, error) {
	doc, err := htmlDocument(content)
	if err != nil {
		return nil, &feed.ParseError{Feed: s.Name(), Reason: err.Error()}
	}
	pre := doc.Find("pre").First()
	if pre.Length() == 0 {
		return nil, &feed.ParseError{Feed: s.Name(), Reason: "no <pre> block found"}
	}

	var last *SwiftDuration
	lines := strings.Split(pre.Text(), "\n")
	for idx, line := range lines {
		if !strings.Contains(line, "Duration") {
			continue
		}
		rec, err := extractDuration(lines, idx)
		if err != nil {
			return nil, &feed.ParseError{Feed: s.Name(), Reason: err.Error()}
		}
		if rec != nil {
			last = rec
		}
	}
	if last == nil {
		return nil, nil
	}
	return []feed.Record{last}, nil
}

func extractDuration(lines []string, start int) (*SwiftDuration, error) {
	end := min(start+durationBlockLines, len(lines))
	block := make([]string, 0, end-start)
	for _, l := range lines[start:end] {
		block = append(block, strings.TrimSpace(l))
	}

	for _, l := range block {
		if strings.Contains(l, battblocksWarning) {
			return &SwiftDuration{BattblocksFailed: true}, nil
		}
	}
	if len(block) < 5 || !strings.HasPrefix(block[1], "T90") || !strings.HasPrefix(block[4], "T50") {
		return nil, nil
	}

	t90, t90Err, err := valueAndError(block[1])
	if err != nil {
		return nil, err
	}
	t50, t50Err, err := valueAndError(block[4])
	if err != nil {
		return nil, err
	}
	return &SwiftDuration{Durations: &Durations{T90: t90, T90Err: t90Err, T50: t50, T50Err: t50Err}}, nil
}

// valueAndError reads lines like "T90:  12.345 +/-  1.234".
func valueAndError(line string) (float64, float64, error) {
	tokens := strings.Fields(line)
	if len(tokens) < 4 {
		return 0, 0, fmt.Errorf("short duration line %q", line)
	}
	v, err := strconv.ParseFloat(tokens[1], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("duration value in %q: %w", line, err)
	}
	e, err := strconv.ParseFloat(tokens[3], 64)
	if err != nil {
		return 0, 0, fmt.Errorf("duration error in %q: %w", line, err)
	}
	return v, e, nil
}

// FeedID is "<trigger>_duration".
func (s *Swift) FeedID(rec feed.Record) (feed.ID, error) {
	if _, ok := rec.(*SwiftDuration); !ok {
		return "", &feed.IdentityError{Feed: s.Name(), Reason: fmt.Sprintf("unexpected record type %T", rec)}
	}
	return feed.ID(s.triggerID + "_" + swiftDurationGroup), nil
}

// DuplicatePrefixes is the full identifier: trigger numbers are unique.
func (s *Swift) DuplicatePrefixes(id feed.ID) []string {
	return []string{feed.IVORN(s, id)}
}

// BuildEvent annotates the trigger with its duration analysis.
func (s *Swift) BuildEvent(rec feed.Record, id feed.ID, now time.Time) (*voevent.VOEvent, error) {
	d, ok := rec.(*SwiftDuration)
	if !ok {
		return nil, fmt.Errorf("unexpected record type %T", rec)
	}

	v := voevent.New(feed.IVORN(s, id), s.opts.role(), s.opts.Author, ivorn.AuthorIVORN(), now)
	v.AddReference(s.URL(), "")
	v.How.Description = []string{"Parsed from Swift burst-analysis listings by 4PiSky-Bot."}
	if s.trigger.WhereWhen != nil {
		ww := *s.trigger.WhereWhen
		v.WhereWhen = &ww
	}
	v.AddParams(voevent.Param{Name: "TrigID", Value: s.triggerID, UCD: "meta.id"})
	v.AddCitation(s.trigger.IVORN, voevent.CiteFollowup)

	var params []voevent.Param
	if !d.BattblocksFailed && d.Durations != nil {
		params = append(params,
			voevent.Param{Name: "t90", Value: formatFloat(d.Durations.T90), Unit: "s", UCD: "time.duration"},
			voevent.Param{Name: "t50", Value: formatFloat(d.Durations.T50), Unit: "s", UCD: "time.duration"},
			voevent.Param{Name: "t90_err", Value: formatFloat(d.Durations.T90Err), Unit: "s", UCD: "meta.code.error;time.duration"},
			voevent.Param{Name: "t50_err", Value: formatFloat(d.Durations.T50Err), Unit: "s", UCD: "meta.code.error;time.duration"},
		)
	}
	params = append(params, voevent.Param{
		Name:        "battblocks_failed",
		Value:       strconv.FormatBool(d.BattblocksFailed),
		UCD:         "meta.code.error",
		Description: battblocksDescription,
	})
	v.AddGroup(swiftDurationGroup, params...)
	return v, nil
}

// PacketSource lists stored packets.
type PacketSource interface {
	RecentPackets(ctx context.Context, f eventstore.Filter) ([]eventstore.Packet, error)
}

// SwiftTriggers builds one adapter per recent BAT GRB position packet,
// skipping packets raised while the star tracker was lost or pointing at a
// catalogued source.
func SwiftTriggers(ctx context.Context, src PacketSource, cfg SwiftConfig, opts Options, now time.Time) ([]*Swift, error) {
	logger := opts.logger()
	f := eventstore.Filter{
		Stream:        SwiftTriggerStream,
		IVORNContains: "BAT_GRB",
		Role:          string(voevent.RoleObservation),
	}
	if cfg.LookBack > 0 {
		f.Since = now.Add(-cfg.LookBack)
	}

	packets, err := src.RecentPackets(ctx, f)
	if err != nil {
		return nil, &feed.StoreError{Op: "recent swift packets", Err: err}
	}

	var out []*Swift
	for _, p := range packets {
		v, err := voevent.Parse(p.XML)
		if err != nil {
			logger.Warn("Skipping unreadable trigger packet", "ivorn", p.IVORN, "error", err)
			continue
		}
		if reason := swiftRejection(v); reason != "" {
			logger.Debug("Skipping trigger packet", "ivorn", v.IVORN, "reason", reason)
			continue
		}
		sw, err := NewSwift(v, cfg, opts)
		if err != nil {
			logger.Debug("Skipping non-position packet", "ivorn", v.IVORN, "error", err)
			continue
		}
		logger.Debug("Created feed for packet", "ivorn", v.IVORN, "feed", sw.Name())
		out = append(out, sw)
	}
	return out, nil
}

func swiftRejection(v *voevent.VOEvent) string {
	flags := []struct{ group, name, reason string }{
		{"Misc_Flags", "ImTrig_during_ST_LoL", "star tracker lost"},
		{"Solution_Status", "Target_in_Flt_Catalog", "target in flight catalog"},
		{"Solution_Status", "Target_in_Gnd_Catalog", "target in ground catalog"},
	}
	for _, f := range flags {
		if val, ok := v.Param(f.group, f.name); ok && val == "true" {
			return f.reason
		}
	}
	return ""
}
