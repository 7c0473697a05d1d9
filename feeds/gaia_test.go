package feeds

import (
	"strings"
	"testing"
	"time"

	"fourpisky-feeds/pkg/feed"
)

const gaiaCSV = `#Name, Date, RaDeg, DecDeg, AlertMag, HistoricMag, HistoricStdDev, Class, Published, Comment
Gaia16aaa, 2016-01-01 12:00:00, 150.25000, -12.50000, 18.20, 19.01, 0.10, unknown, 2016-01-03 10:00:00, "candidate SN, host galaxy"
Gaia16aab, 2016-01-02 00:30:00, 10.00000, 45.00000, 17.10, 17.90, 0.05, SN Ia, 2016-01-04 09:15:00, brightening star
`

func TestGaiaParse(t *testing.T) {
	g := NewGaia(DefaultGaiaConfig(), Options{})
	recs, err := g.Parse([]byte(gaiaCSV))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("got %d records, want 2", len(recs))
	}

	row := recs[0].(*GaiaRow)
	if row.Values[GaiaComment] != "candidate SN, host galaxy" {
		t.Errorf("Comment = %q", row.Values[GaiaComment])
	}
	if row.Values[GaiaClass] != "unknown" {
		t.Errorf("Class = %q", row.Values[GaiaClass])
	}

	id, err := g.FeedID(recs[1])
	if err != nil {
		t.Fatalf("FeedID() error = %v", err)
	}
	if id != "Gaia16aab" {
		t.Errorf("FeedID() = %q, want Gaia16aab", id)
	}
	if got := g.DuplicatePrefixes(id); len(got) != 1 || got[0] != "ivo://voevent.4pisky.org/GAIA#Gaia16aab" {
		t.Errorf("DuplicatePrefixes() = %v", got)
	}
}

func TestGaiaParseErrors(t *testing.T) {
	g := NewGaia(DefaultGaiaConfig(), Options{})
	tests := []struct {
		name    string
		content string
	}{
		{name: "empty", content: ""},
		{name: "missing column", content: "#Name, Date, RaDeg\nGaia16aaa, 2016-01-01 12:00:00, 150.25\n"},
		{name: "short row", content: strings.SplitN(gaiaCSV, "\n", 2)[0] + "\nGaia16aaa, 2016-01-01\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := g.Parse([]byte(tt.content)); !feed.IsParseError(err) {
				t.Errorf("Parse() error = %v, want ParseError", err)
			}
		})
	}
}

func TestGaiaFeedIDRequiresName(t *testing.T) {
	g := NewGaia(DefaultGaiaConfig(), Options{})
	_, err := g.FeedID(&GaiaRow{Values: map[string]string{GaiaName: ""}})
	if !feed.IsIdentityError(err) {
		t.Errorf("FeedID() error = %v, want IdentityError", err)
	}
}

func TestGaiaBuildEventConvertsTCB(t *testing.T) {
	g := NewGaia(DefaultGaiaConfig(), Options{})
	recs, err := g.Parse([]byte(gaiaCSV))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}

	v, err := g.BuildEvent(recs[0], "Gaia16aaa", time.Date(2016, 1, 4, 0, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("BuildEvent() error = %v", err)
	}
	obs, err := v.ObservationTime()
	if err != nil {
		t.Fatalf("ObservationTime() error = %v", err)
	}
	// TCB runs ahead of UTC by roughly 87s in early 2016.
	offset := time.Date(2016, 1, 1, 12, 0, 0, 0, time.UTC).Sub(obs)
	if offset < 86*time.Second || offset > 89*time.Second {
		t.Errorf("TCB-UTC offset = %v, want about 87s", offset)
	}

	if v.How == nil || len(v.How.References) != 2 {
		t.Fatalf("expected feed and alert page references, got %+v", v.How)
	}
	if got := v.How.References[1].URI; got != "http://gsaweb.ast.cam.ac.uk/alerts/alert/Gaia16aaa/" {
		t.Errorf("alert page = %q", got)
	}
	if mag, ok := v.Param("gaia_params", GaiaAlertMag); !ok || mag != "18.20" {
		t.Errorf("AlertMag = %q, %v", mag, ok)
	}
}
