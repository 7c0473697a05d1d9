package voevent

import (
	"math"
	"strings"
	"testing"
	"time"
)

func TestMarshalParse(t *testing.T) {
	now := time.Date(2016, 1, 9, 6, 43, 12, 0, time.UTC)
	v := New("ivo://voevent.4pisky.org/ASASSN#2016-01-09.28_ASASSN-16ad", RoleObservation,
		Author{ShortName: "4PiSkyBot"}, "ivo://voevent.4pisky.org/robots", now)
	v.SetWhereWhen(Position{RA: 150.25, Dec: -12.5, Err: 16.0 / 3600}, now)
	v.AddGroup("asassn_params", Param{Name: "id_assasn", Value: "ASASSN-16ad"})
	v.AddCitation("ivo://nasa.gsfc.gcn/SWIFT#BAT_GRB_Pos_123456-789", CiteFollowup)

	data, err := Marshal(v)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	doc := string(data)
	for _, want := range []string{"<voe:VOEvent", `xmlns:voe="` + Namespace + `"`, `role="observation"`, "<ISOTime>2016-01-09T06:43:12</ISOTime>"} {
		if !strings.Contains(doc, want) {
			t.Errorf("marshalled packet missing %q:\n%s", want, doc)
		}
	}

	parsed, err := Parse(data)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if parsed.IVORN != v.IVORN {
		t.Errorf("IVORN = %q, want %q", parsed.IVORN, v.IVORN)
	}
	if got, ok := parsed.Param("asassn_params", "id_assasn"); !ok || got != "ASASSN-16ad" {
		t.Errorf("Param() = %q, %v", got, ok)
	}
	obs, err := parsed.ObservationTime()
	if err != nil || !obs.Equal(now) {
		t.Errorf("ObservationTime() = %v, %v; want %v", obs, err, now)
	}
	if len(parsed.Citations.EventIVORNs) != 1 || parsed.Citations.EventIVORNs[0].Cite != CiteFollowup {
		t.Errorf("citations not preserved: %+v", parsed.Citations)
	}
}

func TestParseRejectsMissingIVORN(t *testing.T) {
	if _, err := Parse([]byte(`<VOEvent role="observation" version="2.0"/>`)); err == nil {
		t.Error("Parse() accepted a packet without an ivorn")
	}
}

func TestParseCoordinates(t *testing.T) {
	tests := []struct {
		name    string
		ra, dec string
		wantRA  float64
		wantDec float64
		wantErr bool
	}{
		{name: "sexagesimal", ra: "10:00:00.0", dec: "-30:30:00", wantRA: 150, wantDec: -30.5},
		{name: "negative zero degrees", ra: "00:00:36", dec: "-00:30:00", wantRA: 0.15, wantDec: -0.5},
		{name: "decimal", ra: "150.5", dec: "12.25", wantRA: 150.5, wantDec: 12.25},
		{name: "garbage", ra: "x", dec: "y", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ra, errRA := ParseRA(tt.ra)
			dec, errDec := ParseDec(tt.dec)
			if tt.wantErr {
				if errRA == nil || errDec == nil {
					t.Errorf("expected errors, got %v / %v", errRA, errDec)
				}
				return
			}
			if errRA != nil || errDec != nil {
				t.Fatalf("unexpected errors %v / %v", errRA, errDec)
			}
			if math.Abs(ra-tt.wantRA) > 1e-9 || math.Abs(dec-tt.wantDec) > 1e-9 {
				t.Errorf("got (%v, %v), want (%v, %v)", ra, dec, tt.wantRA, tt.wantDec)
			}
		})
	}
}
