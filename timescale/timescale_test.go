package timescale

import (
	"math"
	"testing"
	"time"
)

func TestTAIMinusUTC(t *testing.T) {
	tests := []struct {
		at   time.Time
		want float64
	}{
		{time.Date(1971, 6, 1, 0, 0, 0, 0, time.UTC), 0},
		{time.Date(2016, 6, 1, 0, 0, 0, 0, time.UTC), 36},
		{time.Date(2016, 12, 31, 23, 59, 59, 0, time.UTC), 36},
		{time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC), 37},
		{time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC), 37},
	}
	for _, tt := range tests {
		if got := TAIMinusUTC(tt.at); got != tt.want {
			t.Errorf("TAIMinusUTC(%v) = %v, want %v", tt.at, got, tt.want)
		}
	}
}

func TestTCBToUTC(t *testing.T) {
	tcb := time.Date(2016, 4, 3, 12, 0, 0, 0, time.UTC)
	utc := TCBToUTC(tcb)

	// TCB runs ahead of UTC by the 32.184s TT offset, 36 leap seconds and
	// roughly 19.2s of accumulated L_B drift by 2016.
	diff := tcb.Sub(utc).Seconds()
	if math.Abs(diff-87.4) > 0.2 {
		t.Errorf("TCB - UTC = %.3fs, want about 87.4s", diff)
	}
}

func TestJulianDate(t *testing.T) {
	j2000 := time.Date(2000, 1, 1, 12, 0, 0, 0, time.UTC)
	if got := JulianDate(j2000); math.Abs(got-2451545.0) > 1e-9 {
		t.Errorf("JulianDate(J2000) = %v", got)
	}
}
