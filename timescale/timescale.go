// Package timescale converts Barycentric Coordinate Time readings to UTC.
package timescale

import (
	"math"
	"time"
)

const (
	// IAU 2006 Resolution B3 defining constants.
	lb   = 1.550519768e-8
	t0   = 2443144.5003725 // JD of 1977-01-01T00:00:32.184 TAI
	tdb0 = -6.55e-5        // seconds

	ttMinusTAI = 32.184 // seconds

	unixEpochJD = 2440587.5
)

type leap struct {
	from   time.Time
	offset float64 // TAI - UTC in seconds
}

// TAI-UTC since 1972, per IERS Bulletin C.
var leapSeconds = []leap{
	{time.Date(1972, 1, 1, 0, 0, 0, 0, time.UTC), 10},
	{time.Date(1972, 7, 1, 0, 0, 0, 0, time.UTC), 11},
	{time.Date(1973, 1, 1, 0, 0, 0, 0, time.UTC), 12},
	{time.Date(1974, 1, 1, 0, 0, 0, 0, time.UTC), 13},
	{time.Date(1975, 1, 1, 0, 0, 0, 0, time.UTC), 14},
	{time.Date(1976, 1, 1, 0, 0, 0, 0, time.UTC), 15},
	{time.Date(1977, 1, 1, 0, 0, 0, 0, time.UTC), 16},
	{time.Date(1978, 1, 1, 0, 0, 0, 0, time.UTC), 17},
	{time.Date(1979, 1, 1, 0, 0, 0, 0, time.UTC), 18},
	{time.Date(1980, 1, 1, 0, 0, 0, 0, time.UTC), 19},
	{time.Date(1981, 7, 1, 0, 0, 0, 0, time.UTC), 20},
	{time.Date(1982, 7, 1, 0, 0, 0, 0, time.UTC), 21},
	{time.Date(1983, 7, 1, 0, 0, 0, 0, time.UTC), 22},
	{time.Date(1985, 7, 1, 0, 0, 0, 0, time.UTC), 23},
	{time.Date(1988, 1, 1, 0, 0, 0, 0, time.UTC), 24},
	{time.Date(1990, 1, 1, 0, 0, 0, 0, time.UTC), 25},
	{time.Date(1991, 1, 1, 0, 0, 0, 0, time.UTC), 26},
	{time.Date(1992, 7, 1, 0, 0, 0, 0, time.UTC), 27},
	{time.Date(1993, 7, 1, 0, 0, 0, 0, time.UTC), 28},
	{time.Date(1994, 7, 1, 0, 0, 0, 0, time.UTC), 29},
	{time.Date(1996, 1, 1, 0, 0, 0, 0, time.UTC), 30},
	{time.Date(1997, 7, 1, 0, 0, 0, 0, time.UTC), 31},
	{time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC), 32},
	{time.Date(2006, 1, 1, 0, 0, 0, 0, time.UTC), 33},
	{time.Date(2009, 1, 1, 0, 0, 0, 0, time.UTC), 34},
	{time.Date(2012, 7, 1, 0, 0, 0, 0, time.UTC), 35},
	{time.Date(2015, 7, 1, 0, 0, 0, 0, time.UTC), 36},
	{time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC), 37},
}

// TAIMinusUTC returns the leap second offset in force at t.
func TAIMinusUTC(t time.Time) float64 {
	offset := 0.0
	for _, l := range leapSeconds {
		if t.Before(l.from) {
			break
		}
		offset = l.offset
	}
	return offset
}

// JulianDate returns the Julian date of a calendar reading.
func JulianDate(t time.Time) float64 {
	return float64(t.UnixNano())/float64(24*time.Hour) + unixEpochJD
}

// TCBToUTC converts a calendar reading on the TCB scale to UTC.
// TT is approximated by TDB; the periodic terms stay below 2ms.
func TCBToUTC(tcb time.Time) time.Time {
	tcb = tcb.UTC()
	jd := JulianDate(tcb)
	tdbOffset := -lb*(jd-t0)*86400 + tdb0

	tai := tcb.Add(seconds(tdbOffset - ttMinusTAI))
	return tai.Add(-seconds(TAIMinusUTC(tai)))
}

func seconds(s float64) time.Duration {
	return time.Duration(math.Round(s * float64(time.Second)))
}
