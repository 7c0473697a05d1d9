package voevent

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseRA converts "hh:mm:ss.s" (or decimal degrees) to degrees.
func ParseRA(s string) (float64, error) {
	v, sexagesimal, err := parseSexagesimal(s)
	if err != nil {
		return 0, fmt.Errorf("parse RA %q: %w", s, err)
	}
	if sexagesimal {
		v *= 15
	}
	if v < 0 || v >= 360 {
		return 0, fmt.Errorf("RA %q out of range", s)
	}
	return v, nil
}

// ParseDec converts "+dd:mm:ss.s" (or decimal degrees) to degrees.
func ParseDec(s string) (float64, error) {
	v, _, err := parseSexagesimal(s)
	if err != nil {
		return 0, fmt.Errorf("parse Dec %q: %w", s, err)
	}
	if v < -90 || v > 90 {
		return 0, fmt.Errorf("Dec %q out of range", s)
	}
	return v, nil
}

func parseSexagesimal(s string) (float64, bool, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false, fmt.Errorf("empty value")
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == ':' || r == ' ' })
	if len(parts) == 1 {
		v, err := strconv.ParseFloat(parts[0], 64)
		return v, false, err
	}
	if len(parts) != 3 {
		return 0, false, fmt.Errorf("expected 3 components, got %d", len(parts))
	}

	negative := strings.HasPrefix(parts[0], "-")
	var total float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(p, 64)
		if err != nil {
			return 0, false, err
		}
		total += math.Abs(f) / math.Pow(60, float64(i))
	}
	if negative {
		total = -total
	}
	return total, true, nil
}
