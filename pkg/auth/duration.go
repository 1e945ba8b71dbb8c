package auth

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"time"
)

// NoExpiry is the duration string meaning tokens never expire
const NoExpiry = "-1"

var (
	durationPattern = regexp.MustCompile(`^(-1|0|(-?\d+(\.\d+)?)(ms|s|m|h|d|w))$`)
	durationPart    = regexp.MustCompile(`(-?\d+(?:\.\d+)?)(ms|s|m|h|d|w)`)
)

var durationUnits = map[string]time.Duration{
	"ms": time.Millisecond,
	"s":  time.Second,
	"m":  time.Minute,
	"h":  time.Hour,
	"d":  24 * time.Hour,
	"w":  7 * 24 * time.Hour,
}

// ValidDuration reports whether s is an accepted token expiry string:
// "-1", "0", or a signed number followed by one of ms, s, m, h, d, w.
// Values whose total does not fit in a time.Duration are rejected.
func ValidDuration(s string) bool {
	if !durationPattern.MatchString(s) {
		return false
	}
	_, _, err := ParseDuration(s)
	return err == nil
}

// ParseDuration converts an expiry string to a duration.
// "-1" and "0" both mean no expiry and return ok=false. Totals that do not fit
// in a time.Duration are an error.
func ParseDuration(s string) (d time.Duration, ok bool, err error) {
	if s == "-1" || s == "0" {
		return 0, false, nil
	}

	matches := durationPart.FindAllStringSubmatch(s, -1)
	if len(matches) == 0 {
		return 0, false, fmt.Errorf("invalid duration string: %q", s)
	}

	var total float64
	for _, m := range matches {
		n, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			return 0, false, fmt.Errorf("invalid duration number %q: %w", m[1], err)
		}
		total += n * float64(durationUnits[m[2]])
	}
	if math.IsNaN(total) || math.Abs(total) >= math.MaxInt64 {
		return 0, false, fmt.Errorf("duration out of range: %q", s)
	}

	return time.Duration(total), true, nil
}
