package play

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// ErrInvalidPeriod is returned when a period string does not match the
// accepted grammar.
var ErrInvalidPeriod = errors.New("invalid period format")

// periodPattern is the accepted period grammar: digits followed by a unit.
// Units: d (days), w (weeks), h (hours), m (months).
var periodPattern = regexp.MustCompile(`^(\d+)([dwhm])$`)

// PeriodToDate parses a compact relative-period string ("7d", "2w", "3h",
// "1m") into the absolute cutoff timestamp, measured back from now.
// Months use calendar-month subtraction, not a fixed 30-day approximation.
func PeriodToDate(period string) (time.Time, error) {
	return periodToDateAt(period, time.Now())
}

func periodToDateAt(period string, now time.Time) (time.Time, error) {
	m := periodPattern.FindStringSubmatch(period)
	if m == nil {
		return time.Time{}, fmt.Errorf("%w: %q (use e.g. 7d, 4w, 24h, 1m)", ErrInvalidPeriod, period)
	}

	value, err := strconv.Atoi(m[1])
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q (use e.g. 7d, 4w, 24h, 1m)", ErrInvalidPeriod, period)
	}

	switch m[2] {
	case "d":
		return now.AddDate(0, 0, -value), nil
	case "w":
		return now.AddDate(0, 0, -value*7), nil
	case "h":
		return now.Add(-time.Duration(value) * time.Hour), nil
	case "m":
		return now.AddDate(0, -value, 0), nil
	}
	// Unreachable: the pattern only admits the four units above.
	return time.Time{}, fmt.Errorf("%w: %q (use e.g. 7d, 4w, 24h, 1m)", ErrInvalidPeriod, period)
}
