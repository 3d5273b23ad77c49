package usecase

import (
	"fmt"
	"strings"
	"time"
)

// WeeksBilled is ceil(days/7) between two period end dates. Any remainder day
// bills a full week.
func WeeksBilled(prev, next time.Time) (int, error) {
	prev, next = midnight(prev), midnight(next)
	if next.Before(prev) {
		return 0, &InvalidPeriodError{Previous: prev, New: next}
	}
	days := int(next.Sub(prev).Hours()/24 + 0.5)
	return (days + 6) / 7, nil
}

func midnight(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// parseMarker reads an insurance marker "MM/DD/YYYY-MM/DD/YYYY".
func parseMarker(s string) (start, end time.Time, ok bool) {
	a, b, found := strings.Cut(strings.TrimSpace(s), "-")
	if !found {
		return time.Time{}, time.Time{}, false
	}
	start, err1 := ParseDate(a)
	end, err2 := ParseDate(b)
	if err1 != nil || err2 != nil {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func formatMarker(start, end time.Time) string {
	return start.Format(dateLayout) + "-" + end.Format(dateLayout)
}

// QuarterWindow returns the exclusive (after, before) pickup-date bounds of a
// calendar quarter.
func QuarterWindow(q, year int) (after, before time.Time, err error) {
	if q < 1 || q > 4 {
		return time.Time{}, time.Time{}, fmt.Errorf("usecase: quarter %d out of range", q)
	}
	first := time.Date(year, time.Month(3*(q-1)+1), 1, 0, 0, 0, 0, time.UTC)
	return first.AddDate(0, 0, -1), first.AddDate(0, 3, 0), nil
}

// parseQuarter accepts "Q3" or "Q3 2025"; the year defaults to now's.
func parseQuarter(s string, now time.Time) (q, year int, err error) {
	fields := strings.Fields(strings.ToUpper(strings.TrimSpace(s)))
	year = now.Year()
	if len(fields) == 0 || len(fields) > 2 || len(fields[0]) != 2 || fields[0][0] != 'Q' {
		return 0, 0, invalid("%q is not a quarter. Pick Q1-Q4.", s)
	}
	q = int(fields[0][1] - '0')
	if q < 1 || q > 4 {
		return 0, 0, invalid("%q is not a quarter. Pick Q1-Q4.", s)
	}
	if len(fields) == 2 {
		if _, scanErr := fmt.Sscanf(fields[1], "%d", &year); scanErr != nil || year < 2000 {
			return 0, 0, invalid("%q has no valid year.", s)
		}
	}
	return q, year, nil
}
