package trigger

import (
	"time"
)

const day = 24 * time.Hour

// Date is a calendar date with no time of day or zone.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// DateOf returns the calendar date of t in t's own location. DATE columns
// come back from the database at midnight UTC and must not be shifted into
// another zone before comparison.
func DateOf(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// Today returns the calendar date of now in loc.
func Today(now time.Time, loc *time.Location) Date {
	if loc == nil {
		loc = time.UTC
	}
	return DateOf(now.In(loc))
}

// AddDays returns the date n days after d.
func (d Date) AddDays(n int) Date {
	return DateOf(time.Date(d.Year, d.Month, d.Day+n, 0, 0, 0, 0, time.UTC))
}

// Start returns midnight of d in loc.
func (d Date) Start(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, loc)
}

// String formats d as YYYY-MM-DD.
func (d Date) String() string {
	return d.Start(time.UTC).Format(time.DateOnly)
}

// DaysSince returns the number of whole elapsed days between start and
// now, rounded down. It returns -1 when now is before start or start is
// unset.
func DaysSince(start, now time.Time) int {
	if start.IsZero() || now.Before(start) {
		return -1
	}
	return int(now.Sub(start) / day)
}
