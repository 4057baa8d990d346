// internal/availability/timegrid.go
package availability

import (
	"fmt"
	"time"
)

// ClockTime is a time of day expressed as minutes after midnight.
// Keeping it an integer makes the half-open window comparisons in the
// engine plain integer comparisons.
type ClockTime int

// NewClockTime builds a ClockTime from an hour and minute pair.
func NewClockTime(hour, minute int) ClockTime {
	return ClockTime(hour*60 + minute)
}

// ParseClock parses a "15:04" style label into a ClockTime.
func ParseClock(s string) (ClockTime, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("parse clock time %q: %w", s, err)
	}
	return NewClockTime(t.Hour(), t.Minute()), nil
}

// ClockTimeOf extracts the time-of-day component of an instant.
func ClockTimeOf(t time.Time) ClockTime {
	return NewClockTime(t.Hour(), t.Minute())
}

func (c ClockTime) Hour() int   { return int(c) / 60 }
func (c ClockTime) Minute() int { return int(c) % 60 }

// String renders the tick as a "15:04" label.
func (c ClockTime) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour(), c.Minute())
}

// At combines the time of day with the date component of day.
func (c ClockTime) At(day time.Time) time.Time {
	return time.Date(day.Year(), day.Month(), day.Day(), c.Hour(), c.Minute(), 0, 0, day.Location())
}

// DayLabel is the column header format of the weekly grid.
const DayLabel = "Mon 02/01/06"

// DateOf truncates an instant to midnight of its calendar day.
func DateOf(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// SameDate reports whether two instants fall on the same calendar day.
func SameDate(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}

// NextNDays returns n contiguous dates starting at start inclusive,
// each truncated to midnight.
func NextNDays(start time.Time, n int) []time.Time {
	days := make([]time.Time, 0, n)
	day := DateOf(start)
	for i := 0; i < n; i++ {
		days = append(days, day.AddDate(0, 0, i))
	}
	return days
}

// TicksByIncrement generates every tick from minOpen to maxClose inclusive,
// stepping by increment minutes. The sequence is empty when minOpen is past
// maxClose, which is exactly what the sentinel defaults produce for a week
// with no open days.
func TicksByIncrement(minOpen, maxClose ClockTime, increment int) []ClockTime {
	if increment <= 0 {
		return nil
	}
	var ticks []ClockTime
	for t := minOpen; t <= maxClose; t += ClockTime(increment) {
		ticks = append(ticks, t)
	}
	return ticks
}
