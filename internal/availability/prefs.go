// internal/availability/prefs.go
package availability

import (
	"fmt"
	"time"
)

// Increments are the allowed slot granularities, in minutes.
var Increments = []int{10, 15, 20, 30, 40, 45, 60, 90, 120, 180}

// Sentinel bounds used when no weekday has both open and close set.
// minOpenSentinel > maxCloseSentinel yields an empty tick range.
const (
	minOpenSentinel  = ClockTime(23*60 + 59)
	maxCloseSentinel = ClockTime(0)
)

// DayWindow is the optional open/close pair for a single weekday.
// A day with either bound missing has zero availability.
type DayWindow struct {
	Open  *ClockTime
	Close *ClockTime
}

// Bookable reports whether the day has both bounds set.
func (w DayWindow) Bookable() bool {
	return w.Open != nil && w.Close != nil
}

// WeeklyPreferences is the owner's recurring weekly schedule. It is an
// immutable value passed explicitly into every engine call; nothing in the
// core mutates it or caches it between requests.
type WeeklyPreferences struct {
	// Days is indexed by time.Weekday (Sunday == 0).
	Days [7]DayWindow

	// LunchStart/LunchEnd block a shared daily break when both are set.
	LunchStart *ClockTime
	LunchEnd   *ClockTime

	// Increment is the slot spacing in minutes.
	Increment int

	// MaxDuration is the longest single booking in minutes, a multiple
	// of Increment.
	MaxDuration int
}

// Window returns the open/close pair for the weekday of day.
func (p WeeklyPreferences) Window(day time.Weekday) DayWindow {
	return p.Days[int(day)]
}

// MinMaxTimes derives the earliest open and latest close across the week.
// Days missing either bound are ignored; with no bookable day at all the
// sentinels produce an empty range.
func (p WeeklyPreferences) MinMaxTimes() (ClockTime, ClockTime) {
	minOpen, maxClose := minOpenSentinel, maxCloseSentinel
	for _, w := range p.Days {
		if !w.Bookable() {
			continue
		}
		if *w.Open < minOpen {
			minOpen = *w.Open
		}
		if *w.Close > maxClose {
			maxClose = *w.Close
		}
	}
	return minOpen, maxClose
}

// Validate checks the structural invariants the engine relies on.
func (p WeeklyPreferences) Validate() error {
	valid := false
	for _, inc := range Increments {
		if p.Increment == inc {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("increment %d is not an allowed granularity", p.Increment)
	}
	if p.MaxDuration <= 0 || p.MaxDuration%p.Increment != 0 {
		return fmt.Errorf("max duration %d must be a positive multiple of increment %d", p.MaxDuration, p.Increment)
	}
	for day, w := range p.Days {
		if !w.Bookable() {
			continue
		}
		if *w.Open >= *w.Close {
			return fmt.Errorf("%s opens at %s but closes at %s", time.Weekday(day), w.Open, w.Close)
		}
	}
	if (p.LunchStart == nil) != (p.LunchEnd == nil) {
		return fmt.Errorf("lunch break needs both start and end")
	}
	if p.LunchStart != nil && *p.LunchStart >= *p.LunchEnd {
		return fmt.Errorf("lunch starts at %s but ends at %s", p.LunchStart, p.LunchEnd)
	}
	return nil
}

// BookingDurationChoices lists the first twelve multiples of increment as
// (value, label) pairs for a duration dropdown.
func BookingDurationChoices(increment int) []DurationChoice {
	choices := make([]DurationChoice, 0, 12)
	value := increment
	for i := 0; i < 12; i++ {
		choices = append(choices, DurationChoice{Value: value, Label: value})
		value += increment
	}
	return choices
}
