// internal/availability/durations.go
package availability

import (
	"time"
)

// DurationChoice is one selectable booking length. Value and Label carry
// the same minutes; the pair shape is what select-style inputs consume.
type DurationChoice struct {
	Value int `json:"value"`
	Label int `json:"label"`
}

// EventWindow is the current span of a booking being rescheduled.
type EventWindow struct {
	Start time.Time
	End   time.Time
}

// RangeOfDurations builds the candidate ladder increment, 2*increment, ...
// up to and including maxDuration.
func RangeOfDurations(increment, maxDuration int) []int {
	var durations []int
	for value := increment; value <= maxDuration; value += increment {
		durations = append(durations, value)
	}
	return durations
}

func choicesOf(durations []int) []DurationChoice {
	choices := make([]DurationChoice, 0, len(durations))
	for _, d := range durations {
		choices = append(choices, DurationChoice{Value: d, Label: d})
	}
	return choices
}

// ResolveNewBookingDurations walks the duration ladder for a chosen start
// slot and returns the accepted prefix as duration choices. freeSlots is
// the bookable tick set for the start's date, as produced by
// Grid.FreeSlotsOn. When the call is editing an existing booking, existing
// carries its current span: candidates that land inside it are accepted
// outright (they only displace the booking's own footprint), and once a
// candidate runs past its end the walk switches to judging purely by the
// free-slot set.
//
// The first candidate whose end misses the free-slot set is still accepted;
// the boundary slot itself is allowed. The walk stops for good on the
// rejection after that.
func ResolveNewBookingDurations(start time.Time, prefs WeeklyPreferences, freeSlots []ClockTime, existing *EventWindow) []DurationChoice {
	free := make(map[ClockTime]struct{}, len(freeSlots))
	for _, s := range freeSlots {
		free[s] = struct{}{}
	}

	var accepted []int
	hitGap := false
	overrideExisting := false
	for _, d := range RangeOfDurations(prefs.Increment, prefs.MaxDuration) {
		end := start.Add(time.Duration(d) * time.Minute)
		if existing != nil && !overrideExisting && SameDate(existing.Start, start) {
			if !existing.Start.After(end) && !end.After(existing.End) {
				accepted = append(accepted, d)
				continue
			}
			if end.After(existing.End) && len(accepted) > 0 {
				overrideExisting = true
			}
		}
		if _, ok := free[ClockTimeOf(end)]; ok && !hitGap {
			accepted = append(accepted, d)
		} else if !hitGap && !overrideExisting {
			accepted = append(accepted, d)
			hitGap = true
		} else {
			break
		}
	}
	return choicesOf(accepted)
}

// ResolveDurationsAgainstEvents walks the same ladder but judges candidates
// against an explicit busy-interval list for the start's day, for callers
// that re-read the calendar right before booking. A candidate is accepted
// while its end stays at or before the nearest following event's start and
// at or before dayClose. Only the single nearest following event is
// considered; a second, later colliding event is ignored on purpose. When
// editing, the booking's own event is exempt from blocking.
func ResolveDurationsAgainstEvents(start time.Time, prefs WeeklyPreferences, dayEvents []BusyInterval, dayClose time.Time, existing *EventWindow) []DurationChoice {
	var nearest *BusyInterval
	for i := range dayEvents {
		ev := dayEvents[i]
		if ev.Start.Before(start) {
			continue
		}
		if existing != nil && ev.Start.Equal(existing.Start) {
			continue
		}
		if nearest == nil || ev.Start.Before(nearest.Start) {
			nearest = &dayEvents[i]
		}
	}

	var accepted []int
	for _, d := range RangeOfDurations(prefs.Increment, prefs.MaxDuration) {
		end := start.Add(time.Duration(d) * time.Minute)
		if end.After(dayClose) {
			break
		}
		if nearest != nil && end.After(nearest.Start) {
			break
		}
		accepted = append(accepted, d)
	}
	return choicesOf(accepted)
}
