// internal/availability/busy.go
package availability

import (
	"sort"
	"time"
)

const (
	// shortGapThreshold is the widest break between back-to-back meetings
	// that still counts as too short to book.
	shortGapThreshold = 15 * time.Minute

	// shortGapMinEvents gates short-gap detection on the size of the whole
	// fetched event list, not the per-day cluster. That mirrors the
	// behavior the product shipped with; see ShortGapSlots.
	shortGapMinEvents = 3

	// shortGapDayBudget is the cumulative gap length past which a day is
	// considered too fragmented and its short-gap marks are discarded.
	shortGapDayBudget = 20 * time.Minute
)

// BusyInterval is one externally sourced busy block on the owner's
// calendar. All-day intervals carry only a date in Start.
type BusyInterval struct {
	Start  time.Time
	End    time.Time
	AllDay bool
}

// GroupByDay buckets intervals by the calendar day of their start,
// each bucket sorted by start time.
func GroupByDay(intervals []BusyInterval) map[time.Time][]BusyInterval {
	byDay := make(map[time.Time][]BusyInterval)
	for _, iv := range intervals {
		day := DateOf(iv.Start)
		byDay[day] = append(byDay[day], iv)
	}
	for day := range byDay {
		bucket := byDay[day]
		sort.Slice(bucket, func(i, j int) bool { return bucket[i].Start.Before(bucket[j].Start) })
	}
	return byDay
}

// ShortGapSlots finds slot instants wedged between tightly clustered
// meetings. For each day it walks the meetings in start order and marks the
// end of the earlier meeting whenever the break to the next one is at most
// shortGapThreshold. A day whose breaks add up past shortGapDayBudget is
// assumed too fragmented to bother blocking and loses all its marks.
//
// Detection only kicks in once the whole fetched list has at least
// shortGapMinEvents entries. The gate deliberately counts the unsegmented
// list rather than each day's cluster; tests pin this down so it cannot be
// "fixed" by accident.
func ShortGapSlots(intervals []BusyInterval) map[time.Time]struct{} {
	marks := make(map[time.Time]struct{})
	if len(intervals) < shortGapMinEvents {
		return marks
	}
	for _, bucket := range GroupByDay(intervals) {
		var dayMarks []time.Time
		var total time.Duration
		var prev *BusyInterval
		for i := range bucket {
			iv := bucket[i]
			if iv.AllDay {
				// All-day blocks have no meaningful end instant.
				continue
			}
			if prev != nil {
				gap := iv.Start.Sub(prev.End)
				if gap > 0 && gap <= shortGapThreshold {
					dayMarks = append(dayMarks, prev.End)
					total += gap
				}
			}
			prev = &bucket[i]
		}
		if total > shortGapDayBudget {
			continue
		}
		for _, m := range dayMarks {
			marks[m] = struct{}{}
		}
	}
	return marks
}

// Overlaps reports whether a slot starting at instant collides with any of
// the intervals. A slot is blocked when an all-day interval matches its
// date, when the instant sits inside [start, end) of an interval, or when a
// slot of increment minutes starting there would straddle into one. An
// interval ending exactly at the instant does not block it.
func Overlaps(instant time.Time, intervals []BusyInterval, incrementMinutes int) bool {
	slotEnd := instant.Add(time.Duration(incrementMinutes) * time.Minute)
	for _, iv := range intervals {
		if iv.AllDay && SameDate(iv.Start, instant) {
			return true
		}
		if !iv.Start.After(instant) && instant.Before(iv.End) {
			return true
		}
		if iv.Start.Before(slotEnd) && slotEnd.Before(iv.End) {
			return true
		}
	}
	return false
}
