// internal/availability/engine.go
package availability

import (
	"context"
	"fmt"
	"time"
)

// GridDays is the width of the booking grid in days.
const GridDays = 7

// BusyFetcher retrieves the owner's busy intervals for a date range.
// Implementations hit the external calendar; failures must surface as
// errors so the grid is never silently shown as free.
type BusyFetcher interface {
	FetchBusyIntervals(ctx context.Context, start, end time.Time) ([]BusyInterval, error)
}

// Grid is one week of per-slot availability, assembled tick-major: one row
// per time-of-day tick, one cell per day. Cells hold the "HH:MM" label when
// the slot is bookable and are absent otherwise, which is the shape the
// grid table renders from. A Grid is derived fresh per query and never
// cached; the external calendar can change at any moment.
type Grid struct {
	Days  []time.Time
	Ticks []ClockTime
	Rows  []GridRow
}

// GridRow maps a day label (see DayLabel) to the bookable tick label.
type GridRow map[string]string

// FreeSlotsOn collects the bookable ticks for a single date, in tick order.
// This is the free-slot set the duration resolver consumes.
func (g *Grid) FreeSlotsOn(date time.Time) []ClockTime {
	label := DateOf(date).Format(DayLabel)
	var free []ClockTime
	for i, row := range g.Rows {
		if _, ok := row[label]; ok {
			free = append(free, g.Ticks[i])
		}
	}
	return free
}

// Engine computes slot availability from weekly preferences and externally
// sourced busy intervals. It holds no mutable state beyond the injected
// clock, so one Engine is safe to share across concurrent requests.
type Engine struct {
	clock Clock
}

// NewEngine returns an Engine using the given clock, or the system clock
// when clock is nil.
func NewEngine(clock Clock) *Engine {
	if clock == nil {
		clock = SystemClock()
	}
	return &Engine{clock: clock}
}

// IsSlotAvailable decides whether the slot starting at the given instant is
// bookable. Checks run cheapest first: short-gap marks, past-slot cutoff,
// the weekday's open/close window, the lunch break, then busy-interval
// collisions. Open and lunch windows are half-open: open <= t < close.
func (e *Engine) IsSlotAvailable(slot time.Time, prefs WeeklyPreferences, busyByDay map[time.Time][]BusyInterval, shortGaps map[time.Time]struct{}) bool {
	if _, blocked := shortGaps[slot]; blocked {
		return false
	}
	now := e.clock.Now()
	if SameDate(slot, now) && !slot.After(now) {
		return false
	}
	window := prefs.Window(slot.Weekday())
	if !window.Bookable() {
		return false
	}
	tod := ClockTimeOf(slot)
	if tod < *window.Open || tod >= *window.Close {
		return false
	}
	if prefs.LunchStart != nil && prefs.LunchEnd != nil &&
		tod >= *prefs.LunchStart && tod < *prefs.LunchEnd {
		return false
	}
	if Overlaps(slot, busyByDay[DateOf(slot)], prefs.Increment) {
		return false
	}
	return true
}

// ComputeGrid builds the seven-day availability grid starting at startDate.
// Busy intervals are fetched once for the whole span. A fetch failure fails
// the entire computation: there is no partial grid, because guessing
// availability risks double-booking.
func (e *Engine) ComputeGrid(ctx context.Context, startDate time.Time, prefs WeeklyPreferences, fetch BusyFetcher) (*Grid, error) {
	days := NextNDays(startDate, GridDays)
	minOpen, maxClose := prefs.MinMaxTimes()
	ticks := TicksByIncrement(minOpen, maxClose, prefs.Increment)

	busy, err := fetch.FetchBusyIntervals(ctx, days[0], days[len(days)-1])
	if err != nil {
		return nil, fmt.Errorf("fetch busy intervals: %w", err)
	}
	busyByDay := GroupByDay(busy)
	shortGaps := ShortGapSlots(busy)

	grid := &Grid{Days: days, Ticks: ticks, Rows: make([]GridRow, 0, len(ticks))}
	for _, tick := range ticks {
		row := make(GridRow)
		for _, day := range days {
			slot := tick.At(day)
			if e.IsSlotAvailable(slot, prefs, busyByDay, shortGaps) {
				row[day.Format(DayLabel)] = tick.String()
			}
		}
		grid.Rows = append(grid.Rows, row)
	}
	return grid, nil
}
