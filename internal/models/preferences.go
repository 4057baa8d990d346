// internal/models/preferences.go
package models

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/imeetingbooker/meetingbooker/internal/availability"
	"github.com/imeetingbooker/meetingbooker/internal/db"
)

// PreferencesFromRow converts a stored preferences row into the engine's
// weekly schedule. A day with only one of its bounds set is rejected, as
// is a lunch break with a missing bound.
func PreferencesFromRow(row db.BookingPreferencesRow) (availability.WeeklyPreferences, error) {
	var prefs availability.WeeklyPreferences
	prefs.Increment = int(row.Increment)
	prefs.MaxDuration = int(row.Duration)

	dayPairs := []struct {
		day      time.Weekday
		from, to sql.NullString
	}{
		{time.Monday, row.MondayFrom, row.MondayTo},
		{time.Tuesday, row.TuesdayFrom, row.TuesdayTo},
		{time.Wednesday, row.WednesdayFrom, row.WednesdayTo},
		{time.Thursday, row.ThursdayFrom, row.ThursdayTo},
		{time.Friday, row.FridayFrom, row.FridayTo},
		{time.Saturday, row.SaturdayFrom, row.SaturdayTo},
		{time.Sunday, row.SundayFrom, row.SundayTo},
	}
	for _, p := range dayPairs {
		window, err := parseWindow(p.from, p.to)
		if err != nil {
			return availability.WeeklyPreferences{}, fmt.Errorf("%s: %w", p.day, err)
		}
		prefs.Days[p.day] = window
	}

	lunch, err := parseWindow(row.LunchFrom, row.LunchTo)
	if err != nil {
		return availability.WeeklyPreferences{}, fmt.Errorf("lunch: %w", err)
	}
	prefs.LunchStart = lunch.Open
	prefs.LunchEnd = lunch.Close

	if err := prefs.Validate(); err != nil {
		return availability.WeeklyPreferences{}, err
	}
	return prefs, nil
}

// PreferencesToParams flattens a weekly schedule into upsert parameters.
// Closed days and an unset lunch break store as NULLs.
func PreferencesToParams(ownerID int64, prefs availability.WeeklyPreferences) db.UpsertPreferencesParams {
	params := db.UpsertPreferencesParams{
		OwnerID:   ownerID,
		Increment: int64(prefs.Increment),
		Duration:  int64(prefs.MaxDuration),
	}

	params.MondayFrom, params.MondayTo = formatWindow(prefs.Days[time.Monday])
	params.TuesdayFrom, params.TuesdayTo = formatWindow(prefs.Days[time.Tuesday])
	params.WednesdayFrom, params.WednesdayTo = formatWindow(prefs.Days[time.Wednesday])
	params.ThursdayFrom, params.ThursdayTo = formatWindow(prefs.Days[time.Thursday])
	params.FridayFrom, params.FridayTo = formatWindow(prefs.Days[time.Friday])
	params.SaturdayFrom, params.SaturdayTo = formatWindow(prefs.Days[time.Saturday])
	params.SundayFrom, params.SundayTo = formatWindow(prefs.Days[time.Sunday])
	params.LunchFrom, params.LunchTo = formatWindow(availability.DayWindow{
		Open:  prefs.LunchStart,
		Close: prefs.LunchEnd,
	})

	return params
}

func parseWindow(from, to sql.NullString) (availability.DayWindow, error) {
	if from.Valid != to.Valid {
		return availability.DayWindow{}, fmt.Errorf("window needs both bounds or neither")
	}
	if !from.Valid {
		return availability.DayWindow{}, nil
	}

	open, err := availability.ParseClock(from.String)
	if err != nil {
		return availability.DayWindow{}, fmt.Errorf("open time: %w", err)
	}
	closeAt, err := availability.ParseClock(to.String)
	if err != nil {
		return availability.DayWindow{}, fmt.Errorf("close time: %w", err)
	}
	return availability.DayWindow{Open: &open, Close: &closeAt}, nil
}

func formatWindow(w availability.DayWindow) (sql.NullString, sql.NullString) {
	if w.Open == nil || w.Close == nil {
		return sql.NullString{}, sql.NullString{}
	}
	return sql.NullString{String: w.Open.String(), Valid: true},
		sql.NullString{String: w.Close.String(), Valid: true}
}
