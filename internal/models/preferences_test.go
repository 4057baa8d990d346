// internal/models/preferences_test.go
package models

import (
	"database/sql"
	"testing"
	"time"

	"github.com/imeetingbooker/meetingbooker/internal/db"
)

func valid(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

func sampleRow() db.BookingPreferencesRow {
	return db.BookingPreferencesRow{
		OwnerID:       1,
		MondayFrom:    valid("09:00"),
		MondayTo:      valid("17:00"),
		WednesdayFrom: valid("08:30"),
		WednesdayTo:   valid("12:00"),
		LunchFrom:     valid("12:30"),
		LunchTo:       valid("13:30"),
		Increment:     30,
		Duration:      90,
	}
}

func TestPreferencesFromRow(t *testing.T) {
	prefs, err := PreferencesFromRow(sampleRow())
	if err != nil {
		t.Fatalf("PreferencesFromRow: %v", err)
	}

	mon := prefs.Days[time.Monday]
	if !mon.Bookable() {
		t.Fatal("Monday should be bookable")
	}
	if got := mon.Open.String(); got != "09:00" {
		t.Errorf("Monday opens %s, want 09:00", got)
	}
	if prefs.Days[time.Tuesday].Bookable() {
		t.Error("Tuesday should be closed")
	}
	if prefs.LunchStart == nil || prefs.LunchStart.String() != "12:30" {
		t.Errorf("lunch start = %v", prefs.LunchStart)
	}
	if prefs.Increment != 30 || prefs.MaxDuration != 90 {
		t.Errorf("increment/duration = %d/%d", prefs.Increment, prefs.MaxDuration)
	}
}

func TestPreferencesFromRowRejectsHalfWindow(t *testing.T) {
	row := sampleRow()
	row.FridayFrom = valid("09:00")
	if _, err := PreferencesFromRow(row); err == nil {
		t.Fatal("expected error for open without close")
	}
}

func TestPreferencesFromRowRejectsBadIncrement(t *testing.T) {
	row := sampleRow()
	row.Increment = 25
	if _, err := PreferencesFromRow(row); err == nil {
		t.Fatal("expected error for disallowed increment")
	}
}

func TestPreferencesRoundTrip(t *testing.T) {
	prefs, err := PreferencesFromRow(sampleRow())
	if err != nil {
		t.Fatalf("PreferencesFromRow: %v", err)
	}

	params := PreferencesToParams(1, prefs)
	if params.MondayFrom.String != "09:00" || params.MondayTo.String != "17:00" {
		t.Errorf("Monday = %v..%v", params.MondayFrom, params.MondayTo)
	}
	if params.TuesdayFrom.Valid || params.TuesdayTo.Valid {
		t.Error("closed Tuesday should store as NULL")
	}
	if params.LunchFrom.String != "12:30" || params.LunchTo.String != "13:30" {
		t.Errorf("lunch = %v..%v", params.LunchFrom, params.LunchTo)
	}
	if params.Increment != 30 || params.Duration != 90 {
		t.Errorf("increment/duration = %d/%d", params.Increment, params.Duration)
	}
}
