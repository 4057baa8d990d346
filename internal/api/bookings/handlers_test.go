// internal/api/bookings/handlers_test.go
package bookings

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/imeetingbooker/meetingbooker/internal/availability"
	"github.com/imeetingbooker/meetingbooker/internal/booking"
	"github.com/imeetingbooker/meetingbooker/internal/db"
	"github.com/imeetingbooker/meetingbooker/internal/models"
	"github.com/imeetingbooker/meetingbooker/internal/outlook"
	"github.com/imeetingbooker/meetingbooker/internal/ratelimit"
	"github.com/imeetingbooker/meetingbooker/internal/testutil"
)

type fakeCalendar struct {
	mu        sync.Mutex
	intervals []availability.BusyInterval
	createErr error

	created []outlook.Event
	updated map[string]outlook.Event
	deleted []string
	nextID  string
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{updated: make(map[string]outlook.Event), nextID: "remote-1"}
}

func (f *fakeCalendar) FetchBusyIntervals(ctx context.Context, acct outlook.Account, start, end time.Time) ([]availability.BusyInterval, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []availability.BusyInterval
	for _, iv := range f.intervals {
		if iv.Start.Before(end) && iv.End.After(start) {
			out = append(out, iv)
		}
	}
	return out, nil
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, acct outlook.Account, event outlook.Event) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.createErr != nil {
		return "", f.createErr
	}
	f.created = append(f.created, event)
	return f.nextID, nil
}

func (f *fakeCalendar) UpdateEvent(ctx context.Context, acct outlook.Account, remoteID string, event outlook.Event) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updated[remoteID] = event
	return nil
}

func (f *fakeCalendar) DeleteEvent(ctx context.Context, acct outlook.Account, remoteID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, remoteID)
	return true, nil
}

func clockTime(s string) *availability.ClockTime {
	c, err := availability.ParseClock(s)
	if err != nil {
		panic(err)
	}
	return &c
}

func seedOwner(t *testing.T, database *db.DB) db.Owner {
	t.Helper()
	ctx := context.Background()
	owner, err := database.Queries.CreateOwner(ctx, db.CreateOwnerParams{
		Email:        "owner@example.com",
		DisplayName:  "Avery Owner",
		PasswordHash: "x",
	})
	if err != nil {
		t.Fatalf("create owner: %v", err)
	}

	var prefs availability.WeeklyPreferences
	prefs.Increment = 30
	prefs.MaxDuration = 120
	for _, day := range []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday} {
		prefs.Days[day] = availability.DayWindow{Open: clockTime("09:00"), Close: clockTime("17:00")}
	}
	if err := database.Queries.UpsertPreferences(ctx, models.PreferencesToParams(owner.ID, prefs)); err != nil {
		t.Fatalf("upsert preferences: %v", err)
	}
	return owner
}

// nextWeekday returns the first weekday date at least eight days out, so
// the slot is never filtered as past regardless of when the test runs.
func nextWeekday() time.Time {
	d := availability.DateOf(time.Now()).AddDate(0, 0, 8)
	for d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
		d = d.AddDate(0, 0, 1)
	}
	return d
}

// setup wires the package handlers to a fresh database and fake calendar.
// Handlers read package-level state, so tests must not run in parallel.
func setup(t *testing.T) (db.Owner, *fakeCalendar) {
	t.Helper()
	database := testutil.NewTestDB(t)
	owner := seedOwner(t, database)
	cal := newFakeCalendar()
	service = booking.NewService(database.Queries, cal, nil, nil)
	limiter = nil
	return owner, cal
}

func newMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/bookings/grid", HandleGrid)
	mux.HandleFunc("/api/v1/bookings/durations", HandleDurations)
	mux.HandleFunc("/api/v1/bookings", HandleBook)
	mux.HandleFunc("/api/v1/bookings/{id}", HandleBookingByID)
	return mux
}

func doJSON(t *testing.T, mux *http.ServeMux, method, target string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	if payload != nil {
		if err := json.NewEncoder(&body).Encode(payload); err != nil {
			t.Fatalf("encode payload: %v", err)
		}
	}
	req := httptest.NewRequest(method, target, &body)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.NewDecoder(rec.Body).Decode(&out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return out
}

func TestHandleGridDefaultsToToday(t *testing.T) {
	owner, _ := setup(t)
	mux := newMux()

	rec := doJSON(t, mux, http.MethodGet, fmt.Sprintf("/api/v1/bookings/grid?owner_id=%d", owner.ID), nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[gridResponse](t, rec)

	today := availability.DateOf(time.Now()).Format("2006-01-02")
	if resp.StartDate != today {
		t.Errorf("start_date = %q, want %q", resp.StartDate, today)
	}
	if resp.HasPrevious {
		t.Error("grid starting today should not offer a previous week")
	}
	if len(resp.Days) != availability.GridDays {
		t.Errorf("days = %d, want %d", len(resp.Days), availability.GridDays)
	}
	if len(resp.Ticks) == 0 {
		t.Error("expected ticks for a weekday-available owner")
	}
}

func TestHandleGridPaging(t *testing.T) {
	owner, _ := setup(t)
	mux := newMux()

	today := availability.DateOf(time.Now())
	next := doJSON(t, mux, http.MethodGet, fmt.Sprintf("/api/v1/bookings/grid?owner_id=%d&action=next", owner.ID), nil)
	if next.Code != http.StatusOK {
		t.Fatalf("next status = %d", next.Code)
	}
	nextResp := decodeBody[gridResponse](t, next)
	wantNext := today.AddDate(0, 0, 7).Format("2006-01-02")
	if nextResp.StartDate != wantNext {
		t.Errorf("next start_date = %q, want %q", nextResp.StartDate, wantNext)
	}
	if !nextResp.HasPrevious {
		t.Error("second week should offer a previous week")
	}

	// Paging back from the second week lands on today.
	prev := doJSON(t, mux, http.MethodGet, fmt.Sprintf("/api/v1/bookings/grid?owner_id=%d&date=%s&action=prev", owner.ID, wantNext), nil)
	prevResp := decodeBody[gridResponse](t, prev)
	if prevResp.StartDate != today.Format("2006-01-02") {
		t.Errorf("prev start_date = %q, want %q", prevResp.StartDate, today.Format("2006-01-02"))
	}
	if prevResp.HasPrevious {
		t.Error("first week should not offer a previous week")
	}

	// Paging back from today is clamped rather than showing the past.
	clamped := doJSON(t, mux, http.MethodGet, fmt.Sprintf("/api/v1/bookings/grid?owner_id=%d&action=prev", owner.ID), nil)
	clampedResp := decodeBody[gridResponse](t, clamped)
	if clampedResp.StartDate != today.Format("2006-01-02") {
		t.Errorf("clamped start_date = %q, want %q", clampedResp.StartDate, today.Format("2006-01-02"))
	}
}

func TestHandleGridRequiresOwnerID(t *testing.T) {
	setup(t)
	mux := newMux()

	rec := doJSON(t, mux, http.MethodGet, "/api/v1/bookings/grid", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleGridBadAction(t *testing.T) {
	owner, _ := setup(t)
	mux := newMux()

	rec := doJSON(t, mux, http.MethodGet, fmt.Sprintf("/api/v1/bookings/grid?owner_id=%d&action=sideways", owner.ID), nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}

func TestHandleDurations(t *testing.T) {
	owner, _ := setup(t)
	mux := newMux()

	start := nextWeekday().Add(14 * time.Hour)
	target := fmt.Sprintf("/api/v1/bookings/durations?owner_id=%d&start=%s", owner.ID, start.Format("2006-01-02T15:04"))
	rec := doJSON(t, mux, http.MethodGet, target, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[struct {
		Choices []availability.DurationChoice `json:"choices"`
	}](t, rec)
	want := []int{30, 60, 90, 120}
	if len(resp.Choices) != len(want) {
		t.Fatalf("choices = %v, want values %v", resp.Choices, want)
	}
	for i, w := range want {
		if resp.Choices[i].Value != w {
			t.Errorf("choice %d = %d, want %d", i, resp.Choices[i].Value, w)
		}
	}
}

func TestHandleBook(t *testing.T) {
	owner, cal := setup(t)
	mux := newMux()

	start := nextWeekday().Add(10 * time.Hour)
	rec := doJSON(t, mux, http.MethodPost, "/api/v1/bookings", bookRequest{
		OwnerID:         owner.ID,
		Start:           start.Format("2006-01-02T15:04"),
		DurationMinutes: 60,
		FirstName:       "Robin",
		LastName:        "Doe",
		Email:           "robin@example.com",
		Subject:         "Project kickoff",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	resp := decodeBody[bookingResponse](t, rec)
	if resp.ID == 0 {
		t.Error("expected a booking id")
	}
	if resp.DurationMinutes != 60 {
		t.Errorf("duration = %d, want 60", resp.DurationMinutes)
	}
	if len(cal.created) != 1 {
		t.Fatalf("remote events created = %d, want 1", len(cal.created))
	}
	if cal.created[0].Subject != "Project kickoff" {
		t.Errorf("remote subject = %q", cal.created[0].Subject)
	}
}

func TestHandleBookValidation(t *testing.T) {
	owner, _ := setup(t)
	mux := newMux()

	cases := []struct {
		name string
		req  bookRequest
	}{
		{"missing owner", bookRequest{Start: "2099-01-04T10:00", DurationMinutes: 30, FirstName: "A", LastName: "B", Email: "a@b.c", Subject: "s"}},
		{"missing email", bookRequest{OwnerID: owner.ID, Start: "2099-01-04T10:00", DurationMinutes: 30, FirstName: "A", LastName: "B", Subject: "s"}},
		{"bad email", bookRequest{OwnerID: owner.ID, Start: "2099-01-04T10:00", DurationMinutes: 30, FirstName: "A", LastName: "B", Email: "nope", Subject: "s"}},
		{"zero duration", bookRequest{OwnerID: owner.ID, Start: "2099-01-04T10:00", FirstName: "A", LastName: "B", Email: "a@b.c", Subject: "s"}},
		{"missing subject", bookRequest{OwnerID: owner.ID, Start: "2099-01-04T10:00", DurationMinutes: 30, FirstName: "A", LastName: "B", Email: "a@b.c"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doJSON(t, mux, http.MethodPost, "/api/v1/bookings", tc.req)
			if rec.Code != http.StatusBadRequest {
				t.Errorf("status = %d, want 400", rec.Code)
			}
		})
	}
}

func TestHandleBookBusySlotConflict(t *testing.T) {
	owner, cal := setup(t)
	mux := newMux()

	start := nextWeekday().Add(10 * time.Hour)
	cal.intervals = []availability.BusyInterval{{Start: start, End: start.Add(30 * time.Minute)}}

	rec := doJSON(t, mux, http.MethodPost, "/api/v1/bookings", bookRequest{
		OwnerID:         owner.ID,
		Start:           start.Format("2006-01-02T15:04"),
		DurationMinutes: 30,
		FirstName:       "Robin",
		LastName:        "Doe",
		Email:           "robin@example.com",
		Subject:         "Clash",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("status = %d, want 409, body %s", rec.Code, rec.Body.String())
	}
	if len(cal.created) != 0 {
		t.Error("conflicting booking must not reach the remote calendar")
	}
}

func TestHandleBookRemoteUnavailable(t *testing.T) {
	owner, cal := setup(t)
	cal.createErr = outlook.ErrRemoteUnavailable
	mux := newMux()

	start := nextWeekday().Add(11 * time.Hour)
	rec := doJSON(t, mux, http.MethodPost, "/api/v1/bookings", bookRequest{
		OwnerID:         owner.ID,
		Start:           start.Format("2006-01-02T15:04"),
		DurationMinutes: 30,
		FirstName:       "Robin",
		LastName:        "Doe",
		Email:           "robin@example.com",
		Subject:         "Sync",
	})
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("status = %d, want 502, body %s", rec.Code, rec.Body.String())
	}
}

func TestHandleBookRateLimited(t *testing.T) {
	owner, _ := setup(t)
	limiter = ratelimit.New(nil)
	mux := newMux()

	day := nextWeekday()
	place := func(hour int) *httptest.ResponseRecorder {
		return doJSON(t, mux, http.MethodPost, "/api/v1/bookings", bookRequest{
			OwnerID:         owner.ID,
			Start:           day.Add(time.Duration(hour) * time.Hour).Format("2006-01-02T15:04"),
			DurationMinutes: 30,
			FirstName:       "Robin",
			LastName:        "Doe",
			Email:           "robin@example.com",
			Subject:         "Sync",
		})
	}

	if rec := place(9); rec.Code != http.StatusCreated {
		t.Fatalf("first booking status = %d, body %s", rec.Code, rec.Body.String())
	}
	rec := place(10)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second booking status = %d, want 429", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" {
		t.Error("expected a Retry-After header")
	}
}

func TestHandleRescheduleAndCancel(t *testing.T) {
	owner, cal := setup(t)
	mux := newMux()

	day := nextWeekday()
	rec := doJSON(t, mux, http.MethodPost, "/api/v1/bookings", bookRequest{
		OwnerID:         owner.ID,
		Start:           day.Add(10 * time.Hour).Format("2006-01-02T15:04"),
		DurationMinutes: 30,
		FirstName:       "Robin",
		LastName:        "Doe",
		Email:           "robin@example.com",
		Subject:         "Sync",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("book status = %d, body %s", rec.Code, rec.Body.String())
	}
	booked := decodeBody[bookingResponse](t, rec)

	moveTo := day.Add(14 * time.Hour)
	rec = doJSON(t, mux, http.MethodPatch, fmt.Sprintf("/api/v1/bookings/%d", booked.ID), rescheduleRequest{
		Start:           moveTo.Format("2006-01-02T15:04"),
		DurationMinutes: 60,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("reschedule status = %d, body %s", rec.Code, rec.Body.String())
	}
	moved := decodeBody[bookingResponse](t, rec)
	if moved.DurationMinutes != 60 {
		t.Errorf("duration = %d, want 60", moved.DurationMinutes)
	}
	if _, ok := cal.updated["remote-1"]; !ok {
		t.Error("remote event was not updated")
	}

	rec = doJSON(t, mux, http.MethodDelete, fmt.Sprintf("/api/v1/bookings/%d", booked.ID), nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("cancel status = %d, body %s", rec.Code, rec.Body.String())
	}
	if len(cal.deleted) != 1 || cal.deleted[0] != "remote-1" {
		t.Errorf("remote deletions = %v, want [remote-1]", cal.deleted)
	}
}

func TestHandleBookingByIDNotFound(t *testing.T) {
	setup(t)
	mux := newMux()

	rec := doJSON(t, mux, http.MethodDelete, "/api/v1/bookings/9999", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}
