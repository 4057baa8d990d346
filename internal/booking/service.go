// internal/booking/service.go
package booking

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/nyaruka/phonenumbers"
	"github.com/rs/zerolog/log"

	"github.com/imeetingbooker/meetingbooker/internal/availability"
	"github.com/imeetingbooker/meetingbooker/internal/db"
	"github.com/imeetingbooker/meetingbooker/internal/models"
	"github.com/imeetingbooker/meetingbooker/internal/outlook"
)

var (
	// ErrInvalidSlot means the requested start or duration is not bookable
	// under the owner's current availability.
	ErrInvalidSlot = errors.New("slot is not available")

	// ErrNotFound means the booking does not exist.
	ErrNotFound = errors.New("booking not found")
)

// defaultPhoneRegion resolves national-format attendee numbers.
const defaultPhoneRegion = "GB"

// Calendar is the remote calendar surface the service books against.
type Calendar interface {
	FetchBusyIntervals(ctx context.Context, acct outlook.Account, start, end time.Time) ([]availability.BusyInterval, error)
	CreateEvent(ctx context.Context, acct outlook.Account, event outlook.Event) (string, error)
	UpdateEvent(ctx context.Context, acct outlook.Account, remoteID string, event outlook.Event) error
	DeleteEvent(ctx context.Context, acct outlook.Account, remoteID string) (bool, error)
}

// Notifier sends booking lifecycle emails. Implementations must tolerate
// being called on detached contexts after the originating request ended.
type Notifier interface {
	SendConfirmation(ctx context.Context, owner db.Owner, booking db.Booking) error
	SendUpdate(ctx context.Context, owner db.Owner, booking db.Booking) error
	SendCancellation(ctx context.Context, owner db.Owner, booking db.Booking) error
}

// Service orchestrates the booking lifecycle: availability checks, local
// persistence, mirroring to the owner's remote calendar, and notifications.
type Service struct {
	queries  *db.Queries
	engine   *availability.Engine
	calendar Calendar
	notifier Notifier
	clock    availability.Clock
}

// NewService wires the orchestrator. notifier may be nil, which disables
// emails; clock nil means the system clock.
func NewService(queries *db.Queries, calendar Calendar, notifier Notifier, clock availability.Clock) *Service {
	if clock == nil {
		clock = availability.SystemClock()
	}
	return &Service{
		queries:  queries,
		engine:   availability.NewEngine(clock),
		calendar: calendar,
		notifier: notifier,
		clock:    clock,
	}
}

// accountFetcher narrows the calendar to one owner so the engine can fetch
// busy intervals without knowing about accounts.
type accountFetcher struct {
	cal  Calendar
	acct outlook.Account
}

func (f accountFetcher) FetchBusyIntervals(ctx context.Context, start, end time.Time) ([]availability.BusyInterval, error) {
	return f.cal.FetchBusyIntervals(ctx, f.acct, start, end)
}

func accountOf(owner db.Owner) outlook.Account {
	return outlook.Account{OwnerID: owner.ID, Email: owner.Email}
}

// ownerContext loads the owner and their parsed weekly preferences.
func (s *Service) ownerContext(ctx context.Context, ownerID int64) (db.Owner, availability.WeeklyPreferences, error) {
	owner, err := s.queries.GetOwnerByID(ctx, ownerID)
	if err != nil {
		return db.Owner{}, availability.WeeklyPreferences{}, fmt.Errorf("load owner %d: %w", ownerID, err)
	}
	row, err := s.queries.GetPreferencesByOwner(ctx, ownerID)
	if err != nil {
		return db.Owner{}, availability.WeeklyPreferences{}, fmt.Errorf("load preferences for owner %d: %w", ownerID, err)
	}
	prefs, err := models.PreferencesFromRow(row)
	if err != nil {
		return db.Owner{}, availability.WeeklyPreferences{}, fmt.Errorf("preferences for owner %d: %w", ownerID, err)
	}
	return owner, prefs, nil
}

// Grid computes the seven-day availability grid starting at startDate.
func (s *Service) Grid(ctx context.Context, ownerID int64, startDate time.Time) (*availability.Grid, error) {
	owner, prefs, err := s.ownerContext(ctx, ownerID)
	if err != nil {
		return nil, err
	}
	return s.engine.ComputeGrid(ctx, startDate, prefs, accountFetcher{cal: s.calendar, acct: accountOf(owner)})
}

// DurationChoices lists the bookable durations for a start slot. When
// rescheduling, excludeBookingID names the booking whose current span does
// not block its own candidates.
func (s *Service) DurationChoices(ctx context.Context, ownerID int64, start time.Time, excludeBookingID int64) ([]availability.DurationChoice, error) {
	owner, prefs, err := s.ownerContext(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	var existing *availability.EventWindow
	if excludeBookingID != 0 {
		booked, err := s.queries.GetBooking(ctx, excludeBookingID)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("load booking %d: %w", excludeBookingID, err)
		}
		existing = &availability.EventWindow{Start: booked.StartTime, End: booked.EndTime}
	}

	grid, err := s.engine.ComputeGrid(ctx, availability.DateOf(start), prefs, accountFetcher{cal: s.calendar, acct: accountOf(owner)})
	if err != nil {
		return nil, err
	}
	free := grid.FreeSlotsOn(start)
	if !containsTick(free, availability.ClockTimeOf(start)) && existing == nil {
		return nil, ErrInvalidSlot
	}
	return availability.ResolveNewBookingDurations(start, prefs, free, existing), nil
}

// Request carries the attendee's booking form.
type Request struct {
	Start           time.Time
	DurationMinutes int
	FirstName       string
	LastName        string
	Email           string
	Phone           string
	Subject         string
}

// Book places a booking: the slot is validated against a fresh grid, the
// row is persisted, then the event is mirrored to the remote calendar. If
// the remote create fails the local row is rolled back so the two stores
// never disagree about a confirmed booking.
func (s *Service) Book(ctx context.Context, ownerID int64, req Request) (db.Booking, error) {
	owner, prefs, err := s.ownerContext(ctx, ownerID)
	if err != nil {
		return db.Booking{}, err
	}
	acct := accountOf(owner)
	fetcher := accountFetcher{cal: s.calendar, acct: acct}

	grid, err := s.engine.ComputeGrid(ctx, availability.DateOf(req.Start), prefs, fetcher)
	if err != nil {
		return db.Booking{}, err
	}
	if !containsTick(grid.FreeSlotsOn(req.Start), availability.ClockTimeOf(req.Start)) {
		return db.Booking{}, ErrInvalidSlot
	}
	if err := s.checkDuration(ctx, prefs, fetcher, req.Start, req.DurationMinutes, nil); err != nil {
		return db.Booking{}, err
	}

	end := req.Start.Add(time.Duration(req.DurationMinutes) * time.Minute)
	booked, err := s.queries.CreateBooking(ctx, db.CreateBookingParams{
		OwnerID:         ownerID,
		StartTime:       req.Start,
		EndTime:         end,
		DurationMinutes: int64(req.DurationMinutes),
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Email:           req.Email,
		Phone:           normalizePhone(req.Phone),
		Subject:         req.Subject,
	})
	if err != nil {
		return db.Booking{}, fmt.Errorf("persist booking: %w", err)
	}

	remoteID, err := s.calendar.CreateEvent(ctx, acct, eventFor(booked))
	if err != nil {
		if delErr := s.queries.DeleteBooking(ctx, booked.ID); delErr != nil {
			log.Ctx(ctx).Error().Err(delErr).Int64("booking_id", booked.ID).
				Msg("Failed to roll back booking after remote create failure")
		}
		return db.Booking{}, fmt.Errorf("mirror booking to calendar: %w", err)
	}
	if err := s.queries.SetBookingOutlookID(ctx, booked.ID, remoteID); err != nil {
		return db.Booking{}, fmt.Errorf("record remote event id: %w", err)
	}
	booked.OutlookID = sql.NullString{String: remoteID, Valid: true}

	s.notifyAsync(ctx, "confirmation", owner, booked, s.notifierSendConfirmation)
	return booked, nil
}

// Reschedule moves an existing booking to a new start and duration. The
// booking's own span does not block the move.
func (s *Service) Reschedule(ctx context.Context, bookingID int64, newStart time.Time, durationMinutes int) (db.Booking, error) {
	booked, err := s.queries.GetBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return db.Booking{}, ErrNotFound
		}
		return db.Booking{}, fmt.Errorf("load booking %d: %w", bookingID, err)
	}
	owner, prefs, err := s.ownerContext(ctx, booked.OwnerID)
	if err != nil {
		return db.Booking{}, err
	}
	acct := accountOf(owner)
	fetcher := accountFetcher{cal: s.calendar, acct: acct}
	existing := &availability.EventWindow{Start: booked.StartTime, End: booked.EndTime}

	grid, err := s.engine.ComputeGrid(ctx, availability.DateOf(newStart), prefs, fetcher)
	if err != nil {
		return db.Booking{}, err
	}
	free := grid.FreeSlotsOn(newStart)
	startTick := availability.ClockTimeOf(newStart)
	ownSlot := availability.SameDate(newStart, booked.StartTime) &&
		!newStart.Before(booked.StartTime) && newStart.Before(booked.EndTime)
	if !containsTick(free, startTick) && !ownSlot {
		return db.Booking{}, ErrInvalidSlot
	}
	if err := s.checkDuration(ctx, prefs, fetcher, newStart, durationMinutes, existing); err != nil {
		return db.Booking{}, err
	}

	newEnd := newStart.Add(time.Duration(durationMinutes) * time.Minute)
	if err := s.queries.UpdateBookingTimes(ctx, db.UpdateBookingTimesParams{
		ID:              bookingID,
		StartTime:       newStart,
		EndTime:         newEnd,
		DurationMinutes: int64(durationMinutes),
	}); err != nil {
		return db.Booking{}, fmt.Errorf("update booking %d: %w", bookingID, err)
	}
	booked.StartTime = newStart
	booked.EndTime = newEnd
	booked.DurationMinutes = int64(durationMinutes)

	if booked.OutlookID.Valid {
		if err := s.calendar.UpdateEvent(ctx, acct, booked.OutlookID.String, eventFor(booked)); err != nil {
			return db.Booking{}, fmt.Errorf("mirror reschedule to calendar: %w", err)
		}
	}

	s.notifyAsync(ctx, "update", owner, booked, s.notifierSendUpdate)
	return booked, nil
}

// Cancel removes a booking locally and from the remote calendar. A remote
// event already gone counts as cancelled.
func (s *Service) Cancel(ctx context.Context, bookingID int64) error {
	booked, err := s.queries.GetBooking(ctx, bookingID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotFound
		}
		return fmt.Errorf("load booking %d: %w", bookingID, err)
	}
	owner, err := s.queries.GetOwnerByID(ctx, booked.OwnerID)
	if err != nil {
		return fmt.Errorf("load owner %d: %w", booked.OwnerID, err)
	}

	if booked.OutlookID.Valid {
		_, err := s.calendar.DeleteEvent(ctx, accountOf(owner), booked.OutlookID.String)
		if err != nil && !errors.Is(err, outlook.ErrNotFound) {
			return fmt.Errorf("remove remote event: %w", err)
		}
	}
	if err := s.queries.DeleteBooking(ctx, bookingID); err != nil {
		return fmt.Errorf("delete booking %d: %w", bookingID, err)
	}

	s.notifyAsync(ctx, "cancellation", owner, booked, s.notifierSendCancellation)
	return nil
}

// checkDuration re-reads the calendar right before committing, so a rival
// booking placed after the grid was rendered still blocks the commit. The
// day's events are judged directly rather than through the grid snapshot.
func (s *Service) checkDuration(ctx context.Context, prefs availability.WeeklyPreferences, fetcher accountFetcher, start time.Time, durationMinutes int, existing *availability.EventWindow) error {
	ladder := availability.RangeOfDurations(prefs.Increment, prefs.MaxDuration)
	valid := false
	for _, d := range ladder {
		if d == durationMinutes {
			valid = true
			break
		}
	}
	if !valid {
		return ErrInvalidSlot
	}

	window := prefs.Window(start.Weekday())
	if !window.Bookable() {
		return ErrInvalidSlot
	}
	day := availability.DateOf(start)
	busy, err := fetcher.FetchBusyIntervals(ctx, day, day.AddDate(0, 0, 1))
	if err != nil {
		return fmt.Errorf("fetch busy intervals: %w", err)
	}
	choices := availability.ResolveDurationsAgainstEvents(
		start, prefs, availability.GroupByDay(busy)[day], window.Close.At(day), existing)
	for _, c := range choices {
		if c.Value == durationMinutes {
			return nil
		}
	}
	return ErrInvalidSlot
}

type notifyFn func(ctx context.Context, owner db.Owner, booking db.Booking) error

func (s *Service) notifierSendConfirmation(ctx context.Context, o db.Owner, b db.Booking) error {
	return s.notifier.SendConfirmation(ctx, o, b)
}
func (s *Service) notifierSendUpdate(ctx context.Context, o db.Owner, b db.Booking) error {
	return s.notifier.SendUpdate(ctx, o, b)
}
func (s *Service) notifierSendCancellation(ctx context.Context, o db.Owner, b db.Booking) error {
	return s.notifier.SendCancellation(ctx, o, b)
}

// notifyAsync fires the email off the request path. The context is
// detached so cancellation of the HTTP request does not abort the send.
func (s *Service) notifyAsync(ctx context.Context, kind string, owner db.Owner, booked db.Booking, send notifyFn) {
	if s.notifier == nil {
		return
	}
	detached := context.WithoutCancel(ctx)
	go func() {
		if err := send(detached, owner, booked); err != nil {
			log.Ctx(detached).Error().Err(err).
				Str("kind", kind).
				Int64("booking_id", booked.ID).
				Msg("Failed to send booking email")
		}
	}()
}

func containsTick(ticks []availability.ClockTime, t availability.ClockTime) bool {
	for _, tick := range ticks {
		if tick == t {
			return true
		}
	}
	return false
}

// eventFor renders the remote calendar event for a booking.
func eventFor(b db.Booking) outlook.Event {
	body := fmt.Sprintf("Booked by %s %s (%s)", b.FirstName, b.LastName, b.Email)
	if b.Phone.Valid {
		body += fmt.Sprintf("<br>Phone: %s", b.Phone.String)
	}
	return outlook.Event{
		Subject:       b.Subject,
		Body:          body,
		Start:         b.StartTime,
		End:           b.EndTime,
		AttendeeEmail: b.Email,
		AttendeeName:  fmt.Sprintf("%s %s", b.FirstName, b.LastName),
	}
}

// normalizePhone stores attendee numbers in E.164 where they parse;
// unparseable input is kept verbatim rather than rejected.
func normalizePhone(raw string) sql.NullString {
	if raw == "" {
		return sql.NullString{}
	}
	num, err := phonenumbers.Parse(raw, defaultPhoneRegion)
	if err != nil || !phonenumbers.IsValidNumber(num) {
		return sql.NullString{String: raw, Valid: true}
	}
	return sql.NullString{String: phonenumbers.Format(num, phonenumbers.E164), Valid: true}
}
