package email

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/imeetingbooker/meetingbooker/internal/db"
)

type fakeEmailSender struct {
	sendCalls  int32
	recipients []string
	lastSubj   string
	lastBody   string
	err        error
	observed   chan error
}

func newFakeEmailSender() *fakeEmailSender {
	return &fakeEmailSender{observed: make(chan error, 1)}
}

func (f *fakeEmailSender) Send(ctx context.Context, recipient, subject, body string) error {
	atomic.AddInt32(&f.sendCalls, 1)
	f.recipients = append(f.recipients, recipient)
	f.lastSubj, f.lastBody = subject, body
	select {
	case f.observed <- ctx.Err():
	default:
	}
	return f.err
}

func (f *fakeEmailSender) SendFrom(ctx context.Context, recipient, subject, body, sender string) error {
	return f.Send(ctx, recipient, subject, body)
}

func testBooking() (db.Owner, db.Booking) {
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.Local)
	owner := db.Owner{ID: 1, Email: "owner@example.com", DisplayName: "Avery Owner"}
	booking := db.Booking{
		ID:              7,
		OwnerID:         1,
		StartTime:       start,
		EndTime:         start.Add(time.Hour),
		DurationMinutes: 60,
		FirstName:       "Ada",
		LastName:        "Lovelace",
		Email:           "ada@example.com",
		Phone:           sql.NullString{String: "+442079460958", Valid: true},
		Subject:         "Planning call",
	}
	return owner, booking
}

func TestSendConfirmationRendersAndDelivers(t *testing.T) {
	sender := newFakeEmailSender()
	notifier := NewNotifier(sender)
	owner, booking := testBooking()

	if err := notifier.SendConfirmation(context.Background(), owner, booking); err != nil {
		t.Fatalf("SendConfirmation: %v", err)
	}
	want := []string{"ada@example.com", "owner@example.com"}
	if len(sender.recipients) != len(want) {
		t.Fatalf("recipients = %v, want %v", sender.recipients, want)
	}
	for i, to := range want {
		if sender.recipients[i] != to {
			t.Errorf("recipient %d = %q, want %q", i, sender.recipients[i], to)
		}
	}
	if want := "Meeting confirmed: Monday, 2 March 2026 10:00"; sender.lastSubj != want {
		t.Errorf("subject = %q, want %q", sender.lastSubj, want)
	}
	for _, fragment := range []string{"Hi Ada Lovelace", "Avery Owner", "Planning call", "60 minutes", "+442079460958"} {
		if !strings.Contains(sender.lastBody, fragment) {
			t.Errorf("body missing %q:\n%s", fragment, sender.lastBody)
		}
	}
}

func TestDeliverySurvivesRequestCancellation(t *testing.T) {
	sender := newFakeEmailSender()
	notifier := NewNotifier(sender)
	owner, booking := testBooking()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := notifier.SendUpdate(ctx, owner, booking); err != nil {
		t.Fatalf("SendUpdate: %v", err)
	}

	select {
	case ctxErr := <-sender.observed:
		if ctxErr != nil {
			t.Errorf("send context already done: %v", ctxErr)
		}
	case <-time.After(time.Second):
		t.Fatal("send never ran")
	}
}

func TestSendErrorPropagates(t *testing.T) {
	sender := newFakeEmailSender()
	sender.err = errors.New("ses throttled")
	notifier := NewNotifier(sender)
	owner, booking := testBooking()

	if err := notifier.SendCancellation(context.Background(), owner, booking); err == nil {
		t.Fatal("expected send error")
	}
}

func TestReminderGoesToAttendeeOnly(t *testing.T) {
	sender := newFakeEmailSender()
	notifier := NewNotifier(sender)
	owner, booking := testBooking()

	if err := notifier.SendReminder(context.Background(), owner, booking); err != nil {
		t.Fatalf("SendReminder: %v", err)
	}
	if len(sender.recipients) != 1 || sender.recipients[0] != "ada@example.com" {
		t.Errorf("recipients = %v, want just the attendee", sender.recipients)
	}
}

func TestMissingRecipientIsDropped(t *testing.T) {
	sender := newFakeEmailSender()
	notifier := NewNotifier(sender)
	owner, booking := testBooking()
	booking.Email = ""

	if err := notifier.SendReminder(context.Background(), owner, booking); err != nil {
		t.Fatalf("SendReminder: %v", err)
	}
	if atomic.LoadInt32(&sender.sendCalls) != 0 {
		t.Error("send called with no recipient")
	}
}

func TestNilSenderIsNoop(t *testing.T) {
	notifier := NewNotifier(nil)
	owner, booking := testBooking()
	if err := notifier.SendConfirmation(context.Background(), owner, booking); err != nil {
		t.Fatalf("nil sender: %v", err)
	}
}
