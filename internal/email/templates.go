package email

import (
	"fmt"
	"strings"
	"time"

	"github.com/imeetingbooker/meetingbooker/internal/db"
)

// Message is a rendered email ready for delivery.
type Message struct {
	Subject string
	Body    string
}

// FormatBookingTime renders a booking instant the way it appears in every
// booking email, e.g. "Monday, 2 March 2026 10:00".
func FormatBookingTime(t time.Time) string {
	return t.Format("Monday, 2 January 2006 15:04")
}

func attendeeName(b db.Booking) string {
	name := strings.TrimSpace(strings.TrimSpace(b.FirstName) + " " + strings.TrimSpace(b.LastName))
	if name == "" {
		name = b.Email
	}
	return name
}

func bookingLines(owner db.Owner, b db.Booking) []string {
	lines := []string{
		fmt.Sprintf("With: %s", owner.DisplayName),
		fmt.Sprintf("Subject: %s", b.Subject),
		fmt.Sprintf("Starts: %s", FormatBookingTime(b.StartTime)),
		fmt.Sprintf("Ends: %s", FormatBookingTime(b.EndTime)),
		fmt.Sprintf("Duration: %d minutes", b.DurationMinutes),
	}
	if b.Phone.Valid {
		lines = append(lines, fmt.Sprintf("Contact phone: %s", b.Phone.String))
	}
	return lines
}

// BuildConfirmation renders the email sent when a booking is first placed.
func BuildConfirmation(owner db.Owner, b db.Booking) Message {
	lines := append([]string{
		fmt.Sprintf("Hi %s,", attendeeName(b)),
		"",
		"Your meeting is booked.",
		"",
	}, bookingLines(owner, b)...)
	return Message{
		Subject: fmt.Sprintf("Meeting confirmed: %s", FormatBookingTime(b.StartTime)),
		Body:    strings.Join(lines, "\n"),
	}
}

// BuildUpdate renders the email sent when a booking is rescheduled.
func BuildUpdate(owner db.Owner, b db.Booking) Message {
	lines := append([]string{
		fmt.Sprintf("Hi %s,", attendeeName(b)),
		"",
		"Your meeting has been rescheduled. The new details are below.",
		"",
	}, bookingLines(owner, b)...)
	return Message{
		Subject: fmt.Sprintf("Meeting rescheduled: %s", FormatBookingTime(b.StartTime)),
		Body:    strings.Join(lines, "\n"),
	}
}

// BuildCancellation renders the email sent when a booking is cancelled.
func BuildCancellation(owner db.Owner, b db.Booking) Message {
	lines := []string{
		fmt.Sprintf("Hi %s,", attendeeName(b)),
		"",
		fmt.Sprintf("Your meeting with %s on %s has been cancelled.",
			owner.DisplayName, FormatBookingTime(b.StartTime)),
		"",
		"You can book a new slot from the booking page at any time.",
	}
	return Message{
		Subject: fmt.Sprintf("Meeting cancelled: %s", FormatBookingTime(b.StartTime)),
		Body:    strings.Join(lines, "\n"),
	}
}

// BuildReminder renders the day-before reminder email.
func BuildReminder(owner db.Owner, b db.Booking) Message {
	lines := append([]string{
		fmt.Sprintf("Hi %s,", attendeeName(b)),
		"",
		"A reminder that your meeting is coming up.",
		"",
	}, bookingLines(owner, b)...)
	return Message{
		Subject: fmt.Sprintf("Meeting reminder: %s", FormatBookingTime(b.StartTime)),
		Body:    strings.Join(lines, "\n"),
	}
}
