package email

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/imeetingbooker/meetingbooker/internal/db"
)

const sendTimeout = 5 * time.Second

// Notifier renders and delivers booking lifecycle emails. Confirmation,
// update and cancellation mail goes to the attendee with a copy to the
// owner; reminders go to the attendee only, since the owner already sees
// the event in their calendar. A nil Notifier or nil sender silently
// drops sends, so callers don't need to special-case environments without
// email configured.
type Notifier struct {
	sender EmailSender
}

func NewNotifier(sender EmailSender) *Notifier {
	return &Notifier{sender: sender}
}

func (n *Notifier) SendConfirmation(ctx context.Context, owner db.Owner, booking db.Booking) error {
	return n.deliver(ctx, booking, BuildConfirmation(owner, booking), booking.Email, owner.Email)
}

func (n *Notifier) SendUpdate(ctx context.Context, owner db.Owner, booking db.Booking) error {
	return n.deliver(ctx, booking, BuildUpdate(owner, booking), booking.Email, owner.Email)
}

func (n *Notifier) SendCancellation(ctx context.Context, owner db.Owner, booking db.Booking) error {
	return n.deliver(ctx, booking, BuildCancellation(owner, booking), booking.Email, owner.Email)
}

func (n *Notifier) SendReminder(ctx context.Context, owner db.Owner, booking db.Booking) error {
	return n.deliver(ctx, booking, BuildReminder(owner, booking), booking.Email)
}

func (n *Notifier) deliver(ctx context.Context, booking db.Booking, msg Message, recipients ...string) error {
	if n == nil || n.sender == nil {
		return nil
	}

	sendCtx, cancel := newEmailContext(ctx, sendTimeout)
	defer cancel()

	seen := make(map[string]bool, len(recipients))
	attempted := 0
	var errs []error
	for _, recipient := range recipients {
		recipient = strings.TrimSpace(recipient)
		if recipient == "" || seen[recipient] {
			continue
		}
		seen[recipient] = true
		attempted++
		if err := n.sender.Send(sendCtx, recipient, msg.Subject, msg.Body); err != nil {
			errs = append(errs, fmt.Errorf("send %q to %s: %w", msg.Subject, recipient, err))
		}
	}
	if attempted == 0 {
		log.Ctx(ctx).Warn().Int64("booking_id", booking.ID).Msg("Booking email has no recipients")
	}
	return errors.Join(errs...)
}
