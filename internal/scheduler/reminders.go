package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/imeetingbooker/meetingbooker/internal/db"
	"github.com/imeetingbooker/meetingbooker/internal/email"
)

const (
	reminderLeadTime    = 24 * time.Hour
	reminderJobWindow   = 15 * time.Minute
	defaultReminderCron = "*/15 * * * *"
)

// RegisterReminderJob schedules the booking reminder sweep. Each run picks
// up bookings starting reminderLeadTime from now, inside a window matching
// the sweep cadence so consecutive runs don't reconsider the same booking.
func RegisterReminderJob(database *db.DB, notifier *email.Notifier, cronExpr string) error {
	if database == nil {
		return fmt.Errorf("reminder job requires database")
	}
	if cronExpr == "" {
		cronExpr = defaultReminderCron
	}

	jobLogger := log.With().
		Str("component", "booking_reminders_job").
		Str("cron", cronExpr).
		Logger()

	_, err := AddJob("booking_reminders", cronExpr, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		ctx = jobLogger.WithContext(ctx)

		if notifier == nil {
			jobLogger.Debug().Msg("Reminder job skipped: email not configured")
			return
		}

		windowStart := time.Now().Add(reminderLeadTime)
		windowEnd := windowStart.Add(reminderJobWindow)

		bookings, err := database.Queries.ListBookingsStartingBetween(ctx, windowStart, windowEnd)
		if err != nil {
			jobLogger.Error().Err(err).Msg("Failed to load bookings for reminder job")
			return
		}

		for _, booked := range bookings {
			owner, err := database.Queries.GetOwnerByID(ctx, booked.OwnerID)
			if err != nil {
				jobLogger.Error().Err(err).
					Int64("booking_id", booked.ID).
					Int64("owner_id", booked.OwnerID).
					Msg("Failed to load owner for reminder")
				continue
			}
			if err := notifier.SendReminder(ctx, owner, booked); err != nil {
				jobLogger.Error().Err(err).
					Int64("booking_id", booked.ID).
					Msg("Failed to send booking reminder")
				continue
			}
			jobLogger.Info().
				Int64("booking_id", booked.ID).
				Time("start_time", booked.StartTime).
				Msg("Booking reminder sent")
		}
	})
	if err != nil {
		return fmt.Errorf("add booking reminder job: %w", err)
	}

	jobLogger.Info().Msg("Booking reminder job registered")
	return nil
}
