// cmd/server/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/imeetingbooker/meetingbooker/internal/api/auth"
	"github.com/imeetingbooker/meetingbooker/internal/api/bookings"
	"github.com/imeetingbooker/meetingbooker/internal/api/prefs"
	"github.com/imeetingbooker/meetingbooker/internal/booking"
	"github.com/imeetingbooker/meetingbooker/internal/config"
	"github.com/imeetingbooker/meetingbooker/internal/db"
	"github.com/imeetingbooker/meetingbooker/internal/email"
	"github.com/imeetingbooker/meetingbooker/internal/outlook"
	"github.com/imeetingbooker/meetingbooker/internal/ratelimit"
	"github.com/imeetingbooker/meetingbooker/internal/scheduler"
)

const shutdownTimeout = 30 * time.Second

func setupLogger(environment string) {
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if environment == "development" {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}
}

func main() {
	configPath := flag.String("config", "config/config.yaml", "path to the yaml configuration file")
	flag.Parse()
	if env := os.Getenv("CONFIG_PATH"); env != "" {
		*configPath = env
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}
	setupLogger(cfg.App.Environment)

	database, err := db.NewFromConfig(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open database")
	}
	defer database.Close()

	tokenManager := outlook.NewTokenManager(
		cfg.Outlook.ClientID,
		cfg.Outlook.ClientSecret,
		cfg.Outlook.RedirectURL,
		database.Queries,
	)
	calendar := outlook.NewClient(tokenManager, cfg.Outlook.GraphBaseURL, cfg.Outlook.Timezone)

	var notifier *email.Notifier
	if cfg.EmailEnabled() {
		ses, err := email.NewSESClient(
			cfg.Email.AccessKeyID,
			cfg.Email.SecretAccessKey,
			cfg.Email.Region,
			cfg.Email.Sender,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize email client")
		}
		notifier = email.NewNotifier(ses)
	} else {
		log.Warn().Msg("Email delivery not configured; notifications disabled")
	}

	// A typed nil Notifier must not reach the service as a non-nil interface.
	var bookingNotifier booking.Notifier
	if notifier != nil {
		bookingNotifier = notifier
	}
	service := booking.NewService(database.Queries, calendar, bookingNotifier, nil)
	limiter := ratelimit.New(nil)

	auth.Configure(database.Queries, cfg.App.SecretKey, cfg.App.Environment)
	auth.ConfigureHandlers(tokenManager, limiter)
	bookings.InitHandlers(service, limiter)
	prefs.InitHandlers(database.Queries)

	if err := scheduler.Init(); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize scheduler")
	}
	if notifier != nil {
		if err := scheduler.RegisterReminderJob(database, notifier, cfg.Scheduler.ReminderCron); err != nil {
			log.Fatal().Err(err).Msg("Failed to register reminder job")
		}
	}
	if err := scheduler.Start(); err != nil {
		log.Fatal().Err(err).Msg("Failed to start scheduler")
	}

	server := newServer(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Int("port", cfg.App.Port).Str("environment", cfg.App.Environment).Msg("Starting server")
		if err := server.ListenAndServe(); err != http.ErrServerClosed {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		log.Info().Msg("Shutting down server")
		if err := scheduler.Stop(); err != nil {
			log.Error().Err(err).Msg("Failed to stop scheduler")
		}
		if err := server.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutdown error: %w", err)
		}
		return nil
	})

	if err := g.Wait(); err != nil {
		log.Error().Err(err).Msg("Server terminated with error")
		os.Exit(1)
	}
}
