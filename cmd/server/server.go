// cmd/server/server.go
package main

import (
	"net/http"
	"strconv"
	"time"

	"github.com/imeetingbooker/meetingbooker/internal/api"
	"github.com/imeetingbooker/meetingbooker/internal/api/auth"
	"github.com/imeetingbooker/meetingbooker/internal/api/bookings"
	"github.com/imeetingbooker/meetingbooker/internal/api/prefs"
	"github.com/imeetingbooker/meetingbooker/internal/config"
)

func newServer(cfg *config.Config) *http.Server {
	router := http.NewServeMux()

	handler := api.ChainMiddleware(
		router,
		api.WithLogging,
		api.WithRecovery,
		api.WithOwnerAuth,
		api.WithRequestID,
		api.WithContentType,
	)

	registerRoutes(router)

	return &http.Server{
		Addr:         ":" + strconv.Itoa(cfg.App.Port),
		Handler:      handler,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
}

func registerRoutes(mux *http.ServeMux) {
	// Health check
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	// Owner authentication and calendar connection
	mux.HandleFunc("POST /api/v1/auth/login", auth.HandleLogin)
	mux.HandleFunc("POST /api/v1/auth/logout", auth.HandleLogout)
	mux.HandleFunc("GET /api/v1/auth/me", auth.HandleMe)
	mux.HandleFunc("GET /api/v1/auth/outlook/connect", auth.HandleConnectOutlook)
	mux.HandleFunc("GET /api/v1/auth/outlook/callback", auth.HandleOutlookCallback)

	// Public booking flow
	mux.HandleFunc("GET /api/v1/bookings/grid", bookings.HandleGrid)
	mux.HandleFunc("GET /api/v1/bookings/durations", bookings.HandleDurations)
	mux.HandleFunc("POST /api/v1/bookings", bookings.HandleBook)
	mux.HandleFunc("/api/v1/bookings/{id}", bookings.HandleBookingByID)

	// Owner preferences, session required
	mux.Handle("/api/v1/prefs", api.RequireOwner(http.HandlerFunc(prefs.HandlePreferences)))
}
