// internal/api/bookings/handlers.go
package bookings

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/imeetingbooker/meetingbooker/internal/api/apiutil"
	"github.com/imeetingbooker/meetingbooker/internal/availability"
	"github.com/imeetingbooker/meetingbooker/internal/booking"
	"github.com/imeetingbooker/meetingbooker/internal/db"
	"github.com/imeetingbooker/meetingbooker/internal/outlook"
	"github.com/imeetingbooker/meetingbooker/internal/ratelimit"
)

var (
	service     *booking.Service
	limiter     *ratelimit.Limiter
	serviceOnce sync.Once
)

// InitHandlers must be called during server startup before handling
// requests. The limiter may be nil, which disables booking throttling.
func InitHandlers(svc *booking.Service, rl *ratelimit.Limiter) {
	if svc == nil {
		return
	}
	serviceOnce.Do(func() {
		service = svc
		limiter = rl
	})
}

type gridDay struct {
	Date  string `json:"date"`
	Label string `json:"label"`
}

type gridResponse struct {
	StartDate   string              `json:"start_date"`
	Days        []gridDay           `json:"days"`
	Ticks       []string            `json:"ticks"`
	Rows        []map[string]string `json:"rows"`
	HasPrevious bool                `json:"has_previous"`
}

// HandleGrid renders the seven-day availability grid. The week is paged
// with date plus action=next|prev; paging backwards never goes past today.
func HandleGrid(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if service == nil {
		logger.Error().Msg("Booking service not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	ownerID, err := apiutil.OwnerIDFromQuery(r)
	if err != nil {
		apiutil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	today := availability.DateOf(time.Now())
	startDate := today
	if raw := strings.TrimSpace(r.URL.Query().Get("date")); raw != "" {
		startDate, err = apiutil.ParseDateField(raw, "date")
		if err != nil {
			apiutil.WriteJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	switch r.URL.Query().Get("action") {
	case "next":
		startDate = startDate.AddDate(0, 0, availability.GridDays)
	case "prev":
		startDate = startDate.AddDate(0, 0, -availability.GridDays)
	case "":
	default:
		apiutil.WriteJSONError(w, http.StatusBadRequest, "action must be next or prev")
		return
	}
	if startDate.Before(today) {
		startDate = today
	}

	grid, err := service.Grid(r.Context(), ownerID, startDate)
	if err != nil {
		writeServiceError(w, r, err, "Failed to compute availability grid")
		return
	}

	resp := gridResponse{
		StartDate:   startDate.Format("2006-01-02"),
		Ticks:       make([]string, 0, len(grid.Ticks)),
		Rows:        make([]map[string]string, 0, len(grid.Rows)),
		HasPrevious: startDate.After(today),
	}
	for _, day := range grid.Days {
		resp.Days = append(resp.Days, gridDay{
			Date:  day.Format("2006-01-02"),
			Label: day.Format(availability.DayLabel),
		})
	}
	for _, tick := range grid.Ticks {
		resp.Ticks = append(resp.Ticks, tick.String())
	}
	for _, row := range grid.Rows {
		resp.Rows = append(resp.Rows, row)
	}

	apiutil.WriteJSON(w, http.StatusOK, resp)
}

// HandleDurations lists the selectable durations for a chosen start slot.
func HandleDurations(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if service == nil {
		logger.Error().Msg("Booking service not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	ownerID, err := apiutil.OwnerIDFromQuery(r)
	if err != nil {
		apiutil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	start, err := apiutil.ParseDateTimeField(r.URL.Query().Get("start"), "start")
	if err != nil {
		apiutil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	var excludeID int64
	if raw := strings.TrimSpace(r.URL.Query().Get("booking_id")); raw != "" {
		excludeID, err = apiutil.ParsePositiveInt64Field(raw, "booking_id")
		if err != nil {
			apiutil.WriteJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
	}

	choices, err := service.DurationChoices(r.Context(), ownerID, start, excludeID)
	if err != nil {
		writeServiceError(w, r, err, "Failed to resolve durations")
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, map[string]any{"choices": choices})
}

type bookRequest struct {
	OwnerID         int64  `json:"owner_id"`
	Start           string `json:"start"`
	DurationMinutes int    `json:"duration_minutes"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	Phone           string `json:"phone,omitempty"`
	Subject         string `json:"subject"`
}

type bookingResponse struct {
	ID              int64  `json:"id"`
	OwnerID         int64  `json:"owner_id"`
	Start           string `json:"start"`
	End             string `json:"end"`
	DurationMinutes int64  `json:"duration_minutes"`
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Email           string `json:"email"`
	Phone           string `json:"phone,omitempty"`
	Subject         string `json:"subject"`
}

func toBookingResponse(b db.Booking) bookingResponse {
	resp := bookingResponse{
		ID:              b.ID,
		OwnerID:         b.OwnerID,
		Start:           b.StartTime.Format(time.RFC3339),
		End:             b.EndTime.Format(time.RFC3339),
		DurationMinutes: b.DurationMinutes,
		FirstName:       b.FirstName,
		LastName:        b.LastName,
		Email:           b.Email,
		Subject:         b.Subject,
	}
	if b.Phone.Valid {
		resp.Phone = b.Phone.String
	}
	return resp
}

// HandleBook places a new booking.
func HandleBook(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if service == nil {
		logger.Error().Msg("Booking service not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	if r.Method != http.MethodPost {
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
		return
	}

	var req bookRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		apiutil.WriteJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := validateBookRequest(req); err != nil {
		apiutil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	start, err := apiutil.ParseDateTimeField(req.Start, "start")
	if err != nil {
		apiutil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	ip := ratelimit.GetClientIP(r, false)
	if limiter != nil {
		if result := limiter.CheckBooking(req.Email, ip); !result.Allowed {
			ratelimit.LogRateLimitExceeded("booking", req.Email, ip, result.Reason)
			w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
			apiutil.WriteJSONError(w, http.StatusTooManyRequests, "too many bookings, try again later")
			return
		}
	}

	booked, err := service.Book(r.Context(), req.OwnerID, booking.Request{
		Start:           start,
		DurationMinutes: req.DurationMinutes,
		FirstName:       strings.TrimSpace(req.FirstName),
		LastName:        strings.TrimSpace(req.LastName),
		Email:           strings.TrimSpace(req.Email),
		Phone:           strings.TrimSpace(req.Phone),
		Subject:         strings.TrimSpace(req.Subject),
	})
	if err != nil {
		writeServiceError(w, r, err, "Failed to place booking")
		return
	}
	if limiter != nil {
		limiter.RecordBooking(req.Email, ip)
	}

	logger.Info().Int64("booking_id", booked.ID).Int64("owner_id", booked.OwnerID).Msg("Booking placed")
	apiutil.WriteJSON(w, http.StatusCreated, toBookingResponse(booked))
}

type rescheduleRequest struct {
	Start           string `json:"start"`
	DurationMinutes int    `json:"duration_minutes"`
}

// HandleBookingByID dispatches PATCH (reschedule) and DELETE (cancel) for
// /api/v1/bookings/{id}.
func HandleBookingByID(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if service == nil {
		logger.Error().Msg("Booking service not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	id, err := apiutil.ParsePositiveInt64Field(r.PathValue("id"), "id")
	if err != nil {
		apiutil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	switch r.Method {
	case http.MethodPatch, http.MethodPut:
		var req rescheduleRequest
		if err := apiutil.DecodeJSON(r, &req); err != nil {
			apiutil.WriteJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		start, err := apiutil.ParseDateTimeField(req.Start, "start")
		if err != nil {
			apiutil.WriteJSONError(w, http.StatusBadRequest, err.Error())
			return
		}
		if req.DurationMinutes <= 0 {
			apiutil.WriteJSONError(w, http.StatusBadRequest, "duration_minutes must be greater than 0")
			return
		}

		moved, err := service.Reschedule(r.Context(), id, start, req.DurationMinutes)
		if err != nil {
			writeServiceError(w, r, err, "Failed to reschedule booking")
			return
		}
		logger.Info().Int64("booking_id", id).Msg("Booking rescheduled")
		apiutil.WriteJSON(w, http.StatusOK, toBookingResponse(moved))

	case http.MethodDelete:
		if err := service.Cancel(r.Context(), id); err != nil {
			writeServiceError(w, r, err, "Failed to cancel booking")
			return
		}
		logger.Info().Int64("booking_id", id).Msg("Booking cancelled")
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func validateBookRequest(req bookRequest) error {
	if req.OwnerID <= 0 {
		return apiutil.FieldError{Field: "owner_id", Reason: "is required"}
	}
	if req.DurationMinutes <= 0 {
		return apiutil.FieldError{Field: "duration_minutes", Reason: "must be greater than 0"}
	}
	if strings.TrimSpace(req.FirstName) == "" {
		return apiutil.FieldError{Field: "first_name", Reason: "is required"}
	}
	if strings.TrimSpace(req.LastName) == "" {
		return apiutil.FieldError{Field: "last_name", Reason: "is required"}
	}
	email := strings.TrimSpace(req.Email)
	if email == "" || !strings.Contains(email, "@") {
		return apiutil.FieldError{Field: "email", Reason: "must be a valid address"}
	}
	if strings.TrimSpace(req.Subject) == "" {
		return apiutil.FieldError{Field: "subject", Reason: "is required"}
	}
	return nil
}

// writeServiceError maps orchestrator errors onto HTTP statuses. Remote
// calendar failures surface as 502 so clients can distinguish them from
// validation problems.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, logMsg string) {
	logger := log.Ctx(r.Context())
	var rejected outlook.RemoteRejectedError
	switch {
	case errors.Is(err, booking.ErrInvalidSlot):
		apiutil.WriteJSONError(w, http.StatusConflict, "slot is not available")
	case errors.Is(err, booking.ErrNotFound):
		apiutil.WriteJSONError(w, http.StatusNotFound, "booking not found")
	case errors.Is(err, outlook.ErrRemoteUnavailable):
		logger.Error().Err(err).Msg(logMsg)
		apiutil.WriteJSONError(w, http.StatusBadGateway, "calendar service unavailable")
	case errors.As(err, &rejected):
		logger.Error().Err(err).Msg(logMsg)
		apiutil.WriteJSONError(w, http.StatusBadGateway, "calendar service rejected the request")
	default:
		logger.Error().Err(err).Msg(logMsg)
		apiutil.WriteJSONError(w, http.StatusInternalServerError, "internal server error")
	}
}
