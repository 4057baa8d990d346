// internal/api/prefs/handlers.go
package prefs

import (
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/imeetingbooker/meetingbooker/internal/api/apiutil"
	"github.com/imeetingbooker/meetingbooker/internal/api/auth"
	"github.com/imeetingbooker/meetingbooker/internal/availability"
	"github.com/imeetingbooker/meetingbooker/internal/db"
	"github.com/imeetingbooker/meetingbooker/internal/models"
)

var (
	queries     *db.Queries
	queriesOnce sync.Once
)

// InitHandlers must be called during server startup before handling requests.
func InitHandlers(q *db.Queries) {
	if q == nil {
		return
	}
	queriesOnce.Do(func() {
		queries = q
	})
}

// weekdayKeys maps the JSON day names onto time.Weekday indexes.
var weekdayKeys = [7]string{"sunday", "monday", "tuesday", "wednesday", "thursday", "friday", "saturday"}

type dayPayload struct {
	Open  string `json:"open,omitempty"`
	Close string `json:"close,omitempty"`
}

type prefsPayload struct {
	Days            map[string]dayPayload `json:"days"`
	LunchStart      string                `json:"lunch_start,omitempty"`
	LunchEnd        string                `json:"lunch_end,omitempty"`
	Increment       int                   `json:"increment"`
	MaxDurationMins int                   `json:"max_duration_minutes"`
}

type prefsResponse struct {
	prefsPayload
	Increments      []int                         `json:"increments"`
	DurationChoices []availability.DurationChoice `json:"duration_choices"`
}

// HandlePreferences serves the signed-in owner's weekly schedule. GET
// returns the stored preferences plus the derived dropdown data; PUT
// replaces them wholesale.
func HandlePreferences(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if queries == nil {
		logger.Error().Msg("Preferences handlers not initialized")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	owner := auth.OwnerFromContext(r.Context())
	if owner == nil {
		apiutil.WriteJSONError(w, http.StatusUnauthorized, "authentication required")
		return
	}

	switch r.Method {
	case http.MethodGet:
		handleGet(w, r, owner)
	case http.MethodPut:
		handlePut(w, r, owner)
	default:
		http.Error(w, "Method Not Allowed", http.StatusMethodNotAllowed)
	}
}

func handleGet(w http.ResponseWriter, r *http.Request, owner *db.Owner) {
	logger := log.Ctx(r.Context())

	row, err := queries.GetPreferencesByOwner(r.Context(), owner.ID)
	if err != nil {
		logger.Error().Err(err).Int64("owner_id", owner.ID).Msg("Failed to load preferences")
		apiutil.WriteJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}
	prefs, err := models.PreferencesFromRow(row)
	if err != nil {
		logger.Error().Err(err).Int64("owner_id", owner.ID).Msg("Stored preferences are invalid")
		apiutil.WriteJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	apiutil.WriteJSON(w, http.StatusOK, prefsResponse{
		prefsPayload:    payloadFrom(prefs),
		Increments:      availability.Increments,
		DurationChoices: availability.BookingDurationChoices(prefs.Increment),
	})
}

func handlePut(w http.ResponseWriter, r *http.Request, owner *db.Owner) {
	logger := log.Ctx(r.Context())

	var payload prefsPayload
	if err := apiutil.DecodeJSON(r, &payload); err != nil {
		apiutil.WriteJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	prefs, err := preferencesFrom(payload)
	if err != nil {
		apiutil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := prefs.Validate(); err != nil {
		apiutil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := queries.UpsertPreferences(r.Context(), models.PreferencesToParams(owner.ID, prefs)); err != nil {
		logger.Error().Err(err).Int64("owner_id", owner.ID).Msg("Failed to save preferences")
		apiutil.WriteJSONError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	logger.Info().Int64("owner_id", owner.ID).Msg("Preferences updated")
	apiutil.WriteJSON(w, http.StatusOK, prefsResponse{
		prefsPayload:    payloadFrom(prefs),
		Increments:      availability.Increments,
		DurationChoices: availability.BookingDurationChoices(prefs.Increment),
	})
}

func payloadFrom(prefs availability.WeeklyPreferences) prefsPayload {
	payload := prefsPayload{
		Days:            make(map[string]dayPayload, 7),
		Increment:       prefs.Increment,
		MaxDurationMins: prefs.MaxDuration,
	}
	for day := time.Sunday; day <= time.Saturday; day++ {
		w := prefs.Days[day]
		if !w.Bookable() {
			continue
		}
		payload.Days[weekdayKeys[day]] = dayPayload{Open: w.Open.String(), Close: w.Close.String()}
	}
	if prefs.LunchStart != nil && prefs.LunchEnd != nil {
		payload.LunchStart = prefs.LunchStart.String()
		payload.LunchEnd = prefs.LunchEnd.String()
	}
	return payload
}

func preferencesFrom(payload prefsPayload) (availability.WeeklyPreferences, error) {
	prefs := availability.WeeklyPreferences{
		Increment:   payload.Increment,
		MaxDuration: payload.MaxDurationMins,
	}
	for key, day := range payload.Days {
		idx := weekdayIndex(key)
		if idx < 0 {
			return prefs, apiutil.FieldError{Field: "days", Reason: "unknown day " + key}
		}
		if day.Open == "" && day.Close == "" {
			continue
		}
		if day.Open == "" || day.Close == "" {
			return prefs, apiutil.FieldError{Field: weekdayKeys[idx], Reason: "needs both open and close"}
		}
		open, err := availability.ParseClock(day.Open)
		if err != nil {
			return prefs, apiutil.FieldError{Field: weekdayKeys[idx], Reason: err.Error()}
		}
		close, err := availability.ParseClock(day.Close)
		if err != nil {
			return prefs, apiutil.FieldError{Field: weekdayKeys[idx], Reason: err.Error()}
		}
		prefs.Days[idx] = availability.DayWindow{Open: &open, Close: &close}
	}
	if payload.LunchStart != "" || payload.LunchEnd != "" {
		if payload.LunchStart == "" || payload.LunchEnd == "" {
			return prefs, apiutil.FieldError{Field: "lunch", Reason: "needs both start and end"}
		}
		start, err := availability.ParseClock(payload.LunchStart)
		if err != nil {
			return prefs, apiutil.FieldError{Field: "lunch_start", Reason: err.Error()}
		}
		end, err := availability.ParseClock(payload.LunchEnd)
		if err != nil {
			return prefs, apiutil.FieldError{Field: "lunch_end", Reason: err.Error()}
		}
		prefs.LunchStart, prefs.LunchEnd = &start, &end
	}
	return prefs, nil
}

func weekdayIndex(key string) int {
	for i, name := range weekdayKeys {
		if name == strings.ToLower(key) {
			return i
		}
	}
	return -1
}
