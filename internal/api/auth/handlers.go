package auth

import (
	"crypto/hmac"
	"database/sql"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/imeetingbooker/meetingbooker/internal/api/apiutil"
	"github.com/imeetingbooker/meetingbooker/internal/outlook"
	"github.com/imeetingbooker/meetingbooker/internal/ratelimit"
)

const oauthStateTTL = 10 * time.Minute

var (
	tokenManager *outlook.TokenManager
	limiter      *ratelimit.Limiter
)

// ConfigureHandlers wires the login and calendar-connect handlers. The
// limiter may be nil, which disables login throttling.
func ConfigureHandlers(tm *outlook.TokenManager, rl *ratelimit.Limiter) {
	tokenManager = tm
	limiter = rl
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type loginResponse struct {
	ID          int64  `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
}

// HandleLogin authenticates an owner with email and password and starts a
// session. Failed attempts count toward the login lockout.
func HandleLogin(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())

	var req loginRequest
	if err := apiutil.DecodeJSON(r, &req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if req.Email == "" || req.Password == "" {
		http.Error(w, "Email and password are required", http.StatusBadRequest)
		return
	}

	ip := ratelimit.GetClientIP(r, false)
	if limiter != nil {
		if result := limiter.CheckLogin(req.Email, ip); !result.Allowed {
			ratelimit.LogRateLimitExceeded("login", req.Email, ip, result.Reason)
			w.Header().Set("Retry-After", strconv.Itoa(int(result.RetryAfter.Seconds())))
			http.Error(w, "Too many attempts", http.StatusTooManyRequests)
			return
		}
	}

	if queries == nil {
		logger.Error().Msg("Auth not configured")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	owner, err := queries.GetOwnerByEmail(r.Context(), req.Email)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		logger.Error().Err(err).Msg("Failed to look up owner")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	// Run the bcrypt check even when the owner is unknown so the two
	// failure paths take comparable time.
	hash := "$2a$10$invalidinvalidinvalidinvalidinvalidinvalidinvalidinval"
	if err == nil {
		hash = owner.PasswordHash
	}
	if !VerifyPassword(hash, req.Password) || errors.Is(err, sql.ErrNoRows) {
		if limiter != nil {
			if locked := limiter.RecordLogin(req.Email, ip); locked {
				logger.Warn().Str("email", ratelimit.SanitizeIdentifier(req.Email)).Msg("Login lockout triggered")
			}
		}
		http.Error(w, "Invalid credentials", http.StatusUnauthorized)
		return
	}

	if limiter != nil {
		limiter.ResetLoginAttempts(req.Email)
	}
	if err := CreateSession(w, owner.ID); err != nil {
		logger.Error().Err(err).Msg("Failed to create session")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	logger.Info().Int64("owner_id", owner.ID).Msg("Owner logged in")
	apiutil.WriteJSON(w, http.StatusOK, loginResponse{
		ID:          owner.ID,
		Email:       owner.Email,
		DisplayName: owner.DisplayName,
	})
}

// HandleLogout ends the current session.
func HandleLogout(w http.ResponseWriter, r *http.Request) {
	ClearSession(w, r)
	w.WriteHeader(http.StatusNoContent)
}

// HandleMe returns the authenticated owner's profile.
func HandleMe(w http.ResponseWriter, r *http.Request) {
	owner := OwnerFromContext(r.Context())
	if owner == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	apiutil.WriteJSON(w, http.StatusOK, loginResponse{
		ID:          owner.ID,
		Email:       owner.Email,
		DisplayName: owner.DisplayName,
	})
}

// HandleConnectOutlook redirects the logged-in owner to the Microsoft
// consent page. The state parameter carries the owner id, signed, so the
// callback can complete without server-side state.
func HandleConnectOutlook(w http.ResponseWriter, r *http.Request) {
	owner := OwnerFromContext(r.Context())
	if owner == nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}
	if tokenManager == nil {
		http.Error(w, "Calendar connection not configured", http.StatusServiceUnavailable)
		return
	}

	state, err := makeOAuthState(owner.ID)
	if err != nil {
		log.Ctx(r.Context()).Error().Err(err).Msg("Failed to build oauth state")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}
	http.Redirect(w, r, tokenManager.AuthCodeURL(state), http.StatusFound)
}

// HandleOutlookCallback completes the consent flow: it validates the state,
// exchanges the code, and stores the owner's refresh token.
func HandleOutlookCallback(w http.ResponseWriter, r *http.Request) {
	logger := log.Ctx(r.Context())
	if tokenManager == nil {
		http.Error(w, "Calendar connection not configured", http.StatusServiceUnavailable)
		return
	}

	if errParam := r.URL.Query().Get("error"); errParam != "" {
		logger.Warn().Str("error", errParam).Msg("Consent flow denied")
		http.Error(w, "Calendar connection was denied", http.StatusBadRequest)
		return
	}

	ownerID, err := parseOAuthState(r.URL.Query().Get("state"))
	if err != nil {
		logger.Warn().Err(err).Msg("Invalid oauth state")
		http.Error(w, "Invalid state", http.StatusBadRequest)
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "Missing authorization code", http.StatusBadRequest)
		return
	}

	token, err := tokenManager.Exchange(r.Context(), code)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to exchange authorization code")
		http.Error(w, "Failed to connect calendar", http.StatusBadGateway)
		return
	}
	if err := tokenManager.SaveInitialToken(r.Context(), ownerID, token); err != nil {
		logger.Error().Err(err).Int64("owner_id", ownerID).Msg("Failed to store calendar tokens")
		http.Error(w, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	logger.Info().Int64("owner_id", ownerID).Msg("Outlook calendar connected")
	apiutil.WriteJSON(w, http.StatusOK, map[string]string{"status": "connected"})
}

// makeOAuthState signs "ownerID|expiry|nonce" so the callback can trust the
// owner id it carries.
func makeOAuthState(ownerID int64) (string, error) {
	nonce, err := newSessionToken()
	if err != nil {
		return "", err
	}
	payload := fmt.Sprintf("%d|%d|%s", ownerID, time.Now().Add(oauthStateTTL).Unix(), nonce)
	encoded := base64.RawURLEncoding.EncodeToString([]byte(payload))
	sig, err := signPayload(encoded)
	if err != nil {
		return "", err
	}
	return encoded + "." + sig, nil
}

func parseOAuthState(state string) (int64, error) {
	parts := strings.SplitN(state, ".", 2)
	if len(parts) != 2 {
		return 0, errors.New("malformed state")
	}
	expected, err := signPayload(parts[0])
	if err != nil {
		return 0, err
	}
	if !hmac.Equal([]byte(parts[1]), []byte(expected)) {
		return 0, errors.New("state signature mismatch")
	}

	raw, err := base64.RawURLEncoding.DecodeString(parts[0])
	if err != nil {
		return 0, err
	}
	fields := strings.SplitN(string(raw), "|", 3)
	if len(fields) != 3 {
		return 0, errors.New("malformed state payload")
	}
	ownerID, err := strconv.ParseInt(fields[0], 10, 64)
	if err != nil {
		return 0, err
	}
	expiry, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return 0, err
	}
	if time.Now().Unix() > expiry {
		return 0, errors.New("state expired")
	}
	return ownerID, nil
}
