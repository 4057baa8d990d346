package auth

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/base64"
	"errors"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/imeetingbooker/meetingbooker/internal/db"
)

const (
	sessionCookieName      = "meetingbooker_session"
	sessionTTL             = 8 * time.Hour
	sessionTokenBytes      = 32
	sessionCleanupInterval = 15 * time.Minute
)

var errAuthConfigMissing = errors.New("auth configuration missing")

type sessionRecord struct {
	OwnerID   int64
	ExpiresAt time.Time
}

var (
	sessionMu sync.RWMutex
	// In-memory sessions are intentionally ephemeral; owners log in again
	// after a restart.
	sessionStore       = make(map[string]sessionRecord)
	sessionCleanupOnce sync.Once
)

var (
	queries     *db.Queries
	secretKey   string
	environment string
)

// Configure binds the package to its database handle and cookie signing
// secret. Must be called before any session operation.
func Configure(q *db.Queries, secret, env string) {
	queries = q
	secretKey = secret
	environment = env
}

func isSecureCookie() bool {
	return environment != "development"
}

// CreateSession starts a new signed session for the owner, replacing any
// session the owner already has.
func CreateSession(w http.ResponseWriter, ownerID int64) error {
	if w == nil {
		return errors.New("session requires response writer")
	}
	if secretKey == "" {
		return errAuthConfigMissing
	}

	startSessionCleanup()
	clearExistingSessionsForOwner(ownerID)

	token, err := newSessionToken()
	if err != nil {
		return err
	}
	signature, err := signPayload(token)
	if err != nil {
		return err
	}

	expiresAt := time.Now().Add(sessionTTL)
	sessionMu.Lock()
	sessionStore[token] = sessionRecord{
		OwnerID:   ownerID,
		ExpiresAt: expiresAt,
	}
	sessionMu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    token + "." + signature,
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecureCookie(),
		SameSite: http.SameSiteLaxMode,
		Expires:  expiresAt,
		MaxAge:   int(sessionTTL.Seconds()),
	})

	return nil
}

// ClearSession drops the request's session and expires the cookie.
func ClearSession(w http.ResponseWriter, r *http.Request) {
	if r == nil {
		ClearSessionCookie(w)
		return
	}

	if token, err := tokenFromRequest(r); err == nil && token != "" {
		deleteSession(token)
	}
	ClearSessionCookie(w)
}

func ClearSessionCookie(w http.ResponseWriter) {
	if w == nil {
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		HttpOnly: true,
		Secure:   isSecureCookie(),
		SameSite: http.SameSiteLaxMode,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
	})
}

// OwnerFromRequest resolves the request's session to the owner row, or
// (nil, nil) when the request carries no valid session.
func OwnerFromRequest(w http.ResponseWriter, r *http.Request) (*db.Owner, error) {
	if r == nil {
		return nil, nil
	}

	startSessionCleanup()

	token, err := tokenFromRequest(r)
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, nil
	}

	session, ok := getSession(token)
	if !ok {
		ClearSessionCookie(w)
		return nil, nil
	}

	if queries == nil {
		ClearSessionCookie(w)
		return nil, errors.New("auth queries not initialized")
	}

	owner, err := queries.GetOwnerByID(r.Context(), session.OwnerID)
	if err != nil {
		deleteSession(token)
		ClearSessionCookie(w)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &owner, nil
}

// tokenFromRequest extracts and verifies the session cookie's token. The
// value is token.signature so a forged token fails before touching the
// session store.
func tokenFromRequest(r *http.Request) (string, error) {
	cookie, err := r.Cookie(sessionCookieName)
	if err != nil {
		if errors.Is(err, http.ErrNoCookie) {
			return "", nil
		}
		return "", err
	}

	parts := strings.SplitN(cookie.Value, ".", 2)
	if len(parts) != 2 {
		return "", errors.New("invalid session cookie")
	}
	expected, err := signPayload(parts[0])
	if err != nil {
		return "", err
	}
	if !hmac.Equal([]byte(parts[1]), []byte(expected)) {
		return "", errors.New("invalid session cookie signature")
	}
	return parts[0], nil
}

func signPayload(payload string) (string, error) {
	if secretKey == "" {
		return "", errAuthConfigMissing
	}

	mac := hmac.New(sha256.New, []byte(secretKey))
	_, _ = mac.Write([]byte(payload))
	return base64.RawURLEncoding.EncodeToString(mac.Sum(nil)), nil
}

func newSessionToken() (string, error) {
	token := make([]byte, sessionTokenBytes)
	if _, err := rand.Read(token); err != nil {
		return "", err
	}

	return base64.RawURLEncoding.EncodeToString(token), nil
}

func startSessionCleanup() {
	sessionCleanupOnce.Do(func() {
		// Lazy-start cleanup only when sessions are first used.
		go func() {
			ticker := time.NewTicker(sessionCleanupInterval)
			defer ticker.Stop()
			for range ticker.C {
				pruneExpiredSessions()
			}
		}()
	})
}

func pruneExpiredSessions() {
	now := time.Now()
	sessionMu.Lock()
	for token, session := range sessionStore {
		if session.ExpiresAt.Before(now) {
			delete(sessionStore, token)
		}
	}
	sessionMu.Unlock()
}

func clearExistingSessionsForOwner(ownerID int64) {
	sessionMu.Lock()
	for token, session := range sessionStore {
		if session.OwnerID == ownerID {
			delete(sessionStore, token)
		}
	}
	sessionMu.Unlock()
}

func getSession(token string) (sessionRecord, bool) {
	sessionMu.RLock()
	session, ok := sessionStore[token]
	sessionMu.RUnlock()
	if !ok {
		return sessionRecord{}, false
	}

	if session.ExpiresAt.Before(time.Now()) {
		deleteSession(token)
		return sessionRecord{}, false
	}

	return session, true
}

func deleteSession(token string) {
	sessionMu.Lock()
	delete(sessionStore, token)
	sessionMu.Unlock()
}
