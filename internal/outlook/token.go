// internal/outlook/token.go
package outlook

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/microsoft"

	"github.com/imeetingbooker/meetingbooker/internal/db"
)

// Scopes requested for calendar access.
var Scopes = []string{
	"openid",
	"offline_access",
	"User.Read",
	"Calendars.ReadWrite",
}

// TokenManager turns stored owner credentials into fresh bearer tokens,
// refreshing through the Microsoft identity platform and persisting rotated
// refresh tokens back to the owner row.
type TokenManager struct {
	cfg     *oauth2.Config
	queries *db.Queries
}

// NewTokenManager builds a TokenManager for the given OAuth client.
func NewTokenManager(clientID, clientSecret, redirectURL string, queries *db.Queries) *TokenManager {
	return &TokenManager{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     microsoft.AzureADEndpoint("common"),
			Scopes:       Scopes,
		},
		queries: queries,
	}
}

// EnsureFreshToken returns a valid bearer token for the owner, refreshing
// and persisting it first when the stored one is expired or about to be.
func (m *TokenManager) EnsureFreshToken(ctx context.Context, ownerID int64) (*oauth2.Token, error) {
	owner, err := m.queries.GetOwnerByID(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load owner %d: %w", ownerID, err)
	}
	if !owner.RefreshToken.Valid || owner.RefreshToken.String == "" {
		return nil, fmt.Errorf("owner %d has no calendar credential", ownerID)
	}

	stored := &oauth2.Token{
		AccessToken:  owner.AccessToken.String,
		RefreshToken: owner.RefreshToken.String,
	}
	if owner.TokenExpiresAt.Valid {
		stored.Expiry = owner.TokenExpiresAt.Time
	}

	fresh, err := m.cfg.TokenSource(ctx, stored).Token()
	if err != nil {
		return nil, fmt.Errorf("refresh token for owner %d: %w", ownerID, err)
	}

	if fresh.AccessToken != stored.AccessToken || fresh.RefreshToken != stored.RefreshToken {
		if err := m.persist(ctx, ownerID, fresh); err != nil {
			return nil, err
		}
	}
	return fresh, nil
}

// AuthCodeURL builds the consent URL the owner is redirected to when
// connecting their calendar.
func (m *TokenManager) AuthCodeURL(state string) string {
	return m.cfg.AuthCodeURL(state, oauth2.AccessTypeOffline)
}

// Exchange trades the consent callback code for a token.
func (m *TokenManager) Exchange(ctx context.Context, code string) (*oauth2.Token, error) {
	token, err := m.cfg.Exchange(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("exchange authorization code: %w", err)
	}
	if token.Expiry.IsZero() {
		token.Expiry = DefaultExpiry(time.Now())
	}
	return token, nil
}

// SaveInitialToken stores the token obtained from the owner's initial
// consent flow.
func (m *TokenManager) SaveInitialToken(ctx context.Context, ownerID int64, token *oauth2.Token) error {
	return m.persist(ctx, ownerID, token)
}

func (m *TokenManager) persist(ctx context.Context, ownerID int64, token *oauth2.Token) error {
	refresh := token.RefreshToken
	expiry := sql.NullTime{}
	if !token.Expiry.IsZero() {
		expiry = sql.NullTime{Time: token.Expiry.UTC(), Valid: true}
	}
	err := m.queries.UpdateOwnerTokens(ctx, db.UpdateOwnerTokensParams{
		RefreshToken:   sql.NullString{String: refresh, Valid: refresh != ""},
		AccessToken:    sql.NullString{String: token.AccessToken, Valid: token.AccessToken != ""},
		TokenExpiresAt: expiry,
		OwnerID:        ownerID,
	})
	if err != nil {
		return fmt.Errorf("persist tokens for owner %d: %w", ownerID, err)
	}
	return nil
}

// tokenValidity is how long a freshly issued Graph token is trusted when
// the response omits an expiry.
const tokenValidity = time.Hour

// DefaultExpiry fills in a conservative expiry for tokens without one.
func DefaultExpiry(now time.Time) time.Time {
	return now.Add(tokenValidity)
}
