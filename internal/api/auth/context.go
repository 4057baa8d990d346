package auth

import (
	"context"
	"errors"

	"github.com/imeetingbooker/meetingbooker/internal/db"
)

var ErrUnauthenticated = errors.New("authentication required")

type ownerContextKey struct{}

// ContextWithOwner attaches the authenticated owner to the context.
func ContextWithOwner(ctx context.Context, owner *db.Owner) context.Context {
	return context.WithValue(ctx, ownerContextKey{}, owner)
}

// OwnerFromContext returns the authenticated owner, or nil.
func OwnerFromContext(ctx context.Context) *db.Owner {
	owner, _ := ctx.Value(ownerContextKey{}).(*db.Owner)
	return owner
}
