// Package refreshtokens declares the storage contract for refresh tokens and
// its PostgreSQL and SQLite implementations.
package refreshtokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
)

// Repository issues, looks up and revokes refresh tokens.
type Repository interface {
	// Create stores token for userID with an expiry of now+validity.
	Create(ctx context.Context, userID string, token string, validity time.Duration) error

	// Find returns the token row or common.ErrorNotFound.
	Find(ctx context.Context, token string) (*models.RefreshToken, error)

	// Delete removes a single token. It returns common.ErrorNotFound when the
	// token is absent, including when another caller deleted it first.
	Delete(ctx context.Context, token string) error

	// DeleteForUser revokes every token issued to userID.
	DeleteForUser(ctx context.Context, userID string) error
}
