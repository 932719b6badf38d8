// Package users declares the account storage contract and its PostgreSQL and
// SQLite implementations.
package users

import (
	"context"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
)

// Repository stores accounts. Email is the normalized uniqueness key; the
// store enforces it atomically and reports conflicts as
// common.ErrAlreadyExists. Lookups of absent rows return common.ErrorNotFound.
type Repository interface {
	Create(ctx context.Context, user *models.User) (*models.User, error)
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	List(ctx context.Context) ([]*models.User, error)

	// UpdateProfile overwrites name and password hash.
	UpdateProfile(ctx context.Context, id, name, passwordHash string) error
	// UpdateFlags overwrites the privilege and activity flags.
	UpdateFlags(ctx context.Context, id string, isActive, isStaff, isSuperuser bool) error
	// TouchLastLogin records a successful authentication time.
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}
