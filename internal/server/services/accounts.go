// Package services contains server-side business logic. This file implements
// AccountService, the account directory: registration, credential checks,
// profile updates and the administrative flag editing.
package services

import (
	"context"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/cryptox"
	"github.com/dmitrijs2005/accountkeeper/internal/dbx"
	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server/config"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/repomanager"
)

// Directory is the account directory consumed by the HTTP binding and the
// management CLI.
type Directory interface {
	CreateAccount(ctx context.Context, email, password, name string) (*models.User, error)
	CreatePrivilegedAccount(ctx context.Context, email, password, name string) (*models.User, error)
	Authenticate(ctx context.Context, email, password string) (*models.User, error)
	UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*models.User, error)
	GetAccount(ctx context.Context, id string) (*models.User, error)
	ValidatePassword(password string) error

	ListAccounts(ctx context.Context) ([]*models.User, error)
	SetFlags(ctx context.Context, id string, upd FlagUpdate) (*models.User, error)
}

// PasswordHasher produces and checks one-way password hashes.
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash, password string) bool
}

// ProfileUpdate is a partial profile change. Nil fields are left as they are.
type ProfileUpdate struct {
	Name     *string
	Password *string
}

// FlagUpdate is a partial change of the privilege flags. Nil fields are
// left as they are.
type FlagUpdate struct {
	IsActive    *bool
	IsStaff     *bool
	IsSuperuser *bool
}

// AccountService implements Directory on top of the repositories.
type AccountService struct {
	db                *sql.DB
	repomanager       repomanager.RepositoryManager
	hasher            PasswordHasher
	logger            logging.Logger
	minPasswordLength int

	now   func() time.Time
	newID func() string

	dummyOnce sync.Once
	dummyHash string
}

var _ Directory = (*AccountService)(nil)

// NewAccountService constructs an AccountService using repositories and
// server config.
func NewAccountService(db *sql.DB, m repomanager.RepositoryManager, cfg *config.Config, logger logging.Logger) *AccountService {
	return &AccountService{
		db:                db,
		repomanager:       m,
		hasher:            cryptox.NewBcryptHasher(cfg.BcryptCost),
		logger:            logger,
		minPasswordLength: cfg.PasswordMinLength,
		now:               time.Now,
		newID:             func() string { return uuid.NewString() },
	}
}

// NormalizeEmail lower-cases the domain part of email and leaves the local
// part as given. The split is at the last "@". Input without "@" is
// returned trimmed and otherwise unchanged.
func NormalizeEmail(email string) string {
	email = strings.TrimSpace(email)
	at := strings.LastIndex(email, "@")
	if at < 0 {
		return email
	}
	return email[:at] + "@" + strings.ToLower(email[at+1:])
}

// ValidatePassword checks the password policy: at least the configured
// number of characters and no more than bcrypt can hash.
func (s *AccountService) ValidatePassword(password string) error {
	if utf8.RuneCountInString(password) < s.minPasswordLength {
		return common.NewValidationError("password", "password too short")
	}
	if len(password) > cryptox.MaxPasswordBytes {
		return common.NewValidationError("password", "password too long")
	}
	return nil
}

// CreateAccount registers an active, unprivileged account.
func (s *AccountService) CreateAccount(ctx context.Context, email, password, name string) (*models.User, error) {
	return s.create(ctx, email, password, name, false)
}

// CreatePrivilegedAccount registers an active staff superuser.
func (s *AccountService) CreatePrivilegedAccount(ctx context.Context, email, password, name string) (*models.User, error) {
	return s.create(ctx, email, password, name, true)
}

func (s *AccountService) create(ctx context.Context, email, password, name string, privileged bool) (*models.User, error) {
	email = NormalizeEmail(email)
	if email == "" {
		return nil, common.NewValidationError("email", "email required")
	}
	if err := s.ValidatePassword(password); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, common.ErrorInternal
	}

	user := &models.User{
		ID:           s.newID(),
		Email:        email,
		Name:         name,
		PasswordHash: hash,
		IsActive:     true,
		IsStaff:      privileged,
		IsSuperuser:  privileged,
		CreatedAt:    s.now().UTC().Truncate(time.Millisecond),
	}

	u, err := s.repomanager.Users(s.db).Create(ctx, user)
	if err != nil {
		if errors.Is(err, common.ErrAlreadyExists) {
			return nil, common.ErrAlreadyExists
		}
		return nil, fmt.Errorf("error creating user: %w", err)
	}

	s.logger.Info(ctx, "account created", "account_id", u.ID, "privileged", privileged)
	return u.Sanitized(), nil
}

// Authenticate returns the active account matching email and password.
// Unknown email, wrong password and inactive account all yield
// common.ErrorUnauthorized.
func (s *AccountService) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	email = NormalizeEmail(email)
	repo := s.repomanager.Users(s.db)

	user, err := repo.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			// Spend the same bcrypt work as for a real account.
			s.hasher.Verify(s.getDummyHash(), password)
			return nil, common.ErrorUnauthorized
		}
		return nil, common.ErrorInternal
	}

	if !s.hasher.Verify(user.PasswordHash, password) || !user.IsActive {
		s.logger.Debug(ctx, "authentication rejected", "account_id", user.ID)
		return nil, common.ErrorUnauthorized
	}

	at := s.now().UTC().Truncate(time.Millisecond)
	if err := repo.TouchLastLogin(ctx, user.ID, at); err != nil {
		return nil, common.ErrorInternal
	}
	user.LastLogin = &at

	return user.Sanitized(), nil
}

// GetAccount returns the account with the given id.
func (s *AccountService) GetAccount(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repomanager.Users(s.db).GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return user.Sanitized(), nil
}

// UpdateProfile applies upd to the account. A password change is validated,
// re-hashed and revokes the account's refresh tokens.
func (s *AccountService) UpdateProfile(ctx context.Context, id string, upd ProfileUpdate) (*models.User, error) {
	var newHash string
	if upd.Password != nil {
		if err := s.ValidatePassword(*upd.Password); err != nil {
			return nil, err
		}
		h, err := s.hasher.Hash(*upd.Password)
		if err != nil {
			return nil, common.ErrorInternal
		}
		newHash = h
	}

	var updated *models.User
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)
		user, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}
		if upd.Name != nil {
			user.Name = *upd.Name
		}
		if newHash != "" {
			user.PasswordHash = newHash
		}
		if err := repo.UpdateProfile(ctx, id, user.Name, user.PasswordHash); err != nil {
			return err
		}
		if newHash != "" {
			if err := s.repomanager.RefreshTokens(tx).DeleteForUser(ctx, id); err != nil {
				return err
			}
		}
		updated = user
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("error updating profile: %w", err)
	}

	s.logger.Info(ctx, "profile updated", "account_id", id, "password_changed", newHash != "")
	return updated.Sanitized(), nil
}

// ListAccounts returns every account in creation order.
func (s *AccountService) ListAccounts(ctx context.Context) ([]*models.User, error) {
	list, err := s.repomanager.Users(s.db).List(ctx)
	if err != nil {
		return nil, fmt.Errorf("error listing users: %w", err)
	}
	for i, u := range list {
		list[i] = u.Sanitized()
	}
	return list, nil
}

// SetFlags applies upd to the account's flags. Granting superuser also
// grants staff and active; any other combination that leaves a superuser
// without staff or active is rejected. Deactivation revokes the account's
// refresh tokens.
func (s *AccountService) SetFlags(ctx context.Context, id string, upd FlagUpdate) (*models.User, error) {
	var updated *models.User
	err := dbx.WithTx(ctx, s.db, nil, func(ctx context.Context, tx dbx.DBTX) error {
		repo := s.repomanager.Users(tx)
		user, err := repo.GetByID(ctx, id)
		if err != nil {
			return err
		}

		if upd.IsActive != nil {
			user.IsActive = *upd.IsActive
		}
		if upd.IsStaff != nil {
			user.IsStaff = *upd.IsStaff
		}
		if upd.IsSuperuser != nil {
			user.IsSuperuser = *upd.IsSuperuser
			if user.IsSuperuser {
				if upd.IsStaff == nil {
					user.IsStaff = true
				}
				if upd.IsActive == nil {
					user.IsActive = true
				}
			}
		}
		if user.IsSuperuser && (!user.IsStaff || !user.IsActive) {
			return common.NewValidationError("is_superuser", "superuser must be staff and active")
		}

		if err := repo.UpdateFlags(ctx, id, user.IsActive, user.IsStaff, user.IsSuperuser); err != nil {
			return err
		}
		if !user.IsActive {
			if err := s.repomanager.RefreshTokens(tx).DeleteForUser(ctx, id); err != nil {
				return err
			}
		}
		updated = user
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) || errors.Is(err, common.ErrValidation) {
			return nil, err
		}
		return nil, fmt.Errorf("error updating flags: %w", err)
	}

	s.logger.Info(ctx, "account flags updated", "account_id", id,
		"is_active", updated.IsActive, "is_staff", updated.IsStaff, "is_superuser", updated.IsSuperuser)
	return updated.Sanitized(), nil
}

// getDummyHash returns a hash of a random secret, computed once.
func (s *AccountService) getDummyHash() string {
	s.dummyOnce.Do(func() {
		pw := common.GenerateRandByteArray(16)
		defer common.WipeByteArray(pw)
		s.dummyHash, _ = s.hasher.Hash(hex.EncodeToString(pw))
	})
	return s.dummyHash
}
