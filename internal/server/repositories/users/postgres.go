package users

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/dbx"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
)

// PostgresRepository implements Repository over dbx.DBTX with pgx.
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (id, email, name, password_hash, is_active, is_staff, is_superuser, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	if _, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.Name, user.PasswordHash,
		user.IsActive, user.IsStaff, user.IsSuperuser, user.CreatedAt); err != nil {
		return nil, createErr(err)
	}
	return user, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = $1`
	return scanOne(r.db.QueryRowContext(ctx, query, id), scanUser)
}

func (r *PostgresRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	return scanOne(r.db.QueryRowContext(ctx, query, email), scanUser)
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return scanAll(rows, scanUser)
}

func (r *PostgresRepository) UpdateProfile(ctx context.Context, id, name, passwordHash string) error {
	query := `UPDATE users SET name = $1, password_hash = $2 WHERE id = $3`
	return affectedOne(r.db.ExecContext(ctx, query, name, passwordHash, id))
}

func (r *PostgresRepository) UpdateFlags(ctx context.Context, id string, isActive, isStaff, isSuperuser bool) error {
	query := `UPDATE users SET is_active = $1, is_staff = $2, is_superuser = $3 WHERE id = $4`
	return affectedOne(r.db.ExecContext(ctx, query, isActive, isStaff, isSuperuser, id))
}

func (r *PostgresRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE users SET last_login = $1 WHERE id = $2`
	return affectedOne(r.db.ExecContext(ctx, query, at, id))
}
