package users

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/accountkeeper/internal/dbx"
	"github.com/dmitrijs2005/accountkeeper/internal/server/models"
)

// SQLiteRepository implements Repository over dbx.DBTX with
// modernc.org/sqlite. Timestamps are stored as UTC unix milliseconds.
type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func toMillis(t time.Time) int64 { return t.UTC().UnixMilli() }

func fromMillis(v int64) time.Time { return time.UnixMilli(v).UTC() }

func scanSQLiteUser(row rowScanner) (*models.User, error) {
	u := &models.User{}
	var (
		lastLogin sql.NullInt64
		createdAt int64
	)
	if err := row.Scan(&u.ID, &u.Email, &u.Name, &u.PasswordHash,
		&u.IsActive, &u.IsStaff, &u.IsSuperuser, &lastLogin, &createdAt); err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := fromMillis(lastLogin.Int64)
		u.LastLogin = &t
	}
	u.CreatedAt = fromMillis(createdAt)
	return u, nil
}

func (r *SQLiteRepository) Create(ctx context.Context, user *models.User) (*models.User, error) {
	query := `
		INSERT INTO users (id, email, name, password_hash, is_active, is_staff, is_superuser, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := r.db.ExecContext(ctx, query,
		user.ID, user.Email, user.Name, user.PasswordHash,
		user.IsActive, user.IsStaff, user.IsSuperuser, toMillis(user.CreatedAt)); err != nil {
		return nil, createErr(err)
	}
	return user, nil
}

func (r *SQLiteRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE id = ?`
	return scanOne(r.db.QueryRowContext(ctx, query, id), scanSQLiteUser)
}

func (r *SQLiteRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE email = ?`
	return scanOne(r.db.QueryRowContext(ctx, query, email), scanSQLiteUser)
}

func (r *SQLiteRepository) List(ctx context.Context) ([]*models.User, error) {
	query := `SELECT ` + userColumns + ` FROM users ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	return scanAll(rows, scanSQLiteUser)
}

func (r *SQLiteRepository) UpdateProfile(ctx context.Context, id, name, passwordHash string) error {
	query := `UPDATE users SET name = ?, password_hash = ? WHERE id = ?`
	return affectedOne(r.db.ExecContext(ctx, query, name, passwordHash, id))
}

func (r *SQLiteRepository) UpdateFlags(ctx context.Context, id string, isActive, isStaff, isSuperuser bool) error {
	query := `UPDATE users SET is_active = ?, is_staff = ?, is_superuser = ? WHERE id = ?`
	return affectedOne(r.db.ExecContext(ctx, query, isActive, isStaff, isSuperuser, id))
}

func (r *SQLiteRepository) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	query := `UPDATE users SET last_login = ? WHERE id = ?`
	return affectedOne(r.db.ExecContext(ctx, query, toMillis(at), id))
}
