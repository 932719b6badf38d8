package services

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/dmitrijs2005/accountkeeper/internal/common"
	"github.com/dmitrijs2005/accountkeeper/internal/logging"
	"github.com/dmitrijs2005/accountkeeper/internal/server/repositories/repomanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newSQLiteDirectory returns an AccountService and SessionService backed by
// a migrated on-disk SQLite database.
func newSQLiteDirectory(t *testing.T) (*AccountService, *SessionService) {
	t.Helper()
	ctx := context.Background()
	dsn := filepath.Join(t.TempDir(), "accounts.db")

	db, rm, err := repomanager.Open(ctx, repomanager.DriverSQLite, dsn)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	cfg := testConfig()
	accounts := NewAccountService(db, rm, cfg, logging.Nop{})
	sessions := NewSessionService(db, rm, accounts, cfg, logging.Nop{})
	return accounts, sessions
}

func TestDirectory_SQLite_EmailNormalization(t *testing.T) {
	accounts, _ := newSQLiteDirectory(t)
	ctx := context.Background()

	cases := [][2]string{
		{"TEST1@example.com", "TEST1@example.com"},
		{"Test2@Example.com", "Test2@example.com"},
		{"test3@EXAMPLE.com", "test3@example.com"},
		{"test4@example.COM", "test4@example.com"},
	}
	for _, c := range cases {
		u, err := accounts.CreateAccount(ctx, c[0], "sample123", "")
		require.NoError(t, err)
		assert.Equal(t, c[1], u.Email)
	}
}

func TestDirectory_SQLite_Lifecycle(t *testing.T) {
	accounts, sessions := newSQLiteDirectory(t)
	ctx := context.Background()

	created, err := accounts.CreateAccount(ctx, "test@example.com", "goodpass", "Test Name")
	require.NoError(t, err)

	_, err = accounts.CreateAccount(ctx, "test@example.com", "goodpass", "Again")
	require.ErrorIs(t, err, common.ErrAlreadyExists)

	_, err = accounts.CreateAccount(ctx, "short@example.com", "t123", "")
	require.ErrorIs(t, err, common.ErrValidation)
	list, err := accounts.ListAccounts(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1, "rejected accounts must not be persisted")

	_, err = accounts.Authenticate(ctx, "test@example.com", "badpasss")
	require.ErrorIs(t, err, common.ErrorUnauthorized)

	u, err := accounts.Authenticate(ctx, "test@example.com", "goodpass")
	require.NoError(t, err)
	require.NotNil(t, u.LastLogin)

	pair, err := sessions.Login(ctx, "test@example.com", "goodpass")
	require.NoError(t, err)

	me, err := sessions.Authorize(ctx, pair.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, created.ID, me.ID)

	rotated, err := sessions.RefreshToken(ctx, pair.RefreshToken)
	require.NoError(t, err)
	_, err = sessions.RefreshToken(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, common.ErrInvalidToken, "rotated token is single use")

	_, err = accounts.UpdateProfile(ctx, created.ID, ProfileUpdate{Name: ptr("New Name"), Password: ptr("newpassword123")})
	require.NoError(t, err)
	_, err = sessions.RefreshToken(ctx, rotated.RefreshToken)
	require.ErrorIs(t, err, common.ErrInvalidToken, "password change revokes refresh tokens")

	_, err = accounts.Authenticate(ctx, "test@example.com", "goodpass")
	require.ErrorIs(t, err, common.ErrorUnauthorized)
	u, err = accounts.Authenticate(ctx, "test@example.com", "newpassword123")
	require.NoError(t, err)
	assert.Equal(t, "New Name", u.Name)
}

func TestDirectory_SQLite_Superuser(t *testing.T) {
	accounts, _ := newSQLiteDirectory(t)
	ctx := context.Background()

	u, err := accounts.CreatePrivilegedAccount(ctx, "test@example.com", "test123", "")
	require.NoError(t, err)
	assert.True(t, u.IsSuperuser)
	assert.True(t, u.IsStaff)
	assert.True(t, u.IsActive)

	_, err = accounts.SetFlags(ctx, u.ID, FlagUpdate{IsActive: ptr(false)})
	require.ErrorIs(t, err, common.ErrValidation)

	u, err = accounts.SetFlags(ctx, u.ID, FlagUpdate{IsSuperuser: ptr(false), IsStaff: ptr(false)})
	require.NoError(t, err)
	assert.False(t, u.IsSuperuser)
	assert.False(t, u.IsStaff)
	assert.True(t, u.IsActive)
}

func TestDirectory_SQLite_ConcurrentCreate(t *testing.T) {
	accounts, _ := newSQLiteDirectory(t)
	ctx := context.Background()

	const n = 8
	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		ok, dups int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := accounts.CreateAccount(ctx, "race@Example.com", "test123", "")
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				ok++
			case assert.ErrorIs(t, err, common.ErrAlreadyExists):
				dups++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, n-1, dups)
}
