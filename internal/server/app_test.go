package server

import (
	"bytes"
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/accountkeeper/internal/server/config"
)

func sqliteConfig(t *testing.T) *config.Config {
	t.Helper()
	c := &config.Config{}
	c.LoadDefaults()
	c.DatabaseDriver = "sqlite"
	c.DatabaseDSN = filepath.Join(t.TempDir(), "accounts.db")
	c.EndpointAddrHTTP = "127.0.0.1:0"
	c.BcryptCost = 4
	return c
}

func TestNewApp_SQLite(t *testing.T) {
	var logs bytes.Buffer
	app, err := NewApp(context.Background(), sqliteConfig(t), &logs)
	require.NoError(t, err)
	t.Cleanup(func() { _ = app.Close() })

	u, err := app.Accounts().CreatePrivilegedAccount(context.Background(), "admin@Example.com", "test123", "")
	require.NoError(t, err)
	assert.Equal(t, "admin@example.com", u.Email)
	assert.Contains(t, logs.String(), "account created")
}

func TestNewApp_Errors(t *testing.T) {
	c := sqliteConfig(t)
	c.LogFormat = "xml"
	_, err := NewApp(context.Background(), c, &bytes.Buffer{})
	require.Error(t, err)

	c = sqliteConfig(t)
	c.DatabaseDriver = "oracle"
	_, err = NewApp(context.Background(), c, &bytes.Buffer{})
	require.Error(t, err)
}

func TestRun_StopsOnCancel(t *testing.T) {
	app, err := NewApp(context.Background(), sqliteConfig(t), &bytes.Buffer{})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		app.Run(ctx)
		close(done)
	}()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("app did not stop after cancel")
	}
}
