package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, BackendSQLite, cfg.Backend)
	assert.Equal(t, "chat.db", cfg.SQLitePath)
	assert.Equal(t, 50, cfg.HistoryLimit)
	assert.Equal(t, int64(10485760), cfg.MaxPayloadBytes)
	assert.False(t, cfg.GuestMode)
	assert.Equal(t, ":3000", cfg.Addr())
}

func TestLoadPostgresBackend(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "postgres://chat@db.example.com:5432/chat?sslmode=require")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, BackendPostgres, cfg.Backend)
}

func TestLoadPostgresRequiresURL(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "postgres")
	t.Setenv("DATABASE_URL", "")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsUnknownBackend(t *testing.T) {
	t.Setenv("STORAGE_BACKEND", "mongodb")

	_, err := Load()
	assert.Error(t, err)
}

func TestLoadRejectsNonPositiveLimits(t *testing.T) {
	t.Setenv("HISTORY_LIMIT", "0")

	_, err := Load()
	assert.Error(t, err)
}
