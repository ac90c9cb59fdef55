package database

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/courierdesk/gateway/internal/config"
	"github.com/jmoiron/sqlx"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	require.NoError(t, prepareGoose())

	ms, err := goose.CollectMigrations(migrationsDir, 0, goose.MaxVersion)
	require.NoError(t, err)
	require.Len(t, ms, 2)
	assert.Equal(t, int64(1), ms[0].Version)
	assert.Equal(t, int64(2), ms[1].Version)
}

func TestMigrate_WrapsError(t *testing.T) {
	orig := gooseUp
	t.Cleanup(func() { gooseUp = orig })

	var gotDir string
	gooseUp = func(ctx context.Context, db *sql.DB, dir string) error {
		gotDir = dir
		return errors.New("boom")
	}

	err := Migrate(context.Background(), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to apply migrations")
	assert.Equal(t, migrationsDir, gotDir)
}

func TestKeyspace_Key(t *testing.T) {
	tests := []struct {
		name  string
		space Keyspace
		parts []string
		want  string
	}{
		{"prefixed", "courierdesk", []string{"ratelimit", "login"}, "courierdesk:ratelimit:login"},
		{"empty prefix", "", []string{"oauth", "state", "abc"}, "oauth:state:abc"},
		{"single part", "staging", []string{"x"}, "staging:x"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.space.Key(tt.parts...))
		})
	}
}

func TestApplyPool(t *testing.T) {
	raw, _, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	db := sqlx.NewDb(raw, "postgres")

	applyPool(db, config.DatabaseConfig{MaxOpenConns: 7, MaxIdleConns: 3, ConnMaxLifetime: time.Minute})
	assert.Equal(t, 7, db.Stats().MaxOpenConnections)

	assert.Equal(t, 5*time.Second, connectTimeout(config.DatabaseConfig{}))
	assert.Equal(t, time.Second, connectTimeout(config.DatabaseConfig{ConnectTimeout: time.Second}))
}
