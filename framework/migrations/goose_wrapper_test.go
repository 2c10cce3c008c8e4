package migrations

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFiles(t *testing.T) {
	files, err := Files()
	require.NoError(t, err)
	require.NotEmpty(t, files)
	assert.Equal(t, "sql/00001_create_event_store.sql", files[0])
}

func TestEventStoreMigration(t *testing.T) {
	data, err := fs.ReadFile(embedded, "sql/00001_create_event_store.sql")
	require.NoError(t, err)

	content := string(data)
	assert.Contains(t, content, "-- +goose Up")
	assert.Contains(t, content, "-- +goose Down")
	assert.Contains(t, content, "UNIQUE (aggregate_id, version)")
	assert.Contains(t, content, "pg_advisory_xact_lock")
	assert.True(t, strings.Contains(content, "position       BIGSERIAL PRIMARY KEY"))
}

func TestCollectMigrations(t *testing.T) {
	migrations, err := goose.CollectMigrations(migrationsDir, 0, goose.MaxVersion)
	require.NoError(t, err)
	require.Len(t, migrations, 1)
	assert.Equal(t, int64(1), migrations[0].Version)
}
