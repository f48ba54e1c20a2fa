package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNew(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?cache=shared&mode=rwc"

	database, err := New(Config{DSN: dsn, MaxOpenConns: 5, MaxIdleConns: 2})
	require.NoError(t, err)
	defer database.Close()

	// schema applied, reports table exists
	var count int
	err = database.DB().Get(&count, "SELECT COUNT(*) FROM reports")
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestInitSchema_Idempotent(t *testing.T) {
	dsn := "file:" + filepath.Join(t.TempDir(), "test.db") + "?cache=shared&mode=rwc"

	database, err := New(Config{DSN: dsn})
	require.NoError(t, err)
	defer database.Close()

	// running the schema again must be harmless
	require.NoError(t, database.initSchema(context.Background()))
}
