package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Veraticus/chargemap/internal/common"
)

var testNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

// Helper function to create test storage.
func createTestStorage(t *testing.T) *SQLiteStorage {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")

	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	require.NoError(t, store.Migrate(context.Background()))
	store.SetClock(func() time.Time { return testNow })
	return store
}

func TestNewSQLiteStorage_EmptyPath(t *testing.T) {
	_, err := NewSQLiteStorage("  ")
	require.ErrorIs(t, err, ErrEmptyString)
}

func TestNewSQLiteStorage_CreatesDirectory(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "dir", "chargemap.db")

	store, err := NewSQLiteStorage(dbPath)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	assert.Equal(t, dbPath, store.Path())
	assert.FileExists(t, dbPath)
}

func TestTranslateError_PassesThroughOtherErrors(t *testing.T) {
	err := translateError(assert.AnError)
	assert.ErrorIs(t, err, assert.AnError)
	assert.NotErrorIs(t, err, common.ErrDatabaseLocked)
}

//nolint:staticcheck // nil context is the case under test
func TestValidateContext(t *testing.T) {
	store := createTestStorage(t)

	_, err := store.ActiveRules(nil, "Acme")
	assert.ErrorIs(t, err, ErrNilContext)

	err = store.SaveCharges(nil, nil)
	assert.ErrorIs(t, err, ErrNilContext)
}
