package storage

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func openTestSQLite(t *testing.T) ThresholdStore {
	t.Helper()
	s, err := OpenSQLite(filepath.Join(t.TempDir(), "alerts.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func TestSQLiteStore(t *testing.T) {
	runThresholdStoreSuite(t, openTestSQLite)
}

func TestOpenSQLiteIsIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "alerts.db")

	first, err := OpenSQLite(path)
	require.NoError(t, err)
	first.Close()

	second, err := OpenSQLite(path)
	require.NoError(t, err)
	second.Close()
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := OpenSQLite("")
	require.Error(t, err)
}
