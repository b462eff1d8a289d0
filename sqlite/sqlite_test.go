package sqlite

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func NewTestStore(t *testing.T) *SqlStore {
	t.Helper()
	return NewTestStoreAt(t, InmemPath)
}

func NewTestStoreAt(t *testing.T, path string) *SqlStore {
	t.Helper()

	store, err := NewSqlStore(path, zaptest.NewLogger(t))
	require.NoError(t, err, "unable to open testing database")
	t.Cleanup(func() {
		require.NoError(t, store.Close())
	})
	return store
}

func TestNewSqlStore(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "app"+Extension)
	store, err := NewSqlStore(path, zaptest.NewLogger(t))
	require.NoError(t, err)

	var fk int
	require.NoError(t, store.DB.Get(&fk, `PRAGMA foreign_keys;`))
	require.Equal(t, 1, fk)
	require.Equal(t, 1, store.DB.Stats().MaxOpenConnections)

	require.NoError(t, setUserVersion(store.DB, 3))
	require.NoError(t, store.Close())

	_, err = os.Stat(path)
	require.NoError(t, err)

	store = NewTestStoreAt(t, path)
	v, err := userVersion(store.DB)
	require.NoError(t, err)
	require.Equal(t, 3, v)
}

func TestUserVersion(t *testing.T) {
	t.Parallel()

	store := NewTestStore(t)

	v, err := userVersion(store.DB)
	require.NoError(t, err)
	require.Equal(t, 0, v)

	require.NoError(t, setUserVersion(store.DB, 12))

	v, err = userVersion(store.DB)
	require.NoError(t, err)
	require.Equal(t, 12, v)
}

func TestQuoteIdent(t *testing.T) {
	require.Equal(t, `"User"`, quoteIdent("User"))
	require.Equal(t, `"a""b"`, quoteIdent(`a"b`))
}
