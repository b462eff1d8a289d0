package inmem_test

import (
	"context"
	"testing"

	"github.com/influxdata/schemaseq"
	"github.com/influxdata/schemaseq/inmem"
	kerrors "github.com/influxdata/schemaseq/kit/platform/errors"
	"github.com/influxdata/schemaseq/migration"
	schemaseqtesting "github.com/influxdata/schemaseq/testing"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func newTestStore(t *testing.T) (migration.Store, func()) {
	return inmem.NewStore(zaptest.NewLogger(t)), func() {}
}

func TestStore(t *testing.T) {
	schemaseqtesting.Store(newTestStore, t)
}

func TestStore_DatabasesAreIndependent(t *testing.T) {
	store := inmem.NewStore(zaptest.NewLogger(t))
	ctx := context.Background()

	h, err := store.Open(ctx, migration.OpenConfig{Name: "a", Version: 3})
	require.NoError(t, err)
	require.NoError(t, h.Close())

	v, err := store.Version(ctx, "a")
	require.NoError(t, err)
	require.Equal(t, 3, v)

	v, err = store.Version(ctx, "b")
	require.NoError(t, err)
	require.Equal(t, schemaseq.NoVersion, v)
}

func TestNewReadOnlyHandle(t *testing.T) {
	user := schemaseq.Schema{Name: "User", Properties: map[string]string{"name": "string"}}
	source := map[string]map[string]schemaseq.Object{
		"User": {"u1": {"name": "Ada"}},
	}

	h := inmem.NewReadOnlyHandle(4, []schemaseq.Schema{user}, source)
	require.Equal(t, 4, h.Version())

	// the handle holds a copy of the records
	source["User"]["u1"]["name"] = "Grace"

	obj, err := h.Get("User", "u1")
	require.NoError(t, err)
	require.Equal(t, "Ada", obj["name"])

	// returned objects are copies too
	obj["name"] = "Edsger"
	obj, err = h.Get("User", "u1")
	require.NoError(t, err)
	require.Equal(t, "Ada", obj["name"])

	err = h.Put("User", "u2", schemaseq.Object{"name": "Barbara"})
	require.Equal(t, kerrors.EForbidden, kerrors.ErrorCode(err))
}
