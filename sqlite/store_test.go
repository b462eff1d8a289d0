package sqlite_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/influxdata/schemaseq"
	"github.com/influxdata/schemaseq/migration"
	"github.com/influxdata/schemaseq/sqlite"
	schemaseqtesting "github.com/influxdata/schemaseq/testing"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"
)

func initStore(t *testing.T) (migration.Store, func()) {
	return sqlite.NewStore(zaptest.NewLogger(t), t.TempDir()), func() {}
}

func TestStore(t *testing.T) {
	schemaseqtesting.Store(initStore, t)
}

func TestStore_VersionDoesNotCreateFile(t *testing.T) {
	dir := t.TempDir()
	s := sqlite.NewStore(zaptest.NewLogger(t), dir)

	v, err := s.Version(context.Background(), "app")
	require.NoError(t, err)
	require.Equal(t, schemaseq.NoVersion, v)

	_, err = os.Stat(filepath.Join(dir, "app.sqlite"))
	require.True(t, os.IsNotExist(err))
}

func TestStore_VersionZero(t *testing.T) {
	ctx := context.Background()
	s := sqlite.NewStore(zaptest.NewLogger(t), t.TempDir())

	h, err := s.Open(ctx, migration.OpenConfig{Name: "app", Version: 0})
	require.NoError(t, err)
	require.NoError(t, h.Close())

	v, err := s.Version(ctx, "app")
	require.NoError(t, err)
	require.Equal(t, 0, v)
}

func TestStore_Values(t *testing.T) {
	ctx := context.Background()
	s := sqlite.NewStore(zaptest.NewLogger(t), t.TempDir())

	schema := []schemaseq.Schema{{
		Name: "Event",
		Properties: map[string]string{
			"count":   "int",
			"done":    "bool",
			"ratio":   "double",
			"tags":    "string[]",
			"payload": "data?",
			"at":      "date?",
		},
	}}

	h, err := s.Open(ctx, migration.OpenConfig{Name: "app", Version: 1, Schema: schema})
	require.NoError(t, err)
	defer h.Close()

	at := time.Date(2024, 3, 1, 12, 30, 0, 0, time.UTC)
	require.NoError(t, h.Put("Event", "e1", schemaseq.Object{
		"count":   42,
		"done":    true,
		"ratio":   0.5,
		"tags":    []string{"a", "b"},
		"payload": []byte("raw"),
		"at":      at,
	}))
	require.NoError(t, h.Put("Event", "e2", schemaseq.Object{
		"count": 1,
		"done":  false,
		"ratio": 1.5,
		"tags":  []string{},
	}))

	obj, err := h.Get("Event", "e1")
	require.NoError(t, err)
	require.Equal(t, int64(42), obj["count"])
	require.Equal(t, true, obj["done"])
	require.Equal(t, 0.5, obj["ratio"])
	require.Equal(t, []interface{}{"a", "b"}, obj["tags"])
	require.Equal(t, []byte("raw"), obj["payload"])
	require.Equal(t, at, obj["at"])

	obj, err = h.Get("Event", "e2")
	require.NoError(t, err)
	require.Equal(t, false, obj["done"])
	require.NotContains(t, obj, "payload")
	require.NotContains(t, obj, "at")
}

func TestStore_LogsUnderRun(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := zap.New(core)
	s := sqlite.NewStore(log, t.TempDir())

	user := schemaseq.Schema{Name: "User", Properties: map[string]string{"id": "int"}}
	migrations := []schemaseq.Migration{
		{Schemas: []schemaseq.Schema{user}},
		{Schemas: []schemaseq.Schema{user}, Migrate: func(prev, next schemaseq.Handle) error { return nil }},
	}
	for i := 1; i <= len(migrations); i++ {
		seq := migration.NewSequencer(log, s, migration.Config{
			DatabaseName: "app",
			Migrations:   migrations[:i],
		})
		_, err := seq.Run(context.Background())
		require.NoError(t, err)
	}

	for _, msg := range []string{"Resources opened", "Upgrading sqlite database", "Schema applied"} {
		entries := logs.FilterMessage(msg).AllUntimed()
		require.NotEmpty(t, entries, msg)
		for _, e := range entries {
			keys := map[string]int{}
			for _, f := range e.Context {
				keys[f.Key]++
			}
			require.Equal(t, 1, keys["database"], "%s: %v", msg, e.Context)
			require.Equal(t, 1, keys["run_id"], "%s: %v", msg, e.Context)
		}
	}
}
