package testing

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/influxdata/schemaseq"
	"github.com/influxdata/schemaseq/hooks"
	kerrors "github.com/influxdata/schemaseq/kit/platform/errors"
	"github.com/influxdata/schemaseq/migration"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// StoreInitFunc returns a fresh, empty store and a function that tears it down.
type StoreInitFunc func(t *testing.T) (migration.Store, func())

const testDatabase = "testDatabase"

var (
	userV1 = schemaseq.Schema{
		Name:       "User",
		Properties: map[string]string{"id": "int", "name": "string"},
	}
	userV2 = schemaseq.Schema{
		Name:       "User",
		Properties: map[string]string{"id": "int", "name": "string", "age": "int?"},
	}
	post = schemaseq.Schema{
		Name:       "Post",
		Properties: map[string]string{"id": "int", "title": "string"},
	}
)

// Store runs the tests every migration.Store implementation must pass.
func Store(init StoreInitFunc, t *testing.T) {
	tests := []struct {
		name string
		fn   func(init StoreInitFunc, t *testing.T)
	}{
		{name: "VersionOfMissingDatabase", fn: VersionOfMissingDatabase},
		{name: "CreateDoesNotUpgrade", fn: CreateDoesNotUpgrade},
		{name: "UpgradeCallsOnUpgradeOnce", fn: UpgradeCallsOnUpgradeOnce},
		{name: "ReopenAtSameVersion", fn: ReopenAtSameVersion},
		{name: "RejectsOlderTarget", fn: RejectsOlderTarget},
		{name: "PreviousHandleIsReadOnlySnapshot", fn: PreviousHandleIsReadOnlySnapshot},
		{name: "FailedUpgradeIsNotApplied", fn: FailedUpgradeIsNotApplied},
		{name: "RecordOperations", fn: RecordOperations},
		{name: "ValueTypes", fn: ValueTypes},
		{name: "SequencerEndToEnd", fn: SequencerEndToEnd},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(init, t)
		})
	}
}

func mustOpen(t *testing.T, store migration.Store, cfg migration.OpenConfig) schemaseq.Handle {
	t.Helper()

	h, err := store.Open(context.Background(), cfg)
	require.NoError(t, err)
	return h
}

func requireCode(t *testing.T, code string, err error) {
	t.Helper()

	require.Error(t, err)
	require.Equal(t, code, kerrors.ErrorCode(err), "unexpected error: %v", err)
}

// VersionOfMissingDatabase checks the sentinel for a database never opened.
func VersionOfMissingDatabase(init StoreInitFunc, t *testing.T) {
	store, done := init(t)
	defer done()

	v, err := store.Version(context.Background(), testDatabase)
	require.NoError(t, err)
	require.Equal(t, schemaseq.NoVersion, v)
}

// CreateDoesNotUpgrade checks that creating a database persists its version
// without calling the upgrade hook.
func CreateDoesNotUpgrade(init StoreInitFunc, t *testing.T) {
	store, done := init(t)
	defer done()

	calls := 0
	h := mustOpen(t, store, migration.OpenConfig{
		Name:    testDatabase,
		Schema:  []schemaseq.Schema{userV1},
		Version: 1,
		OnUpgrade: func(prev, next schemaseq.Handle) error {
			calls++
			return nil
		},
	})
	require.Equal(t, 1, h.Version())
	require.NoError(t, h.Close())
	require.Equal(t, 0, calls)

	v, err := store.Version(context.Background(), testDatabase)
	require.NoError(t, err)
	require.Equal(t, 1, v)
}

// UpgradeCallsOnUpgradeOnce checks the hook runs exactly once per upgrade
// with handles at the old and new versions.
func UpgradeCallsOnUpgradeOnce(init StoreInitFunc, t *testing.T) {
	store, done := init(t)
	defer done()

	require.NoError(t, mustOpen(t, store, migration.OpenConfig{
		Name:    testDatabase,
		Schema:  []schemaseq.Schema{userV1},
		Version: 1,
	}).Close())

	var versions [][2]int
	h := mustOpen(t, store, migration.OpenConfig{
		Name:    testDatabase,
		Schema:  []schemaseq.Schema{userV2, post},
		Version: 3,
		OnUpgrade: func(prev, next schemaseq.Handle) error {
			versions = append(versions, [2]int{prev.Version(), next.Version()})
			require.Len(t, prev.Schema(), 1)
			require.Len(t, next.Schema(), 2)
			return nil
		},
	})
	require.NoError(t, h.Close())
	require.Equal(t, [][2]int{{1, 3}}, versions)

	v, err := store.Version(context.Background(), testDatabase)
	require.NoError(t, err)
	require.Equal(t, 3, v)
}

// ReopenAtSameVersion checks that reopening at the persisted version keeps
// the data and does not call the upgrade hook.
func ReopenAtSameVersion(init StoreInitFunc, t *testing.T) {
	store, done := init(t)
	defer done()

	cfg := migration.OpenConfig{
		Name:    testDatabase,
		Schema:  []schemaseq.Schema{userV1},
		Version: 1,
		OnUpgrade: func(prev, next schemaseq.Handle) error {
			t.Fatal("unexpected upgrade")
			return nil
		},
	}

	h := mustOpen(t, store, cfg)
	require.NoError(t, h.Put("User", "u1", schemaseq.Object{"id": 1, "name": "Ada"}))
	require.NoError(t, h.Close())

	h = mustOpen(t, store, cfg)
	defer h.Close()

	obj, err := h.Get("User", "u1")
	require.NoError(t, err)
	require.Equal(t, "Ada", obj["name"])
}

// RejectsOlderTarget checks that a database is never opened below its
// persisted version.
func RejectsOlderTarget(init StoreInitFunc, t *testing.T) {
	store, done := init(t)
	defer done()

	require.NoError(t, mustOpen(t, store, migration.OpenConfig{
		Name:    testDatabase,
		Schema:  []schemaseq.Schema{userV1},
		Version: 2,
	}).Close())

	_, err := store.Open(context.Background(), migration.OpenConfig{
		Name:    testDatabase,
		Schema:  []schemaseq.Schema{userV1},
		Version: 1,
	})
	requireCode(t, kerrors.EConflict, err)

	v, err := store.Version(context.Background(), testDatabase)
	require.NoError(t, err)
	require.Equal(t, 2, v)
}

// PreviousHandleIsReadOnlySnapshot checks that writes through next are not
// visible through prev, and that prev rejects writes.
func PreviousHandleIsReadOnlySnapshot(init StoreInitFunc, t *testing.T) {
	store, done := init(t)
	defer done()

	h := mustOpen(t, store, migration.OpenConfig{
		Name:    testDatabase,
		Schema:  []schemaseq.Schema{userV1},
		Version: 1,
	})
	require.NoError(t, h.Put("User", "u1", schemaseq.Object{"id": 1, "name": "Ada"}))
	require.NoError(t, h.Close())

	h = mustOpen(t, store, migration.OpenConfig{
		Name:    testDatabase,
		Schema:  []schemaseq.Schema{userV2},
		Version: 2,
		OnUpgrade: func(prev, next schemaseq.Handle) error {
			requireCode(t, kerrors.EForbidden, prev.Put("User", "u2", schemaseq.Object{"id": 2, "name": "Grace"}))
			requireCode(t, kerrors.EForbidden, prev.Delete("User", "u1"))

			if err := next.Put("User", "u1", schemaseq.Object{"id": 1, "name": "Ada Lovelace", "age": 36}); err != nil {
				return err
			}

			obj, err := prev.Get("User", "u1")
			require.NoError(t, err)
			require.Equal(t, "Ada", obj["name"])
			_, hasAge := obj["age"]
			require.False(t, hasAge)
			return nil
		},
	})
	defer h.Close()

	obj, err := h.Get("User", "u1")
	require.NoError(t, err)
	require.Equal(t, "Ada Lovelace", obj["name"])
	require.Equal(t, int64(36), obj["age"])
}

// FailedUpgradeIsNotApplied checks that an upgrade hook error leaves the
// database at its previous version and data.
func FailedUpgradeIsNotApplied(init StoreInitFunc, t *testing.T) {
	store, done := init(t)
	defer done()

	h := mustOpen(t, store, migration.OpenConfig{
		Name:    testDatabase,
		Schema:  []schemaseq.Schema{userV1},
		Version: 1,
	})
	require.NoError(t, h.Put("User", "u1", schemaseq.Object{"id": 1, "name": "Ada"}))
	require.NoError(t, h.Close())

	wantErr := errors.New("transform failed")
	_, err := store.Open(context.Background(), migration.OpenConfig{
		Name:    testDatabase,
		Schema:  []schemaseq.Schema{userV2},
		Version: 2,
		OnUpgrade: func(prev, next schemaseq.Handle) error {
			if err := next.Delete("User", "u1"); err != nil {
				return err
			}
			return wantErr
		},
	})
	require.ErrorIs(t, err, wantErr)

	v, err := store.Version(context.Background(), testDatabase)
	require.NoError(t, err)
	require.Equal(t, 1, v)

	h = mustOpen(t, store, migration.OpenConfig{
		Name:    testDatabase,
		Schema:  []schemaseq.Schema{userV1},
		Version: 1,
	})
	defer h.Close()

	obj, err := h.Get("User", "u1")
	require.NoError(t, err)
	require.Equal(t, "Ada", obj["name"])
}

// RecordOperations checks Get, Put, Delete and ForEach on an open handle.
func RecordOperations(init StoreInitFunc, t *testing.T) {
	store, done := init(t)
	defer done()

	h := mustOpen(t, store, migration.OpenConfig{
		Name:    testDatabase,
		Schema:  []schemaseq.Schema{userV1, post},
		Version: 1,
	})

	require.NoError(t, h.Put("User", "b", schemaseq.Object{"id": 2, "name": "Grace"}))
	require.NoError(t, h.Put("User", "a", schemaseq.Object{"id": 1, "name": "Ada"}))
	require.NoError(t, h.Put("User", "c", schemaseq.Object{"id": 3, "name": "Edsger"}))

	requireCode(t, kerrors.EInvalid, h.Put("User", "d", schemaseq.Object{"id": 4, "name": "Barbara", "email": "b@example.com"}))
	requireCode(t, kerrors.EInvalid, h.Put("User", "d", schemaseq.Object{"id": 4}))
	requireCode(t, kerrors.EInvalid, h.Put("Comment", "x", schemaseq.Object{}))

	_, err := h.Get("User", "missing")
	requireCode(t, kerrors.ENotFound, err)

	require.NoError(t, h.Delete("User", "b"))
	require.NoError(t, h.Delete("User", "missing"))

	var keys []string
	var names []interface{}
	require.NoError(t, h.ForEach("User", func(key string, obj schemaseq.Object) error {
		keys = append(keys, key)
		names = append(names, obj["name"])
		return nil
	}))
	require.Equal(t, []string{"a", "c"}, keys)
	require.Equal(t, []interface{}{"Ada", "Edsger"}, names)

	stop := errors.New("stop")
	count := 0
	err = h.ForEach("User", func(key string, obj schemaseq.Object) error {
		count++
		return stop
	})
	require.ErrorIs(t, err, stop)
	require.Equal(t, 1, count)

	require.NoError(t, h.Close())
	requireCode(t, kerrors.EConflict, h.Put("User", "e", schemaseq.Object{"id": 5, "name": "Alan"}))
}

// ValueTypes checks that every engine hands back values as the Go type of
// their descriptor, both from an open handle and from the pre-upgrade
// handle.
func ValueTypes(init StoreInitFunc, t *testing.T) {
	store, done := init(t)
	defer done()

	event := schemaseq.Schema{
		Name: "Event",
		Properties: map[string]string{
			"count":   "int",
			"ratio":   "double",
			"score":   "float?",
			"done":    "bool",
			"label":   "string",
			"at":      "date",
			"payload": "data",
			"tags":    "string[]",
			"samples": "int[]?",
			"seen":    "date[]",
		},
	}
	at := time.Date(2024, 3, 1, 12, 30, 0, 500, time.FixedZone("CET", 60*60))

	h := mustOpen(t, store, migration.OpenConfig{
		Name:    testDatabase,
		Schema:  []schemaseq.Schema{event},
		Version: 1,
	})
	require.NoError(t, h.Put("Event", "e1", schemaseq.Object{
		"count":   7,
		"ratio":   float32(0.5),
		"score":   2,
		"done":    true,
		"label":   "deploy",
		"at":      at,
		"payload": []byte("raw"),
		"tags":    []string{"a", "b"},
		"samples": []int{1, 2},
		"seen":    []time.Time{at},
	}))
	requireCode(t, kerrors.EInvalid, h.Put("Event", "e2", schemaseq.Object{
		"count":   1.5,
		"ratio":   0.5,
		"done":    true,
		"label":   "deploy",
		"at":      at,
		"payload": []byte("raw"),
		"seen":    []time.Time{},
	}))

	want := schemaseq.Object{
		"count":   int64(7),
		"ratio":   float64(0.5),
		"score":   float64(2),
		"done":    true,
		"label":   "deploy",
		"at":      at.UTC(),
		"payload": []byte("raw"),
		"tags":    []interface{}{"a", "b"},
		"samples": []interface{}{int64(1), int64(2)},
		"seen":    []interface{}{at.UTC()},
	}

	obj, err := h.Get("Event", "e1")
	require.NoError(t, err)
	require.Equal(t, want, obj)
	require.NoError(t, h.ForEach("Event", func(key string, obj schemaseq.Object) error {
		require.Equal(t, want, obj)
		return nil
	}))
	require.NoError(t, h.Close())

	h = mustOpen(t, store, migration.OpenConfig{
		Name:    testDatabase,
		Schema:  []schemaseq.Schema{event},
		Version: 2,
		OnUpgrade: func(prev, next schemaseq.Handle) error {
			obj, err := prev.Get("Event", "e1")
			require.NoError(t, err)
			require.Equal(t, want, obj)

			obj, err = next.Get("Event", "e1")
			require.NoError(t, err)
			require.Equal(t, want, obj)
			return nil
		},
	})
	require.NoError(t, h.Close())
}

// SequencerEndToEnd drives the store through a Sequencer across two
// releases of an application's migrations.
func SequencerEndToEnd(init StoreInitFunc, t *testing.T) {
	store, done := init(t)
	defer done()

	ctx := context.Background()
	initial := schemaseq.Migration{
		Description: "Initial migration",
		Schemas:     []schemaseq.Schema{userV1},
	}

	seq := migration.NewSequencer(zaptest.NewLogger(t), store, migration.Config{
		DatabaseName: testDatabase,
		Migrations:   []schemaseq.Migration{initial},
	})
	result, err := seq.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.SchemaVersion)
	require.Equal(t, []schemaseq.Schema{userV1}, result.Schema)

	h := mustOpen(t, store, migration.OpenConfig{Name: testDatabase, Schema: result.Schema, Version: result.SchemaVersion})
	require.NoError(t, h.Put("User", "u1", schemaseq.Object{"id": 1, "name": "Ada"}))
	require.NoError(t, h.Close())

	upgrades := 0
	migrations := []schemaseq.Migration{initial, {
		Description: "Add age and posts",
		Schemas:     []schemaseq.Schema{userV2, post},
		Migrate: func(prev, next schemaseq.Handle) error {
			upgrades++
			return prev.ForEach("User", func(key string, obj schemaseq.Object) error {
				obj["age"] = 36
				if err := next.Put("User", key, obj); err != nil {
					return err
				}
				return next.Put("Post", key+"-hello", schemaseq.Object{"id": 1, "title": "hello"})
			})
		},
	}}

	// a disabled gate leaves the database alone
	disabled := migration.NewSequencer(zaptest.NewLogger(t), store, migration.Config{
		DatabaseName: testDatabase,
		Migrations:   migrations,
		Hooks: migration.Hooks{
			ShouldRunMigrations: []hooks.ShouldRunMigrationsHook{hooks.Enabled(false)},
		},
	})
	result, err = disabled.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, result.SchemaVersion)
	require.Equal(t, 0, upgrades)

	seq = migration.NewSequencer(zaptest.NewLogger(t), store, migration.Config{
		DatabaseName: testDatabase,
		Migrations:   migrations,
	})
	result, err = seq.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, result.SchemaVersion)
	require.Equal(t, []schemaseq.Schema{userV2, post}, result.Schema)
	require.Equal(t, 1, upgrades)

	// a second run is a no-op
	result, err = seq.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, result.SchemaVersion)
	require.Equal(t, 1, upgrades)

	h = mustOpen(t, store, migration.OpenConfig{Name: testDatabase, Schema: result.Schema, Version: result.SchemaVersion})
	defer h.Close()

	user, err := h.Get("User", "u1")
	require.NoError(t, err)
	require.Equal(t, "Ada", user["name"])
	require.Equal(t, int64(36), user["age"])

	p, err := h.Get("Post", "u1-hello")
	require.NoError(t, err)
	require.Equal(t, "hello", p["title"])
}
