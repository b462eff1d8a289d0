package sqlite

import (
	"context"
	"os"
	"path/filepath"

	"github.com/influxdata/schemaseq"
	"github.com/influxdata/schemaseq/inmem"
	"github.com/influxdata/schemaseq/kit/platform/errors"
	"github.com/influxdata/schemaseq/kit/tracing"
	"github.com/influxdata/schemaseq/logger"
	"github.com/influxdata/schemaseq/migration"
	"github.com/jmoiron/sqlx"
	"github.com/opentracing/opentracing-go"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

var _ migration.Store = (*Store)(nil)

// Store is a migration.Store keeping one SQLite file per database in a
// directory. Record types are tables, properties are columns and the schema
// version is the user_version header field.
type Store struct {
	dir string
	log *zap.Logger
}

// NewStore returns a Store keeping database files in dir.
func NewStore(log *zap.Logger, dir string) *Store {
	return &Store{
		dir: dir,
		log: log,
	}
}

// Path returns the file path of the named database.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+Extension)
}

// Version returns the persisted schema version of the named database, or
// schemaseq.NoVersion if no file or no schema exists. A missing file is not
// created.
func (s *Store) Version(ctx context.Context, name string) (int, error) {
	span, _ := tracing.StartSpanFromContext(ctx, opentracing.Tag{Key: "database", Value: name})
	defer span.Finish()

	path := s.Path(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return schemaseq.NoVersion, nil
	} else if err != nil {
		return 0, err
	}

	log := logger.FromContextOr(ctx, s.log, zap.String("database", name))
	store, err := NewSqlStore(path, log)
	if err != nil {
		return 0, errors.Wrap(err, errors.EInternal, "sqlite/Version")
	}
	defer store.Close()

	version, err := persistedVersion(store.DB)
	if err != nil {
		return 0, errors.Wrap(err, errors.EInternal, "sqlite/Version")
	}
	return version, nil
}

// Open creates or opens the named database at cfg.Version.
//
// The pre-upgrade snapshot, the table changes, cfg.OnUpgrade and the new
// user_version all happen in one transaction.
func (s *Store) Open(ctx context.Context, cfg migration.OpenConfig) (_ schemaseq.Handle, err error) {
	span, ctx := tracing.StartSpanFromContext(ctx, opentracing.Tag{Key: "database", Value: cfg.Name})
	defer span.Finish()

	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return nil, &errors.Error{
			Code: errors.EInternal,
			Op:   "sqlite/Open",
			Msg:  "unable to create directory " + s.dir,
			Err:  err,
		}
	}

	log := logger.FromContextOr(ctx, s.log, zap.String("database", cfg.Name))
	store, err := NewSqlStore(s.Path(cfg.Name), log)
	if err != nil {
		return nil, errors.Wrap(err, errors.EInternal, "sqlite/Open")
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, store.Close())
		}
	}()

	if err := migrate(ctx, log, store, cfg); err != nil {
		return nil, err
	}

	return &Handle{
		store:   store,
		ext:     store.DB,
		version: cfg.Version,
		schema:  cfg.Schema,
	}, nil
}

func migrate(ctx context.Context, log *zap.Logger, store *SqlStore, cfg migration.OpenConfig) (err error) {
	store.Mu.Lock()
	defer store.Mu.Unlock()

	tx, err := store.DB.BeginTxx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, errors.EInternal, "sqlite/Open")
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, tx.Rollback())
		}
	}()

	persisted, err := persistedVersion(tx)
	if err != nil {
		return errors.Wrap(err, errors.EInternal, "sqlite/Open")
	}
	if persisted > cfg.Version {
		return schemaseq.VersionAheadError("sqlite/Open", persisted, cfg.Version)
	}

	var prev schemaseq.Handle
	if persisted != schemaseq.NoVersion && persisted < cfg.Version && cfg.OnUpgrade != nil {
		if prev, err = snapshot(tx, persisted); err != nil {
			return errors.Wrap(err, errors.EInternal, "sqlite/Open")
		}
	}

	if err := NewMigrator(log).Up(ctx, tx, cfg.Schema); err != nil {
		return errors.Wrap(err, errors.EInternal, "sqlite/Open")
	}

	if prev != nil {
		log.Debug("Upgrading sqlite database",
			zap.Int("previous_version", persisted),
			zap.Int("schema_version", cfg.Version),
		)

		next := &Handle{ext: tx, version: cfg.Version, schema: cfg.Schema}
		defer next.Close()
		if err := cfg.OnUpgrade(prev, next); err != nil {
			return err
		}
	}

	if err := setUserVersion(tx, cfg.Version); err != nil {
		return errors.Wrap(err, errors.EInternal, "sqlite/Open")
	}

	if err := tx.Commit(); err != nil {
		return errors.Wrap(err, errors.EInternal, "sqlite/Open")
	}

	log.Debug("Schema applied", zap.Int("schema_version", cfg.Version))
	return nil
}

// persistedVersion returns user_version, or NoVersion if no schema has been
// written.
func persistedVersion(q sqlx.Queryer) (int, error) {
	ok, err := hasTable(q, schemaTable)
	if err != nil {
		return 0, err
	}
	if !ok {
		return schemaseq.NoVersion, nil
	}
	return userVersion(q)
}

// snapshot copies every record of the persisted schema into a read-only in
// memory handle.
func snapshot(q sqlx.Queryer, version int) (schemaseq.Handle, error) {
	schema, _, err := readSchema(q)
	if err != nil {
		return nil, err
	}

	records := make(map[string]map[string]schemaseq.Object, len(schema))
	for _, sc := range schema {
		keys, objs, err := selectAll(q, sc)
		if err != nil {
			return nil, err
		}

		m := make(map[string]schemaseq.Object, len(keys))
		for i, k := range keys {
			m[k] = objs[i]
		}
		records[sc.Name] = m
	}

	return inmem.NewReadOnlyHandle(version, schema, records), nil
}
