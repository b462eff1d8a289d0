package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"os"
	"path/filepath"
	"time"

	"github.com/influxdata/schemaseq"
	"github.com/influxdata/schemaseq/kit/platform/errors"
	"github.com/influxdata/schemaseq/kit/tracing"
	"github.com/influxdata/schemaseq/logger"
	"github.com/influxdata/schemaseq/migration"
	"github.com/opentracing/opentracing-go"
	"go.etcd.io/bbolt"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

const (
	// Extension is appended to a database name to form its file name.
	Extension = ".bolt"

	// DefaultTimeout is how long Open waits for the file lock.
	DefaultTimeout = 1 * time.Second
)

var (
	metaBucket    = []byte("schemaseq_metav1")
	recordsBucket = []byte("schemaseq_recordsv1")

	versionKey = []byte("version")
	schemaKey  = []byte("schema")
)

var _ migration.Store = (*Store)(nil)

// Store is a migration.Store keeping one boltdb file per database in a
// directory.
type Store struct {
	dir     string
	logger  *zap.Logger
	timeout time.Duration
	noSync  bool
}

// StoreOption configures a Store.
type StoreOption func(*Store)

// WithNoSync disables fsync after each commit. Only use it for testing.
func WithNoSync(s *Store) {
	s.noSync = true
}

// WithTimeout sets how long Open waits for another process to release the
// file lock.
func WithTimeout(d time.Duration) StoreOption {
	return func(s *Store) {
		s.timeout = d
	}
}

// NewStore returns a Store keeping database files in dir.
func NewStore(logger *zap.Logger, dir string, opts ...StoreOption) *Store {
	s := &Store{
		dir:     dir,
		logger:  logger,
		timeout: DefaultTimeout,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Path returns the file path of the named database.
func (s *Store) Path(name string) string {
	return filepath.Join(s.dir, name+Extension)
}

// Version returns the persisted schema version of the named database. A
// missing file, or one without a version record, reports
// schemaseq.NoVersion. A missing file is not created.
func (s *Store) Version(ctx context.Context, name string) (int, error) {
	span, _ := tracing.StartSpanFromContext(ctx, opentracing.Tag{Key: "database", Value: name})
	defer span.Finish()

	path := s.Path(name)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return schemaseq.NoVersion, nil
	} else if err != nil {
		return 0, err
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: s.timeout, ReadOnly: true})
	if err != nil {
		return 0, &errors.Error{
			Code: errors.EInternal,
			Op:   "bolt/Version",
			Msg:  "unable to open boltdb file",
			Err:  err,
		}
	}
	defer db.Close()

	var version int
	err = db.View(func(tx *bbolt.Tx) error {
		version, _, err = readMeta(tx)
		return err
	})
	return version, err
}

// Open creates or opens the named database at cfg.Version.
//
// The schema and version are written, and cfg.OnUpgrade is run, in a single
// update transaction. The pre-upgrade handle is a read-only copy of the
// records taken before that transaction starts.
func (s *Store) Open(ctx context.Context, cfg migration.OpenConfig) (_ schemaseq.Handle, err error) {
	span, _ := tracing.StartSpanFromContext(ctx, opentracing.Tag{Key: "database", Value: cfg.Name})
	defer span.Finish()

	// Ensure the required directory structure exists.
	if err := os.MkdirAll(s.dir, 0700); err != nil {
		return nil, &errors.Error{
			Code: errors.EInternal,
			Op:   "bolt/Open",
			Msg:  "unable to create directory " + s.dir,
			Err:  err,
		}
	}

	path := s.Path(cfg.Name)
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: s.timeout, NoSync: s.noSync})
	if err != nil {
		return nil, &errors.Error{
			Code: errors.EInternal,
			Op:   "bolt/Open",
			Msg:  "unable to open boltdb file",
			Err:  err,
		}
	}
	defer func() {
		if err != nil {
			err = multierr.Append(err, db.Close())
		}
	}()

	log := logger.FromContextOr(ctx, s.logger, zap.String("database", cfg.Name))
	if err := s.migrate(log, db, cfg); err != nil {
		return nil, err
	}

	log.Debug("Resources opened", zap.String("path", path), zap.Int("schema_version", cfg.Version))

	return &Handle{
		db:      db,
		version: cfg.Version,
		schema:  cfg.Schema,
	}, nil
}

func (s *Store) migrate(log *zap.Logger, db *bbolt.DB, cfg migration.OpenConfig) error {
	var (
		persisted  int
		prevSchema []schemaseq.Schema
		prev       schemaseq.Handle
	)
	if err := db.View(func(tx *bbolt.Tx) error {
		var err error
		persisted, prevSchema, err = readMeta(tx)
		if err != nil {
			return err
		}

		if persisted > cfg.Version {
			return schemaseq.VersionAheadError("bolt/Open", persisted, cfg.Version)
		}

		if persisted != schemaseq.NoVersion && persisted < cfg.Version && cfg.OnUpgrade != nil {
			prev, err = snapshot(tx, persisted, prevSchema)
		}
		return err
	}); err != nil {
		return err
	}

	return db.Update(func(tx *bbolt.Tx) error {
		if err := writeMeta(tx, cfg.Version, cfg.Schema); err != nil {
			return err
		}

		records, err := tx.CreateBucketIfNotExists(recordsBucket)
		if err != nil {
			return err
		}
		for _, sc := range cfg.Schema {
			if _, err := records.CreateBucketIfNotExists([]byte(sc.Name)); err != nil {
				return err
			}
		}

		if prev == nil {
			return nil
		}

		log.Debug("Upgrading boltdb file",
			zap.Int("previous_version", persisted),
			zap.Int("schema_version", cfg.Version),
		)

		next := &Handle{tx: tx, version: cfg.Version, schema: cfg.Schema}
		defer next.Close()
		return cfg.OnUpgrade(prev, next)
	})
}

// readMeta returns the persisted version and schema, or NoVersion if the
// file has none.
func readMeta(tx *bbolt.Tx) (int, []schemaseq.Schema, error) {
	bkt := tx.Bucket(metaBucket)
	if bkt == nil {
		return schemaseq.NoVersion, nil, nil
	}

	v := bkt.Get(versionKey)
	if len(v) != 8 {
		return schemaseq.NoVersion, nil, nil
	}
	version := int(binary.BigEndian.Uint64(v))

	var schema []schemaseq.Schema
	if data := bkt.Get(schemaKey); len(data) > 0 {
		if err := json.Unmarshal(data, &schema); err != nil {
			return 0, nil, &errors.Error{
				Code: errors.EInternal,
				Msg:  "decoding persisted schema",
				Err:  err,
			}
		}
	}

	return version, schema, nil
}

func writeMeta(tx *bbolt.Tx, version int, schema []schemaseq.Schema) error {
	bkt, err := tx.CreateBucketIfNotExists(metaBucket)
	if err != nil {
		return err
	}

	v := make([]byte, 8)
	binary.BigEndian.PutUint64(v, uint64(version))
	if err := bkt.Put(versionKey, v); err != nil {
		return err
	}

	data, err := json.Marshal(schema)
	if err != nil {
		return err
	}
	return bkt.Put(schemaKey, data)
}
