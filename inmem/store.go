package inmem

import (
	"context"
	"sync"

	"github.com/influxdata/schemaseq"
	"github.com/influxdata/schemaseq/logger"
	"github.com/influxdata/schemaseq/migration"
	"go.uber.org/zap"
)

var _ migration.Store = (*Store)(nil)

// Store is an in memory migration.Store. Databases live for as long as the
// Store does.
type Store struct {
	mu     sync.Mutex
	dbs    map[string]*database
	logger *zap.Logger
}

// NewStore creates an instance of a Store.
func NewStore(logger *zap.Logger) *Store {
	return &Store{
		dbs:    map[string]*database{},
		logger: logger,
	}
}

// Version returns the schema version of the named database, or
// schemaseq.NoVersion if it has not been created.
func (s *Store) Version(ctx context.Context, name string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	db, ok := s.dbs[name]
	if !ok {
		return schemaseq.NoVersion, nil
	}
	return db.version, nil
}

// Open creates or upgrades the named database to cfg.Version.
//
// An upgrade is staged on a copy of the database and only replaces it once
// cfg.OnUpgrade succeeds.
func (s *Store) Open(ctx context.Context, cfg migration.OpenConfig) (schemaseq.Handle, error) {
	log := logger.FromContextOr(ctx, s.logger, zap.String("database", cfg.Name))

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.dbs[cfg.Name]
	switch {
	case !ok:
		s.dbs[cfg.Name] = newDatabase(cfg.Version, cfg.Schema)
		log.Debug("Created database", zap.Int("schema_version", cfg.Version))
	case current.version > cfg.Version:
		return nil, schemaseq.VersionAheadError("inmem/Open", current.version, cfg.Version)
	case current.version == cfg.Version:
		current.schema = cfg.Schema
		current.ensureRecordTypes()
	default:
		next := current.clone()
		next.version = cfg.Version
		next.schema = cfg.Schema
		next.ensureRecordTypes()

		if cfg.OnUpgrade != nil {
			prev := &Handle{mu: nopLocker{}, db: current.clone(), readOnly: true}
			staged := &Handle{mu: nopLocker{}, db: next}
			if err := cfg.OnUpgrade(prev, staged); err != nil {
				return nil, err
			}
		}

		s.dbs[cfg.Name] = next
		log.Debug("Upgraded database",
			zap.Int("previous_version", current.version),
			zap.Int("schema_version", cfg.Version),
		)
	}

	return &Handle{mu: &s.mu, db: s.dbs[cfg.Name]}, nil
}
