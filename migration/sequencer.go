package migration

import (
	"context"
	"fmt"

	"github.com/benbjohnson/clock"
	"github.com/google/uuid"
	"github.com/influxdata/schemaseq"
	"github.com/influxdata/schemaseq/hooks"
	"github.com/influxdata/schemaseq/kit/tracing"
	"github.com/influxdata/schemaseq/logger"
	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Hooks configures the policy hooks of a Sequencer. Each category holds an
// ordered list of hooks; an empty list leaves the default decision alone.
type Hooks struct {
	ShouldRunMigrations []hooks.ShouldRunMigrationsHook
}

// Config configures a Sequencer.
type Config struct {
	DatabaseName string
	Migrations   []schemaseq.Migration
	Hooks        Hooks
}

// Option configures optional Sequencer behaviour.
type Option func(*Sequencer)

// WithClock sets the clock used to time migration steps.
func WithClock(c clock.Clock) Option {
	return func(s *Sequencer) {
		s.clock = c
	}
}

// Sequencer applies an ordered list of migrations to a database.
//
// The schema version of a migration is its position in the list, counting
// from 1. Each pending migration is applied in its own open/upgrade/close
// cycle against the Store, strictly one at a time and in version order.
type Sequencer struct {
	logger *zap.Logger
	store  Store

	databaseName string
	migrations   []schemaseq.Migration
	hooks        Hooks

	metrics *sequencerMetrics
	clock   clock.Clock
}

// NewSequencer constructs a Sequencer for the database and migrations in cfg.
func NewSequencer(logger *zap.Logger, store Store, cfg Config, opts ...Option) *Sequencer {
	s := &Sequencer{
		logger:       logger,
		store:        store,
		databaseName: cfg.DatabaseName,
		migrations:   cfg.Migrations,
		hooks:        cfg.Hooks,
		metrics:      newSequencerMetrics(cfg.DatabaseName),
		clock:        clock.New(),
	}

	for _, opt := range opts {
		opt(s)
	}

	return s
}

// LatestVersion returns the version of the last declared migration.
func (s *Sequencer) LatestVersion() int {
	return len(s.migrations)
}

// Schema returns the effective schema at version.
func (s *Sequencer) Schema(version int) []schemaseq.Schema {
	return DeriveSchemas(s.migrations, version)
}

func shouldRun(props hooks.ShouldRunMigrationsProps) bool {
	return props.CurrentVersion < props.LatestMigrationVersion
}

// Run brings the database up to the latest declared migration.
//
// When the should-run decision is false the store is not opened and the
// result carries the persisted version, as reported, with the schema derived
// for it. Otherwise every pending migration is applied in order. A failing
// step aborts the run; steps applied before it stay applied.
func (s *Sequencer) Run(ctx context.Context) (schemaseq.MigrationResult, error) {
	span, ctx := tracing.StartSpanFromContext(ctx)
	defer span.Finish()

	wrapErr := func(err error) error {
		if err == nil {
			return nil
		}

		return tracing.LogError(span, fmt.Errorf("run: %w", err))
	}

	log := s.logger.With(
		zap.String("database", s.databaseName),
		zap.String("run_id", uuid.NewString()),
	)
	ctx = logger.NewContextWithLogger(ctx, log)

	currentVersion, err := s.store.Version(ctx, s.databaseName)
	if err != nil {
		return schemaseq.MigrationResult{}, wrapErr(err)
	}
	latestMigrationVersion := s.LatestVersion()

	props := hooks.ShouldRunMigrationsProps{
		CurrentVersion:         currentVersion,
		LatestMigrationVersion: latestMigrationVersion,
	}
	if !hooks.ShouldRunMigrations(props, s.hooks.ShouldRunMigrations, shouldRun) {
		log.Info("No schema migrations to run",
			zap.Int("current_version", currentVersion),
			zap.Int("latest_migration_version", latestMigrationVersion),
		)
		s.metrics.SchemaVersion.Set(float64(currentVersion))

		return schemaseq.MigrationResult{
			Schema:        s.Schema(currentVersion),
			SchemaVersion: currentVersion,
		}, nil
	}

	pending := pendingMigrations(s.migrations, currentVersion)

	span.SetTag("migration_count", len(pending))
	log.Info("Bringing up schema migrations",
		zap.Int("migration_count", len(pending)),
		zap.Int("current_version", currentVersion),
		zap.Int("latest_migration_version", latestMigrationVersion),
	)

	result := schemaseq.MigrationResult{
		Schema:        make([]schemaseq.Schema, 0),
		SchemaVersion: schemaseq.NoVersion,
	}
	for _, m := range pending {
		if err := ctx.Err(); err != nil {
			return schemaseq.MigrationResult{}, wrapErr(err)
		}

		derived := s.Schema(m.Version)
		logMigrationEvent(log, m, derived, "started")

		if err := s.apply(ctx, m, derived); err != nil {
			return schemaseq.MigrationResult{}, wrapErr(fmt.Errorf("migration %d (%q): %w", m.Version, m.Description, err))
		}

		logMigrationEvent(log, m, derived, "completed")

		result.Schema = derived
		result.SchemaVersion = m.Version
	}

	s.metrics.SchemaVersion.Set(float64(result.SchemaVersion))
	log.Info("Schema migrations completed",
		zap.Int("schema_version", result.SchemaVersion),
	)

	return result, nil
}

// apply opens the database at the migration's version, letting the store
// run the migration's upgrade callback, and closes it again before returning.
func (s *Sequencer) apply(ctx context.Context, m pendingMigration, schema []schemaseq.Schema) (err error) {
	start := s.clock.Now()
	defer func() {
		result := labelSuccess
		if err != nil {
			result = labelFailure
		}
		s.metrics.Steps.WithLabelValues(result).Inc()
		s.metrics.StepDuration.WithLabelValues(result).Observe(s.clock.Since(start).Seconds())
	}()

	h, err := s.store.Open(ctx, OpenConfig{
		Name:      s.databaseName,
		Schema:    schema,
		Version:   m.Version,
		OnUpgrade: m.Migrate,
	})
	if err != nil {
		return err
	}
	defer func() {
		err = multierr.Append(err, h.Close())
	}()

	if v := h.Version(); v != m.Version {
		return fmt.Errorf("store opened database at version %d, expected %d", v, m.Version)
	}

	return nil
}

func logMigrationEvent(log *zap.Logger, m pendingMigration, schema []schemaseq.Schema, event string) {
	log.Debug(
		"Executing schema migration",
		zap.String("migration_description", m.Description),
		zap.Int("migration_version", m.Version),
		zap.Int("declared_schema_count", len(m.Schemas)),
		zap.Int("derived_schema_count", len(schema)),
		zap.String("migration_event", event),
	)
}
