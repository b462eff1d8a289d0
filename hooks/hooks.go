// Package hooks holds the policy hooks that decide, per run, whether the
// sequencer applies pending migrations.
package hooks

import (
	"github.com/influxdata/schemaseq/pkg/pipeline"
	"go.uber.org/zap"
)

// ShouldRunMigrationsProps is the payload of the should-run-migrations pipeline.
type ShouldRunMigrationsProps struct {
	CurrentVersion         int
	LatestMigrationVersion int
}

// ShouldRunMigrationsHook decides, or helps decide, whether migrations run.
// It either returns next(props), overrides the result, or returns without
// calling next to short-circuit the remaining hooks and the default decision.
type ShouldRunMigrationsHook = pipeline.Interceptor[ShouldRunMigrationsProps, bool]

// ShouldRunMigrations sends props through hooks and ends in callback, the
// default decision.
func ShouldRunMigrations(props ShouldRunMigrationsProps, hooks []ShouldRunMigrationsHook, callback func(ShouldRunMigrationsProps) bool) bool {
	return pipeline.New[ShouldRunMigrationsProps, bool]().
		Send(props).
		Through(hooks...).
		Then(callback)
}

// Enabled returns a hook that disables migrations when enabled is false.
// A disabled gate returns false without consulting any later hook or the
// default decision.
func Enabled(enabled bool) ShouldRunMigrationsHook {
	return func(props ShouldRunMigrationsProps, next func(ShouldRunMigrationsProps) bool) bool {
		if !enabled {
			return false
		}

		return next(props)
	}
}

// Logged returns a pass-through hook that logs the versions it sees and the
// decision made by the rest of the pipeline.
func Logged(log *zap.Logger) ShouldRunMigrationsHook {
	return func(props ShouldRunMigrationsProps, next func(ShouldRunMigrationsProps) bool) bool {
		decision := next(props)
		log.Debug("Should-run-migrations decision",
			zap.Int("current_version", props.CurrentVersion),
			zap.Int("latest_migration_version", props.LatestMigrationVersion),
			zap.Bool("decision", decision),
		)
		return decision
	}
}
