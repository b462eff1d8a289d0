package migration

import "github.com/influxdata/schemaseq"

// DeriveSchemas returns the effective schema at version: every schema
// declared by migrations 1 through version, where a later definition of a
// name replaces the earlier one but keeps the position the name first
// appeared at.
//
// A version below 1 yields an empty set; a version past the end of
// migrations is treated as the last migration.
func DeriveSchemas(migrations []schemaseq.Migration, version int) []schemaseq.Schema {
	if version > len(migrations) {
		version = len(migrations)
	}

	derived := make([]schemaseq.Schema, 0)
	if version < 1 {
		return derived
	}

	positions := make(map[string]int)
	for _, m := range migrations[:version] {
		for _, s := range m.Schemas {
			if i, ok := positions[s.Name]; ok {
				derived[i] = s
				continue
			}
			positions[s.Name] = len(derived)
			derived = append(derived, s)
		}
	}

	return derived
}

// pendingMigration is a migration labelled with its schema version.
type pendingMigration struct {
	schemaseq.Migration
	Version int
}

// pendingMigrations returns the migrations to apply for a database at
// current. The migration at current itself is selected again, so a database
// at version 2 is opened at versions 2, 3, ... in turn.
func pendingMigrations(migrations []schemaseq.Migration, current int) []pendingMigration {
	start := current - 1
	if start < 0 {
		start = 0
	}
	if start > len(migrations) {
		start = len(migrations)
	}

	pending := make([]pendingMigration, 0, len(migrations)-start)
	for i, m := range migrations[start:] {
		pending = append(pending, pendingMigration{
			Migration: m,
			Version:   start + i + 1,
		})
	}

	return pending
}
