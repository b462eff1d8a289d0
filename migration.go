package schemaseq

import (
	"fmt"

	"github.com/influxdata/schemaseq/kit/platform/errors"
)

// NoVersion is the persisted version reported for a database that has never
// had a migration applied. Any version below 1 means "none applied".
const NoVersion = -1

// MigrateFunc transforms the data of a database while it is upgraded to a
// new schema version. prev is a read-only view of the database as it was
// before the upgrade; next is the database at the new version and schema.
type MigrateFunc func(prev, next Handle) error

// Migration is a single declared schema change.
//
// Migrations are declared as an ordered list; the position of a migration
// in that list, counting from 1, is its schema version.
type Migration struct {
	Description string
	Migrate     MigrateFunc
	Schemas     []Schema
}

// MigrationResult is the outcome of running a sequence of migrations.
type MigrationResult struct {
	Schema        []Schema `json:"schema"`
	SchemaVersion int      `json:"schemaVersion"`
}

// VersionAheadError is returned by stores asked to open a database at a
// version older than the one already persisted.
func VersionAheadError(op string, persisted, target int) error {
	return &errors.Error{
		Code: errors.EConflict,
		Op:   op,
		Msg:  fmt.Sprintf("database is at schema version %d, newer than requested version %d", persisted, target),
	}
}
