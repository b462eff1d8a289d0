package migration

import (
	"context"

	"github.com/influxdata/schemaseq"
)

//go:generate go run github.com/golang/mock/mockgen -package mock -destination mock/store.go github.com/influxdata/schemaseq/migration Store

// Store is the embedded database engine the Sequencer drives.
type Store interface {
	// Version returns the last schema version applied to the named
	// database, or schemaseq.NoVersion if the database does not exist or
	// has no recorded version.
	Version(ctx context.Context, name string) (int, error)

	// Open creates or opens the named database at cfg.Version, applying
	// cfg.Schema. If the database holds an older version, cfg.OnUpgrade is
	// called exactly once before Open returns. The store releases anything
	// it acquired when Open fails; on success the caller must close the
	// returned handle.
	Open(ctx context.Context, cfg OpenConfig) (schemaseq.Handle, error)
}

// OpenConfig describes the state a database is opened at.
type OpenConfig struct {
	Name      string
	Schema    []schemaseq.Schema
	Version   int
	OnUpgrade schemaseq.MigrateFunc
}
