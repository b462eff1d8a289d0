package schemaseq

import "github.com/influxdata/schemaseq/kit/platform/errors"

var (
	// ErrHandleClosed is returned when a closed handle is used.
	ErrHandleClosed = &errors.Error{
		Code: errors.EConflict,
		Msg:  "database handle is closed",
	}

	// ErrReadOnlyHandle is returned when writing through the pre-upgrade
	// handle passed to a MigrateFunc.
	ErrReadOnlyHandle = &errors.Error{
		Code: errors.EForbidden,
		Msg:  "database handle is read-only",
	}
)

// Object is a single record of a record type, keyed by field name.
type Object map[string]interface{}

// Copy returns a shallow copy of the object.
func (o Object) Copy() Object {
	if o == nil {
		return nil
	}
	cp := make(Object, len(o))
	for k, v := range o {
		cp[k] = v
	}
	return cp
}

// Handle is an open database at a particular schema version.
//
// Handles are obtained from a store and must be closed exactly once.
type Handle interface {
	// Version returns the schema version the handle was opened at.
	Version() int
	// Schema returns the record types of the database.
	Schema() []Schema

	// Get returns the object stored under key. It returns an ENotFound
	// error if there is no such object.
	Get(recordType, key string) (Object, error)
	// Put stores obj under key, replacing any existing object. The object
	// is validated against the record type's schema.
	Put(recordType, key string, obj Object) error
	// Delete removes the object stored under key.
	Delete(recordType, key string) error
	// ForEach calls fn for each object of the record type in key order.
	// Iteration stops at the first error returned by fn.
	ForEach(recordType string, fn func(key string, obj Object) error) error

	// Close releases the resources held by the handle.
	Close() error
}
