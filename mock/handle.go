package mock

import (
	"github.com/influxdata/schemaseq"
)

var _ schemaseq.Handle = (*Handle)(nil)

// Handle is a mock of schemaseq.Handle. Unset functions return zero values.
type Handle struct {
	VersionFn func() int
	SchemaFn  func() []schemaseq.Schema
	GetFn     func(recordType, key string) (schemaseq.Object, error)
	PutFn     func(recordType, key string, obj schemaseq.Object) error
	DeleteFn  func(recordType, key string) error
	ForEachFn func(recordType string, fn func(key string, obj schemaseq.Object) error) error
	CloseFn   func() error

	CloseCalls int
}

// NewHandle returns a mock handle reporting version.
func NewHandle(version int) *Handle {
	return &Handle{
		VersionFn: func() int { return version },
	}
}

// Version returns the version the handle was opened at.
func (h *Handle) Version() int {
	if h.VersionFn == nil {
		return 0
	}
	return h.VersionFn()
}

// Schema returns the record types of the database.
func (h *Handle) Schema() []schemaseq.Schema {
	if h.SchemaFn == nil {
		return nil
	}
	return h.SchemaFn()
}

// Get returns the object stored under key.
func (h *Handle) Get(recordType, key string) (schemaseq.Object, error) {
	if h.GetFn == nil {
		return nil, nil
	}
	return h.GetFn(recordType, key)
}

// Put stores obj under key.
func (h *Handle) Put(recordType, key string, obj schemaseq.Object) error {
	if h.PutFn == nil {
		return nil
	}
	return h.PutFn(recordType, key, obj)
}

// Delete removes the object stored under key.
func (h *Handle) Delete(recordType, key string) error {
	if h.DeleteFn == nil {
		return nil
	}
	return h.DeleteFn(recordType, key)
}

// ForEach iterates the objects of a record type.
func (h *Handle) ForEach(recordType string, fn func(key string, obj schemaseq.Object) error) error {
	if h.ForEachFn == nil {
		return nil
	}
	return h.ForEachFn(recordType, fn)
}

// Close counts the call and then calls CloseFn, if set.
func (h *Handle) Close() error {
	h.CloseCalls++
	if h.CloseFn == nil {
		return nil
	}
	return h.CloseFn()
}
