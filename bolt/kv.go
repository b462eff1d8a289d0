package bolt

import (
	"encoding/json"
	"sync"

	"github.com/influxdata/schemaseq"
	"github.com/influxdata/schemaseq/inmem"
	"github.com/influxdata/schemaseq/kit/platform/errors"
	"go.etcd.io/bbolt"
)

var _ schemaseq.Handle = (*Handle)(nil)

// Handle is a schemaseq.Handle over a boltdb file. A handle passed to an
// upgrade callback is bound to the upgrade's transaction; a handle returned
// from Store.Open runs a transaction per call and owns the file.
type Handle struct {
	db *bbolt.DB
	tx *bbolt.Tx

	version int
	schema  []schemaseq.Schema

	mu     sync.Mutex
	closed bool
}

// Version returns the version the handle was opened at.
func (h *Handle) Version() int {
	return h.version
}

// Schema returns the record types of the database.
func (h *Handle) Schema() []schemaseq.Schema {
	return h.schema
}

// Get retrieves the object stored under key.
func (h *Handle) Get(recordType, key string) (schemaseq.Object, error) {
	s, err := h.check(recordType)
	if err != nil {
		return nil, err
	}

	var obj schemaseq.Object
	err = h.view(func(tx *bbolt.Tx) error {
		var data []byte
		if b := recordBucket(tx, recordType); b != nil {
			data = b.Get([]byte(key))
		}
		if data == nil {
			return schemaseq.ObjectNotFoundError("bolt/Get", recordType, key)
		}
		obj, err = decodeObject(s, data)
		return err
	})
	return obj, err
}

// Put validates obj against the record type and stores it under key.
func (h *Handle) Put(recordType, key string, obj schemaseq.Object) error {
	s, err := h.check(recordType)
	if err != nil {
		return err
	}
	if err := s.Validate(obj); err != nil {
		return err
	}
	if obj, err = s.Normalize(obj); err != nil {
		return err
	}

	data, err := json.Marshal(obj)
	if err != nil {
		return &errors.Error{
			Code: errors.EInvalid,
			Op:   "bolt/Put",
			Err:  err,
		}
	}

	return h.update(func(tx *bbolt.Tx) error {
		b, err := createRecordBucket(tx, recordType)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), data)
	})
}

// Delete removes the object stored under key.
func (h *Handle) Delete(recordType, key string) error {
	if _, err := h.check(recordType); err != nil {
		return err
	}

	return h.update(func(tx *bbolt.Tx) error {
		b := recordBucket(tx, recordType)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

// ForEach calls fn for every object of the record type in key order.
// The objects are read before fn is first called, so fn may write through
// the handle.
func (h *Handle) ForEach(recordType string, fn func(key string, obj schemaseq.Object) error) error {
	s, err := h.check(recordType)
	if err != nil {
		return err
	}

	type pair struct {
		key string
		obj schemaseq.Object
	}
	var pairs []pair
	if err := h.view(func(tx *bbolt.Tx) error {
		b := recordBucket(tx, recordType)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, v []byte) error {
			obj, err := decodeObject(s, v)
			if err != nil {
				return err
			}
			pairs = append(pairs, pair{key: string(k), obj: obj})
			return nil
		})
	}); err != nil {
		return err
	}

	for _, p := range pairs {
		if err := fn(p.key, p.obj); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the boltdb file. Handles bound to an upgrade transaction
// are only marked closed.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return schemaseq.ErrHandleClosed
	}
	h.closed = true

	if h.tx != nil || h.db == nil {
		return nil
	}
	return h.db.Close()
}

func (h *Handle) check(recordType string) (schemaseq.Schema, error) {
	h.mu.Lock()
	closed := h.closed
	h.mu.Unlock()

	if closed {
		return schemaseq.Schema{}, schemaseq.ErrHandleClosed
	}
	return schemaseq.RecordSchema(h.schema, recordType)
}

func (h *Handle) view(fn func(tx *bbolt.Tx) error) error {
	if h.tx != nil {
		return fn(h.tx)
	}
	return h.db.View(fn)
}

func (h *Handle) update(fn func(tx *bbolt.Tx) error) error {
	if h.tx != nil {
		return fn(h.tx)
	}
	return h.db.Update(fn)
}

// recordBucket returns the bucket of a record type, or nil if it does not
// exist. Buckets exist for every record type of the schema once Open has
// returned.
func recordBucket(tx *bbolt.Tx, recordType string) *bbolt.Bucket {
	records := tx.Bucket(recordsBucket)
	if records == nil {
		return nil
	}
	return records.Bucket([]byte(recordType))
}

func createRecordBucket(tx *bbolt.Tx, recordType string) (*bbolt.Bucket, error) {
	records, err := tx.CreateBucketIfNotExists(recordsBucket)
	if err != nil {
		return nil, err
	}
	return records.CreateBucketIfNotExists([]byte(recordType))
}

// decodeObject reads an object back as the Go types of its schema.
func decodeObject(s schemaseq.Schema, data []byte) (schemaseq.Object, error) {
	obj, err := schemaseq.UnmarshalObject(s, data)
	if err != nil {
		return nil, &errors.Error{
			Code: errors.EInternal,
			Msg:  "decoding object",
			Err:  err,
		}
	}
	return obj, nil
}

// snapshot copies every record of schema into a read-only in memory handle.
func snapshot(tx *bbolt.Tx, version int, schema []schemaseq.Schema) (schemaseq.Handle, error) {
	records := make(map[string]map[string]schemaseq.Object, len(schema))
	for _, s := range schema {
		objs := map[string]schemaseq.Object{}
		records[s.Name] = objs

		b := recordBucket(tx, s.Name)
		if b == nil {
			continue
		}
		if err := b.ForEach(func(k, v []byte) error {
			obj, err := decodeObject(s, v)
			if err != nil {
				return err
			}
			objs[string(k)] = obj
			return nil
		}); err != nil {
			return nil, err
		}
	}

	return inmem.NewReadOnlyHandle(version, schema, records), nil
}
