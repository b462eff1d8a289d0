package inmem

import (
	"fmt"
	"sync"

	"github.com/google/btree"
	"github.com/influxdata/schemaseq"
)

// recordItem is a single object in a record type's btree.
type recordItem struct {
	key string
	obj schemaseq.Object
}

// Less is used to implement btree.Item.
func (i *recordItem) Less(b btree.Item) bool {
	j, ok := b.(*recordItem)
	if !ok {
		return false
	}

	return i.key < j.key
}

// database is the in memory state of one named database. Record types are
// btrees so that cloning a database for a snapshot or a staged upgrade is
// copy-on-write.
type database struct {
	version int
	schema  []schemaseq.Schema
	records map[string]*btree.BTree
}

func newDatabase(version int, schema []schemaseq.Schema) *database {
	db := &database{
		version: version,
		schema:  schema,
		records: map[string]*btree.BTree{},
	}
	db.ensureRecordTypes()
	return db
}

// ensureRecordTypes creates a btree for every record type in the schema.
func (db *database) ensureRecordTypes() {
	for _, s := range db.schema {
		if _, ok := db.records[s.Name]; !ok {
			db.records[s.Name] = btree.New(2)
		}
	}
}

// clone returns a copy of db that shares no mutable state with it.
func (db *database) clone() *database {
	cp := &database{
		version: db.version,
		schema:  db.schema,
		records: make(map[string]*btree.BTree, len(db.records)),
	}
	for name, tree := range db.records {
		cp.records[name] = tree.Clone()
	}
	return cp
}

func (db *database) get(recordType, key string) (schemaseq.Object, bool, error) {
	tree, ok := db.records[recordType]
	if !ok {
		return nil, false, nil
	}

	i := tree.Get(&recordItem{key: key})
	if i == nil {
		return nil, false, nil
	}

	j, ok := i.(*recordItem)
	if !ok {
		return nil, false, fmt.Errorf("error item is type %T not *recordItem", i)
	}

	return j.obj.Copy(), true, nil
}

func (db *database) put(recordType, key string, obj schemaseq.Object) {
	tree, ok := db.records[recordType]
	if !ok {
		tree = btree.New(2)
		db.records[recordType] = tree
	}
	_ = tree.ReplaceOrInsert(&recordItem{key: key, obj: obj.Copy()})
}

func (db *database) delete(recordType, key string) {
	if tree, ok := db.records[recordType]; ok {
		_ = tree.Delete(&recordItem{key: key})
	}
}

func (db *database) forEach(recordType string, fn func(key string, obj schemaseq.Object) error) error {
	tree, ok := db.records[recordType]
	if !ok {
		return nil
	}

	// collect first so fn may write to the record type it is iterating
	var items []*recordItem
	var err error
	tree.Ascend(func(i btree.Item) bool {
		j, ok := i.(*recordItem)
		if !ok {
			err = fmt.Errorf("error item is type %T not *recordItem", i)
			return false
		}
		items = append(items, j)
		return true
	})
	if err != nil {
		return err
	}

	for _, item := range items {
		if err := fn(item.key, item.obj.Copy()); err != nil {
			return err
		}
	}
	return nil
}

// nopLocker is used by handles that are not shared with the store.
type nopLocker struct{}

func (nopLocker) Lock()   {}
func (nopLocker) Unlock() {}

var _ schemaseq.Handle = (*Handle)(nil)

// Handle is an in memory schemaseq.Handle.
type Handle struct {
	mu       sync.Locker
	db       *database
	readOnly bool
	closed   bool
}

// NewReadOnlyHandle returns a read-only handle over a copy of records, keyed
// by record type and then by object key. Stores use it to hand the
// pre-upgrade state of a database to a schemaseq.MigrateFunc.
func NewReadOnlyHandle(version int, schema []schemaseq.Schema, records map[string]map[string]schemaseq.Object) *Handle {
	db := newDatabase(version, schema)
	for recordType, objs := range records {
		for key, obj := range objs {
			db.put(recordType, key, obj)
		}
	}

	return &Handle{
		mu:       nopLocker{},
		db:       db,
		readOnly: true,
	}
}

// Version returns the version the handle was opened at.
func (h *Handle) Version() int {
	return h.db.version
}

// Schema returns the record types of the database.
func (h *Handle) Schema() []schemaseq.Schema {
	return h.db.schema
}

// Get returns the object stored under key.
func (h *Handle) Get(recordType, key string) (schemaseq.Object, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.check(recordType, false); err != nil {
		return nil, err
	}

	obj, ok, err := h.db.get(recordType, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, schemaseq.ObjectNotFoundError("inmem/Get", recordType, key)
	}
	return obj, nil
}

// Put stores obj under key after validating it against the record type.
func (h *Handle) Put(recordType, key string, obj schemaseq.Object) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.check(recordType, true); err != nil {
		return err
	}

	s, _ := schemaseq.FindSchema(h.db.schema, recordType)
	if err := s.Validate(obj); err != nil {
		return err
	}
	obj, err := s.Normalize(obj)
	if err != nil {
		return err
	}

	h.db.put(recordType, key, obj)
	return nil
}

// Delete removes the object stored under key.
func (h *Handle) Delete(recordType, key string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := h.check(recordType, true); err != nil {
		return err
	}

	h.db.delete(recordType, key)
	return nil
}

// ForEach calls fn for every object of the record type in key order.
func (h *Handle) ForEach(recordType string, fn func(key string, obj schemaseq.Object) error) error {
	h.mu.Lock()
	if err := h.check(recordType, false); err != nil {
		h.mu.Unlock()
		return err
	}
	db := h.db
	if !h.readOnly {
		// iterate a copy so fn can write through the handle
		db = h.db.clone()
	}
	h.mu.Unlock()

	return db.forEach(recordType, fn)
}

// Close marks the handle closed.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return schemaseq.ErrHandleClosed
	}
	h.closed = true
	return nil
}

func (h *Handle) check(recordType string, write bool) error {
	if h.closed {
		return schemaseq.ErrHandleClosed
	}
	if write && h.readOnly {
		return schemaseq.ErrReadOnlyHandle
	}
	_, err := schemaseq.RecordSchema(h.db.schema, recordType)
	return err
}
