package sqlite

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/influxdata/schemaseq"
	ierrors "github.com/influxdata/schemaseq/kit/platform/errors"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

var _ schemaseq.Handle = (*Handle)(nil)

// Handle is a schemaseq.Handle over a SQLite database. A handle passed to an
// upgrade callback runs every statement in the upgrade's transaction; a
// handle returned from Store.Open owns the SqlStore.
type Handle struct {
	store *SqlStore
	ext   sqlx.Ext

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
	defer h.lock()()

	q, args, err := sq.Select("*").
		From(quoteIdent(recordType)).
		Where(sq.Eq{quoteIdent(keyColumn): key}).
		ToSql()
	if err != nil {
		return nil, ierrors.Wrap(err, ierrors.EInternal, "sqlite/Get")
	}

	row := map[string]interface{}{}
	if err := h.ext.QueryRowx(q, args...).MapScan(row); errors.Is(err, sql.ErrNoRows) {
		return nil, schemaseq.ObjectNotFoundError("sqlite/Get", recordType, key)
	} else if err != nil {
		return nil, ierrors.Wrap(err, ierrors.EInternal, "sqlite/Get")
	}

	_, obj, err := decodeRow(s, row)
	if err != nil {
		return nil, ierrors.Wrap(err, ierrors.EInternal, "sqlite/Get")
	}
	return obj, nil
}

// Put validates obj against the record type and stores it under key,
// replacing any object already stored there.
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

	fields := make([]string, 0, len(obj))
	for f := range obj {
		fields = append(fields, f)
	}
	sort.Strings(fields)

	cols := []string{quoteIdent(keyColumn)}
	vals := []interface{}{key}
	for _, f := range fields {
		v, err := encodeValue(s.Properties[f], obj[f])
		if err != nil {
			return &ierrors.Error{
				Code: ierrors.EInvalid,
				Op:   "sqlite/Put",
				Msg:  fmt.Sprintf("encoding property %q", f),
				Err:  err,
			}
		}
		cols = append(cols, quoteIdent(f))
		vals = append(vals, v)
	}

	// REPLACE drops properties of the previous object that obj omits
	q, args, err := sq.Replace(quoteIdent(recordType)).
		Columns(cols...).
		Values(vals...).
		ToSql()
	if err != nil {
		return ierrors.Wrap(err, ierrors.EInternal, "sqlite/Put")
	}

	defer h.lock()()
	if _, err := h.ext.Exec(q, args...); err != nil {
		return ierrors.Wrap(err, ierrors.EInternal, "sqlite/Put")
	}
	return nil
}

// Delete removes the object stored under key.
func (h *Handle) Delete(recordType, key string) error {
	if _, err := h.check(recordType); err != nil {
		return err
	}
	q, args, err := sq.Delete(quoteIdent(recordType)).
		Where(sq.Eq{quoteIdent(keyColumn): key}).
		ToSql()
	if err != nil {
		return ierrors.Wrap(err, ierrors.EInternal, "sqlite/Delete")
	}

	defer h.lock()()
	if _, err := h.ext.Exec(q, args...); err != nil {
		return ierrors.Wrap(err, ierrors.EInternal, "sqlite/Delete")
	}
	return nil
}

// ForEach calls fn for every object of the record type in key order.
// The rows are read before fn is first called, so fn may write through
// the handle.
func (h *Handle) ForEach(recordType string, fn func(key string, obj schemaseq.Object) error) error {
	s, err := h.check(recordType)
	if err != nil {
		return err
	}

	unlock := h.lock()
	keys, objs, err := selectAll(h.ext, s)
	unlock()
	if err != nil {
		return ierrors.Wrap(err, ierrors.EInternal, "sqlite/ForEach")
	}

	for i := range keys {
		if err := fn(keys[i], objs[i]); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the SqlStore. Handles bound to an upgrade transaction are
// only marked closed.
func (h *Handle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.closed {
		return schemaseq.ErrHandleClosed
	}
	h.closed = true

	if h.store == nil {
		return nil
	}
	return h.store.Close()
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

// lock serializes statements on an owned SqlStore and returns the unlock.
func (h *Handle) lock() func() {
	if h.store == nil {
		return func() {}
	}
	h.store.Mu.Lock()
	return h.store.Mu.Unlock
}

// selectAll reads every row of a record table in key order.
func selectAll(q sqlx.Queryer, s schemaseq.Schema) ([]string, []schemaseq.Object, error) {
	query, args, err := sq.Select("*").
		From(quoteIdent(s.Name)).
		OrderBy(quoteIdent(keyColumn)).
		ToSql()
	if err != nil {
		return nil, nil, err
	}

	rows, err := q.Queryx(query, args...)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var (
		keys []string
		objs []schemaseq.Object
	)
	for rows.Next() {
		row := map[string]interface{}{}
		if err := rows.MapScan(row); err != nil {
			return nil, nil, err
		}

		key, obj, err := decodeRow(s, row)
		if err != nil {
			return nil, nil, err
		}
		keys = append(keys, key)
		objs = append(objs, obj)
	}
	return keys, objs, rows.Err()
}

// decodeRow converts a scanned row into the key and object it stores.
// NULL columns and columns the schema does not declare are omitted.
func decodeRow(s schemaseq.Schema, row map[string]interface{}) (string, schemaseq.Object, error) {
	key := toString(row[keyColumn])

	obj := schemaseq.Object{}
	for name, descriptor := range s.Properties {
		v, ok := row[name]
		if !ok || v == nil {
			continue
		}

		dv, err := decodeValue(descriptor, v)
		if err != nil {
			return "", nil, fmt.Errorf("decoding %s.%s: %w", s.Name, name, err)
		}
		obj[name] = dv
	}
	return key, obj, nil
}

func encodeValue(descriptor string, v interface{}) (interface{}, error) {
	if v == nil {
		return nil, nil
	}
	if schemaseq.IsList(descriptor) {
		data, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(data), nil
	}
	return v, nil
}

// decodeValue converts a column value to the Go type of descriptor.
func decodeValue(descriptor string, v interface{}) (interface{}, error) {
	if schemaseq.IsList(descriptor) {
		return schemaseq.UnmarshalValue(descriptor, []byte(toString(v)))
	}

	switch v.(type) {
	case string, []byte:
		if !strings.EqualFold(schemaseq.BaseType(descriptor), "date") {
			break
		}
		for _, layout := range sqlite3.SQLiteTimestampFormats {
			if t, err := time.Parse(layout, toString(v)); err == nil {
				return t.UTC(), nil
			}
		}
	}
	return schemaseq.NormalizeValue(descriptor, v)
}

func toString(v interface{}) string {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	default:
		return fmt.Sprint(v)
	}
}
