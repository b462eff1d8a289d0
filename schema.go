package schemaseq

import (
	"fmt"
	"sort"
	"strings"

	"github.com/influxdata/schemaseq/kit/platform/errors"
)

// Schema describes a named record type and the type of each of its fields.
//
// Property values are type descriptors such as "int", "string", "bool",
// "float", "double", "date" or "data". A trailing "?" marks the field
// optional and a trailing "[]" marks it as a list, e.g. "string?" or "int[]".
//
// A Schema is never modified once declared. A later migration that changes
// a record type declares a new Schema with the same Name, which replaces the
// earlier definition entirely.
type Schema struct {
	Name       string            `json:"name" toml:"name" yaml:"name"`
	Properties map[string]string `json:"properties" toml:"properties" yaml:"properties"`
}

// PropertyNames returns the schema's field names in lexical order.
func (s Schema) PropertyNames() []string {
	names := make([]string, 0, len(s.Properties))
	for name := range s.Properties {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Validate reports an EInvalid error if obj carries a field the schema
// does not declare, or is missing a field that is not optional.
func (s Schema) Validate(obj Object) error {
	for field := range obj {
		if _, ok := s.Properties[field]; !ok {
			return &errors.Error{
				Code: errors.EInvalid,
				Msg:  fmt.Sprintf("record type %q has no property %q", s.Name, field),
			}
		}
	}

	for _, field := range s.PropertyNames() {
		if IsOptional(s.Properties[field]) {
			continue
		}
		if _, ok := obj[field]; !ok {
			return &errors.Error{
				Code: errors.EInvalid,
				Msg:  fmt.Sprintf("record type %q requires property %q", s.Name, field),
			}
		}
	}

	return nil
}

// IsOptional reports whether a type descriptor allows the field to be absent.
func IsOptional(descriptor string) bool {
	return strings.HasSuffix(descriptor, "?") || IsList(descriptor)
}

// IsList reports whether a type descriptor describes a list.
func IsList(descriptor string) bool {
	return strings.HasSuffix(strings.TrimSuffix(descriptor, "?"), "[]")
}

// BaseType strips the optional and list markers from a type descriptor.
func BaseType(descriptor string) string {
	d := strings.TrimSuffix(descriptor, "?")
	d = strings.TrimSuffix(d, "[]")
	return strings.TrimSuffix(d, "?")
}

// KeyProperty is the column the sqlite engine stores object keys in. No
// record type may declare a property with this name.
const KeyProperty = "_key"

// ReservedRecordType reports whether name is kept by a storage engine for
// its own tables: names starting with "_schemaseq" or, in any case,
// "sqlite_".
func ReservedRecordType(name string) bool {
	return strings.HasPrefix(name, "_schemaseq") ||
		strings.HasPrefix(strings.ToLower(name), "sqlite_")
}

// FindSchema returns the schema named name from schemas.
func FindSchema(schemas []Schema, name string) (Schema, bool) {
	for _, s := range schemas {
		if s.Name == name {
			return s, true
		}
	}
	return Schema{}, false
}

// RecordSchema returns the schema of recordType, or an EInvalid error if
// schemas does not declare it.
func RecordSchema(schemas []Schema, recordType string) (Schema, error) {
	s, ok := FindSchema(schemas, recordType)
	if !ok {
		return Schema{}, &errors.Error{
			Code: errors.EInvalid,
			Msg:  fmt.Sprintf("unknown record type %q", recordType),
		}
	}
	return s, nil
}

// ObjectNotFoundError is returned by Handle.Get for a missing key.
func ObjectNotFoundError(op, recordType, key string) error {
	return &errors.Error{
		Code: errors.ENotFound,
		Op:   op,
		Msg:  fmt.Sprintf("%s %q not found", recordType, key),
	}
}
