package definition

import (
	"fmt"

	"github.com/influxdata/schemaseq"
	"github.com/influxdata/schemaseq/kit/platform/errors"
)

// Validate reports the first malformed declaration in migrations: a schema
// without a name or with a name a storage engine reserves, two schemas with
// the same name in one migration, or a property without a name or type.
//
// The Sequencer accepts such input; within one migration the later of two
// schemas with the same name wins.
func Validate(migrations []schemaseq.Migration) error {
	for i, m := range migrations {
		version := i + 1
		seen := make(map[string]bool, len(m.Schemas))
		for _, s := range m.Schemas {
			if s.Name == "" {
				return invalidf(version, "schema has no name")
			}
			if schemaseq.ReservedRecordType(s.Name) {
				return invalidf(version, "schema name %q is reserved", s.Name)
			}
			if seen[s.Name] {
				return invalidf(version, "schema %q is declared more than once", s.Name)
			}
			seen[s.Name] = true

			for _, name := range s.PropertyNames() {
				if name == "" {
					return invalidf(version, "schema %q has a property with no name", s.Name)
				}
				if name == schemaseq.KeyProperty {
					return invalidf(version, "property name %s.%s is reserved", s.Name, name)
				}
				if schemaseq.BaseType(s.Properties[name]) == "" {
					return invalidf(version, "property %s.%s has no type", s.Name, name)
				}
			}
		}
	}
	return nil
}

func invalidf(version int, format string, args ...interface{}) error {
	return &errors.Error{
		Code: errors.EInvalid,
		Op:   "definition/Validate",
		Msg:  fmt.Sprintf("migration %d: ", version) + fmt.Sprintf(format, args...),
	}
}
