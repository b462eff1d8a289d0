package sqlite

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/influxdata/schemaseq"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// schemaTable holds the record types of the database in declaration order.
const schemaTable = "_schemaseq_schema"

// keyColumn is the primary key column of every record table.
const keyColumn = schemaseq.KeyProperty

// Migrator brings the tables of a database in line with a derived schema.
type Migrator struct {
	log *zap.Logger
}

func NewMigrator(log *zap.Logger) *Migrator {
	return &Migrator{
		log: log,
	}
}

// Up creates a table for every record type in schema and adds any column
// the table is missing. Columns of properties a schema no longer declares
// are left in place and ignored on read. The persisted schema is replaced.
func (m *Migrator) Up(ctx context.Context, tx *sqlx.Tx, schema []schemaseq.Schema) error {
	if _, err := tx.ExecContext(ctx, createSchemaTable); err != nil {
		return err
	}

	for _, s := range schema {
		if schemaseq.ReservedRecordType(s.Name) {
			return fmt.Errorf("record type name %q is reserved", s.Name)
		}
		if _, ok := s.Properties[keyColumn]; ok {
			return fmt.Errorf("record type %q: property name %q is reserved", s.Name, keyColumn)
		}
		if err := m.upRecordType(ctx, tx, s); err != nil {
			return fmt.Errorf("record type %q: %w", s.Name, err)
		}
	}

	return writeSchema(ctx, tx, schema)
}

func (m *Migrator) upRecordType(ctx context.Context, tx *sqlx.Tx, s schemaseq.Schema) error {
	stmt := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (%s TEXT NOT NULL PRIMARY KEY);`,
		quoteIdent(s.Name), quoteIdent(keyColumn))
	if _, err := tx.ExecContext(ctx, stmt); err != nil {
		return err
	}

	existing, err := tableColumns(tx, s.Name)
	if err != nil {
		return err
	}

	for _, name := range s.PropertyNames() {
		if existing[name] {
			continue
		}

		stmt := fmt.Sprintf(`ALTER TABLE %s ADD COLUMN %s %s;`,
			quoteIdent(s.Name), quoteIdent(name), columnType(s.Properties[name]))
		m.log.Debug("Executing schema migration", zap.String("statement", stmt))
		if _, err := tx.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}

	return nil
}

const createSchemaTable = `CREATE TABLE IF NOT EXISTS ` + schemaTable + ` (
	position INTEGER NOT NULL PRIMARY KEY,
	name TEXT NOT NULL UNIQUE,
	properties TEXT NOT NULL
);`

type schemaRow struct {
	Position   int    `db:"position"`
	Name       string `db:"name"`
	Properties string `db:"properties"`
}

// readSchema returns the persisted schema, or nil if the database has none.
func readSchema(q sqlx.Queryer) ([]schemaseq.Schema, bool, error) {
	ok, err := hasTable(q, schemaTable)
	if err != nil || !ok {
		return nil, false, err
	}

	var rows []schemaRow
	if err := sqlx.Select(q, &rows, `SELECT position, name, properties FROM `+schemaTable+` ORDER BY position;`); err != nil {
		return nil, false, err
	}

	schema := make([]schemaseq.Schema, 0, len(rows))
	for _, r := range rows {
		s := schemaseq.Schema{Name: r.Name}
		if err := json.Unmarshal([]byte(r.Properties), &s.Properties); err != nil {
			return nil, false, err
		}
		schema = append(schema, s)
	}
	return schema, true, nil
}

func writeSchema(ctx context.Context, tx *sqlx.Tx, schema []schemaseq.Schema) error {
	if _, err := tx.ExecContext(ctx, `DELETE FROM `+schemaTable+`;`); err != nil {
		return err
	}
	if len(schema) == 0 {
		return nil
	}

	q := sq.Insert(schemaTable).Columns("position", "name", "properties")
	for i, s := range schema {
		props, err := json.Marshal(s.Properties)
		if err != nil {
			return err
		}
		q = q.Values(i, s.Name, string(props))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx, query, args...)
	return err
}

func hasTable(q sqlx.Queryer, name string) (bool, error) {
	var n int
	if err := sqlx.Get(q, &n, `SELECT count(*) FROM sqlite_master WHERE type = 'table' AND name = ?;`, name); err != nil {
		return false, err
	}
	return n > 0, nil
}

type columnInfo struct {
	CID        int         `db:"cid"`
	Name       string      `db:"name"`
	Type       string      `db:"type"`
	NotNull    bool        `db:"notnull"`
	Default    interface{} `db:"dflt_value"`
	PrimaryKey int         `db:"pk"`
}

// tableColumns returns the set of column names of a table.
func tableColumns(q sqlx.Queryer, table string) (map[string]bool, error) {
	var cols []columnInfo
	if err := sqlx.Select(q, &cols, fmt.Sprintf(`PRAGMA table_info(%s);`, quoteIdent(table))); err != nil {
		return nil, err
	}

	out := make(map[string]bool, len(cols))
	for _, c := range cols {
		out[c.Name] = true
	}
	return out, nil
}

// columnType maps a property type descriptor to a column type. Lists are
// stored as JSON text. Columns are nullable; Handle.Put enforces required
// properties.
func columnType(descriptor string) string {
	if schemaseq.IsList(descriptor) {
		return "TEXT"
	}

	switch strings.ToLower(schemaseq.BaseType(descriptor)) {
	case "int", "long":
		return "INTEGER"
	case "bool":
		return "BOOLEAN"
	case "float", "double":
		return "REAL"
	case "data":
		return "BLOB"
	default:
		return "TEXT"
	}
}
