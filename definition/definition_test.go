package definition_test

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/influxdata/schemaseq"
	"github.com/influxdata/schemaseq/definition"
	kerrors "github.com/influxdata/schemaseq/kit/platform/errors"
	"github.com/stretchr/testify/require"
)

const tomlDefinition = `
[[migration]]
description = "create users"

  [[migration.schema]]
  name = "User"
  properties = { id = "int", name = "string" }

[[migration]]
description = "add posts and user age"

  [[migration.schema]]
  name = "User"
  properties = { id = "int", name = "string", age = "int?" }

  [[migration.schema]]
  name = "Post"
  properties = { id = "int", tags = "string[]" }
`

const yamlDefinition = `
migrations:
  - description: create users
    schema:
      - name: User
        properties: {id: int, name: string}
  - description: add posts and user age
    schema:
      - name: User
        properties: {id: int, name: string, age: int?}
      - name: Post
        properties: {id: int, tags: "string[]"}
`

const jsonDefinition = `{
  "migrations": [
    {
      "description": "create users",
      "schema": [{"name": "User", "properties": {"id": "int", "name": "string"}}]
    },
    {
      "description": "add posts and user age",
      "schema": [
        {"name": "User", "properties": {"id": "int", "name": "string", "age": "int?"}},
        {"name": "Post", "properties": {"id": "int", "tags": "string[]"}}
      ]
    }
  ]
}`

const jsonnetDefinition = `
local user = { id: "int", name: "string" };
{
  migrations: [
    {
      description: "create users",
      schema: [{ name: "User", properties: user }],
    },
    {
      description: "add posts and user age",
      schema: [
        { name: "User", properties: user { age: "int?" } },
        { name: "Post", properties: { id: "int", tags: "string[]" } },
      ],
    },
  ],
}
`

var want = []schemaseq.Migration{
	{
		Description: "create users",
		Schemas: []schemaseq.Schema{
			{Name: "User", Properties: map[string]string{"id": "int", "name": "string"}},
		},
	},
	{
		Description: "add posts and user age",
		Schemas: []schemaseq.Schema{
			{Name: "User", Properties: map[string]string{"id": "int", "name": "string", "age": "int?"}},
			{Name: "Post", Properties: map[string]string{"id": "int", "tags": "string[]"}},
		},
	},
}

// migrateFuncs ignores MigrateFunc fields, which are never decoded.
var migrateFuncs = cmp.FilterPath(func(p cmp.Path) bool {
	return p.Last().String() == ".Migrate"
}, cmp.Ignore())

func TestLoad(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		content  string
	}{
		{name: "toml", filename: "migrations.toml", content: tomlDefinition},
		{name: "yaml", filename: "migrations.yaml", content: yamlDefinition},
		{name: "yml", filename: "migrations.yml", content: yamlDefinition},
		{name: "json", filename: "migrations.json", content: jsonDefinition},
		{name: "jsonnet", filename: "migrations.jsonnet", content: jsonnetDefinition},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), tt.filename)
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0600))

			got, err := definition.Load(path)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got, migrateFuncs); diff != "" {
				t.Fatalf("unexpected migrations -want/+got:\n%s", diff)
			}
			require.NoError(t, definition.Validate(got))
		})
	}
}

func TestLoad_Errors(t *testing.T) {
	dir := t.TempDir()

	_, err := definition.Load(filepath.Join(dir, "migrations.xml"))
	require.Equal(t, kerrors.EInvalid, kerrors.ErrorCode(err))

	_, err = definition.Load(filepath.Join(dir, "missing.toml"))
	require.Equal(t, kerrors.ENotFound, kerrors.ErrorCode(err))
}

func TestDecode_Malformed(t *testing.T) {
	tests := []struct {
		name    string
		format  definition.Format
		content string
	}{
		{name: "toml syntax", format: definition.FormatTOML, content: "[[migration]\n"},
		{name: "toml unknown key", format: definition.FormatTOML, content: "[[migration]]\ndescriptoin = \"typo\"\n"},
		{name: "yaml syntax", format: definition.FormatYAML, content: "migrations: [\n"},
		{name: "yaml unknown key", format: definition.FormatYAML, content: "migrations:\n  - descriptoin: typo\n"},
		{name: "json unknown key", format: definition.FormatJSON, content: `{"migrations": [{"descriptoin": "typo"}]}`},
		{name: "jsonnet syntax", format: definition.FormatJsonnet, content: "{ migrations: [ }"},
		{name: "unknown format", format: definition.Format("xml"), content: "<migrations/>"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := definition.Decode(strings.NewReader(tt.content), tt.format)
			require.Error(t, err)
			require.Equal(t, kerrors.EInvalid, kerrors.ErrorCode(err))
		})
	}
}

func TestDecode_Empty(t *testing.T) {
	for _, format := range []definition.Format{definition.FormatTOML, definition.FormatYAML, definition.FormatJSON} {
		got, err := definition.Decode(strings.NewReader(""), format)
		require.NoError(t, err)
		require.Empty(t, got)
	}
}

func TestEncode(t *testing.T) {
	formats := []definition.Format{
		definition.FormatTOML,
		definition.FormatYAML,
		definition.FormatJSON,
		definition.FormatJsonnet,
	}
	for _, format := range formats {
		t.Run(string(format), func(t *testing.T) {
			var buf bytes.Buffer
			require.NoError(t, definition.Encode(&buf, format, want))

			got, err := definition.Decode(&buf, format)
			require.NoError(t, err)
			if diff := cmp.Diff(want, got, migrateFuncs); diff != "" {
				t.Fatalf("unexpected migrations -want/+got:\n%s", diff)
			}
		})
	}
}

func TestValidate(t *testing.T) {
	user := schemaseq.Schema{Name: "User", Properties: map[string]string{"id": "int"}}

	tests := []struct {
		name       string
		migrations []schemaseq.Migration
		wantErr    string
	}{
		{
			name: "valid",
			migrations: []schemaseq.Migration{
				{Schemas: []schemaseq.Schema{user}},
				{Schemas: []schemaseq.Schema{user}},
			},
		},
		{
			name:       "empty",
			migrations: nil,
		},
		{
			name: "unnamed schema",
			migrations: []schemaseq.Migration{
				{Schemas: []schemaseq.Schema{{Properties: map[string]string{"id": "int"}}}},
			},
			wantErr: "migration 1: schema has no name",
		},
		{
			name: "duplicate schema in one migration",
			migrations: []schemaseq.Migration{
				{},
				{Schemas: []schemaseq.Schema{user, user}},
			},
			wantErr: `migration 2: schema "User" is declared more than once`,
		},
		{
			name: "property without type",
			migrations: []schemaseq.Migration{
				{Schemas: []schemaseq.Schema{{Name: "User", Properties: map[string]string{"id": "?"}}}},
			},
			wantErr: "migration 1: property User.id has no type",
		},
		{
			name: "property without name",
			migrations: []schemaseq.Migration{
				{Schemas: []schemaseq.Schema{{Name: "User", Properties: map[string]string{"": "int"}}}},
			},
			wantErr: `migration 1: schema "User" has a property with no name`,
		},
		{
			name: "schema table name",
			migrations: []schemaseq.Migration{
				{Schemas: []schemaseq.Schema{user}},
				{Schemas: []schemaseq.Schema{{Name: "_schemaseq_schema", Properties: map[string]string{"id": "int"}}}},
			},
			wantErr: `migration 2: schema name "_schemaseq_schema" is reserved`,
		},
		{
			name: "sqlite internal name",
			migrations: []schemaseq.Migration{
				{Schemas: []schemaseq.Schema{{Name: "SQLite_Sequence", Properties: map[string]string{"id": "int"}}}},
			},
			wantErr: `migration 1: schema name "SQLite_Sequence" is reserved`,
		},
		{
			name: "key property",
			migrations: []schemaseq.Migration{
				{Schemas: []schemaseq.Schema{{Name: "User", Properties: map[string]string{"_key": "string"}}}},
			},
			wantErr: "migration 1: property name User._key is reserved",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := definition.Validate(tt.migrations)
			if tt.wantErr == "" {
				require.NoError(t, err)
				return
			}
			require.Equal(t, kerrors.EInvalid, kerrors.ErrorCode(err))
			require.Equal(t, tt.wantErr, kerrors.ErrorMessage(err))
		})
	}
}
