// Package definition loads and writes migration declarations as TOML,
// YAML, JSON or Jsonnet files.
//
// A TOML file lists migrations as an array of tables:
//
//	[[migration]]
//	description = "create users"
//
//	  [[migration.schema]]
//	  name = "User"
//	  properties = { id = "int", name = "string" }
//
// A YAML file lists them under a migrations key:
//
//	migrations:
//	  - description: create users
//	    schema:
//	      - name: User
//	        properties: {id: int, name: string}
//
// JSON files use the same layout as YAML, and Jsonnet files are evaluated
// to that JSON layout first.
//
// Declared migrations carry no data transformation.
package definition

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/google/go-jsonnet"
	"github.com/influxdata/schemaseq"
	"github.com/influxdata/schemaseq/kit/platform/errors"
	"gopkg.in/yaml.v3"
)

// Format is the encoding of a definition file.
type Format string

const (
	FormatTOML    Format = "toml"
	FormatYAML    Format = "yaml"
	FormatJSON    Format = "json"
	FormatJsonnet Format = "jsonnet"
)

// File is the decoded form of a definition file.
type File struct {
	Migrations []Migration `json:"migrations" toml:"migration" yaml:"migrations"`
}

// Migration is one declared migration.
type Migration struct {
	Description string             `json:"description" toml:"description" yaml:"description"`
	Schemas     []schemaseq.Schema `json:"schema" toml:"schema" yaml:"schema"`
}

// FormatOf returns the format implied by a file extension.
func FormatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	case ".jsonnet", ".libsonnet":
		return FormatJsonnet, nil
	default:
		return "", &errors.Error{
			Code: errors.EInvalid,
			Op:   "definition/Load",
			Msg:  fmt.Sprintf("unsupported definition file extension %q", filepath.Ext(path)),
		}
	}
}

// Load reads the definition file at path and returns its migrations in
// declaration order.
func Load(path string) ([]schemaseq.Migration, error) {
	format, err := FormatOf(path)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, &errors.Error{
			Code: errors.ENotFound,
			Op:   "definition/Load",
			Err:  err,
		}
	}
	defer f.Close()

	return Decode(f, format)
}

// Decode reads a definition from r.
func Decode(r io.Reader, format Format) ([]schemaseq.Migration, error) {
	var file File
	switch format {
	case FormatTOML:
		md, err := toml.NewDecoder(r).Decode(&file)
		if err != nil {
			return nil, invalid(err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			keys := make([]string, 0, len(undecoded))
			for _, k := range undecoded {
				keys = append(keys, k.String())
			}
			sort.Strings(keys)
			return nil, &errors.Error{
				Code: errors.EInvalid,
				Op:   "definition/Decode",
				Msg:  "unknown keys: " + strings.Join(keys, ", "),
			}
		}
	case FormatYAML:
		dec := yaml.NewDecoder(r)
		dec.KnownFields(true)
		if err := dec.Decode(&file); err != nil && err != io.EOF {
			return nil, invalid(err)
		}
	case FormatJSON:
		if err := decodeJSON(r, &file); err != nil {
			return nil, invalid(err)
		}
	case FormatJsonnet:
		b, err := io.ReadAll(r)
		if err != nil {
			return nil, err
		}

		vm := jsonnet.MakeVM()
		jsonStr, err := vm.EvaluateSnippet("definition.jsonnet", string(b))
		if err != nil {
			return nil, invalid(err)
		}
		if err := decodeJSON(strings.NewReader(jsonStr), &file); err != nil {
			return nil, invalid(err)
		}
	default:
		return nil, &errors.Error{
			Code: errors.EInvalid,
			Op:   "definition/Decode",
			Msg:  fmt.Sprintf("unknown format %q", format),
		}
	}

	return file.migrations(), nil
}

// Encode writes migrations to w. Data transformations are not encoded.
func Encode(w io.Writer, format Format, migrations []schemaseq.Migration) error {
	file := File{Migrations: make([]Migration, 0, len(migrations))}
	for _, m := range migrations {
		file.Migrations = append(file.Migrations, Migration{
			Description: m.Description,
			Schemas:     m.Schemas,
		})
	}

	switch format {
	case FormatTOML:
		return toml.NewEncoder(w).Encode(file)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(file); err != nil {
			return err
		}
		return enc.Close()
	case FormatJSON, FormatJsonnet:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(file)
	default:
		return &errors.Error{
			Code: errors.EInvalid,
			Op:   "definition/Encode",
			Msg:  fmt.Sprintf("unknown format %q", format),
		}
	}
}

func (f File) migrations() []schemaseq.Migration {
	out := make([]schemaseq.Migration, 0, len(f.Migrations))
	for _, m := range f.Migrations {
		out = append(out, schemaseq.Migration{
			Description: m.Description,
			Schemas:     m.Schemas,
		})
	}
	return out
}

func decodeJSON(r io.Reader, file *File) error {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(file); err != nil && err != io.EOF {
		return err
	}
	return nil
}

func invalid(err error) error {
	return &errors.Error{
		Code: errors.EInvalid,
		Op:   "definition/Decode",
		Msg:  "malformed definition file",
		Err:  err,
	}
}
