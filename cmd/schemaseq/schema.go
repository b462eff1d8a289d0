package main

import (
	"encoding/json"
	"fmt"

	"github.com/andreyvit/diff"
	"github.com/influxdata/schemaseq"
	"github.com/influxdata/schemaseq/kit/cli"
	"github.com/influxdata/schemaseq/migration"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/xlab/treeprint"
)

const latestVersion = -1

func newSchemaCommand(v *viper.Viper, p *program) (*cobra.Command, error) {
	var (
		version int
		format  string
	)

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the schema derived from the definitions at a version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			migrations, err := p.loadMigrations()
			if err != nil {
				return err
			}

			result := deriveResult(migrations, version)
			switch format {
			case "json":
				enc := json.NewEncoder(p.stdout)
				enc.SetIndent("", "  ")
				return enc.Encode(result)
			case "tree":
				_, err := fmt.Fprint(p.stdout, schemaTree(result).String())
				return err
			default:
				return fmt.Errorf("unknown format %q", format)
			}
		},
	}

	if err := cli.BindOptions(v, cmd, []cli.Opt{
		{
			DestP:   &version,
			Flag:    "version",
			Default: latestVersion,
			Desc:    "schema version to derive, -1 for the latest",
		},
		{
			DestP:   &format,
			Flag:    "format",
			Default: "json",
			Desc:    "output format: json or tree",
		},
	}); err != nil {
		return nil, err
	}

	return cmd, nil
}

func newDiffCommand(v *viper.Viper, p *program) (*cobra.Command, error) {
	var from, to int

	cmd := &cobra.Command{
		Use:   "diff",
		Short: "Show how the derived schema changes between two versions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			migrations, err := p.loadMigrations()
			if err != nil {
				return err
			}

			a, err := json.MarshalIndent(deriveResult(migrations, from), "", "  ")
			if err != nil {
				return err
			}
			b, err := json.MarshalIndent(deriveResult(migrations, to), "", "  ")
			if err != nil {
				return err
			}

			_, err = fmt.Fprintln(p.stdout, diff.LineDiff(string(a), string(b)))
			return err
		},
	}

	if err := cli.BindOptions(v, cmd, []cli.Opt{
		{
			DestP:   &from,
			Flag:    "from",
			Default: 0,
			Desc:    "version to compare from",
		},
		{
			DestP:   &to,
			Flag:    "to",
			Default: latestVersion,
			Desc:    "version to compare to, -1 for the latest",
		},
	}); err != nil {
		return nil, err
	}

	return cmd, nil
}

// deriveResult derives the schema at version, clamped to the declared
// migrations. latestVersion selects the last migration.
func deriveResult(migrations []schemaseq.Migration, version int) schemaseq.MigrationResult {
	if version == latestVersion || version > len(migrations) {
		version = len(migrations)
	}
	if version < 0 {
		version = 0
	}
	return schemaseq.MigrationResult{
		Schema:        migration.DeriveSchemas(migrations, version),
		SchemaVersion: version,
	}
}

func schemaTree(result schemaseq.MigrationResult) treeprint.Tree {
	tree := treeprint.New()
	tree.SetValue(fmt.Sprintf("schema version %d", result.SchemaVersion))
	for _, s := range result.Schema {
		branch := tree.AddBranch(s.Name)
		for _, name := range s.PropertyNames() {
			branch.AddNode(name + ": " + s.Properties[name])
		}
	}
	return tree
}
