package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newVersionCommand(_ *viper.Viper, p *program) (*cobra.Command, error) {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the persisted schema version of every database",
		Long: `Print the persisted schema version of every database, one per line.
A database that does not exist reports -1.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := p.requireDatabases(); err != nil {
				return err
			}
			store, err := p.newStore()
			if err != nil {
				return err
			}

			for _, name := range p.opts.databases {
				version, err := store.Version(cmd.Context(), name)
				if err != nil {
					return fmt.Errorf("database %q: %w", name, err)
				}
				fmt.Fprintf(p.stdout, "%s\t%d\n", name, version)
			}
			return nil
		},
	}, nil
}
