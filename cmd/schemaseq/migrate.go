package main

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/influxdata/schemaseq"
	"github.com/influxdata/schemaseq/hooks"
	"github.com/influxdata/schemaseq/kit/cli"
	"github.com/influxdata/schemaseq/migration"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

type migrateOptions struct {
	enabled     bool
	metricsFile string
}

func newMigrateCommand(v *viper.Viper, p *program) (*cobra.Command, error) {
	var o migrateOptions

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Bring every database up to the latest declared migration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return p.migrate(cmd.Context(), o)
		},
	}

	if err := cli.BindOptions(v, cmd, []cli.Opt{
		{
			DestP:   &o.enabled,
			Flag:    "enabled",
			Default: true,
			Desc:    "run pending migrations; when false only the persisted version is reported",
		},
		{
			DestP: &o.metricsFile,
			Flag:  "metrics-file",
			Desc:  "write migration metrics in the Prometheus text format to this file",
		},
	}); err != nil {
		return nil, err
	}

	return cmd, nil
}

// migrate runs one Sequencer per database. Databases are independent, so
// their sequencers run concurrently against the same store.
func (p *program) migrate(ctx context.Context, o migrateOptions) error {
	if err := p.requireDatabases(); err != nil {
		return err
	}
	migrations, err := p.loadMigrations()
	if err != nil {
		return err
	}
	store, err := p.newStore()
	if err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	cfgHooks := migration.Hooks{
		ShouldRunMigrations: []hooks.ShouldRunMigrationsHook{
			hooks.Logged(p.log),
			hooks.Enabled(o.enabled),
		},
	}

	var (
		mu      sync.Mutex
		results = make(map[string]schemaseq.MigrationResult, len(p.opts.databases))
	)
	g, ctx := errgroup.WithContext(ctx)
	for _, name := range p.opts.databases {
		seq := migration.NewSequencer(p.log, store, migration.Config{
			DatabaseName: name,
			Migrations:   migrations,
			Hooks:        cfgHooks,
		})
		if err := registerCollectors(reg, seq.PrometheusCollectors()); err != nil {
			return err
		}

		name := name
		g.Go(func() error {
			result, err := seq.Run(ctx)
			if err != nil {
				return fmt.Errorf("database %q: %w", name, err)
			}

			mu.Lock()
			results[name] = result
			mu.Unlock()
			return nil
		})
	}
	runErr := g.Wait()

	if o.metricsFile != "" {
		if err := prometheus.WriteToTextfile(o.metricsFile, reg); err != nil {
			p.log.Error("Failed to write metrics file", zap.String("path", o.metricsFile), zap.Error(err))
		}
	}
	if runErr != nil {
		return runErr
	}

	names := make([]string, 0, len(results))
	for name := range results {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(p.stdout, "%s\t%d\n", name, results[name].SchemaVersion)
	}
	return nil
}

func registerCollectors(reg prometheus.Registerer, cs []prometheus.Collector) error {
	for _, c := range cs {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
