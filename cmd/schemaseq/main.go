package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/influxdata/schemaseq"
	"github.com/influxdata/schemaseq/bolt"
	"github.com/influxdata/schemaseq/definition"
	"github.com/influxdata/schemaseq/inmem"
	"github.com/influxdata/schemaseq/kit/cli"
	"github.com/influxdata/schemaseq/logger"
	"github.com/influxdata/schemaseq/migration"
	"github.com/influxdata/schemaseq/sqlite"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cmd, err := NewCommand(viper.New(), os.Stdout)
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	if err := cmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

const (
	engineBolt   = "bolt"
	engineSqlite = "sqlite"
	engineMemory = "memory"
)

// options are the settings shared by every subcommand.
type options struct {
	engine      string
	dir         string
	databases   []string
	definitions string
	logLevel    zapcore.Level
	logFormat   string
}

// program holds the state built from options once the flags are parsed.
type program struct {
	opts   options
	stdout io.Writer
	log    *zap.Logger
}

// NewCommand builds the schemaseq command tree. Options are read from
// flags, SCHEMASEQ_* environment variables and the config file named by
// SCHEMASEQ_CONFIG_PATH.
func NewCommand(v *viper.Viper, stdout io.Writer) (*cobra.Command, error) {
	p := &program{stdout: stdout}
	logDefaults := logger.NewConfig()

	cmd, err := cli.NewCommand(v, &cli.Program{
		Name: "schemaseq",
		Run:  func() error { return nil },
	})
	if err != nil {
		return nil, err
	}
	cmd.Short = "Apply ordered schema migrations to embedded databases"
	cmd.SilenceUsage = true
	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		return cmd.Help()
	}
	cmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		log, err := logger.Config{Format: p.opts.logFormat, Level: p.opts.logLevel}.New(cmd.ErrOrStderr())
		if err != nil {
			return err
		}
		p.log = log
		return nil
	}

	if err := cli.BindOptions(v, cmd, []cli.Opt{
		{
			DestP:      &p.opts.engine,
			Flag:       "engine",
			Persistent: true,
			Default:    engineBolt,
			Desc:       "storage engine: bolt, sqlite or memory",
		},
		{
			DestP:      &p.opts.dir,
			Flag:       "dir",
			Persistent: true,
			Default:    ".",
			Desc:       "directory holding the database files",
		},
		{
			DestP:      &p.opts.databases,
			Flag:       "db",
			Persistent: true,
			Desc:       "database name, may be given more than once",
		},
		{
			DestP:      &p.opts.definitions,
			Flag:       "definitions",
			Short:      'f',
			Persistent: true,
			Desc:       "migration definition file (.toml, .yaml, .json or .jsonnet)",
		},
		{
			DestP:      &p.opts.logLevel,
			Flag:       "log-level",
			Persistent: true,
			Default:    logDefaults.Level,
			Desc:       "supported log levels are debug, info, warn and error",
		},
		{
			DestP:      &p.opts.logFormat,
			Flag:       "log-format",
			Persistent: true,
			Default:    logDefaults.Format,
			Desc:       "log format: auto, console, logfmt or json",
		},
	}); err != nil {
		return nil, err
	}

	for _, sub := range []func(*viper.Viper, *program) (*cobra.Command, error){
		newMigrateCommand,
		newVersionCommand,
		newSchemaCommand,
		newDiffCommand,
	} {
		c, err := sub(v, p)
		if err != nil {
			return nil, err
		}
		cmd.AddCommand(c)
	}

	return cmd, nil
}

func (p *program) newStore() (migration.Store, error) {
	switch p.opts.engine {
	case engineBolt:
		return bolt.NewStore(p.log, p.opts.dir), nil
	case engineSqlite:
		return sqlite.NewStore(p.log, p.opts.dir), nil
	case engineMemory:
		return inmem.NewStore(p.log), nil
	default:
		return nil, fmt.Errorf("unknown engine %q", p.opts.engine)
	}
}

func (p *program) requireDatabases() error {
	if len(p.opts.databases) == 0 {
		return fmt.Errorf("at least one --db is required")
	}

	seen := make(map[string]struct{}, len(p.opts.databases))
	for _, name := range p.opts.databases {
		if _, ok := seen[name]; ok {
			return fmt.Errorf("database %q is given more than once", name)
		}
		seen[name] = struct{}{}
	}
	return nil
}

// loadMigrations reads and validates the definition file.
func (p *program) loadMigrations() ([]schemaseq.Migration, error) {
	if p.opts.definitions == "" {
		return nil, fmt.Errorf("--definitions is required")
	}

	migrations, err := definition.Load(p.opts.definitions)
	if err != nil {
		return nil, err
	}
	if err := definition.Validate(migrations); err != nil {
		return nil, err
	}
	return migrations, nil
}
