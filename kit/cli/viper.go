package cli

import (
	"fmt"
	"os"
	"path"
	"strings"
	"time"

	"github.com/spf13/cast"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap/zapcore"
)

// Opt is a single command-line option
type Opt struct {
	DestP interface{} // pointer to the destination

	Flag       string
	Short      rune
	Persistent bool
	Required   bool
	Hidden     bool

	Default interface{}
	Desc    string
}

// Program parses CLI options
type Program struct {
	// Run is invoked by cobra on execute.
	Run func() error
	// Name is the name of the program in help usage and the env var prefix.
	Name string
	// Opts are the command line/env var options to the program
	Opts []Opt
}

// NewCommand creates a new cobra command to be executed that respects env vars
// and an optional config file.
//
// Uses the upper-case version of the program's name as a prefix
// to all environment variables. The config file is read from the path in
// <NAME>_CONFIG_PATH, or from a config.{json,toml,yaml,yml} in the working
// directory.
func NewCommand(v *viper.Viper, p *Program) (*cobra.Command, error) {
	cmd := &cobra.Command{
		Use:  p.Name,
		Args: cobra.NoArgs,
		RunE: func(_ *cobra.Command, _ []string) error {
			return p.Run()
		},
	}

	v.SetEnvPrefix(strings.ToUpper(p.Name))
	v.AutomaticEnv()
	// This normalizes "-" to an underscore in env names.
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))

	if err := initializeConfig(v); err != nil {
		return nil, err
	}

	if err := BindOptions(v, cmd, p.Opts); err != nil {
		return nil, err
	}

	return cmd, nil
}

func initializeConfig(v *viper.Viper) error {
	configPath := v.GetString("CONFIG_PATH")
	if configPath == "" {
		// Default to looking in the working directory of the running process.
		configPath = "."
	}

	switch strings.ToLower(path.Ext(configPath)) {
	case ".json", ".toml", ".yaml", ".yml":
		v.SetConfigFile(configPath)
	default:
		v.AddConfigPath(configPath)
	}

	if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return err
		}
	}
	return nil
}

// BindOptions adds opts to the specified command and automatically
// registers those options with viper. Values already present in the
// environment or config file are written to the destinations; flags given on
// the command line take precedence when the command executes.
func BindOptions(v *viper.Viper, cmd *cobra.Command, opts []Opt) error {
	for _, o := range opts {
		flagset := cmd.Flags()
		if o.Persistent {
			flagset = cmd.PersistentFlags()
		}
		short := ""
		if o.Short != 0 {
			short = string(o.Short)
		}

		// read before binding so an unset value is nil rather than the flag default
		fromEnv := v.Get(o.Flag) != nil

		switch destP := o.DestP.(type) {
		case *string:
			var d string
			if o.Default != nil {
				d = o.Default.(string)
			}
			flagset.StringVarP(destP, o.Flag, short, d, o.Desc)
			if err := v.BindPFlag(o.Flag, flagset.Lookup(o.Flag)); err != nil {
				return err
			}
			if fromEnv {
				*destP = v.GetString(o.Flag)
			}
		case *int:
			var d int
			if o.Default != nil {
				d = o.Default.(int)
			}
			flagset.IntVarP(destP, o.Flag, short, d, o.Desc)
			if err := v.BindPFlag(o.Flag, flagset.Lookup(o.Flag)); err != nil {
				return err
			}
			if fromEnv {
				*destP = v.GetInt(o.Flag)
			}
		case *int32:
			var d int32
			if o.Default != nil {
				// untyped constants default to int
				d = cast.ToInt32(o.Default)
			}
			flagset.Int32VarP(destP, o.Flag, short, d, o.Desc)
			if err := v.BindPFlag(o.Flag, flagset.Lookup(o.Flag)); err != nil {
				return err
			}
			if fromEnv {
				*destP = v.GetInt32(o.Flag)
			}
		case *int64:
			var d int64
			if o.Default != nil {
				d = cast.ToInt64(o.Default)
			}
			flagset.Int64VarP(destP, o.Flag, short, d, o.Desc)
			if err := v.BindPFlag(o.Flag, flagset.Lookup(o.Flag)); err != nil {
				return err
			}
			if fromEnv {
				*destP = v.GetInt64(o.Flag)
			}
		case *bool:
			var d bool
			if o.Default != nil {
				d = o.Default.(bool)
			}
			flagset.BoolVarP(destP, o.Flag, short, d, o.Desc)
			if err := v.BindPFlag(o.Flag, flagset.Lookup(o.Flag)); err != nil {
				return err
			}
			if fromEnv {
				*destP = v.GetBool(o.Flag)
			}
		case *time.Duration:
			var d time.Duration
			if o.Default != nil {
				d = o.Default.(time.Duration)
			}
			flagset.DurationVarP(destP, o.Flag, short, d, o.Desc)
			if err := v.BindPFlag(o.Flag, flagset.Lookup(o.Flag)); err != nil {
				return err
			}
			if fromEnv {
				*destP = v.GetDuration(o.Flag)
			}
		case *[]string:
			var d []string
			if o.Default != nil {
				d = o.Default.([]string)
			}
			flagset.StringSliceVarP(destP, o.Flag, short, d, o.Desc)
			if err := v.BindPFlag(o.Flag, flagset.Lookup(o.Flag)); err != nil {
				return err
			}
			if fromEnv {
				*destP = v.GetStringSlice(o.Flag)
			}
		case *zapcore.Level:
			var d zapcore.Level
			if o.Default != nil {
				d = o.Default.(zapcore.Level)
			}
			LevelVarP(flagset, destP, o.Flag, short, d, o.Desc)
			if err := v.BindPFlag(o.Flag, flagset.Lookup(o.Flag)); err != nil {
				return err
			}
			if fromEnv {
				if err := (levelFlag{p: destP}).Set(v.GetString(o.Flag)); err != nil {
					return fmt.Errorf("invalid value for %s: %w", o.Flag, err)
				}
			}
		case pflag.Value:
			if o.Default != nil {
				_ = destP.Set(o.Default.(string))
			}
			flagset.VarP(destP, o.Flag, short, o.Desc)
			if err := v.BindPFlag(o.Flag, flagset.Lookup(o.Flag)); err != nil {
				return err
			}
			if fromEnv {
				if err := destP.Set(v.GetString(o.Flag)); err != nil {
					return fmt.Errorf("invalid value for %s: %w", o.Flag, err)
				}
			}
		default:
			// if you get a panic here, sorry about that!
			// anyway, go ahead and make a PR and add another type.
			panic(fmt.Errorf("unknown destination type %T", o.DestP))
		}

		if o.Required && !fromEnv {
			mark := cmd.MarkFlagRequired
			if o.Persistent {
				mark = cmd.MarkPersistentFlagRequired
			}
			if err := mark(o.Flag); err != nil {
				return err
			}
		}
		if o.Hidden {
			if err := flagset.MarkHidden(o.Flag); err != nil {
				return err
			}
		}
	}
	return nil
}
