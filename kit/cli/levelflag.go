package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"go.uber.org/zap/zapcore"
)

// supportedLevels are the levels accepted by a level flag.
var supportedLevels = []zapcore.Level{
	zapcore.DebugLevel,
	zapcore.InfoLevel,
	zapcore.WarnLevel,
	zapcore.ErrorLevel,
}

// levelFlag is a pflag.Value writing through to a zapcore.Level.
type levelFlag struct {
	p *zapcore.Level
}

func (f levelFlag) String() string {
	if f.p == nil {
		return ""
	}
	return f.p.String()
}

func (f levelFlag) Set(s string) error {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(s)); err == nil {
		for _, l := range supportedLevels {
			if l == level {
				*f.p = level
				return nil
			}
		}
	}

	names := make([]string, len(supportedLevels))
	for i, l := range supportedLevels {
		names[i] = l.String()
	}
	return fmt.Errorf("unknown log level %q; supported levels are %s", s, strings.Join(names, ", "))
}

func (levelFlag) Type() string {
	return "level"
}

// LevelVarP defines a zapcore.Level flag with a shorthand, stored in p and
// initialized to value.
func LevelVarP(fs *pflag.FlagSet, p *zapcore.Level, name, shorthand string, value zapcore.Level, usage string) {
	*p = value
	fs.VarP(levelFlag{p: p}, name, shorthand, usage)
}
