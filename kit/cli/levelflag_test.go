package cli

import (
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestLevelVarP(t *testing.T) {
	var level zapcore.Level
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	LevelVarP(fs, &level, "log-level", "l", zapcore.WarnLevel, "")
	require.Equal(t, zapcore.WarnLevel, level)

	require.NoError(t, fs.Parse([]string{"-l", "debug"}))
	require.Equal(t, zapcore.DebugLevel, level)
	require.Equal(t, "debug", fs.Lookup("log-level").Value.String())

	require.NoError(t, fs.Set("log-level", "ERROR"))
	require.Equal(t, zapcore.ErrorLevel, level)

	err := fs.Set("log-level", "fatal")
	require.EqualError(t, err, `unknown log level "fatal"; supported levels are debug, info, warn, error`)
	require.Equal(t, zapcore.ErrorLevel, level)
}
