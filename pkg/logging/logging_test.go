package logging

import (
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestParseLevelKnownNames(t *testing.T) {
	cases := map[string]slog.Level{
		"TRACE":  LevelTrace,
		"debug":  LevelDebug,
		"Info":   LevelInfo,
		"NOTICE": LevelNotice,
		"warn":   LevelWarn,
		"error":  LevelError,
		"FATAL":  LevelFatal,
	}
	for name, want := range cases {
		got, err := ParseLevel(name)
		require.NoError(t, err)
		require.Equal(t, want, got)
	}
}

func TestParseLevelUnknownNameFails(t *testing.T) {
	_, err := ParseLevel("VERBOSE")
	require.Error(t, err)
}

func TestSetLevelChangesLevel(t *testing.T) {
	l := New(LevelInfo)
	require.Equal(t, LevelInfo, l.Level())
	l.SetLevel(LevelDebug)
	require.Equal(t, LevelDebug, l.Level())
	require.True(t, l.Enabled(context.Background(), LevelDebug))
	require.False(t, l.Enabled(context.Background(), LevelTrace))
}

func TestNewWithFormatDefaultsUnknownFormatToText(t *testing.T) {
	l := NewWithFormat(LevelInfo, "made-up-format")
	require.NotNil(t, l.Logger)
}

func TestLevelOrdering(t *testing.T) {
	require.True(t, LevelTrace < LevelDebug)
	require.True(t, LevelDebug < LevelInfo)
	require.True(t, LevelInfo < LevelNotice)
	require.True(t, LevelNotice < LevelWarn)
	require.True(t, LevelWarn < LevelError)
	require.True(t, LevelError < LevelFatal)
}
