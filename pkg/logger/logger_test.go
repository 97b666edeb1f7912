package logger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]zapcore.Level{
		"INFO":    zapcore.InfoLevel,
		"debug":   zapcore.DebugLevel,
		"WARNING": zapcore.WarnLevel,
		"Error":   zapcore.ErrorLevel,
		"":        zapcore.InfoLevel,
	}
	for in, want := range cases {
		got, err := parseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := parseLevel("verbose")
	assert.Error(t, err)
}

func TestNew(t *testing.T) {
	prod, err := New("WARNING", "production")
	require.NoError(t, err)
	assert.False(t, prod.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, prod.Core().Enabled(zapcore.WarnLevel))

	dev, err := New("DEBUG", "development")
	require.NoError(t, err)
	assert.True(t, dev.Core().Enabled(zapcore.DebugLevel))
}

func TestInit(t *testing.T) {
	require.NoError(t, Init("INFO", "production"))
	assert.NotNil(t, Logger())

	assert.Error(t, Init("nope", "production"))
}
