package cli

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	t.Run("config flag", func(t *testing.T) {
		var out bytes.Buffer
		cfg, exit, err := Parse([]string{"-config", "service.hcl"}, &out)
		require.NoError(t, err)
		require.False(t, exit)
		assert.Equal(t, "service.hcl", cfg.ConfigPath)
		assert.Equal(t, "json", cfg.LogFormat)
		assert.Equal(t, "info", cfg.LogLevel)
	})

	t.Run("shorthand flags", func(t *testing.T) {
		var out bytes.Buffer
		cfg, _, err := Parse([]string{"-c", "service.hcl", "-r", "events.jsonl"}, &out)
		require.NoError(t, err)
		assert.Equal(t, "service.hcl", cfg.ConfigPath)
		assert.Equal(t, "events.jsonl", cfg.ReplayPath)
	})

	t.Run("positional config path", func(t *testing.T) {
		var out bytes.Buffer
		cfg, _, err := Parse([]string{"service.hcl"}, &out)
		require.NoError(t, err)
		assert.Equal(t, "service.hcl", cfg.ConfigPath)
	})

	t.Run("replay only", func(t *testing.T) {
		var out bytes.Buffer
		cfg, exit, err := Parse([]string{"-replay", "events.jsonl", "-print"}, &out)
		require.NoError(t, err)
		require.False(t, exit)
		assert.Empty(t, cfg.ConfigPath)
		assert.Equal(t, "events.jsonl", cfg.ReplayPath)
		assert.True(t, cfg.Print)
	})

	t.Run("listen override", func(t *testing.T) {
		var out bytes.Buffer
		cfg, _, err := Parse([]string{"-config", "service.hcl", "-listen", ":9000"}, &out)
		require.NoError(t, err)
		assert.Equal(t, ":9000", cfg.Listen)
	})

	t.Run("no arguments prints usage and exits cleanly", func(t *testing.T) {
		var out bytes.Buffer
		cfg, exit, err := Parse(nil, &out)
		require.NoError(t, err)
		assert.True(t, exit)
		assert.Nil(t, cfg)
		assert.Contains(t, out.String(), "Usage:")
	})

	t.Run("help flag exits cleanly", func(t *testing.T) {
		var out bytes.Buffer
		_, exit, err := Parse([]string{"-h"}, &out)
		require.NoError(t, err)
		assert.True(t, exit)
	})

	t.Run("invalid log format", func(t *testing.T) {
		var out bytes.Buffer
		_, _, err := Parse([]string{"-config", "x.hcl", "-log-format", "xml"}, &out)
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 2, exitErr.Code)
		assert.Contains(t, exitErr.Message, "invalid log-format")
	})

	t.Run("invalid log level", func(t *testing.T) {
		var out bytes.Buffer
		_, _, err := Parse([]string{"-config", "x.hcl", "-log-level", "trace"}, &out)
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Contains(t, exitErr.Message, "invalid log-level")
	})

	t.Run("unknown flag", func(t *testing.T) {
		var out bytes.Buffer
		_, _, err := Parse([]string{"-bogus"}, &out)
		var exitErr *ExitError
		require.ErrorAs(t, err, &exitErr)
		assert.Equal(t, 2, exitErr.Code)
	})
}
