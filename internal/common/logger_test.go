package common

import (
	"bytes"
	"errors"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug": slog.LevelDebug,
		"info":  slog.LevelInfo,
		"":      slog.LevelInfo,
		"warn":  slog.LevelWarn,
		"error": slog.LevelError,
	}
	for in, want := range tests {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParseLevel("verbose")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSetupLoggerTo(t *testing.T) {
	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	var buf bytes.Buffer
	require.NoError(t, SetupLoggerTo(&buf, slog.LevelInfo, "json"))
	slog.Debug("hidden")
	LogError(errors.New("boom"), "Approval failed", Fields{"rule_id": 7})

	out := buf.String()
	assert.NotContains(t, out, "hidden")
	assert.Contains(t, out, `"msg":"Approval failed"`)
	assert.Contains(t, out, `"error":"boom"`)
	assert.Contains(t, out, `"rule_id":7`)

	buf.Reset()
	require.NoError(t, SetupLoggerTo(&buf, slog.LevelDebug, "console"))
	slog.Debug("visible", "customer", "Acme")
	assert.Contains(t, buf.String(), "msg=visible customer=Acme")

	assert.ErrorIs(t, SetupLoggerTo(&buf, slog.LevelInfo, "yaml"), ErrInvalidConfig)
}
