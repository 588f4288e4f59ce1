package util

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogger_Levels(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(3) // debug level
	l.SetOutput(&buf)
	l.SetTimestamps(false)

	l.Error("e")
	l.Warn("w")
	l.Info("i")
	l.Verbose("v")
	l.Debug("d")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 5, buf.String())

	want := []string{"[ERR] e", "[WRN] w", "[INF] i", "[VRB] v", "[DBG] d"}
	for i, line := range want {
		assert.Equal(t, line, lines[i])
	}
}

func TestLogger_Thresholds(t *testing.T) {
	tests := []struct {
		verbosity int
		want      []string
	}{
		{0, []string{"[ERR]"}},
		{1, []string{"[ERR]", "[WRN]", "[INF]"}},
		{2, []string{"[ERR]", "[WRN]", "[INF]", "[VRB]"}},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		l := NewLogger(tt.verbosity)
		l.SetOutput(&buf)

		l.Error("x")
		l.Warn("x")
		l.Info("x")
		l.Verbose("x")
		l.Debug("x")

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		require.Len(t, lines, len(tt.want), "verbosity %d:\n%s", tt.verbosity, buf.String())
		for i, tag := range tt.want {
			assert.True(t, strings.HasPrefix(lines[i], tag), lines[i])
		}
	}
}

func TestLogger_Timestamps(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(1)
	l.SetOutput(&buf)
	l.SetTimestamps(true)

	l.Info("test %d", 42)

	// "HH:MM:SS.mmm [INF] test 42"
	fields := strings.Fields(buf.String())
	require.Len(t, fields, 4, buf.String())
	assert.Len(t, fields[0], len("15:04:05.000"))
	assert.Equal(t, "[INF]", fields[1])
	assert.Equal(t, "42", fields[3])
}

func TestLogger_Zap(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(1)
	l.SetOutput(&buf)

	l.Zap().Named("session").Info("connected")
	l.Sync()
	assert.Contains(t, buf.String(), "[INF]")
	assert.Contains(t, buf.String(), "connected")
}
