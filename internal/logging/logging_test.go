package logging

import (
	"bytes"
	"encoding/json"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogFilePath(t *testing.T) {
	sessionStart := time.Date(2026, 2, 12, 21, 38, 36, 0, time.UTC)

	tests := []struct {
		name        string
		logsDir     string
		programName string
		want        string
	}{
		{
			name:        "basic path",
			logsDir:     "kartlogs",
			programName: "kartserver",
			want:        filepath.Join("kartlogs", "kartserver.20260212_213836.log"),
		},
		{
			name:        "relative path with dot",
			logsDir:     "./kartlogs",
			programName: "kartclient",
			want:        filepath.Join(".", "kartlogs", "kartclient.20260212_213836.log"),
		},
		{
			name:        "absolute path",
			logsDir:     filepath.Join("/var", "log", "kartsync"),
			programName: "kartserver",
			want:        filepath.Join("/var", "log", "kartsync", "kartserver.20260212_213836.log"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := LogFilePath(tt.logsDir, tt.programName, sessionStart)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNewZerolog(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerolog(&buf, "warn", "influx")

	logger.Info().Msg("hidden")
	logger.Warn().Str("bucket", "reconciliation").Msg("shown")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "warn", entry["level"])
	assert.Equal(t, "shown", entry["message"])
	assert.Equal(t, "influx", entry["component"])
	assert.Equal(t, "reconciliation", entry["bucket"])
}

func TestNewZerolog_UnknownLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewZerolog(&buf, "loud", "db")

	logger.Debug().Msg("hidden")
	logger.Info().Msg("shown")

	assert.NotContains(t, buf.String(), "hidden")
	assert.Contains(t, buf.String(), "shown")
}

func TestNewGELFWriter_BadAddress(t *testing.T) {
	_, err := NewGELFWriter("not-an-address")
	assert.Error(t, err)
}
