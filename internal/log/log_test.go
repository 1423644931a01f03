package log

import (
	"bytes"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func captureLogs(t *testing.T, level Level) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	SetOutput(&buf)
	SetMinLevel(level)
	SetEnabled(true)
	t.Cleanup(func() {
		SetMinLevel(LevelInfo)
		SetOutput(os.Stderr)
	})
	return &buf
}

func TestFormat_FieldsAndOrphanKey(t *testing.T) {
	ts := time.Date(2025, 12, 6, 10, 45, 0, 0, time.UTC)

	entry := format(ts, LevelError, CatDNA, "duplicate", "index", 3, "orphan")
	require.Equal(t, "2025-12-06T10:45:00 [ERROR] [dna] duplicate index=3 orphan=<missing>\n", entry)
}

func TestMinLevel_FiltersDebug(t *testing.T) {
	buf := captureLogs(t, LevelInfo)

	Debug(CatEngine, "hidden")
	Info(CatEngine, "shown", "edition", 1)

	out := buf.String()
	require.NotContains(t, out, "hidden")
	require.Contains(t, out, "[INFO] [engine] shown edition=1")
}

func TestDebugLevel_WritesDebug(t *testing.T) {
	buf := captureLogs(t, LevelDebug)

	Debug(CatRender, "Clearing canvas")
	require.Contains(t, buf.String(), "[DEBUG] [render] Clearing canvas")
}

func TestErrorErr_AppendsError(t *testing.T) {
	buf := captureLogs(t, LevelDebug)

	ErrorErr(CatStore, "write failed", errors.New("disk full"), "key", "images/1.png")
	ErrorErr(CatStore, "nil error", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	require.Contains(t, lines[0], `key=images/1.png error="disk full"`)
	require.Contains(t, lines[1], "error=<nil>")
}

func TestFormat_QuotesValues(t *testing.T) {
	ts := time.Date(2025, 12, 6, 10, 45, 0, 0, time.UTC)

	entry := format(ts, LevelInfo, CatCatalog, "Element", "name", "Eye color", "file", "Red#50.png", "empty", "")
	require.Equal(t, `2025-12-06T10:45:00 [INFO] [catalog] Element name="Eye color" file=Red#50.png empty=""`+"\n", entry)
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in      string
		want    Level
		wantErr bool
	}{
		{"debug", LevelDebug, false},
		{"INFO", LevelInfo, false},
		{"", LevelInfo, false},
		{"warning", LevelWarn, false},
		{" error ", LevelError, false},
		{"verbose", LevelInfo, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseLevel(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSetEnabled_False(t *testing.T) {
	buf := captureLogs(t, LevelDebug)
	SetEnabled(false)
	defer SetEnabled(true)

	Error(CatConfig, "dropped")
	require.Empty(t, buf.String())
}
