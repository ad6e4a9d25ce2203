package gologger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestSlogLoggerWritesStructuredRecords(t *testing.T) {
	var buf bytes.Buffer
	root := NewSlogLogger(&buf, "debug")
	logger := Component(SlogProvider{Root: root}, nil, "client")

	root.WithFields(map[string]any{"app_id": "cli_1"}).Info("token refreshed", "expires_in", 7200)
	logger.Debug("list tasks", "page", 2)
	logger.Trace("dropped")

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two records, got %d: %q", len(lines), buf.String())
	}
	var first map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("decode first record: %v", err)
	}
	if first["msg"] != "token refreshed" || first["app_id"] != "cli_1" || first["expires_in"] != float64(7200) {
		t.Fatalf("unexpected first record %#v", first)
	}
	var second map[string]any
	if err := json.Unmarshal([]byte(lines[1]), &second); err != nil {
		t.Fatalf("decode second record: %v", err)
	}
	if second["logger"] != "feishu.client" || second["level"] != "DEBUG" {
		t.Fatalf("unexpected second record %#v", second)
	}
}

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{
		"trace":   levelTrace,
		"DEBUG":   slog.LevelDebug,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"":        slog.LevelInfo,
		"loud":    slog.LevelInfo,
	}
	for input, want := range cases {
		if got := ParseLevel(input); got != want {
			t.Fatalf("ParseLevel(%q) = %v, want %v", input, got, want)
		}
	}
}
