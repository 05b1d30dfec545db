package applog

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"strings"
	"testing"
)

func TestNew_JSON(t *testing.T) {
	var buf bytes.Buffer
	log, flush := New(Config{Level: "info", Format: "json", Output: &buf})
	log.Info("indexed", "key", "trusted/a.txt")
	log.Debug("hidden")
	flush()

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 1 {
		t.Fatalf("expected one line, got %d: %q", len(lines), buf.String())
	}
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[0]), &entry); err != nil {
		t.Fatalf("not JSON: %v", err)
	}
	if entry["msg"] != "indexed" || entry["key"] != "trusted/a.txt" {
		t.Fatalf("unexpected entry %v", entry)
	}
}

func TestInit_SetsDefault(t *testing.T) {
	prev := slog.Default()
	defer slog.SetDefault(prev)

	var buf bytes.Buffer
	_, flush := Init(Config{Level: "debug", Output: &buf}, "indexer")
	slog.Debug("hello")
	flush()
	if !strings.Contains(buf.String(), `"service":"indexer"`) {
		t.Fatalf("expected service field, got %q", buf.String())
	}
}

func TestLevels(t *testing.T) {
	cases := map[string]slog.Level{
		"debug": slog.LevelDebug, "WARN": slog.LevelWarn, " error ": slog.LevelError, "": slog.LevelInfo, "bogus": slog.LevelInfo,
	}
	for in, want := range cases {
		if got := slogLevel(in); got != want {
			t.Errorf("slogLevel(%q) = %v, want %v", in, got, want)
		}
	}
}
