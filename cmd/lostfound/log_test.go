package main

import (
	"bytes"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLevelRouter(t *testing.T) {
	var stdout, stderr bytes.Buffer
	logPath := filepath.Join(t.TempDir(), "lostfound.log")

	prev := slog.Default()
	t.Cleanup(func() { slog.SetDefault(prev) })

	cleanup, err := setupLogger(&stdout, &stderr, logPath)
	if err != nil {
		t.Fatalf("setupLogger: %v", err)
	}

	slog.Debug("hidden")
	slog.Info("item reported")
	slog.Warn("image cleanup failed")
	slog.Error("delete item failed")
	cleanup()

	if strings.Contains(stdout.String(), "hidden") {
		t.Error("expected debug records to be dropped")
	}
	if !strings.Contains(stdout.String(), "item reported") || !strings.Contains(stdout.String(), "image cleanup failed") {
		t.Errorf("expected info and warn on stdout, got %q", stdout.String())
	}
	if strings.Contains(stdout.String(), "delete item failed") {
		t.Error("expected error records to stay off stdout")
	}
	if !strings.Contains(stderr.String(), "delete item failed") {
		t.Errorf("expected error on stderr, got %q", stderr.String())
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	for _, msg := range []string{"item reported", "image cleanup failed", "delete item failed"} {
		if !strings.Contains(string(data), msg) {
			t.Errorf("expected %q in log file", msg)
		}
	}
}
