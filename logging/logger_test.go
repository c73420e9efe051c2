package logging

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNewLogger_WritesFile(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "logs", "app.log")

	logger, err := NewLogger(Options{FilePath: logPath})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if got := logger.Named("stylize").LogFilePath(); got != logPath {
		t.Errorf("LogFilePath() = %q, want %q", got, logPath)
	}

	logger.Info("server started", zap.String("addr", ":8000"))
	_ = logger.Sync()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("read log file: %v", err)
	}
	if !strings.Contains(string(data), `"message":"server started"`) {
		t.Errorf("log file missing entry, got %s", data)
	}
}

func TestNewLogger_ConsoleOnly(t *testing.T) {
	logger, err := NewLogger(Options{Development: true})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	if logger.LogFilePath() != "" {
		t.Errorf("LogFilePath() = %q, want empty", logger.LogFilePath())
	}
}

func TestNewLogger_UnwritablePath(t *testing.T) {
	dir := t.TempDir()
	blocker := filepath.Join(dir, "file")
	if err := os.WriteFile(blocker, nil, 0o644); err != nil {
		t.Fatal(err)
	}

	// A regular file cannot be used as a directory.
	if _, err := NewLogger(Options{FilePath: filepath.Join(blocker, "app.log")}); err == nil {
		t.Error("NewLogger() error = nil, want error for unusable path")
	}
}

func TestNewLogger_LevelOverride(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "app.log")

	logger, err := NewLogger(Options{Development: true, Level: "warn", FilePath: logPath})
	if err != nil {
		t.Fatalf("NewLogger() error = %v", err)
	}
	logger.Info("hidden")
	logger.Warn("visible")
	_ = logger.Sync()

	data, _ := os.ReadFile(logPath)
	if strings.Contains(string(data), "hidden") {
		t.Error("info entry written despite warn level")
	}
	if !strings.Contains(string(data), "visible") {
		t.Error("warn entry missing")
	}
}

func TestLogger_RedactsFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewWithCore(core)

	logger.Info("configured",
		zap.String("openai_api_key", "anything"),
		zap.String("note", "using sk-abcdefghijklmnopqrstuvwxyz0123"),
		zap.Error(errors.New("401 for Bearer abcdefghijklmnopqrstuvwxyz")),
		zap.String("backend", "openai"),
	)

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("got %d entries, want 1", len(entries))
	}
	ctx := entries[0].ContextMap()

	if ctx["openai_api_key"] != RedactedPlaceholder {
		t.Errorf("openai_api_key = %v, want redacted", ctx["openai_api_key"])
	}
	if s, _ := ctx["note"].(string); strings.Contains(s, "sk-") {
		t.Errorf("note not redacted: %q", s)
	}
	if s, _ := ctx["error"].(string); strings.Contains(s, "abcdefghij") {
		t.Errorf("error not redacted: %q", s)
	}
	if ctx["backend"] != "openai" {
		t.Errorf("backend = %v, want untouched", ctx["backend"])
	}
}

func TestLogger_WithAndNamed(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	logger := NewWithCore(core).Named("server").With(zap.String("request_id", "abc"))

	logger.Debug("handled")

	entry := logs.All()[0]
	if entry.LoggerName != "server" {
		t.Errorf("LoggerName = %q, want server", entry.LoggerName)
	}
	if entry.ContextMap()["request_id"] != "abc" {
		t.Errorf("request_id missing from context: %v", entry.ContextMap())
	}
}

func TestNewNop(t *testing.T) {
	logger := NewNop()
	logger.Error("dropped")
	if err := logger.Sync(); err != nil {
		t.Errorf("Sync() error = %v", err)
	}

	var nilLogger *Logger
	if err := nilLogger.Sync(); err != nil {
		t.Errorf("nil Sync() error = %v", err)
	}
}
