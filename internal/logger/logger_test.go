package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func newFileLogger(t *testing.T, level Level) (*DefaultLogger, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.log")
	l, err := NewDefaultLogger(&Config{
		LogFilePath: path,
		MaxFileSize: 1024 * 1024,
		MaxBackups:  1,
		Level:       level,
	})
	if err != nil {
		t.Fatalf("NewDefaultLogger failed: %v", err)
	}
	return l, path
}

func readLog(t *testing.T, path string) string {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

// ============================================================================
// Level filtering and formatting
// ============================================================================

func TestLevelFiltering(t *testing.T) {
	l, path := newFileLogger(t, LevelWarn)
	defer l.Close()

	l.Debug("debug message")
	l.Info("info message")
	l.Warn("warn message")
	l.Error("error message", nil)

	out := readLog(t, path)
	if strings.Contains(out, "debug message") || strings.Contains(out, "info message") {
		t.Error("messages below the level must be dropped")
	}
	if !strings.Contains(out, "warn message") || !strings.Contains(out, "error message") {
		t.Error("messages at or above the level must be written")
	}
}

func TestFieldFormatting(t *testing.T) {
	l, path := newFileLogger(t, LevelDebug)
	defer l.Close()

	l.Info("processing file",
		String("file", "main.tex"),
		Int("elements", 42),
		Bool("repaired", true))

	out := readLog(t, path)
	for _, want := range []string{"[INFO]", "processing file", "file=main.tex", "elements=42", "repaired=true"} {
		if !strings.Contains(out, want) {
			t.Errorf("log entry missing %q: %s", want, out)
		}
	}
}

func TestSetLevel(t *testing.T) {
	l, path := newFileLogger(t, LevelError)
	defer l.Close()

	l.Info("before")
	l.SetLevel(LevelInfo)
	l.Info("after")

	out := readLog(t, path)
	if strings.Contains(out, "before") {
		t.Error("message below initial level leaked")
	}
	if !strings.Contains(out, "after") {
		t.Error("message after SetLevel missing")
	}
}

// ============================================================================
// Rotation
// ============================================================================

func TestRotationKeepsBackups(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rotate.log")
	l, err := NewDefaultLogger(&Config{
		LogFilePath: path,
		MaxFileSize: 200,
		MaxBackups:  2,
		Level:       LevelDebug,
	})
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()

	for i := 0; i < 50; i++ {
		l.Info("a reasonably long log line to force rotation soon")
	}

	if _, err := os.Stat(path); err != nil {
		t.Errorf("active log file missing: %v", err)
	}
	if _, err := os.Stat(path + ".1"); err != nil {
		t.Errorf("rotated backup missing: %v", err)
	}
}

// ============================================================================
// Global logger
// ============================================================================

func TestGlobalLoggerFallsBackToNoop(t *testing.T) {
	SetGlobalLogger(nil)
	// Must not panic without Init.
	Info("into the void")
	Debug("also fine")
}
