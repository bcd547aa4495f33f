package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestNopLoggerIsSafe(t *testing.T) {
	l := Nop()
	l.Debugf("test", "message %d", 1)
	l.Errorf("test", "message")
	if err := l.Close(); err != nil {
		t.Errorf("unexpected error closing nop logger: %v", err)
	}

	var nilLogger *Logger
	nilLogger.Infof("test", "should not panic")
}

func TestFileLoggerWritesTaggedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "squadron.log")
	l, err := New(path, LevelDebug)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	l.Infof("graph", "added task %s", "t-1")
	l.Warnf("coordinator", "resource %s contended", "cpu")
	if err := l.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "[graph] added task t-1") {
		t.Errorf("missing graph line in output:\n%s", out)
	}
	if !strings.Contains(out, "WARN") || !strings.Contains(out, "[coordinator]") {
		t.Errorf("missing coordinator warning in output:\n%s", out)
	}
}

func TestMinimumLevelFilters(t *testing.T) {
	path := filepath.Join(t.TempDir(), "squadron.log")
	l, err := New(path, LevelWarn)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	l.Debugf("graph", "hidden")
	l.Infof("graph", "also hidden")
	l.Errorf("graph", "visible")
	l.Close()

	data, _ := os.ReadFile(path)
	if strings.Contains(string(data), "hidden") {
		t.Error("below-threshold lines should not be written")
	}
	if !strings.Contains(string(data), "visible") {
		t.Error("error line should be written")
	}
}

func TestParseLevel(t *testing.T) {
	if ParseLevel("debug") != LevelDebug {
		t.Error("debug")
	}
	if ParseLevel("warning") != LevelWarn {
		t.Error("warning")
	}
	if ParseLevel("nonsense") != LevelInfo {
		t.Error("unknown should default to info")
	}
}
