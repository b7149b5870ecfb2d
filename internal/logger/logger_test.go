package logger

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileOutput(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")

	cfg := FileConfig{Path: logFile, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1}
	if err := InitWithFileConfig("debug", cfg, false); err != nil {
		t.Fatalf("failed to init logger: %v", err)
	}

	Stage("camera setup")
	Info("rendered image")
	Sync()

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("reading log file: %v", err)
	}
	out := string(data)
	if !strings.Contains(out, "stage: camera setup") {
		t.Errorf("log output missing stage line: %q", out)
	}
	if !strings.Contains(out, "rendered image") {
		t.Errorf("log output missing info line: %q", out)
	}
}

func TestStageFilteredBelowDebug(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "test.log")

	cfg := FileConfig{Path: logFile, MaxSizeMB: 1, MaxBackups: 1, MaxAgeDays: 1}
	if err := InitWithFileConfig("info", cfg, false); err != nil {
		t.Fatalf("failed to init logger: %v", err)
	}

	Stage("linking")
	Sync()

	data, err := os.ReadFile(logFile)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("reading log file: %v", err)
	}
	if strings.Contains(string(data), "linking") {
		t.Error("stage lines should be suppressed without the verbose level")
	}
}
