package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"go.uber.org/zap/zapcore"
)

func TestRotatingFileWriterRotates(t *testing.T) {
	path := filepath.Join(t.TempDir(), "logs", "app.log")
	rw, err := NewRotatingFileWriter(path, 10, 2)
	if err != nil {
		t.Fatalf("NewRotatingFileWriter() failed: %v", err)
	}
	defer rw.Close()

	for _, line := range []string{"aaaaaaaa\n", "bbbbbbbb\n", "cccccccc\n", "dddddddd\n"} {
		if _, err := rw.Write([]byte(line)); err != nil {
			t.Fatal(err)
		}
	}

	read := func(p string) string {
		b, err := os.ReadFile(p)
		if err != nil {
			t.Fatalf("read %s: %v", p, err)
		}
		return string(b)
	}
	if got := read(path); got != "dddddddd\n" {
		t.Errorf("current = %q", got)
	}
	if got := read(path + ".1"); got != "cccccccc\n" {
		t.Errorf(".1 = %q", got)
	}
	if got := read(path + ".2"); got != "bbbbbbbb\n" {
		t.Errorf(".2 = %q", got)
	}
	if _, err := os.Stat(path + ".3"); !os.IsNotExist(err) {
		t.Errorf(".3 exists beyond backup_count")
	}
}

func TestParseLevel(t *testing.T) {
	tests := map[string]zapcore.Level{
		"DEBUG":    zapcore.DebugLevel,
		"info":     zapcore.InfoLevel,
		"WARNING":  zapcore.WarnLevel,
		"error":    zapcore.ErrorLevel,
		"CRITICAL": zapcore.DPanicLevel,
		"bogus":    zapcore.InfoLevel,
	}
	for in, want := range tests {
		if got := ParseLevel(in); got != want {
			t.Errorf("ParseLevel(%q) = %v, want %v", in, got, want)
		}
	}
}

func TestConfigureLoggingWritesFile(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LogFile = filepath.Join(t.TempDir(), "preview.log")
	cfg.LogToStdout = false
	cfg.LogLevel = "WARNING"

	logger, cleanup, err := ConfigureLogging(cfg)
	if err != nil {
		t.Fatalf("ConfigureLogging() failed: %v", err)
	}
	log := logger.Named("capture")
	log.Info("hidden")
	log.Warnw("Frame read failed", "errors", 3)
	cleanup()

	data, err := os.ReadFile(cfg.LogFile)
	if err != nil {
		t.Fatal(err)
	}
	out := string(data)
	if strings.Contains(out, "hidden") {
		t.Error("info line written at WARNING level")
	}
	for _, want := range []string{"WARN", "capture", "Frame read failed", "errors"} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %q: %s", want, out)
		}
	}
}
