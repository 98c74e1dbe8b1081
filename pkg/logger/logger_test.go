package logger

import (
	"bytes"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"
)

func TestLogLevelFiltering(t *testing.T) {
	originalLogger := Logger
	t.Cleanup(func() {
		Logger = originalLogger
		SetLogLevel(INFO)
	})

	var buf bytes.Buffer
	Logger = slog.New(slog.NewTextHandler(&buf, nil))

	SetLogLevel(ERROR)
	Info("info message should be filtered")
	Warn("warn message should be filtered")
	Error("error message should appear")

	output := buf.String()
	if strings.Contains(output, "should be filtered") {
		t.Fatalf("message below ERROR was logged:\n%s", output)
	}
	if !strings.Contains(output, "error message should appear") {
		t.Fatalf("error message was not logged:\n%s", output)
	}
}

func TestParseLogLevel(t *testing.T) {
	cases := []struct {
		in      string
		want    LogLevel
		wantErr bool
	}{
		{in: "debug", want: DEBUG},
		{in: " INFO ", want: INFO},
		{in: "error", want: ERROR},
		{in: "verbose", want: INFO, wantErr: true},
	}
	for _, tc := range cases {
		got, err := ParseLogLevel(tc.in)
		if (err != nil) != tc.wantErr {
			t.Fatalf("ParseLogLevel(%q) error = %v, wantErr %v", tc.in, err, tc.wantErr)
		}
		if got != tc.want {
			t.Errorf("ParseLogLevel(%q) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestConfigureInvalidLevelStillReplacesLogger(t *testing.T) {
	originalLogger := Logger
	t.Cleanup(func() {
		Logger = originalLogger
		SetLogLevel(INFO)
	})

	path := filepath.Join(t.TempDir(), "logs", "app.log")
	if err := Configure(Options{Level: "loud", File: path}); err == nil {
		t.Fatal("expected an error for an invalid level")
	}
	if Logger == originalLogger {
		t.Fatal("expected logger to be replaced")
	}
}
