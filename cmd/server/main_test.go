package main

import (
	"net"
	"os"
	"strconv"
	"strings"
	"testing"
)

// isolate runs the test in an empty directory with an in-memory, Redis-free
// environment.
func isolate(t *testing.T) {
	t.Helper()
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(t.TempDir()); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(wd) })

	for key, value := range map[string]string{
		"ENV":                   "development",
		"MONGODB_URI":           memoryStoreURI,
		"REDIS_URI":             "",
		"MAIL_HOST":             "",
		"CLOUDINARY_CLOUD_NAME": "",
		"GOOGLE_CLIENT_ID":      "",
		"LOG_FILE":              "",
		"JWT_EXPIRES_IN":        "1h",
	} {
		t.Setenv(key, value)
	}
}

func TestRunReturnsStartupErrors(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"bad config", map[string]string{"JWT_EXPIRES_IN": "soon"}, "invalid configuration"},
		{"memory store in production", map[string]string{"ENV": "production", "JWT_SECRET": "prod-secret"}, "failed to open storage"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			isolate(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			err := run()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("run() = %v, want %q", err, tt.want)
			}
		})
	}
}

func TestRunReturnsListenError(t *testing.T) {
	isolate(t)
	taken, err := net.Listen("tcp", ":0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer taken.Close()
	t.Setenv("PORT", strconv.Itoa(taken.Addr().(*net.TCPAddr).Port))

	err = run()
	if err == nil || !strings.Contains(err.Error(), "server failed") {
		t.Fatalf("run() = %v, want listen failure", err)
	}
}
