package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/airwatch-iot/gasmon/internal/poll"
)

func TestLoad_MissingConfigFallsBackToDefaults(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	cfg, err := Load(filepath.Join(home, "does-not-exist.toml"))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.APIURL != defaultAPIURL {
		t.Fatalf("APIURL = %q, want %q", cfg.APIURL, defaultAPIURL)
	}
	if cfg.WSURL != "ws://127.0.0.1:3000/ws" {
		t.Fatalf("WSURL = %q, want derived ws://127.0.0.1:3000/ws", cfg.WSURL)
	}
	if cfg.DevicesPoll != poll.DevicesInterval || cfg.DetailPoll != poll.DeviceDetailInterval || cfg.NotificationsPoll != poll.NotificationsInterval {
		t.Fatalf("poll intervals = %v/%v/%v, want defaults", cfg.DevicesPoll, cfg.DetailPoll, cfg.NotificationsPoll)
	}

	wantLog, err := expandPath(defaultLogFile)
	if err != nil {
		t.Fatalf("expandPath(defaultLogFile) returned error: %v", err)
	}
	if cfg.LogFile != wantLog {
		t.Fatalf("LogFile = %q, want %q", cfg.LogFile, wantLog)
	}
	if !strings.HasPrefix(cfg.TokenFile, home) || !strings.HasPrefix(cfg.CacheDir, home) {
		t.Fatalf("TokenFile/CacheDir = %q/%q, want them under HOME %q", cfg.TokenFile, cfg.CacheDir, home)
	}
}

func TestLoad_ParsesAndTrimsConfig(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
api_url = "  https://gas.example.com/api  "
request_timeout = "3s"
devices_poll = "20s"
notifications_poll = " 2s "
log_file = "  ~/logs/gasmon.log  "
log_level = "debug"
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.APIURL != "https://gas.example.com/api" {
		t.Fatalf("APIURL = %q", cfg.APIURL)
	}
	if cfg.WSURL != "wss://gas.example.com/ws" {
		t.Fatalf("WSURL = %q, want wss://gas.example.com/ws", cfg.WSURL)
	}
	if cfg.RequestTimeout != 3*time.Second || cfg.DevicesPoll != 20*time.Second || cfg.NotificationsPoll != 2*time.Second {
		t.Fatalf("durations = %v/%v/%v", cfg.RequestTimeout, cfg.DevicesPoll, cfg.NotificationsPoll)
	}
	if cfg.DetailPoll != poll.DeviceDetailInterval {
		t.Fatalf("DetailPoll = %v, want default", cfg.DetailPoll)
	}
	if cfg.LogFile != filepath.Join(home, "logs/gasmon.log") {
		t.Fatalf("LogFile = %q, want it under HOME %q", cfg.LogFile, home)
	}
	if cfg.LogDir() != filepath.Join(home, "logs") {
		t.Fatalf("LogDir = %q", cfg.LogDir())
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("LogLevel = %q, want debug", cfg.LogLevel)
	}
}

func TestLoad_EnvironmentOverridesFile(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("GASMON_API_URL", "http://10.0.0.5:8080")
	t.Setenv("GASMON_WS_URL", "ws://10.0.0.5:9090/live")
	t.Setenv("GASMON_LOG_LEVEL", "warn")
	t.Setenv("GASMON_REQUEST_TIMEOUT", "4s")

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
api_url = "http://file-host:3000"
log_level = "debug"
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.APIURL != "http://10.0.0.5:8080" {
		t.Fatalf("APIURL = %q, want env value", cfg.APIURL)
	}
	if cfg.WSURL != "ws://10.0.0.5:9090/live" {
		t.Fatalf("WSURL = %q, want env value", cfg.WSURL)
	}
	if cfg.LogLevel != "warn" {
		t.Fatalf("LogLevel = %q, want warn", cfg.LogLevel)
	}
	if cfg.RequestTimeout != 4*time.Second {
		t.Fatalf("RequestTimeout = %v, want 4s", cfg.RequestTimeout)
	}
}

func TestLoad_EmptyValuesUseDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`
api_url = "   "
log_file = ""
devices_poll = ""
`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.APIURL != defaultAPIURL {
		t.Fatalf("APIURL = %q, want %q", cfg.APIURL, defaultAPIURL)
	}
	wantLog, err := expandPath(defaultLogFile)
	if err != nil {
		t.Fatalf("expandPath(defaultLogFile) returned error: %v", err)
	}
	if cfg.LogFile != wantLog {
		t.Fatalf("LogFile = %q, want %q", cfg.LogFile, wantLog)
	}
	if cfg.DevicesPoll != poll.DevicesInterval {
		t.Fatalf("DevicesPoll = %v, want default", cfg.DevicesPoll)
	}
}

func TestLoad_InvalidTOMLFails(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(`api_url = [`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	_, err := Load(path)
	if err == nil {
		t.Fatalf("Load returned nil error, want parse error")
	}
	if !strings.Contains(err.Error(), "parse config") {
		t.Fatalf("Load error = %q, want it to mention parse config", err.Error())
	}
}

func TestLoad_InvalidDurationFails(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"garbage", `detail_poll = "soon"`},
		{"negative", `detail_poll = "-5s"`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "config.toml")
			if err := os.WriteFile(path, []byte(tt.body), 0o600); err != nil {
				t.Fatalf("WriteFile: %v", err)
			}
			_, err := Load(path)
			if err == nil || !strings.Contains(err.Error(), "detail_poll") {
				t.Fatalf("Load error = %v, want it to mention detail_poll", err)
			}
		})
	}
}

func TestDeriveWSURL(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"http://127.0.0.1:3000", "ws://127.0.0.1:3000/ws", false},
		{"https://gas.example.com/api/v1?x=1", "wss://gas.example.com/ws", false},
		{"ftp://gas.example.com", "", true},
		{"http://", "", true},
	}
	for _, tt := range tests {
		got, err := DeriveWSURL(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Fatalf("DeriveWSURL(%q) returned nil error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Fatalf("DeriveWSURL(%q) returned error: %v", tt.in, err)
		}
		if got != tt.want {
			t.Fatalf("DeriveWSURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestExpandPath_ExpandsTildeAndReturnsAbs(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	got, err := expandPath("~/a/b")
	if err != nil {
		t.Fatalf("expandPath returned error: %v", err)
	}
	want := filepath.Join(home, "a/b")
	if got != want {
		t.Fatalf("expandPath = %q, want %q", got, want)
	}
}

func TestExpandPath_EmptyErrors(t *testing.T) {
	if _, err := expandPath("   "); err == nil {
		t.Fatalf("expandPath returned nil error, want error")
	}
}
