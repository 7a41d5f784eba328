package config

import (
	"errors"
	"flag"
	"io"
	"reflect"
	"testing"
	"time"

	"github.com/sheerbytes/filehost/internal/transport"
	"github.com/sheerbytes/filehost/pkg/protocol"
)

func newFlagSet() *flag.FlagSet {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

func TestParseServerConfig_Defaults(t *testing.T) {
	cfg, err := parseServerConfigWithFlagSet(newFlagSet(), []string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Addr() != ":9000" {
		t.Errorf("expected Addr to be :9000, got %s", cfg.Addr())
	}
	if cfg.Dir != "./host_dir" {
		t.Errorf("expected Dir to be ./host_dir, got %s", cfg.Dir)
	}
	if cfg.Transport != transport.KindTCP {
		t.Errorf("expected tcp transport, got %s", cfg.Transport)
	}
	if cfg.LogFile != "server.log" {
		t.Errorf("expected LogFile to be server.log, got %s", cfg.LogFile)
	}
	if cfg.IdleTimeout != 10*time.Minute {
		t.Errorf("expected IdleTimeout to be 10m, got %v", cfg.IdleTimeout)
	}
	if cfg.MaxSessions != 64 || cfg.Admission != AdmissionQueue {
		t.Errorf("unexpected admission defaults: %d %s", cfg.MaxSessions, cfg.Admission)
	}
	if cfg.MaxFrameBytes != protocol.DefaultMaxFrameSize {
		t.Errorf("expected default max frame size, got %d", cfg.MaxFrameBytes)
	}
}

func TestParseServerConfig_Flags(t *testing.T) {
	cfg, err := parseServerConfigWithFlagSet(newFlagSet(), []string{
		"-host", "127.0.0.1", "-port", "9090", "-transport", "quic",
		"-admission", "reject", "-max-sessions", "2", "-idle-timeout", "0", "-qr",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Addr() != "127.0.0.1:9090" {
		t.Errorf("expected Addr to be 127.0.0.1:9090, got %s", cfg.Addr())
	}
	if cfg.Transport != transport.KindQUIC {
		t.Errorf("expected quic, got %s", cfg.Transport)
	}
	if cfg.Admission != AdmissionReject || cfg.MaxSessions != 2 {
		t.Errorf("unexpected admission: %s %d", cfg.Admission, cfg.MaxSessions)
	}
	if cfg.IdleTimeout != 0 {
		t.Errorf("expected idle timeout disabled, got %v", cfg.IdleTimeout)
	}
	if !cfg.ShowQR {
		t.Errorf("expected ShowQR")
	}
}

func TestParseServerConfig_EnvFallback(t *testing.T) {
	t.Setenv("FILEHOST_PORT", "7070")
	t.Setenv("FILEHOST_LOG_LEVEL", "warn")
	t.Setenv("FILEHOST_DIR", "/srv/files")

	cfg, err := parseServerConfigWithFlagSet(newFlagSet(), []string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 7070 {
		t.Errorf("expected Port to be 7070, got %d", cfg.Port)
	}
	if cfg.LogLevel != "warn" {
		t.Errorf("expected LogLevel to be warn, got %s", cfg.LogLevel)
	}
	if cfg.Dir != "/srv/files" {
		t.Errorf("expected Dir to be /srv/files, got %s", cfg.Dir)
	}
}

func TestParseServerConfig_FlagsOverrideEnv(t *testing.T) {
	t.Setenv("FILEHOST_PORT", "7070")
	t.Setenv("FILEHOST_LOG_LEVEL", "warn")

	cfg, err := parseServerConfigWithFlagSet(newFlagSet(), []string{"-port", "9090", "-log-level", "debug"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Port != 9090 {
		t.Errorf("expected Port to be 9090 (flag override), got %d", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("expected LogLevel to be debug (flag override), got %s", cfg.LogLevel)
	}
}

func TestParseServerConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad transport", []string{"-transport", "udp"}},
		{"bad admission", []string{"-admission", "drop"}},
		{"zero sessions", []string{"-max-sessions", "0"}},
		{"port out of range", []string{"-port", "70000"}},
		{"negative idle", []string{"-idle-timeout", "-1s"}},
		{"unknown flag", []string{"-nope"}},
		{"stray argument", []string{"extra"}},
		{"zero frame size", []string{"-max-frame-bytes", "0"}},
		{"rate without burst", []string{"-connects-per-min", "5", "-connects-burst", "0"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseServerConfigWithFlagSet(newFlagSet(), tt.args)
			if !errors.Is(err, ErrUsage) {
				t.Fatalf("expected ErrUsage, got %v", err)
			}
		})
	}
}

func TestParseServerConfig_BadEnv(t *testing.T) {
	t.Setenv("FILEHOST_IDLE_TIMEOUT", "soon")
	_, err := parseServerConfigWithFlagSet(newFlagSet(), nil)
	if !errors.Is(err, ErrUsage) {
		t.Fatalf("expected ErrUsage, got %v", err)
	}
}

func TestParseServerConfig_Help(t *testing.T) {
	_, err := parseServerConfigWithFlagSet(newFlagSet(), []string{"-h"})
	if !errors.Is(err, flag.ErrHelp) {
		t.Fatalf("expected flag.ErrHelp, got %v", err)
	}
}

func TestParseClientConfig_Defaults(t *testing.T) {
	cfg, err := parseClientConfigWithFlagSet(newFlagSet(), []string{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Addr() != "127.0.0.1:9000" {
		t.Errorf("expected Addr to be 127.0.0.1:9000, got %s", cfg.Addr())
	}
	if cfg.Dir != "./downloads" {
		t.Errorf("expected Dir to be ./downloads, got %s", cfg.Dir)
	}
	if cfg.Timeout != 10*time.Second {
		t.Errorf("expected Timeout to be 10s, got %v", cfg.Timeout)
	}
	if cfg.Retries != 3 {
		t.Errorf("expected Retries to be 3, got %d", cfg.Retries)
	}
	if cfg.Mode != "" || cfg.Workers != 0 {
		t.Errorf("expected mode and workers unset, got %q %d", cfg.Mode, cfg.Workers)
	}
	if len(cfg.Files) != 0 {
		t.Errorf("expected no files, got %v", cfg.Files)
	}
}

func TestParseClientConfig_FlagsAndFiles(t *testing.T) {
	cfg, err := parseClientConfigWithFlagSet(newFlagSet(), []string{
		"-host", "files.local", "-mode", "parallel", "-workers", "4",
		"-transport", "ws", "report.csv", "notes.txt",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Addr() != "files.local:9000" {
		t.Errorf("unexpected addr %s", cfg.Addr())
	}
	if cfg.Mode != "parallel" || cfg.Workers != 4 {
		t.Errorf("unexpected mode/workers: %q %d", cfg.Mode, cfg.Workers)
	}
	if cfg.Transport != transport.KindWS {
		t.Errorf("expected ws, got %s", cfg.Transport)
	}
	if !reflect.DeepEqual(cfg.Files, []string{"report.csv", "notes.txt"}) {
		t.Errorf("unexpected files %v", cfg.Files)
	}
}

func TestParseClientConfig_EnvFallback(t *testing.T) {
	t.Setenv("FILEHOST_HOST", "10.0.0.5")
	t.Setenv("FILEHOST_RETRIES", "1")
	t.Setenv("FILEHOST_TIMEOUT", "3s")

	cfg, err := parseClientConfigWithFlagSet(newFlagSet(), []string{"-retries", "5"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Host != "10.0.0.5" {
		t.Errorf("expected env host, got %s", cfg.Host)
	}
	if cfg.Timeout != 3*time.Second {
		t.Errorf("expected env timeout, got %v", cfg.Timeout)
	}
	if cfg.Retries != 5 {
		t.Errorf("expected flag to override env retries, got %d", cfg.Retries)
	}
}

func TestParseClientConfig_Invalid(t *testing.T) {
	tests := [][]string{
		{"-host", ""},
		{"-retries", "-1"},
		{"-workers", "-2"},
		{"-timeout", "-5s"},
		{"-transport", "carrier-pigeon"},
	}
	for _, args := range tests {
		if _, err := parseClientConfigWithFlagSet(newFlagSet(), args); !errors.Is(err, ErrUsage) {
			t.Errorf("%v: expected ErrUsage, got %v", args, err)
		}
	}
}
