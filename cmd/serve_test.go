package cmd

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
)

func parseServeFlags(t *testing.T, args ...string) *pflag.FlagSet {
	t.Helper()
	resetServeCommandState()
	t.Cleanup(resetServeCommandState)
	fs := pflag.NewFlagSet("serve", pflag.ContinueOnError)
	addServeFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("failed to parse flags: %v", err)
	}
	return fs
}

func TestBuildServerConfigDefaults(t *testing.T) {
	cfg, err := buildServerConfig(parseServeFlags(t))
	if err != nil {
		t.Fatalf("buildServerConfig failed: %v", err)
	}
	if cfg.Server.Address != ":4443" {
		t.Errorf("Address = %q, want :4443", cfg.Server.Address)
	}
	if cfg.Server.ChannelTTL != 5*time.Minute {
		t.Errorf("ChannelTTL = %v, want 5m", cfg.Server.ChannelTTL)
	}
	if cfg.Metrics.Enable {
		t.Error("metrics should be off by default")
	}
}

func TestBuildServerConfigFlagsOverrideFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.toml")
	body := `
[Server]
Address = "127.0.0.1:9000"
MaxChannels = 7
RateLimitPerMinute = 3

[Logging]
Level = "info"
`
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}

	cfg, err := buildServerConfig(parseServeFlags(t,
		"--config", path,
		"--max-channels", "42",
		"--channel-ttl", "90s",
		"--metrics",
	))
	if err != nil {
		t.Fatalf("buildServerConfig failed: %v", err)
	}

	if cfg.Server.Address != "127.0.0.1:9000" {
		t.Errorf("Address = %q, file value should be kept", cfg.Server.Address)
	}
	if cfg.Server.RateLimitPerMinute != 3 {
		t.Errorf("RateLimitPerMinute = %d, file value should be kept", cfg.Server.RateLimitPerMinute)
	}
	if cfg.Server.MaxChannels != 42 {
		t.Errorf("MaxChannels = %d, want flag value 42", cfg.Server.MaxChannels)
	}
	if cfg.Server.ChannelTTL != 90*time.Second {
		t.Errorf("ChannelTTL = %v, want 90s", cfg.Server.ChannelTTL)
	}
	if !cfg.Metrics.Enable {
		t.Error("--metrics was not applied")
	}
	if cfg.Logging.Level != "INFO" {
		t.Errorf("Level = %q, want INFO", cfg.Logging.Level)
	}
}

func TestBuildServerConfigRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{"bad address", []string{"--address", "nope"}},
		{"cert without key", []string{"--tls-cert", "cert.pem"}},
		{"bad log level", []string{"--log-level", "loud"}},
		{"missing file", []string{"--config", "/nonexistent/relay.toml"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := buildServerConfig(parseServeFlags(t, tt.args...)); err == nil {
				t.Errorf("expected an error for %v", tt.args)
			}
		})
	}
}
