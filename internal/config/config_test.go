package config

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/d4l3k/messagediff"

	"github.com/muurk/ocfstack/internal/endpoint"
)

func TestGetConfigDir(t *testing.T) {
	if runtime.GOOS != "windows" && runtime.GOOS != "darwin" {
		t.Setenv("XDG_CONFIG_HOME", "/tmp/xdg")
	}
	configDir, err := GetConfigDir()
	if err != nil {
		t.Fatalf("GetConfigDir() error = %v", err)
	}
	if !strings.Contains(configDir, "ocfstack") {
		t.Errorf("GetConfigDir() = %v, should contain 'ocfstack'", configDir)
	}
	if runtime.GOOS == "linux" && configDir != filepath.Join("/tmp/xdg", "ocfstack") {
		t.Errorf("GetConfigDir() = %v, want XDG_CONFIG_HOME based path", configDir)
	}
}

func TestGetConfigPath(t *testing.T) {
	configPath, err := GetConfigPath()
	if err != nil {
		t.Fatalf("GetConfigPath() error = %v", err)
	}
	if filepath.Base(configPath) != "transport.yaml" {
		t.Errorf("GetConfigPath() should end with 'transport.yaml', got: %v", configPath)
	}
}

func TestDefault(t *testing.T) {
	cfg := Default()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Default().Validate() error = %v", err)
	}
	if !cfg.IPv4 || !cfg.IPv6 {
		t.Error("Default() should enable both families")
	}
	if cfg.Ports.Multicast != 5683 || cfg.Ports.MulticastSecure != 5684 {
		t.Errorf("Default() multicast ports = %d/%d, want 5683/5684", cfg.Ports.Multicast, cfg.Ports.MulticastSecure)
	}
	if cfg.Ports.Unicast != 0 || cfg.Ports.UnicastSecure != 0 {
		t.Error("Default() unicast ports should be ephemeral")
	}
	scopes, err := cfg.Scopes()
	if err != nil {
		t.Fatalf("Scopes() error = %v", err)
	}
	if len(scopes) != 1 || scopes[0] != endpoint.ScopeLink {
		t.Errorf("Default() scopes = %v, want [link]", scopes)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{"no families", func(c *Config) { c.IPv4, c.IPv6 = false, false }, "at least one"},
		{"bad version", func(c *Config) { c.Version = 2 }, "version"},
		{"shared multicast port", func(c *Config) { c.Ports.MulticastSecure = c.Ports.Multicast }, "share port"},
		{"zero guess", func(c *Config) { c.EncodeGuess = 0 }, "encode_guess"},
		{"zero poll", func(c *Config) { c.PollInterval = 0 }, "poll_interval"},
		{"unknown scope", func(c *Config) { c.Multicast.IPv6Scopes = []string{"galactic"} }, "galactic"},
		{"none scope", func(c *Config) { c.Multicast.IPv6Scopes = []string{"none"} }, "not joinable"},
		{"ephemeral multicast ok", func(c *Config) { c.Ports.Multicast, c.Ports.MulticastSecure = 0, 0 }, ""},
		{"ipv4 only ok", func(c *Config) { c.IPv6 = false }, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestScopes_Dedup(t *testing.T) {
	cfg := Default()
	cfg.Multicast.IPv6Scopes = []string{"link", "site", "LINK", "global"}
	scopes, err := cfg.Scopes()
	if err != nil {
		t.Fatalf("Scopes() error = %v", err)
	}
	want := []endpoint.Scope{endpoint.ScopeLink, endpoint.ScopeSite, endpoint.ScopeGlobal}
	if diff, equal := messagediff.PrettyDiff(want, scopes); !equal {
		t.Errorf("Scopes() mismatch:\n%s", diff)
	}
}

func TestSaveAndLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "transport.yaml")

	cfg := Default()
	cfg.IPv6 = false
	cfg.Ports.Unicast = 40000
	cfg.Multicast.IPv6Scopes = []string{"link", "site"}
	cfg.PollInterval = 750 * time.Millisecond
	cfg.LogLevel = "debug"
	cfg.DNSSD = DNSSD{Enabled: true, Instance: "kitchen"}

	if err := cfg.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat() error = %v", err)
	}
	if runtime.GOOS != "windows" && info.Mode().Perm() != 0600 {
		t.Errorf("config file mode = %v, want 0600", info.Mode().Perm())
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff, equal := messagediff.PrettyDiff(cfg, loaded); !equal {
		t.Errorf("Load() mismatch:\n%s", diff)
	}
}

func TestLoad_Missing(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if diff, equal := messagediff.PrettyDiff(Default(), cfg); !equal {
		t.Errorf("Load() of missing file should return defaults:\n%s", diff)
	}
}

func TestLoad_PartialKeepsDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "transport.yaml")
	data := "version: 1\nipv6: false\nports:\n  unicast_secure: 41000\npoll_interval: 5s\n"
	if err := os.WriteFile(path, []byte(data), 0600); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.IPv6 || !cfg.IPv4 {
		t.Errorf("families = ipv4 %v ipv6 %v, want ipv4 only", cfg.IPv4, cfg.IPv6)
	}
	if cfg.Ports.UnicastSecure != 41000 || cfg.Ports.Multicast != 5683 {
		t.Errorf("ports = %+v", cfg.Ports)
	}
	if cfg.PollInterval != 5*time.Second {
		t.Errorf("PollInterval = %v, want 5s", cfg.PollInterval)
	}
	if cfg.EncodeGuess != 255 {
		t.Errorf("EncodeGuess = %d, want default 255", cfg.EncodeGuess)
	}
}

func TestLoad_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad yaml", "ipv4: [unterminated\n"},
		{"bad version", "version: 7\n"},
		{"no families", "ipv4: false\nipv6: false\n"},
		{"bad duration", "poll_interval: soon\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "transport.yaml")
			if err := os.WriteFile(path, []byte(tt.data), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := Load(path); err == nil {
				t.Error("Load() succeeded, want error")
			}
		})
	}
}

func TestSave_RejectsInvalid(t *testing.T) {
	cfg := Default()
	cfg.IPv4, cfg.IPv6 = false, false
	if err := cfg.Save(filepath.Join(t.TempDir(), "x.yaml")); err == nil {
		t.Error("Save() of invalid config succeeded")
	}
}
