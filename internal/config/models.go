package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/muurk/ocfstack/internal/endpoint"
)

// CurrentVersion is the only configuration file version understood.
const CurrentVersion = 1

// Config is the transport configuration file.
type Config struct {
	Version      int           `yaml:"version"`
	IPv4         bool          `yaml:"ipv4"`
	IPv6         bool          `yaml:"ipv6"`
	Ports        Ports         `yaml:"ports"`
	Multicast    Multicast     `yaml:"multicast"`
	EncodeGuess  int           `yaml:"encode_guess"`  // Initial codec buffer size in bytes
	PollInterval time.Duration `yaml:"poll_interval"` // Interface poll period when netlink is unavailable
	LogLevel     string        `yaml:"log_level,omitempty"`
	DNSSD        DNSSD         `yaml:"dns_sd"`
	Tap          Tap           `yaml:"tap"`
}

// Ports holds the bind port of each socket role. Zero means ephemeral;
// multicast roles only use that in tests.
type Ports struct {
	Unicast         uint16 `yaml:"unicast"`
	UnicastSecure   uint16 `yaml:"unicast_secure"`
	Multicast       uint16 `yaml:"multicast"`
	MulticastSecure uint16 `yaml:"multicast_secure"`
}

// Multicast selects which IPv6 scopes of the ff0X::fd group are joined.
type Multicast struct {
	IPv6Scopes []string `yaml:"ipv6_scopes"`
}

// DNSSD controls advertisement of the unicast ports over mDNS.
type DNSSD struct {
	Enabled  bool   `yaml:"enabled"`
	Instance string `yaml:"instance,omitempty"`
}

// Tap configures the packet tap served by the listen command. An empty
// Addr leaves it off.
type Tap struct {
	Addr       string `yaml:"addr,omitempty"`
	CaptureDir string `yaml:"capture_dir,omitempty"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Version: CurrentVersion,
		IPv4:    true,
		IPv6:    true,
		Ports: Ports{
			Multicast:       endpoint.DefaultPort,
			MulticastSecure: endpoint.DefaultSecurePort,
		},
		Multicast: Multicast{
			IPv6Scopes: []string{endpoint.ScopeLink.String()},
		},
		EncodeGuess:  255,
		PollInterval: 2 * time.Second,
		DNSSD: DNSSD{
			Instance: "ocf-probe",
		},
	}
}

// Scopes parses the configured IPv6 multicast scopes.
func (c *Config) Scopes() ([]endpoint.Scope, error) {
	scopes := make([]endpoint.Scope, 0, len(c.Multicast.IPv6Scopes))
	seen := make(map[endpoint.Scope]bool)
	for _, name := range c.Multicast.IPv6Scopes {
		s, err := endpoint.ParseScope(name)
		if err != nil {
			return nil, err
		}
		if s == endpoint.ScopeNone {
			return nil, fmt.Errorf("multicast scope %q is not joinable", name)
		}
		if !seen[s] {
			seen[s] = true
			scopes = append(scopes, s)
		}
	}
	return scopes, nil
}

// Validate checks the configuration for values the transport cannot use.
func (c *Config) Validate() error {
	if c.Version != CurrentVersion {
		return fmt.Errorf("unsupported config version: %d (expected %d)", c.Version, CurrentVersion)
	}
	if !c.IPv4 && !c.IPv6 {
		return errors.New("at least one of ipv4 and ipv6 must be enabled")
	}
	if c.Ports.Multicast != 0 && c.Ports.Multicast == c.Ports.MulticastSecure {
		return fmt.Errorf("multicast and secure multicast share port %d", c.Ports.Multicast)
	}
	if c.EncodeGuess <= 0 {
		return fmt.Errorf("encode_guess must be positive, got %d", c.EncodeGuess)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll_interval must be positive, got %s", c.PollInterval)
	}
	if _, err := c.Scopes(); err != nil {
		return err
	}
	return nil
}
