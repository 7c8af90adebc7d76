// Package config provides the YAML transport configuration.
//
// The configuration selects the address families to bring up, the ports for
// each socket role, the IPv6 multicast scopes to join and a few codec and
// watcher tunables. A missing file yields Default().
//
// # Configuration File Location
//
// The configuration file is stored in platform-appropriate locations:
//   - Linux: $XDG_CONFIG_HOME/ocfstack/transport.yaml or $HOME/.config/ocfstack/transport.yaml
//   - macOS: $HOME/.config/ocfstack/transport.yaml
//   - Windows: %LOCALAPPDATA%\ocfstack\transport.yaml
//
// # Usage Example
//
//	cfg, err := config.Load("")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	cfg.IPv6 = false
//	if err := cfg.Save(""); err != nil {
//	    log.Fatal(err)
//	}
//
// # Example File
//
//	version: 1
//	ipv4: true
//	ipv6: true
//	ports:
//	  unicast: 0
//	  unicast_secure: 0
//	  multicast: 5683
//	  multicast_secure: 5684
//	multicast:
//	  ipv6_scopes: [link]
//	encode_guess: 255
//	poll_interval: 2s
//	dns_sd:
//	  enabled: false
//	  instance: ocf-probe
//
// # Thread Safety
//
// Config values are plain data. Save is serialized by a package mutex so
// concurrent saves never interleave partial files.
package config
