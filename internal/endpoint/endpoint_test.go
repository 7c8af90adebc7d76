package endpoint

import (
	"net"
	"net/netip"
	"testing"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name      string
		addr      string
		port      uint16
		secure    bool
		wantFlags Flags
		wantAddr  string
		wantErr   bool
	}{
		{"ipv4 unicast", "192.0.2.10", 5683, false, FlagIPv4, "192.0.2.10", false},
		{"ipv4 multicast secure", "224.0.1.187", 5684, true, FlagIPv4 | FlagMulticast | FlagSecure, "224.0.1.187", false},
		{"mapped ipv4", "::ffff:192.0.2.1", 1, false, FlagIPv4, "192.0.2.1", false},
		{"ipv6 global", "2001:db8::1", 5683, false, FlagIPv6, "2001:db8::1", false},
		{"ipv6 link local", "fe80::1", 5683, false, FlagIPv6.WithScope(ScopeLink), "fe80::1", false},
		{"ipv6 link multicast", "ff02::fd", 5683, false, (FlagIPv6 | FlagMulticast).WithScope(ScopeLink), "ff02::fd", false},
		{"ipv6 site multicast", "ff05::fd", 5683, false, (FlagIPv6 | FlagMulticast).WithScope(ScopeSite), "ff05::fd", false},
		{"zone dropped", "fe80::1%eth0", 5683, false, FlagIPv6.WithScope(ScopeLink), "fe80::1", false},
		{"garbage", "not-an-ip", 0, false, 0, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ep, err := New(tt.addr, tt.port, tt.secure)
			if (err != nil) != tt.wantErr {
				t.Fatalf("New() error = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if ep.Flags != tt.wantFlags {
				t.Errorf("Flags = %v, want %v", ep.Flags, tt.wantFlags)
			}
			if ep.Addr != tt.wantAddr {
				t.Errorf("Addr = %q, want %q", ep.Addr, tt.wantAddr)
			}
			if ep.Adapter != AdapterIP {
				t.Errorf("Adapter = %v, want ip", ep.Adapter)
			}
			if ep.Port != tt.port {
				t.Errorf("Port = %d, want %d", ep.Port, tt.port)
			}
		})
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		in       string
		wantAddr string
		wantPort uint16
		wantIf   int
		wantErr  bool
	}{
		{"192.0.2.1:5683", "192.0.2.1", 5683, 0, false},
		{"192.0.2.1", "192.0.2.1", 0, 0, false},
		{"[2001:db8::2]:9", "2001:db8::2", 9, 0, false},
		{"2001:db8::2", "2001:db8::2", 0, 0, false},
		{"[fe80::1%3]:5683", "fe80::1", 5683, 3, false},
		{"192.0.2.1:99999", "", 0, 0, true},
		{"[fe80::1%no-such-interface-xyz]:1", "", 0, 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			ep, err := Parse(tt.in, false)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Parse(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if ep.Addr != tt.wantAddr || ep.Port != tt.wantPort || ep.IfIndex != tt.wantIf {
				t.Errorf("Parse(%q) = %+v, want addr %s port %d ifindex %d",
					tt.in, ep, tt.wantAddr, tt.wantPort, tt.wantIf)
			}
		})
	}
}

func TestFromUDPAddr(t *testing.T) {
	src := &net.UDPAddr{IP: net.ParseIP("fe80::abcd"), Port: 40000, Zone: "eth0"}
	ep := FromUDPAddr(src, FlagMulticast|FlagSecure, 7)

	if ep.Addr != "fe80::abcd" {
		t.Errorf("Addr = %q, want zone-free fe80::abcd", ep.Addr)
	}
	if ep.IfIndex != 7 {
		t.Errorf("IfIndex = %d, want 7", ep.IfIndex)
	}
	if !ep.IsIPv6() || ep.IsIPv4() {
		t.Errorf("family flags = %v, want ipv6 only", ep.Flags)
	}
	if !ep.IsSecure() || !ep.IsMulticast() {
		t.Errorf("Flags = %v, want secure and multicast kept", ep.Flags)
	}
	if ep.Flags.Scope() != ScopeLink {
		t.Errorf("Scope = %v, want link", ep.Flags.Scope())
	}

	v4 := FromUDPAddr(&net.UDPAddr{IP: net.IPv4(10, 0, 0, 1), Port: 1}, FlagIPv6, 0)
	if !v4.IsIPv4() || v4.IsIPv6() || v4.Addr != "10.0.0.1" {
		t.Errorf("FromUDPAddr(v4) = %+v", v4)
	}
}

func TestUDPAddr(t *testing.T) {
	ep := Endpoint{Adapter: AdapterIP, Flags: FlagIPv6, Addr: "ff02::fd", Port: 5683, IfIndex: 4}
	addr, err := ep.UDPAddr()
	if err != nil {
		t.Fatalf("UDPAddr() error = %v", err)
	}
	if addr.Zone != "4" || addr.Port != 5683 {
		t.Errorf("UDPAddr() = %v, want zone 4 port 5683", addr)
	}

	global := Endpoint{Flags: FlagIPv6, Addr: "2001:db8::1", Port: 1, IfIndex: 4}
	addr, err = global.UDPAddr()
	if err != nil {
		t.Fatalf("UDPAddr() error = %v", err)
	}
	if addr.Zone != "" {
		t.Errorf("global address got zone %q", addr.Zone)
	}

	if _, err := (Endpoint{Addr: "bogus"}).UDPAddr(); err == nil {
		t.Error("UDPAddr() with bad address succeeded")
	}
}

func TestEndpointEquality(t *testing.T) {
	a, _ := New("192.0.2.1", 5683, true)
	b, _ := New("192.0.2.1", 5683, true)
	if a != b {
		t.Errorf("%v != %v", a, b)
	}
	b.Port = 1
	if a == b {
		t.Error("endpoints with different ports compare equal")
	}
}

func TestDefaultPort(t *testing.T) {
	if p := (Endpoint{}).DefaultPort(); p != DefaultPort {
		t.Errorf("plain DefaultPort() = %d", p)
	}
	if p := (Endpoint{Flags: FlagSecure}).DefaultPort(); p != DefaultSecurePort {
		t.Errorf("secure DefaultPort() = %d", p)
	}
}

func TestScope(t *testing.T) {
	f := (FlagIPv6 | FlagSecure).WithScope(ScopeSite)
	if f.Scope() != ScopeSite {
		t.Errorf("Scope() = %v, want site", f.Scope())
	}
	f = f.WithScope(ScopeGlobal)
	if f.Scope() != ScopeGlobal || f&FlagSecure == 0 || f&FlagIPv6 == 0 {
		t.Errorf("WithScope clobbered flags: %v", f)
	}

	for _, s := range []Scope{ScopeInterface, ScopeLink, ScopeRealm, ScopeAdmin, ScopeSite, ScopeOrg, ScopeGlobal} {
		got, err := ParseScope(s.String())
		if err != nil || got != s {
			t.Errorf("ParseScope(%q) = %v, %v", s.String(), got, err)
		}
	}
	if _, err := ParseScope("galactic"); err == nil {
		t.Error("ParseScope(galactic) succeeded")
	}

	if s := ScopeOf(netip.MustParseAddr("ff0e::fd")); s != ScopeGlobal {
		t.Errorf("ScopeOf(ff0e::fd) = %v", s)
	}
	if s := ScopeOf(netip.MustParseAddr("224.0.1.187")); s != ScopeNone {
		t.Errorf("ScopeOf(ipv4) = %v", s)
	}
}

func TestString(t *testing.T) {
	ep := Endpoint{Adapter: AdapterIP, Flags: FlagIPv6 | FlagSecure, Addr: "fe80::1", Port: 5684, IfIndex: 2}
	if got := ep.String(); got != "[fe80::1%2]:5684 (ipv6|secure)" {
		t.Errorf("String() = %q", got)
	}
	if got := Flags(0).String(); got != "none" {
		t.Errorf("Flags(0).String() = %q", got)
	}
}
