// Package endpoint describes a transport peer or local socket role: an
// address, port and interface index plus transport flags.
//
// Endpoints are plain values and compare with ==.
package endpoint

import (
	"fmt"
	"net"
	"net/netip"
	"strconv"
	"strings"
)

// Well-known CoAP ports
const (
	DefaultPort       uint16 = 5683
	DefaultSecurePort uint16 = 5684
)

// Adapter is the transport adapter an endpoint belongs to.
type Adapter uint8

const (
	AdapterNone Adapter = iota
	AdapterIP
)

func (a Adapter) String() string {
	switch a {
	case AdapterIP:
		return "ip"
	case AdapterNone:
		return "none"
	default:
		return fmt.Sprintf("adapter(%d)", uint8(a))
	}
}

// Flags is the transport flag bitset. The low four bits hold a Scope.
type Flags uint16

const (
	FlagSecure    Flags = 1 << 4
	FlagIPv6      Flags = 1 << 5
	FlagIPv4      Flags = 1 << 6
	FlagMulticast Flags = 1 << 7

	scopeMask Flags = 0x0f
)

// Scope is an IPv6 multicast scope as carried in the low nibble of Flags.
type Scope uint8

const (
	ScopeNone      Scope = 0x0
	ScopeInterface Scope = 0x1
	ScopeLink      Scope = 0x2
	ScopeRealm     Scope = 0x3
	ScopeAdmin     Scope = 0x4
	ScopeSite      Scope = 0x5
	ScopeOrg       Scope = 0x8
	ScopeGlobal    Scope = 0xe
)

var scopeNames = map[Scope]string{
	ScopeNone:      "none",
	ScopeInterface: "interface",
	ScopeLink:      "link",
	ScopeRealm:     "realm",
	ScopeAdmin:     "admin",
	ScopeSite:      "site",
	ScopeOrg:       "org",
	ScopeGlobal:    "global",
}

func (s Scope) String() string {
	if name, ok := scopeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("scope(%d)", uint8(s))
}

// ParseScope converts a scope name to a Scope
func ParseScope(name string) (Scope, error) {
	for s, n := range scopeNames {
		if strings.EqualFold(n, name) {
			return s, nil
		}
	}
	return ScopeNone, fmt.Errorf("unknown multicast scope %q", name)
}

// WithScope returns f with its scope nibble replaced
func (f Flags) WithScope(s Scope) Flags {
	return f&^scopeMask | Flags(s)&scopeMask
}

// Scope returns the scope nibble
func (f Flags) Scope() Scope {
	return Scope(f & scopeMask)
}

func (f Flags) String() string {
	var parts []string
	if f&FlagIPv4 != 0 {
		parts = append(parts, "ipv4")
	}
	if f&FlagIPv6 != 0 {
		parts = append(parts, "ipv6")
	}
	if f&FlagMulticast != 0 {
		parts = append(parts, "multicast")
	}
	if f&FlagSecure != 0 {
		parts = append(parts, "secure")
	}
	if s := f.Scope(); s != ScopeNone {
		parts = append(parts, "scope="+s.String())
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "|")
}

// Endpoint identifies one communication peer or socket role.
type Endpoint struct {
	Adapter Adapter
	Flags   Flags
	Port    uint16
	// Addr is the textual address without zone; IfIndex carries the
	// interface instead.
	Addr    string
	IfIndex int
}

// New builds an IP endpoint for addr and port. The family flag is derived
// from the address; secure adds FlagSecure.
func New(addr string, port uint16, secure bool) (Endpoint, error) {
	ip, err := netip.ParseAddr(addr)
	if err != nil {
		return Endpoint{}, fmt.Errorf("parse endpoint address %q: %w", addr, err)
	}
	ip = ip.Unmap().WithZone("")
	ep := Endpoint{Adapter: AdapterIP, Port: port, Addr: ip.String()}
	if ip.Is4() {
		ep.Flags |= FlagIPv4
	} else {
		ep.Flags |= FlagIPv6
		ep.Flags = ep.Flags.WithScope(ScopeOf(ip))
	}
	if secure {
		ep.Flags |= FlagSecure
	}
	if ip.IsMulticast() {
		ep.Flags |= FlagMulticast
	}
	return ep, nil
}

// Parse reads "host:port", "[v6]:port" or an address with no port. A zone
// in the host is resolved to IfIndex.
func Parse(s string, secure bool) (Endpoint, error) {
	host, portStr, err := net.SplitHostPort(s)
	if err != nil {
		host, portStr = strings.Trim(s, "[]"), ""
	}
	var port uint64
	if portStr != "" {
		port, err = strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			return Endpoint{}, fmt.Errorf("parse endpoint port %q: %w", portStr, err)
		}
	}

	zone := ""
	if i := strings.IndexByte(host, '%'); i >= 0 {
		host, zone = host[:i], host[i+1:]
	}
	ep, err := New(host, uint16(port), secure)
	if err != nil {
		return Endpoint{}, err
	}
	if zone != "" {
		if idx, err := strconv.Atoi(zone); err == nil {
			ep.IfIndex = idx
		} else if ifi, err := net.InterfaceByName(zone); err == nil {
			ep.IfIndex = ifi.Index
		} else {
			return Endpoint{}, fmt.Errorf("resolve zone %q: %w", zone, err)
		}
	}
	return ep, nil
}

// FromUDPAddr builds an endpoint for a received packet's source. The IPv6
// zone is dropped from Addr; ifIndex is carried separately.
func FromUDPAddr(addr *net.UDPAddr, flags Flags, ifIndex int) Endpoint {
	ep := Endpoint{Adapter: AdapterIP, Flags: flags, Port: uint16(addr.Port), IfIndex: ifIndex}
	ip, ok := netip.AddrFromSlice(addr.IP)
	if !ok {
		return ep
	}
	ip = ip.Unmap()
	ep.Addr = ip.String()
	if ip.Is4() {
		ep.Flags = ep.Flags&^FlagIPv6 | FlagIPv4
	} else {
		ep.Flags = (ep.Flags&^FlagIPv4 | FlagIPv6).WithScope(ScopeOf(ip))
	}
	return ep
}

// ScopeOf returns the multicast scope of an IPv6 address. Link-local unicast
// addresses report ScopeLink; other unicast addresses report ScopeNone.
func ScopeOf(ip netip.Addr) Scope {
	if !ip.Is6() || ip.Is4In6() {
		return ScopeNone
	}
	switch {
	case ip.IsMulticast():
		return Scope(ip.As16()[1] & 0x0f)
	case ip.IsLinkLocalUnicast():
		return ScopeLink
	default:
		return ScopeNone
	}
}

func (e Endpoint) IsSecure() bool    { return e.Flags&FlagSecure != 0 }
func (e Endpoint) IsMulticast() bool { return e.Flags&FlagMulticast != 0 }
func (e Endpoint) IsIPv4() bool      { return e.Flags&FlagIPv4 != 0 }
func (e Endpoint) IsIPv6() bool      { return e.Flags&FlagIPv6 != 0 }

// DefaultPort returns the well-known port matching the secure flag
func (e Endpoint) DefaultPort() uint16 {
	if e.IsSecure() {
		return DefaultSecurePort
	}
	return DefaultPort
}

// UDPAddr returns the address to send to. IfIndex becomes the zone of
// IPv6 link-scoped addresses.
func (e Endpoint) UDPAddr() (*net.UDPAddr, error) {
	ip, err := netip.ParseAddr(e.Addr)
	if err != nil {
		return nil, fmt.Errorf("endpoint address %q: %w", e.Addr, err)
	}
	addr := &net.UDPAddr{IP: ip.AsSlice(), Port: int(e.Port)}
	if ip.Is6() && e.IfIndex > 0 && needsZone(ip) {
		addr.Zone = strconv.Itoa(e.IfIndex)
	}
	return addr, nil
}

func needsZone(ip netip.Addr) bool {
	return ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() || ip.IsInterfaceLocalMulticast()
}

func (e Endpoint) String() string {
	host := e.Addr
	if e.IsIPv6() && e.IfIndex > 0 {
		host += "%" + strconv.Itoa(e.IfIndex)
	}
	return net.JoinHostPort(host, strconv.Itoa(int(e.Port))) + " (" + e.Flags.String() + ")"
}
