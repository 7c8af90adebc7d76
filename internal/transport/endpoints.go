package transport

import (
	"fmt"
	"net"
	"net/netip"

	"github.com/muurk/ocfstack/internal/endpoint"
)

// LocalEndpoints lists the unicast endpoints this transport answers on: one
// plain and one secure endpoint per address of every up, non-loopback
// interface in an enabled family.
func (t *Transport) LocalEndpoints() ([]endpoint.Endpoint, error) {
	if !t.started.Load() {
		return nil, ErrNotStarted
	}
	ifaces, err := t.ifaces.Interfaces()
	if err != nil {
		return nil, fmt.Errorf("list interfaces: %w", err)
	}

	t.mu.RLock()
	defer t.mu.RUnlock()

	var out []endpoint.Endpoint
	for i := range ifaces {
		ifi := &ifaces[i]
		if ifi.Flags&net.FlagUp == 0 || ifi.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := t.ifaces.Addrs(ifi)
		if err != nil {
			return nil, fmt.Errorf("addresses of %s: %w", ifi.Name, err)
		}
		for _, a := range addrs {
			ip, ok := netip.AddrFromSlice(addrIP(a))
			if !ok {
				continue
			}
			ip = ip.Unmap()
			ipv6 := !ip.Is4()
			if ip.IsMulticast() || ip.IsUnspecified() {
				continue
			}
			for _, secure := range []bool{false, true} {
				s := t.sockets.get(Role{IPv6: ipv6, Secure: secure})
				if s == nil {
					continue
				}
				ep, err := endpoint.New(ip.String(), s.port, secure)
				if err != nil {
					continue
				}
				ep.IfIndex = ifi.Index
				out = append(out, ep)
			}
		}
	}
	return out, nil
}
