package transport

import (
	"fmt"
	"net"

	"go.uber.org/zap"

	"github.com/muurk/ocfstack/internal/endpoint"
	"github.com/muurk/ocfstack/internal/logging"
	"github.com/muurk/ocfstack/internal/netwatch"
)

// IPv4Group is the all-CoAP-nodes IPv4 group.
var IPv4Group = net.IPv4(224, 0, 1, 187)

// IPv6Group returns the all-CoAP-nodes group ff0X::fd for a scope.
func IPv6Group(scope endpoint.Scope) net.IP {
	ip := make(net.IP, net.IPv6len)
	ip[0] = 0xff
	ip[1] = byte(scope) & 0x0f
	ip[15] = 0xfd
	return ip
}

// multicastCapable selects interfaces that take part in group traffic
func multicastCapable(ifi net.Interface) bool {
	const want = net.FlagUp | net.FlagRunning | net.FlagMulticast
	return ifi.Flags&want == want && ifi.Flags&net.FlagLoopback == 0
}

// hasFamily reports whether the interface carries an address of the family
func (t *Transport) hasFamily(ifi *net.Interface, ipv6 bool) bool {
	addrs, err := t.ifaces.Addrs(ifi)
	if err != nil {
		return false
	}
	for _, a := range addrs {
		ip := addrIP(a)
		if ip == nil {
			continue
		}
		if (ip.To4() == nil) == ipv6 {
			return true
		}
	}
	return false
}

func addrIP(a net.Addr) net.IP {
	switch v := a.(type) {
	case *net.IPNet:
		return v.IP
	case *net.IPAddr:
		return v.IP
	default:
		return nil
	}
}

// joinAll joins the discovery groups on every capable interface. Failures
// are logged and counted, never fatal.
func (t *Transport) joinAll() {
	ifaces, err := t.ifaces.Interfaces()
	if err != nil {
		logging.Warn("Listing interfaces for multicast join failed", zap.Error(err))
		return
	}
	for i := range ifaces {
		if multicastCapable(ifaces[i]) {
			t.joinInterface(&ifaces[i])
		}
	}
}

// joinInterface applies group membership on both multicast sockets of each
// family the interface has addresses for. Callers hold t.mu.
func (t *Transport) joinInterface(ifi *net.Interface) {
	for _, secure := range []bool{false, true} {
		if s := t.sockets.get(Role{Multicast: true, Secure: secure}); s != nil && t.hasFamily(ifi, false) {
			t.join(s, ifi, IPv4Group)
		}
		if s := t.sockets.get(Role{IPv6: true, Multicast: true, Secure: secure}); s != nil && t.hasFamily(ifi, true) {
			for _, scope := range t.scopes {
				t.join(s, ifi, IPv6Group(scope))
			}
		}
	}
}

func (t *Transport) join(s *socket, ifi *net.Interface, group net.IP) {
	family := "ipv4"
	if s.role.IPv6 {
		family = "ipv6"
	}
	err := s.joinGroup(ifi, group)
	switch {
	case err == nil:
		t.metrics.GroupJoins.WithLabelValues(family, "joined").Inc()
	case isAlreadyMember(err):
		t.metrics.GroupJoins.WithLabelValues(family, "member").Inc()
		err = nil
	default:
		t.metrics.GroupJoins.WithLabelValues(family, "error").Inc()
		err = fmt.Errorf("%s: %w", s.role, err)
	}
	logging.LogMembership(ifi.Name, group.String(), err)
}

// rejoin re-applies membership for an interface that just came up
func (t *Transport) rejoin(ev netwatch.Event) {
	t.metrics.InterfaceEvents.Inc()
	ifaces, err := t.ifaces.Interfaces()
	if err != nil {
		logging.Warn("Listing interfaces failed", zap.Error(err))
		return
	}
	for i := range ifaces {
		if ifaces[i].Index != ev.Index {
			continue
		}
		if !multicastCapable(ifaces[i]) {
			return
		}
		logging.Debug("Interface up, rejoining groups",
			zap.String("interface", ifaces[i].Name),
			zap.Int("index", ev.Index),
		)
		t.mu.RLock()
		t.joinInterface(&ifaces[i])
		t.mu.RUnlock()
		return
	}
	logging.Debug("Interface event for unknown index", zap.Int("index", ev.Index), zap.String("name", ev.Name))
}
