package transport

import (
	"errors"
	"fmt"
	"net"
	"net/netip"

	"go.uber.org/zap"

	"github.com/muurk/ocfstack/internal/endpoint"
	"github.com/muurk/ocfstack/internal/logging"
)

// Send writes data to ep. With multicast set the datagram goes to the
// discovery group on every capable interface of the endpoint's family, or of
// every enabled family when ep names none. Unicast sends with a zero port use
// the well-known port for the secure flag. Secure endpoints need a
// SecureChannel; without one Send fails with ErrNoSecureChannel.
func (t *Transport) Send(ep endpoint.Endpoint, data []byte, multicast bool) error {
	if !t.started.Load() {
		return ErrNotStarted
	}
	t.mu.RLock()
	defer t.mu.RUnlock()
	if !t.started.Load() {
		return ErrNotStarted
	}

	if ep.IsSecure() {
		if t.secure == nil {
			t.metrics.SendErrors.WithLabelValues(Role{IPv6: ep.IsIPv6(), Secure: true}.String(), "no_secure_channel").Inc()
			return fmt.Errorf("%w: %s", ErrNoSecureChannel, ep)
		}
		enc, err := t.secure.Encrypt(ep, data)
		if err != nil {
			t.metrics.SendErrors.WithLabelValues(Role{IPv6: ep.IsIPv6(), Secure: true}.String(), "encrypt").Inc()
			t.reportError("Encrypt failed", ep, data, err)
			return fmt.Errorf("encrypt for %s: %w", ep, err)
		}
		data = enc
	}

	if multicast {
		return t.sendMulticast(ep, data)
	}
	return t.sendUnicast(ep, data)
}

func (t *Transport) sendUnicast(ep endpoint.Endpoint, data []byte) error {
	if ep.Port == 0 {
		ep.Port = ep.DefaultPort()
	}
	ipv6, err := family(ep)
	if err != nil {
		return err
	}
	role := Role{IPv6: ipv6, Secure: ep.IsSecure()}
	s := t.sockets.get(role)
	if s == nil {
		return fmt.Errorf("%w: %s", ErrNoSocket, role)
	}
	addr, err := ep.UDPAddr()
	if err != nil {
		return err
	}
	return t.write(s, addr, ep, data, false)
}

func (t *Transport) sendMulticast(ep endpoint.Endpoint, data []byte) error {
	var families []bool
	switch {
	case ep.IsIPv4():
		families = []bool{false}
	case ep.IsIPv6():
		families = []bool{true}
	default:
		families = []bool{false, true}
	}

	ifaces, err := t.ifaces.Interfaces()
	if err != nil {
		return fmt.Errorf("list interfaces: %w", err)
	}

	t.mcastMu.Lock()
	defer t.mcastMu.Unlock()

	var (
		sent int
		errs []error
	)
	for _, ipv6 := range families {
		role := Role{IPv6: ipv6, Secure: ep.IsSecure()}
		s := t.sockets.get(role)
		if s == nil {
			if len(families) == 1 {
				return fmt.Errorf("%w: %s", ErrNoSocket, role)
			}
			continue
		}
		group := &net.UDPAddr{IP: t.groupFor(ep, ipv6), Port: int(t.discoveryPort(ep.IsSecure()))}

		for i := range ifaces {
			ifi := &ifaces[i]
			if !multicastCapable(*ifi) || !t.hasFamily(ifi, ipv6) {
				continue
			}
			if err := s.setMulticastInterface(ifi); err != nil {
				t.metrics.SendErrors.WithLabelValues(role.String(), "interface").Inc()
				logging.Warn("Selecting multicast interface failed",
					zap.String("interface", ifi.Name),
					zap.Stringer("socket", role),
					zap.Error(err),
				)
				errs = append(errs, fmt.Errorf("%s: %w", ifi.Name, err))
				continue
			}
			dst := *group
			if ipv6 && needsZone(dst.IP) {
				dst.Zone = ifi.Name
			}
			target := endpoint.FromUDPAddr(&dst, ep.Flags|endpoint.FlagMulticast, ifi.Index)
			if err := t.write(s, &dst, target, data, true); err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", ifi.Name, err))
				continue
			}
			sent++
		}
	}

	if sent == 0 && len(errs) > 0 {
		return errors.Join(errs...)
	}
	return nil
}

// write performs one socket write and accounts for it
func (t *Transport) write(s *socket, addr *net.UDPAddr, ep endpoint.Endpoint, data []byte, multicast bool) error {
	label := s.role.String()
	n, err := s.conn.WriteToUDP(data, addr)
	if err != nil {
		t.metrics.SendErrors.WithLabelValues(label, "write").Inc()
		t.reportError("Socket write failed", ep, data, err)
		return fmt.Errorf("send to %s: %w", ep, err)
	}
	logging.LogPacket("sent", label, ep, data[:n])
	t.metrics.PacketsSent.WithLabelValues(label, castLabel(multicast)).Inc()
	t.metrics.BytesSent.WithLabelValues(label).Add(float64(n))
	return nil
}

// groupFor picks the destination group. A multicast address in ep of the
// right family is used as is; otherwise the all-CoAP-nodes group, at ep's
// scope or the first configured scope for IPv6.
func (t *Transport) groupFor(ep endpoint.Endpoint, ipv6 bool) net.IP {
	if ip, err := netip.ParseAddr(ep.Addr); err == nil && ip.IsMulticast() && ip.Is6() == ipv6 {
		return ip.AsSlice()
	}
	if !ipv6 {
		return IPv4Group
	}
	scope := ep.Flags.Scope()
	if scope == endpoint.ScopeNone {
		scope = endpoint.ScopeLink
		if len(t.scopes) > 0 {
			scope = t.scopes[0]
		}
	}
	return IPv6Group(scope)
}

// discoveryPort is the configured multicast port, or the bound port of the
// multicast socket when the configuration asked for an ephemeral one.
func (t *Transport) discoveryPort(secure bool) uint16 {
	port := t.cfg.Ports.Multicast
	if secure {
		port = t.cfg.Ports.MulticastSecure
	}
	if port != 0 {
		return port
	}
	for _, ipv6 := range []bool{false, true} {
		if s := t.sockets.get(Role{IPv6: ipv6, Multicast: true, Secure: secure}); s != nil {
			return s.port
		}
	}
	if secure {
		return endpoint.DefaultSecurePort
	}
	return endpoint.DefaultPort
}

// family resolves the endpoint's address family from its flags, falling
// back to the address itself.
func family(ep endpoint.Endpoint) (ipv6 bool, err error) {
	switch {
	case ep.IsIPv6():
		return true, nil
	case ep.IsIPv4():
		return false, nil
	}
	ip, err := netip.ParseAddr(ep.Addr)
	if err != nil {
		return false, fmt.Errorf("endpoint %q has no address family: %w", ep.Addr, err)
	}
	return !ip.Unmap().Is4(), nil
}

func needsZone(ip net.IP) bool {
	return ip.IsLinkLocalMulticast() || ip.IsInterfaceLocalMulticast() || ip.IsLinkLocalUnicast()
}
