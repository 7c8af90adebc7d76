package discovery

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/ocfstack/internal/endpoint"
	"github.com/muurk/ocfstack/internal/logging"
)

const (
	// ServiceType is the DNS-SD service type for plain CoAP over UDP
	ServiceType = "_coap._udp"

	// SecureServiceType is the DNS-SD service type for CoAP over DTLS
	SecureServiceType = "_coaps._udp"

	// ServiceDomain is the mDNS domain
	ServiceDomain = "local."

	// DefaultBrowseTimeout is how long Browse listens when no timeout is given
	DefaultBrowseTimeout = 5 * time.Second
)

// txtVersion is advertised so future TXT layouts can be told apart
const txtVersion = "txtvers=1"

// service is one planned DNS-SD registration
type service struct {
	Type   string
	Port   uint16
	IfIdxs []int
}

// planServices groups local endpoints into one registration per service
// type. Endpoints disagreeing on the port of a type keep the first one seen.
func planServices(endpoints []endpoint.Endpoint) []service {
	byType := make(map[string]*service)
	var order []string
	for _, ep := range endpoints {
		if ep.IsMulticast() || ep.Port == 0 {
			continue
		}
		typ := ServiceType
		if ep.IsSecure() {
			typ = SecureServiceType
		}
		s, ok := byType[typ]
		if !ok {
			s = &service{Type: typ, Port: ep.Port}
			byType[typ] = s
			order = append(order, typ)
		}
		if ep.Port != s.Port {
			logging.Debug("Skipping endpoint with a second port for service",
				zap.String("service", typ),
				zap.Stringer("endpoint", ep),
			)
			continue
		}
		if ep.IfIndex > 0 && !containsInt(s.IfIdxs, ep.IfIndex) {
			s.IfIdxs = append(s.IfIdxs, ep.IfIndex)
		}
	}

	out := make([]service, 0, len(order))
	for _, typ := range order {
		out = append(out, *byType[typ])
	}
	return out
}

func containsInt(xs []int, x int) bool {
	for _, v := range xs {
		if v == x {
			return true
		}
	}
	return false
}

// Advertisement is a set of live DNS-SD registrations
type Advertisement struct {
	mu      sync.Mutex
	servers []*zeroconf.Server
}

// Advertise registers the plain and secure services for the given local
// endpoints under instance. The registrations end when ctx is done or
// Shutdown is called.
func Advertise(ctx context.Context, instance string, endpoints []endpoint.Endpoint) (*Advertisement, error) {
	services := planServices(endpoints)
	if len(services) == 0 {
		return nil, errors.New("no unicast endpoints to advertise")
	}

	a := &Advertisement{}
	for _, s := range services {
		ifaces := interfacesByIndex(s.IfIdxs)
		server, err := zeroconf.Register(instance, s.Type, ServiceDomain, int(s.Port), []string{txtVersion}, ifaces)
		if err != nil {
			a.Shutdown()
			return nil, fmt.Errorf("failed to register %s service: %w", s.Type, err)
		}
		logging.Info("Advertising service",
			zap.String("instance", instance),
			zap.String("service", s.Type),
			zap.Uint16("port", s.Port),
		)
		a.servers = append(a.servers, server)
	}

	go func() {
		<-ctx.Done()
		a.Shutdown()
	}()
	return a, nil
}

// Shutdown withdraws every registration. It is safe to call more than once.
func (a *Advertisement) Shutdown() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range a.servers {
		s.Shutdown()
	}
	a.servers = nil
}

// interfacesByIndex resolves indexes; nil means all interfaces
func interfacesByIndex(idxs []int) []net.Interface {
	var out []net.Interface
	for _, idx := range idxs {
		ifi, err := net.InterfaceByIndex(idx)
		if err != nil {
			continue
		}
		out = append(out, *ifi)
	}
	return out
}

// Browse listens for plain and secure CoAP services until timeout or ctx
// ends and returns the peers seen, sorted by instance name.
func Browse(ctx context.Context, timeout time.Duration) ([]*Peer, error) {
	if timeout <= 0 {
		timeout = DefaultBrowseTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	c := newCollector()
	for _, typ := range []string{ServiceType, SecureServiceType} {
		resolver, err := zeroconf.NewResolver(nil)
		if err != nil {
			return nil, fmt.Errorf("failed to create mDNS resolver: %w", err)
		}
		entries := make(chan *zeroconf.ServiceEntry)
		go c.consume(ctx, entries)
		if err := resolver.Browse(ctx, typ, ServiceDomain, entries); err != nil {
			return nil, fmt.Errorf("failed to browse for %s services: %w", typ, err)
		}
	}

	<-ctx.Done()
	return c.peers(), nil
}

// collector merges answers from concurrent browses
type collector struct {
	mu    sync.Mutex
	byKey map[string]*Peer
}

func newCollector() *collector {
	return &collector{byKey: make(map[string]*Peer)}
}

func (c *collector) consume(ctx context.Context, entries <-chan *zeroconf.ServiceEntry) {
	for {
		select {
		case <-ctx.Done():
			return
		case entry, ok := <-entries:
			if !ok {
				return
			}
			c.add(parseServiceEntry(entry))
		}
	}
}

func (c *collector) add(p *Peer) {
	if p == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.byKey[p.key()]; ok {
		p.DiscoveredAt = old.DiscoveredAt
	}
	c.byKey[p.key()] = p
}

func (c *collector) peers() []*Peer {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*Peer, 0, len(c.byKey))
	for _, p := range c.byKey {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].key() < out[j].key() })
	return out
}

// parseServiceEntry converts a zeroconf answer to a Peer. It returns nil for
// answers without an address or port.
func parseServiceEntry(entry *zeroconf.ServiceEntry) *Peer {
	if entry == nil || entry.Port <= 0 || entry.Port > 0xffff {
		return nil
	}

	var addrs []netip.Addr
	for _, ips := range [][]net.IP{entry.AddrIPv4, entry.AddrIPv6} {
		for _, ip := range ips {
			if a, ok := netip.AddrFromSlice(ip); ok {
				addrs = append(addrs, a.Unmap())
			}
		}
	}
	if len(addrs) == 0 {
		return nil
	}

	text := make(map[string]string)
	for _, txt := range entry.Text {
		// TXT records are in "key=value" format
		key, value, _ := strings.Cut(txt, "=")
		if key != "" {
			text[key] = value
		}
	}

	return &Peer{
		Instance:     entry.Instance,
		Host:         entry.HostName,
		Addrs:        addrs,
		Port:         uint16(entry.Port),
		Secure:       strings.HasPrefix(entry.Service, SecureServiceType),
		Text:         text,
		DiscoveredAt: time.Now(),
	}
}
