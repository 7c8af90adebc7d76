package discovery

import (
	"fmt"
	"net/netip"
	"strings"
	"time"

	"github.com/muurk/ocfstack/internal/endpoint"
)

// Peer is a CoAP node found over DNS-SD
type Peer struct {
	// Instance is the DNS-SD instance name (e.g., "ocf-probe")
	Instance string

	// Host is the mDNS hostname (e.g., "lamp.local.")
	Host string

	// Addrs holds the advertised addresses, IPv4 first
	Addrs []netip.Addr

	// Port is the advertised UDP port
	Port uint16

	// Secure is set for _coaps._udp services
	Secure bool

	// Text contains the TXT record as key/value pairs
	Text map[string]string

	// DiscoveredAt is when the first answer for this service arrived
	DiscoveredAt time.Time
}

func (p *Peer) String() string {
	addrs := make([]string, len(p.Addrs))
	for i, a := range p.Addrs {
		addrs[i] = a.String()
	}
	return fmt.Sprintf("%s (%s) at [%s]:%d %s", p.Instance, p.Host, strings.Join(addrs, " "), p.Port, p.service())
}

func (p *Peer) service() string {
	if p.Secure {
		return SecureServiceType
	}
	return ServiceType
}

// Endpoints returns one transport endpoint per advertised address
func (p *Peer) Endpoints() []endpoint.Endpoint {
	out := make([]endpoint.Endpoint, 0, len(p.Addrs))
	for _, a := range p.Addrs {
		ep, err := endpoint.New(a.String(), p.Port, p.Secure)
		if err != nil {
			continue
		}
		out = append(out, ep)
	}
	return out
}

// key identifies a service across repeated answers
func (p *Peer) key() string {
	return p.Instance + "/" + p.service()
}
