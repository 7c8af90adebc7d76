package transport

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"

	"go.uber.org/zap"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"

	"github.com/muurk/ocfstack/internal/logging"
)

// Role identifies one of the eight sockets: family x {unicast, multicast} x
// {plain, secure}.
type Role struct {
	IPv6      bool
	Multicast bool
	Secure    bool
}

func (r Role) String() string {
	s := "ipv4"
	if r.IPv6 {
		s = "ipv6"
	}
	if r.Multicast {
		s += "/multicast"
	} else {
		s += "/unicast"
	}
	if r.Secure {
		s += "/secure"
	}
	return s
}

// roleCount is the number of registry slots
const roleCount = 8

// index orders roles by receive priority: unicast plain, unicast secure,
// multicast plain, multicast secure, IPv4 before IPv6 within each.
func (r Role) index() int {
	kind := 0
	if r.Secure {
		kind++
	}
	if r.Multicast {
		kind += 2
	}
	i := kind * 2
	if r.IPv6 {
		i++
	}
	return i
}

// roleAt is the inverse of index
func roleAt(i int) Role {
	kind := i / 2
	return Role{IPv6: i%2 == 1, Secure: kind%2 == 1, Multicast: kind >= 2}
}

// maxDatagram is the largest UDP payload
const maxDatagram = 65535

// packetQueue is the per-socket backlog between reader and loop
const packetQueue = 64

type packet struct {
	data    []byte
	src     *net.UDPAddr
	dst     net.IP
	ifIndex int
}

// socket is one registry entry. Exactly one of p4 and p6 is set.
type socket struct {
	role    Role
	conn    *net.UDPConn
	p4      *ipv4.PacketConn
	p6      *ipv6.PacketConn
	port    uint16
	packets chan packet
}

func openSocket(ctx context.Context, role Role, port uint16) (*socket, error) {
	network, host := "udp4", "0.0.0.0"
	if role.IPv6 {
		network, host = "udp6", "::"
	}
	lc := net.ListenConfig{Control: socketControl(role)}
	pc, err := lc.ListenPacket(ctx, network, net.JoinHostPort(host, strconv.Itoa(int(port))))
	if err != nil {
		return nil, err
	}
	conn := pc.(*net.UDPConn)

	s := &socket{
		role:    role,
		conn:    conn,
		port:    uint16(conn.LocalAddr().(*net.UDPAddr).Port),
		packets: make(chan packet, packetQueue),
	}

	// Destination metadata lets multicast sockets tell group traffic from
	// unicast; the interface index fills Endpoint.IfIndex.
	if role.IPv6 {
		s.p6 = ipv6.NewPacketConn(conn)
		flags := ipv6.FlagInterface
		if role.Multicast {
			flags |= ipv6.FlagDst
		}
		if err := s.p6.SetControlMessage(flags, true); err != nil {
			logging.Warn("Control messages unavailable", zap.Stringer("socket", role), zap.Error(err))
		}
	} else {
		s.p4 = ipv4.NewPacketConn(conn)
		flags := ipv4.FlagInterface
		if role.Multicast {
			flags |= ipv4.FlagDst
		}
		if err := s.p4.SetControlMessage(flags, true); err != nil {
			logging.Warn("Control messages unavailable", zap.Stringer("socket", role), zap.Error(err))
		}
	}
	return s, nil
}

// readFrom reads one datagram with its destination and arrival interface
// when the kernel supplies them.
func (s *socket) readFrom(buf []byte) (n int, src *net.UDPAddr, dst net.IP, ifIndex int, err error) {
	var addr net.Addr
	if s.p6 != nil {
		var cm *ipv6.ControlMessage
		n, cm, addr, err = s.p6.ReadFrom(buf)
		if cm != nil {
			dst, ifIndex = cm.Dst, cm.IfIndex
		}
	} else {
		var cm *ipv4.ControlMessage
		n, cm, addr, err = s.p4.ReadFrom(buf)
		if cm != nil {
			dst, ifIndex = cm.Dst, cm.IfIndex
		}
	}
	if err != nil {
		return 0, nil, nil, 0, err
	}
	src, _ = addr.(*net.UDPAddr)
	if src == nil {
		return 0, nil, nil, 0, fmt.Errorf("unexpected source address type %T", addr)
	}
	return n, src, dst, ifIndex, nil
}

// setMulticastInterface selects the outgoing interface for group sends
func (s *socket) setMulticastInterface(ifi *net.Interface) error {
	if s.p6 != nil {
		return s.p6.SetMulticastInterface(ifi)
	}
	return s.p4.SetMulticastInterface(ifi)
}

func (s *socket) joinGroup(ifi *net.Interface, group net.IP) error {
	if s.p6 != nil {
		return s.p6.JoinGroup(ifi, &net.UDPAddr{IP: group})
	}
	return s.p4.JoinGroup(ifi, &net.UDPAddr{IP: group})
}

// wake unblocks a pending ReadFrom
func (s *socket) wake() {
	_ = s.conn.SetReadDeadline(time.Now())
}

func (s *socket) close() error {
	return s.conn.Close()
}

// registry owns the sockets of one transport lifetime, indexed by
// Role.index.
type registry struct {
	sockets [roleCount]*socket
}

func (r *registry) get(role Role) *socket {
	return r.sockets[role.index()]
}

func (r *registry) put(s *socket) {
	r.sockets[s.role.index()] = s
}

// live returns the open sockets in receive priority order
func (r *registry) live() []*socket {
	var out []*socket
	for _, s := range r.sockets {
		if s != nil {
			out = append(out, s)
		}
	}
	return out
}

func (r *registry) count() int {
	return len(r.live())
}

// closeAll closes every socket and empties the registry
func (r *registry) closeAll() error {
	var first error
	for i, s := range r.sockets {
		if s == nil {
			continue
		}
		if err := s.close(); err != nil && first == nil {
			first = fmt.Errorf("close %s socket: %w", s.role, err)
		}
		r.sockets[i] = nil
	}
	return first
}
