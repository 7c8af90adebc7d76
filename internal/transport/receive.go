package transport

import (
	"bytes"
	"context"
	"errors"
	"net"
	"net/netip"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/ocfstack/internal/endpoint"
	"github.com/muurk/ocfstack/internal/logging"
	"github.com/muurk/ocfstack/internal/netwatch"
)

// read is the per-socket reader. It only performs the blocking read and
// queues the datagram for the loop.
func (t *Transport) read(ctx context.Context, s *socket) {
	defer t.readers.Done()

	role := s.role.String()
	buf := make([]byte, maxDatagram)
	for {
		n, src, dst, ifIndex, err := s.readFrom(buf)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			t.metrics.ReceiveErrors.WithLabelValues(role, "read").Inc()
			t.reportError("Socket read failed", endpoint.Endpoint{}, nil, err)
			// Pace a socket stuck in an error state
			select {
			case <-ctx.Done():
				return
			case <-time.After(10 * time.Millisecond):
			}
			continue
		}
		t.metrics.BytesReceived.WithLabelValues(role).Add(float64(n))

		p := packet{data: bytes.Clone(buf[:n]), src: src, dst: dst, ifIndex: ifIndex}
		select {
		case s.packets <- p:
		default:
			t.metrics.PacketsDropped.WithLabelValues(role, "backlog").Inc()
			logging.Warn("Receive backlog full, dropping datagram", zap.String("socket", role))
			continue
		}
		select {
		case t.wakeCh <- struct{}{}:
		default:
		}
	}
}

// loop is the single receive loop. Each iteration handles one event:
// the highest priority queued datagram if any, otherwise whichever of
// wake-up, interface change, poll tick or stop arrives first.
func (t *Transport) loop(ctx context.Context, sockets []*socket) {
	defer close(t.loopDone)

	events := t.notifier.Events()
	poll := t.notifier.Poll
	var tick <-chan time.Time
	startPolling := func() {
		ticker := time.NewTicker(t.cfg.PollInterval)
		tick = ticker.C
		go func() {
			<-ctx.Done()
			ticker.Stop()
		}()
	}
	if events == nil {
		startPolling()
	}

	for {
		if ctx.Err() != nil {
			return
		}
		if t.dispatchOne(sockets) {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-t.wakeCh:
		case ev, ok := <-events:
			if !ok {
				logging.Warn("Interface notifier closed, falling back to polling")
				events = nil
				poll = netwatch.NewPoller().Poll
				startPolling()
				continue
			}
			t.rejoin(ev)
		case <-tick:
			for _, ev := range poll() {
				t.rejoin(ev)
			}
		}
	}
}

// dispatchOne handles the first queued datagram in priority order
func (t *Transport) dispatchOne(sockets []*socket) bool {
	for _, s := range sockets {
		select {
		case p := <-s.packets:
			t.handlePacket(s.role, p)
			return true
		default:
		}
	}
	return false
}

// handlePacket builds the source endpoint, runs the secure channel for
// secure roles and delivers the datagram.
func (t *Transport) handlePacket(role Role, p packet) {
	label := role.String()

	flags := endpoint.FlagIPv4
	if role.IPv6 {
		flags = endpoint.FlagIPv6
	}
	if role.Secure {
		flags |= endpoint.FlagSecure
	}
	multicast := role.Multicast && isMulticastDst(p.dst, role.IPv6)
	if multicast {
		flags |= endpoint.FlagMulticast
	}

	ifIndex := p.ifIndex
	if ifIndex == 0 && p.src.Zone != "" {
		if ifi, err := net.InterfaceByName(p.src.Zone); err == nil {
			ifIndex = ifi.Index
		}
	}
	ep := endpoint.FromUDPAddr(p.src, flags, ifIndex)
	logging.LogPacket("received", label, ep, p.data)

	data := p.data
	if role.Secure {
		if t.secure == nil {
			t.metrics.PacketsDropped.WithLabelValues(label, "no_secure_channel").Inc()
			logging.Debug("No secure channel, dropping datagram", zap.Stringer("endpoint", ep))
			return
		}
		var err error
		data, err = t.secure.Decrypt(ep, data)
		if err != nil {
			t.metrics.ReceiveErrors.WithLabelValues(label, "decrypt").Inc()
			t.reportError("Decrypt failed", ep, p.data, err)
			return
		}
		if data == nil {
			return
		}
	}

	t.metrics.PacketsReceived.WithLabelValues(label, castLabel(multicast)).Inc()
	if t.handler == nil {
		t.metrics.PacketsDropped.WithLabelValues(label, "no_handler").Inc()
		return
	}
	t.handler(ep, data)
}

// isMulticastDst reports whether dst lies in the family's multicast range:
// 224.0.0.0/4 for IPv4, ff00::/8 for IPv6. An unknown destination is not
// multicast.
func isMulticastDst(dst net.IP, ipv6 bool) bool {
	addr, ok := netip.AddrFromSlice(dst)
	if !ok {
		return false
	}
	addr = addr.Unmap()
	if ipv6 {
		return addr.Is6() && addr.As16()[0] == 0xff
	}
	return addr.Is4() && addr.As4()[0]&0xf0 == 0xe0
}
