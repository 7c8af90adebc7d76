// Package transport is the dual-stack UDP transport for CoAP-style traffic.
//
// A Transport owns up to eight sockets, one per Role: IPv4 and IPv6, each
// with plain and secure unicast sockets on ephemeral ports and plain and
// secure multicast sockets on the discovery ports. The multicast sockets join
// 224.0.1.187 and ff0X::fd on every up, running, multicast-capable interface
// and rejoin when an interface comes up later (see package netwatch).
//
// Each socket has a reader goroutine that only queues datagrams. A single
// receive loop drains the queues in priority order, runs the SecureChannel on
// secure sockets and calls the PacketHandler, one datagram per iteration.
//
// Multicast sends go out through the unicast socket of the same family, once
// per capable interface. They are serialized since the outgoing interface is
// socket state.
//
// Basic usage:
//
//	t, err := transport.New(cfg, transport.WithHandler(func(ep endpoint.Endpoint, b []byte) {
//		p, err := codec.Decode(b, payload.KindRepresentation)
//		...
//	}))
//	if err := t.Start(ctx); err != nil {
//		return err
//	}
//	defer t.Stop()
//	err = t.Send(ep, data, false)
package transport
