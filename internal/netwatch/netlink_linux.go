//go:build linux

package netwatch

import (
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/unix"

	"github.com/muurk/ocfstack/internal/logging"
)

// readTimeout bounds each blocking netlink read so Close is noticed
const readTimeout = 500 * time.Millisecond

// New returns the netlink notifier, falling back to a Poller if the
// netlink socket cannot be opened.
func New() Notifier {
	n, err := newNetlink()
	if err != nil {
		logging.Warn("Netlink unavailable, polling for interface changes", zap.Error(err))
		return NewPoller()
	}
	return n
}

type netlinkNotifier struct {
	fd     int
	events chan Event
	done   chan struct{}
	wg     sync.WaitGroup
	once   sync.Once
}

func newNetlink() (*netlinkNotifier, error) {
	fd, err := unix.Socket(unix.AF_NETLINK, unix.SOCK_RAW|unix.SOCK_CLOEXEC, unix.NETLINK_ROUTE)
	if err != nil {
		return nil, fmt.Errorf("netlink socket: %w", err)
	}
	if err := unix.Bind(fd, &unix.SockaddrNetlink{Family: unix.AF_NETLINK, Groups: unix.RTMGRP_LINK}); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("netlink bind: %w", err)
	}
	tv := unix.NsecToTimeval(readTimeout.Nanoseconds())
	if err := unix.SetsockoptTimeval(fd, unix.SOL_SOCKET, unix.SO_RCVTIMEO, &tv); err != nil {
		unix.Close(fd)
		return nil, fmt.Errorf("netlink receive timeout: %w", err)
	}

	n := &netlinkNotifier{
		fd:     fd,
		events: make(chan Event, 16),
		done:   make(chan struct{}),
	}
	n.wg.Add(1)
	go n.run()
	return n, nil
}

func (n *netlinkNotifier) run() {
	defer n.wg.Done()
	defer close(n.events)

	buf := make([]byte, unix.Getpagesize())
	for {
		select {
		case <-n.done:
			return
		default:
		}

		nr, _, err := unix.Recvfrom(n.fd, buf, 0)
		if err != nil {
			if errors.Is(err, unix.EAGAIN) || errors.Is(err, unix.EINTR) {
				continue
			}
			select {
			case <-n.done:
			default:
				logging.Error("Netlink receive failed", zap.Error(err))
			}
			return
		}

		for _, ev := range parseLinkEvents(buf[:nr]) {
			select {
			case n.events <- ev:
			case <-n.done:
				return
			default:
				logging.Warn("Interface event dropped", zap.String("interface", ev.Name))
			}
		}
	}
}

func (n *netlinkNotifier) Events() <-chan Event { return n.events }

func (n *netlinkNotifier) Poll() []Event { return nil }

func (n *netlinkNotifier) Close() error {
	var err error
	n.once.Do(func() {
		close(n.done)
		n.wg.Wait()
		err = unix.Close(n.fd)
	})
	return err
}

const (
	nlmsgHdrLen  = unix.SizeofNlMsghdr
	ifInfoMsgLen = unix.SizeofIfInfomsg
	rtAttrHdrLen = unix.SizeofRtAttr
)

func nlAlign(n int) int {
	return (n + unix.NLMSG_ALIGNTO - 1) &^ (unix.NLMSG_ALIGNTO - 1)
}

func rtaAlign(n int) int {
	return (n + unix.RTA_ALIGNTO - 1) &^ (unix.RTA_ALIGNTO - 1)
}

// parseLinkEvents extracts RTM_NEWLINK messages for running, non-loopback
// links from one netlink datagram.
func parseLinkEvents(b []byte) []Event {
	var events []Event
	for len(b) >= nlmsgHdrLen {
		msgLen := int(binary.NativeEndian.Uint32(b[0:4]))
		msgType := binary.NativeEndian.Uint16(b[4:6])
		if msgLen < nlmsgHdrLen || msgLen > len(b) {
			break
		}
		body := b[nlmsgHdrLen:msgLen]

		if msgType == unix.RTM_NEWLINK && len(body) >= ifInfoMsgLen {
			index := int(int32(binary.NativeEndian.Uint32(body[4:8])))
			flags := binary.NativeEndian.Uint32(body[8:12])
			if flags&unix.IFF_RUNNING != 0 && flags&unix.IFF_LOOPBACK == 0 {
				events = append(events, Event{Index: index, Name: linkName(body[ifInfoMsgLen:])})
			}
		}
		if msgType == unix.NLMSG_DONE {
			break
		}

		next := nlAlign(msgLen)
		if next >= len(b) {
			break
		}
		b = b[next:]
	}
	return events
}

// linkName finds IFLA_IFNAME among the route attributes
func linkName(attrs []byte) string {
	for len(attrs) >= rtAttrHdrLen {
		l := int(binary.NativeEndian.Uint16(attrs[0:2]))
		typ := binary.NativeEndian.Uint16(attrs[2:4])
		if l < rtAttrHdrLen || l > len(attrs) {
			return ""
		}
		if typ == unix.IFLA_IFNAME {
			v := attrs[rtAttrHdrLen:l]
			for i, c := range v {
				if c == 0 {
					v = v[:i]
					break
				}
			}
			return string(v)
		}
		next := rtaAlign(l)
		if next >= len(attrs) {
			return ""
		}
		attrs = attrs[next:]
	}
	return ""
}
