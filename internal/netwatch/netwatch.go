// Package netwatch reports network interfaces that have just become
// running, so multicast membership can be re-applied to them.
//
// On Linux the kernel pushes link changes over a NETLINK_ROUTE socket and
// Events returns a channel. Elsewhere Events returns nil and the caller is
// expected to call Poll periodically.
package netwatch

import (
	"net"
	"sync"
)

// Event announces that a non-loopback interface is now running.
type Event struct {
	Index int
	Name  string
}

// Notifier delivers interface-change events.
type Notifier interface {
	// Events returns the push channel, or nil when the platform has none.
	Events() <-chan Event
	// Poll returns interfaces that became running since the previous call.
	Poll() []Event
	Close() error
}

// Poller is the polling Notifier. It diffs successive interface listings.
type Poller struct {
	list    func() ([]net.Interface, error)
	mu      sync.Mutex
	running map[int]bool
}

// NewPoller snapshots the current interfaces; only later transitions are
// reported.
func NewPoller() *Poller {
	return newPoller(net.Interfaces)
}

func newPoller(list func() ([]net.Interface, error)) *Poller {
	p := &Poller{list: list}
	p.running = p.snapshot()
	return p
}

func (p *Poller) snapshot() map[int]bool {
	ifaces, err := p.list()
	if err != nil {
		return map[int]bool{}
	}
	running := make(map[int]bool, len(ifaces))
	for _, ifi := range ifaces {
		if eligible(ifi.Flags) {
			running[ifi.Index] = true
		}
	}
	return running
}

func (p *Poller) Events() <-chan Event { return nil }

func (p *Poller) Poll() []Event {
	ifaces, err := p.list()
	if err != nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	var events []Event
	running := make(map[int]bool, len(ifaces))
	for _, ifi := range ifaces {
		if !eligible(ifi.Flags) {
			continue
		}
		running[ifi.Index] = true
		if !p.running[ifi.Index] {
			events = append(events, Event{Index: ifi.Index, Name: ifi.Name})
		}
	}
	p.running = running
	return events
}

func (p *Poller) Close() error { return nil }

func eligible(f net.Flags) bool {
	return f&net.FlagRunning != 0 && f&net.FlagLoopback == 0
}
