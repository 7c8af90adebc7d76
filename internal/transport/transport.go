package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/muurk/ocfstack/internal/config"
	"github.com/muurk/ocfstack/internal/endpoint"
	"github.com/muurk/ocfstack/internal/logging"
	"github.com/muurk/ocfstack/internal/netwatch"
)

// PacketHandler receives every delivered datagram. It runs on the receive
// loop goroutine and must not block for long.
type PacketHandler func(ep endpoint.Endpoint, data []byte)

// ErrorHandler is told about runtime send and receive failures. data is the
// datagram involved, if any.
type ErrorHandler func(ep endpoint.Endpoint, data []byte, err error)

// SecureChannel is the DTLS layer sitting on the secure sockets.
type SecureChannel interface {
	// Decrypt unwraps a datagram read from a secure socket. A nil result
	// with a nil error means the record was consumed (handshake traffic)
	// and nothing is delivered.
	Decrypt(ep endpoint.Endpoint, data []byte) ([]byte, error)
	// Encrypt wraps a datagram bound for a secure endpoint.
	Encrypt(ep endpoint.Endpoint, data []byte) ([]byte, error)
}

// InterfaceSource lists local interfaces. The default uses package net.
type InterfaceSource interface {
	Interfaces() ([]net.Interface, error)
	Addrs(ifi *net.Interface) ([]net.Addr, error)
}

type systemInterfaces struct{}

func (systemInterfaces) Interfaces() ([]net.Interface, error) { return net.Interfaces() }

func (systemInterfaces) Addrs(ifi *net.Interface) ([]net.Addr, error) { return ifi.Addrs() }

// Option configures a Transport.
type Option func(*Transport)

// WithHandler sets the packet handler.
func WithHandler(h PacketHandler) Option {
	return func(t *Transport) { t.handler = h }
}

// WithErrorHandler sets the runtime error callback.
func WithErrorHandler(h ErrorHandler) Option {
	return func(t *Transport) { t.onError = h }
}

// WithSecureChannel attaches the DTLS layer. Without one, datagrams on
// secure sockets are dropped and sends to secure endpoints fail.
func WithSecureChannel(sc SecureChannel) Option {
	return func(t *Transport) { t.secure = sc }
}

// WithRegisterer registers the transport metrics on reg.
func WithRegisterer(reg prometheus.Registerer) Option {
	return func(t *Transport) { t.reg = reg }
}

// WithNotifier supplies the interface-change notifier. The transport does
// not close a notifier it was given.
func WithNotifier(n netwatch.Notifier) Option {
	return func(t *Transport) { t.notifier = n }
}

// WithInterfaces replaces the interface source.
func WithInterfaces(src InterfaceSource) Option {
	return func(t *Transport) { t.ifaces = src }
}

// Transport owns the socket registry, the receive loop and the send path.
// Start and Stop must be serialized by the caller; Send may be called from
// any goroutine while started.
type Transport struct {
	cfg     config.Config
	scopes  []endpoint.Scope
	handler PacketHandler
	onError ErrorHandler
	secure  SecureChannel
	ifaces  InterfaceSource

	reg     prometheus.Registerer
	metrics *Metrics

	notifier    netwatch.Notifier
	ownNotifier bool

	mu       sync.RWMutex // guards sockets against Send during Start/Stop
	sockets  registry
	started  atomic.Bool
	cancel   context.CancelFunc
	readers  sync.WaitGroup
	loopDone chan struct{}
	wakeCh   chan struct{}

	mcastMu sync.Mutex // one multicast send at a time
}

// New validates cfg and builds a stopped transport.
func New(cfg *config.Config, opts ...Option) (*Transport, error) {
	if cfg == nil {
		cfg = config.Default()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid transport config: %w", err)
	}
	scopes, err := cfg.Scopes()
	if err != nil {
		return nil, err
	}

	t := &Transport{
		cfg:    *cfg,
		scopes: scopes,
		ifaces: systemInterfaces{},
	}
	for _, opt := range opts {
		opt(t)
	}
	t.metrics = NewMetrics(t.reg)
	return t, nil
}

// Metrics returns the transport's instruments.
func (t *Transport) Metrics() *Metrics {
	return t.metrics
}

// Start opens the sockets of every enabled family, joins the discovery
// groups and launches the receive loop. Any required socket failing to
// open is fatal and leaves no socket behind.
func (t *Transport) Start(ctx context.Context) error {
	if t.started.Load() {
		return ErrAlreadyStarted
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	for _, r := range t.enabledRoles() {
		s, err := openSocket(ctx, r, t.bindPort(r))
		if err != nil {
			_ = t.sockets.closeAll()
			return &SetupError{Role: r, Err: err}
		}
		t.sockets.put(s)
		logging.Info("Socket bound", zap.Stringer("socket", r), zap.Uint16("port", s.port))
	}
	t.metrics.Sockets.Set(float64(t.sockets.count()))

	t.joinAll()

	if t.notifier == nil {
		t.notifier = netwatch.New()
		t.ownNotifier = true
	}

	loopCtx, cancel := context.WithCancel(ctx)
	t.cancel = cancel
	t.loopDone = make(chan struct{})
	t.wakeCh = make(chan struct{}, 1)

	live := t.sockets.live()
	for _, s := range live {
		t.readers.Add(1)
		go t.read(loopCtx, s)
	}
	go t.loop(loopCtx, live)

	t.started.Store(true)
	return nil
}

// Stop ends the receive loop, waits for it, then closes every socket.
// Stopping a stopped transport is a no-op.
func (t *Transport) Stop() error {
	if !t.started.Load() {
		return nil
	}
	t.started.Store(false)

	// Drain the loop before taking the write lock; the packet handler may
	// be calling Send.
	t.cancel()
	t.mu.RLock()
	live := t.sockets.live()
	t.mu.RUnlock()
	for _, s := range live {
		s.wake()
	}
	t.readers.Wait()
	<-t.loopDone

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.ownNotifier {
		if err := t.notifier.Close(); err != nil {
			logging.Warn("Closing interface notifier failed", zap.Error(err))
		}
		t.notifier = nil
		t.ownNotifier = false
	}

	err := t.sockets.closeAll()
	t.metrics.Sockets.Set(0)
	logging.Info("Transport stopped")
	return err
}

// SocketCount returns the number of open registry sockets.
func (t *Transport) SocketCount() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.sockets.count()
}

// Port returns the bound port of a role, or 0 if it has no socket.
func (t *Transport) Port(r Role) uint16 {
	t.mu.RLock()
	defer t.mu.RUnlock()
	if s := t.sockets.get(r); s != nil {
		return s.port
	}
	return 0
}

func (t *Transport) enabledRoles() []Role {
	var roles []Role
	for i := 0; i < roleCount; i++ {
		r := roleAt(i)
		if (r.IPv6 && t.cfg.IPv6) || (!r.IPv6 && t.cfg.IPv4) {
			roles = append(roles, r)
		}
	}
	return roles
}

func (t *Transport) bindPort(r Role) uint16 {
	p := t.cfg.Ports
	switch {
	case r.Multicast && r.Secure:
		return p.MulticastSecure
	case r.Multicast:
		return p.Multicast
	case r.Secure:
		return p.UnicastSecure
	default:
		return p.Unicast
	}
}

// reportError logs a runtime failure and forwards it to the error handler
func (t *Transport) reportError(msg string, ep endpoint.Endpoint, data []byte, err error) {
	logging.Warn(msg, zap.Stringer("endpoint", ep), zap.Error(err))
	if t.onError != nil {
		t.onError(ep, data, err)
	}
}
