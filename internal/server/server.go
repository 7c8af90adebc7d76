package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/muurk/ocfstack/internal/logging"
)

// Paths served by the tap
const (
	PacketsPath = "/packets"
	MetricsPath = "/metrics"
)

// ErrClosed is returned when starting a server that was shut down
var ErrClosed = errors.New("server closed")

// Config holds the server configuration
type Config struct {
	Addr       string // Listen address, e.g. "127.0.0.1:8080"; port 0 picks one
	CaptureDir string // Directory to write JSONL captures (empty = disabled)

	// Gatherer backs the metrics endpoint; nil disables it.
	Gatherer prometheus.Gatherer
	// Registerer receives the tap's own metrics; nil skips them.
	Registerer prometheus.Registerer
}

// Server is the packet tap: received datagrams published with Publish are
// streamed to every WebSocket client on PacketsPath.
type Server struct {
	config   *Config
	listener net.Listener
	httpSrv  *http.Server
	capture  *capture
	seq      atomic.Uint64

	published prometheus.Counter
	dropped   prometheus.Counter
	clients   prometheus.Gauge

	wg          sync.WaitGroup
	mu          sync.Mutex
	closed      bool
	activeConns map[*client]struct{}
}

// New creates a new Server instance
func New(config *Config) (*Server, error) {
	if config == nil || config.Addr == "" {
		return nil, errors.New("server address is required")
	}
	s := &Server{
		config:      config,
		activeConns: make(map[*client]struct{}),
	}
	if config.Registerer != nil {
		f := promauto.With(config.Registerer)
		s.published = f.NewCounter(prometheus.CounterOpts{
			Namespace: "ocf",
			Subsystem: "tap",
			Name:      "records_published_total",
			Help:      "Packet records published to the tap.",
		})
		s.dropped = f.NewCounter(prometheus.CounterOpts{
			Namespace: "ocf",
			Subsystem: "tap",
			Name:      "clients_dropped_total",
			Help:      "Tap clients disconnected for falling behind.",
		})
		s.clients = f.NewGauge(prometheus.GaugeOpts{
			Namespace: "ocf",
			Subsystem: "tap",
			Name:      "clients",
			Help:      "Connected tap clients.",
		})
	}
	return s, nil
}

// Start listens on the configured address and serves in the background. The
// server shuts down when ctx is cancelled.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	if s.config.CaptureDir != "" {
		c, err := openCapture(s.config.CaptureDir, time.Now())
		if err != nil {
			return err
		}
		s.capture = c
	}

	listener, err := net.Listen("tcp", s.config.Addr)
	if err != nil {
		if s.capture != nil {
			_ = s.capture.close()
		}
		return fmt.Errorf("failed to listen on %s: %w", s.config.Addr, err)
	}
	s.listener = listener

	mux := http.NewServeMux()
	mux.HandleFunc(PacketsPath, s.handlePackets)
	if s.config.Gatherer != nil {
		mux.Handle(MetricsPath, promhttp.HandlerFor(s.config.Gatherer, promhttp.HandlerOpts{}))
	}
	s.httpSrv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logging.Info("Packet tap listening",
		zap.String("addr", listener.Addr().String()),
		zap.Bool("metrics", s.config.Gatherer != nil),
		zap.String("capture_dir", s.config.CaptureDir),
	)

	go func() {
		if err := s.httpSrv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Packet tap stopped", zap.Error(err))
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.Shutdown(shutdownCtx)
	}()
	return nil
}

// Addr returns the bound listen address, or nil before Start
func (s *Server) Addr() net.Addr {
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Publish assigns rec the next sequence number, appends it to the capture
// file and queues it for every client. Clients whose queue is full are
// disconnected.
func (s *Server) Publish(rec Record) {
	rec.Seq = s.seq.Add(1)
	if s.capture != nil {
		s.capture.write(&rec)
	}
	data, err := json.Marshal(&rec)
	if err != nil {
		logging.Error("Failed to marshal packet record", zap.Error(err))
		return
	}
	if s.published != nil {
		s.published.Inc()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for c := range s.activeConns {
		select {
		case c.send <- data:
		default:
			logging.Warn("Dropping slow tap client", zap.String("remote_addr", c.remoteAddr))
			s.dropLocked(c)
			if s.dropped != nil {
				s.dropped.Inc()
			}
		}
	}
}

func (s *Server) addClient(c *client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.activeConns[c] = struct{}{}
	// Counted under mu so Shutdown's Wait cannot miss it
	s.wg.Add(1)
	if s.clients != nil {
		s.clients.Inc()
	}
	return true
}

func (s *Server) removeClient(c *client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropLocked(c)
}

// dropLocked forgets c and closes its queue so writePump says goodbye
func (s *Server) dropLocked(c *client) {
	if _, ok := s.activeConns[c]; !ok {
		return
	}
	delete(s.activeConns, c)
	close(c.send)
	if s.clients != nil {
		s.clients.Dec()
	}
}

// Shutdown gracefully shuts down the server. Calling it again is a no-op.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	for c := range s.activeConns {
		logging.Info("Closing tap client", zap.String("remote_addr", c.remoteAddr))
		s.dropLocked(c)
	}
	s.mu.Unlock()

	logging.Info("Shutting down packet tap...")

	var errs []error
	if s.httpSrv != nil {
		if err := s.httpSrv.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("http shutdown: %w", err))
		}
	}

	// Hijacked WebSocket connections are not tracked by http.Server
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		logging.Warn("Shutdown timeout, forcing close")
	}

	if s.capture != nil {
		if err := s.capture.close(); err != nil {
			errs = append(errs, fmt.Errorf("close capture: %w", err))
		}
	}
	return errors.Join(errs...)
}

// GetActiveConnections returns the number of connected tap clients
func (s *Server) GetActiveConnections() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.activeConns)
}
