package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/muurk/ocfstack/internal/endpoint"
)

func startServer(t *testing.T, cfg *Config) *Server {
	t.Helper()
	s, err := New(cfg)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	if err := s.Start(ctx); err != nil {
		cancel()
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		cancel()
		_ = s.Shutdown(context.Background())
	})
	return s
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServer_PublishToClient(t *testing.T) {
	reg := prometheus.NewRegistry()
	dir := t.TempDir()
	s := startServer(t, &Config{
		Addr:       "127.0.0.1:0",
		CaptureDir: dir,
		Gatherer:   reg,
		Registerer: reg,
	})

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr().String()+PacketsPath, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	waitFor(t, "client registration", func() bool { return s.GetActiveConnections() == 1 })

	ep, err := endpoint.New("192.168.1.20", 5683, false)
	if err != nil {
		t.Fatalf("endpoint.New() error = %v", err)
	}
	rec := NewRecord(ep, []byte{0xbf, 0x61, 0x61, 0xff})
	rec.Kind = "representation"
	s.Publish(rec)

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage() error = %v", err)
	}
	var got Record
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("json.Unmarshal() error = %v", err)
	}
	if got.Seq != 1 {
		t.Errorf("Seq = %d, want 1", got.Seq)
	}
	if got.PayloadHex != "bf6161ff" {
		t.Errorf("PayloadHex = %q, want bf6161ff", got.PayloadHex)
	}
	if got.PayloadASCII != ".aa." {
		t.Errorf("PayloadASCII = %q, want .aa.", got.PayloadASCII)
	}
	if got.Source != ep.String() {
		t.Errorf("Source = %q, want %q", got.Source, ep.String())
	}
	if got.Kind != "representation" {
		t.Errorf("Kind = %q, want representation", got.Kind)
	}

	resp, err := http.Get("http://" + s.Addr().String() + MetricsPath)
	if err != nil {
		t.Fatalf("GET metrics error = %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	if !strings.Contains(string(body), "ocf_tap_records_published_total 1") {
		t.Errorf("metrics output missing published counter:\n%s", body)
	}

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	files, err := filepath.Glob(filepath.Join(dir, "capture-*.jsonl"))
	if err != nil || len(files) != 1 {
		t.Fatalf("capture files = %v, err = %v", files, err)
	}
	f, err := os.Open(files[0])
	if err != nil {
		t.Fatalf("open capture: %v", err)
	}
	defer f.Close()
	lines := 0
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		var r Record
		if err := json.Unmarshal(sc.Bytes(), &r); err != nil {
			t.Errorf("capture line %d: %v", lines+1, err)
		}
		lines++
	}
	if lines != 1 {
		t.Errorf("capture has %d lines, want 1", lines)
	}
}

func TestServer_ClientClosedOnShutdown(t *testing.T) {
	s := startServer(t, &Config{Addr: "127.0.0.1:0"})

	conn, _, err := websocket.DefaultDialer.Dial("ws://"+s.Addr().String()+PacketsPath, nil)
	if err != nil {
		t.Fatalf("Dial() error = %v", err)
	}
	defer conn.Close()
	waitFor(t, "client registration", func() bool { return s.GetActiveConnections() == 1 })

	if err := s.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown() error = %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
		t.Errorf("ReadMessage() error = %v, want normal closure", err)
	}
	if err := s.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() error = %v", err)
	}
	if err := s.Start(context.Background()); !errors.Is(err, ErrClosed) {
		t.Errorf("Start() after Shutdown error = %v, want ErrClosed", err)
	}
}

func TestServer_DropsSlowClient(t *testing.T) {
	reg := prometheus.NewRegistry()
	s, err := New(&Config{Addr: "127.0.0.1:0", Registerer: reg})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	c := &client{remoteAddr: "slow", send: make(chan []byte, 1)}
	if !s.addClient(c) {
		t.Fatal("addClient() = false")
	}
	defer s.wg.Done()

	s.Publish(Record{})
	if s.GetActiveConnections() != 1 {
		t.Fatal("client dropped after first record")
	}
	s.Publish(Record{})
	if s.GetActiveConnections() != 0 {
		t.Fatal("slow client kept after queue overflow")
	}
	if got := testutil.ToFloat64(s.dropped); got != 1 {
		t.Errorf("dropped = %v, want 1", got)
	}
	if got := testutil.ToFloat64(s.published); got != 2 {
		t.Errorf("published = %v, want 2", got)
	}

	<-c.send
	if _, ok := <-c.send; ok {
		t.Error("send channel still open after drop")
	}
	// Removing a dropped client again must not panic on the closed channel
	s.removeClient(c)
}

func TestNew_RequiresAddr(t *testing.T) {
	if _, err := New(&Config{}); err == nil {
		t.Error("New() with empty address error = nil")
	}
	if _, err := New(nil); err == nil {
		t.Error("New(nil) error = nil")
	}
}

func TestToASCII(t *testing.T) {
	tests := []struct {
		in   []byte
		want string
	}{
		{nil, ""},
		{[]byte("rt"), "rt"},
		{[]byte{0x00, 'a', 0x7f, '~'}, ".a.~"},
	}
	for _, tt := range tests {
		if got := toASCII(tt.in); got != tt.want {
			t.Errorf("toASCII(%v) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
