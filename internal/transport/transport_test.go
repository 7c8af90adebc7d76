package transport

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/d4l3k/messagediff"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/muurk/ocfstack/internal/config"
	"github.com/muurk/ocfstack/internal/endpoint"
	"github.com/muurk/ocfstack/internal/netwatch"
)

// fakeInterfaces is a swappable interface table
type fakeInterfaces struct {
	mu     sync.Mutex
	ifaces []net.Interface
	addrs  map[int][]net.Addr
}

func (f *fakeInterfaces) Interfaces() ([]net.Interface, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]net.Interface(nil), f.ifaces...), nil
}

func (f *fakeInterfaces) Addrs(ifi *net.Interface) ([]net.Addr, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.addrs[ifi.Index], nil
}

func (f *fakeInterfaces) set(ifaces []net.Interface, addrs map[int][]net.Addr) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ifaces, f.addrs = ifaces, addrs
}

type fakeNotifier struct {
	events chan netwatch.Event
	closed bool
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{events: make(chan netwatch.Event, 4)}
}

func (f *fakeNotifier) Events() <-chan netwatch.Event { return f.events }
func (f *fakeNotifier) Poll() []netwatch.Event        { return nil }
func (f *fakeNotifier) Close() error                  { f.closed = true; return nil }

// prefixChannel "encrypts" by prefixing a marker
type prefixChannel struct{}

var marker = []byte("dtls:")

func (prefixChannel) Encrypt(_ endpoint.Endpoint, data []byte) ([]byte, error) {
	return append(bytes.Clone(marker), data...), nil
}

func (prefixChannel) Decrypt(_ endpoint.Endpoint, data []byte) ([]byte, error) {
	if !bytes.HasPrefix(data, marker) {
		return nil, errors.New("bad record")
	}
	return data[len(marker):], nil
}

type received struct {
	ep   endpoint.Endpoint
	data []byte
}

func ipv4Config() *config.Config {
	cfg := config.Default()
	cfg.IPv6 = false
	cfg.Ports = config.Ports{}
	return cfg
}

func startTransport(t *testing.T, cfg *config.Config, opts ...Option) (*Transport, chan received) {
	t.Helper()
	got := make(chan received, 8)
	opts = append([]Option{
		WithHandler(func(ep endpoint.Endpoint, data []byte) {
			got <- received{ep: ep, data: bytes.Clone(data)}
		}),
		WithInterfaces(&fakeInterfaces{}),
		WithNotifier(newFakeNotifier()),
	}, opts...)

	tr, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() { _ = tr.Stop() })
	return tr, got
}

func waitPacket(t *testing.T, ch chan received) received {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for datagram")
		return received{}
	}
}

func loopback(t *testing.T, port uint16, secure bool) endpoint.Endpoint {
	t.Helper()
	ep, err := endpoint.New("127.0.0.1", port, secure)
	if err != nil {
		t.Fatalf("endpoint.New() error = %v", err)
	}
	return ep
}

func TestStartStop_IPv4Only(t *testing.T) {
	notifier := newFakeNotifier()
	tr, err := New(ipv4Config(), WithInterfaces(&fakeInterfaces{}), WithNotifier(notifier))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := tr.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	if got := tr.SocketCount(); got != 4 {
		t.Errorf("SocketCount() = %d, want 4", got)
	}
	for i := 0; i < roleCount; i++ {
		r := roleAt(i)
		port := tr.Port(r)
		if r.IPv6 && port != 0 {
			t.Errorf("Port(%s) = %d, want 0", r, port)
		}
		if !r.IPv6 && port == 0 {
			t.Errorf("Port(%s) = 0, want a bound port", r)
		}
	}
	if got := testutil.ToFloat64(tr.Metrics().Sockets); got != 4 {
		t.Errorf("sockets gauge = %v, want 4", got)
	}

	if err := tr.Start(context.Background()); !errors.Is(err, ErrAlreadyStarted) {
		t.Errorf("second Start() error = %v, want ErrAlreadyStarted", err)
	}

	if err := tr.Stop(); err != nil {
		t.Fatalf("Stop() error = %v", err)
	}
	if got := tr.SocketCount(); got != 0 {
		t.Errorf("SocketCount() after Stop = %d, want 0", got)
	}
	if notifier.closed {
		t.Error("Stop() closed a notifier it does not own")
	}
	if err := tr.Stop(); err != nil {
		t.Errorf("second Stop() error = %v, want nil", err)
	}
}

func TestStart_Restart(t *testing.T) {
	tr, err := New(ipv4Config(), WithInterfaces(&fakeInterfaces{}), WithNotifier(newFakeNotifier()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := tr.Start(context.Background()); err != nil {
			t.Fatalf("Start() #%d error = %v", i, err)
		}
		if err := tr.Stop(); err != nil {
			t.Fatalf("Stop() #%d error = %v", i, err)
		}
	}
}

func TestStart_BindFailureLeavesNothingOpen(t *testing.T) {
	cfg := ipv4Config()
	// Unicast sockets do not set SO_REUSEADDR, so binding the same port
	// on the wildcard address fails on every platform we run on.
	busyAll, err := net.ListenUDP("udp4", &net.UDPAddr{})
	if err != nil {
		t.Fatalf("ListenUDP() error = %v", err)
	}
	defer busyAll.Close()
	cfg.Ports.UnicastSecure = uint16(busyAll.LocalAddr().(*net.UDPAddr).Port)

	tr, err := New(cfg, WithInterfaces(&fakeInterfaces{}), WithNotifier(newFakeNotifier()))
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	err = tr.Start(context.Background())
	var setupErr *SetupError
	if !errors.As(err, &setupErr) {
		t.Fatalf("Start() error = %v, want *SetupError", err)
	}
	if want := (Role{Secure: true}); setupErr.Role != want {
		t.Errorf("SetupError.Role = %s, want %s", setupErr.Role, want)
	}
	if got := tr.SocketCount(); got != 0 {
		t.Errorf("SocketCount() after failed Start = %d, want 0", got)
	}
	if err := tr.Send(loopback(t, 1, false), []byte("x"), false); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Send() after failed Start error = %v, want ErrNotStarted", err)
	}
}

func TestSend_NotStarted(t *testing.T) {
	tr, err := New(ipv4Config())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	if err := tr.Send(loopback(t, 5683, false), []byte("x"), false); !errors.Is(err, ErrNotStarted) {
		t.Errorf("Send() error = %v, want ErrNotStarted", err)
	}
	if _, err := tr.LocalEndpoints(); !errors.Is(err, ErrNotStarted) {
		t.Errorf("LocalEndpoints() error = %v, want ErrNotStarted", err)
	}
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := config.Default()
	cfg.IPv4, cfg.IPv6 = false, false
	if _, err := New(cfg); err == nil {
		t.Error("New() with no family enabled succeeded")
	}
}

func TestSendReceive_Unicast(t *testing.T) {
	tr, got := startTransport(t, ipv4Config())

	port := tr.Port(Role{})
	if err := tr.Send(loopback(t, port, false), []byte("hello"), false); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	r := waitPacket(t, got)
	if string(r.data) != "hello" {
		t.Errorf("data = %q, want %q", r.data, "hello")
	}
	want := endpoint.Endpoint{
		Adapter: endpoint.AdapterIP,
		Flags:   endpoint.FlagIPv4,
		Port:    port,
		Addr:    "127.0.0.1",
		IfIndex: r.ep.IfIndex,
	}
	if diff, equal := messagediff.PrettyDiff(want, r.ep); !equal {
		t.Errorf("source endpoint mismatch:\n%s", diff)
	}

	m := tr.Metrics()
	if v := testutil.ToFloat64(m.PacketsSent.WithLabelValues("ipv4/unicast", "unicast")); v != 1 {
		t.Errorf("packets sent = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.PacketsReceived.WithLabelValues("ipv4/unicast", "unicast")); v != 1 {
		t.Errorf("packets received = %v, want 1", v)
	}
}

func TestSendReceive_Secure(t *testing.T) {
	tr, got := startTransport(t, ipv4Config(), WithSecureChannel(prefixChannel{}))

	port := tr.Port(Role{Secure: true})
	if err := tr.Send(loopback(t, port, true), []byte("secret"), false); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	r := waitPacket(t, got)
	if string(r.data) != "secret" {
		t.Errorf("data = %q, want %q", r.data, "secret")
	}
	if !r.ep.IsSecure() {
		t.Errorf("source endpoint %s not marked secure", r.ep)
	}
	if r.ep.Port != port {
		t.Errorf("source port = %d, want %d", r.ep.Port, port)
	}
}

func TestReceive_UnicastOnMulticastSocket(t *testing.T) {
	tr, got := startTransport(t, ipv4Config())

	port := tr.Port(Role{Multicast: true})
	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: int(port)})
	if err != nil {
		t.Fatalf("DialUDP() error = %v", err)
	}
	defer conn.Close()
	if _, err := conn.Write([]byte("probe")); err != nil {
		t.Fatalf("Write() error = %v", err)
	}

	r := waitPacket(t, got)
	if r.ep.IsMulticast() {
		t.Errorf("unicast datagram on multicast socket classified as multicast: %s", r.ep)
	}
	if want := uint16(conn.LocalAddr().(*net.UDPAddr).Port); r.ep.Port != want {
		t.Errorf("source port = %d, want %d", r.ep.Port, want)
	}
}

func TestHandlePacket(t *testing.T) {
	src := &net.UDPAddr{IP: net.ParseIP("192.0.2.7"), Port: 40000}
	src6 := &net.UDPAddr{IP: net.ParseIP("fe80::7"), Port: 40000}

	tests := []struct {
		name      string
		role      Role
		pkt       packet
		secure    SecureChannel
		wantFlags endpoint.Flags
		wantData  string
		dropped   bool
	}{
		{
			name:      "unicast plain",
			role:      Role{},
			pkt:       packet{data: []byte("a"), src: src, dst: net.ParseIP("192.0.2.1"), ifIndex: 3},
			wantFlags: endpoint.FlagIPv4,
			wantData:  "a",
		},
		{
			name:      "multicast socket, group destination",
			role:      Role{Multicast: true},
			pkt:       packet{data: []byte("b"), src: src, dst: net.ParseIP("224.0.1.187"), ifIndex: 3},
			wantFlags: endpoint.FlagIPv4 | endpoint.FlagMulticast,
			wantData:  "b",
		},
		{
			name:      "multicast socket, unicast destination",
			role:      Role{Multicast: true},
			pkt:       packet{data: []byte("c"), src: src, dst: net.ParseIP("192.0.2.1"), ifIndex: 3},
			wantFlags: endpoint.FlagIPv4,
			wantData:  "c",
		},
		{
			name:      "multicast socket, unknown destination",
			role:      Role{Multicast: true},
			pkt:       packet{data: []byte("d"), src: src, ifIndex: 3},
			wantFlags: endpoint.FlagIPv4,
			wantData:  "d",
		},
		{
			name:      "ipv6 multicast",
			role:      Role{IPv6: true, Multicast: true},
			pkt:       packet{data: []byte("e"), src: src6, dst: net.ParseIP("ff02::fd"), ifIndex: 3},
			wantFlags: (endpoint.FlagIPv6 | endpoint.FlagMulticast).WithScope(endpoint.ScopeLink),
			wantData:  "e",
		},
		{
			name:      "secure decrypted",
			role:      Role{Secure: true},
			pkt:       packet{data: []byte("dtls:f"), src: src, ifIndex: 3},
			secure:    prefixChannel{},
			wantFlags: endpoint.FlagIPv4 | endpoint.FlagSecure,
			wantData:  "f",
		},
		{
			name:    "secure without channel",
			role:    Role{Secure: true},
			pkt:     packet{data: []byte("dtls:g"), src: src, ifIndex: 3},
			dropped: true,
		},
		{
			name:    "secure decrypt failure",
			role:    Role{Secure: true},
			pkt:     packet{data: []byte("h"), src: src, ifIndex: 3},
			secure:  prefixChannel{},
			dropped: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []received
			var errs []error
			opts := []Option{
				WithHandler(func(ep endpoint.Endpoint, data []byte) {
					got = append(got, received{ep: ep, data: data})
				}),
				WithErrorHandler(func(_ endpoint.Endpoint, _ []byte, err error) {
					errs = append(errs, err)
				}),
			}
			if tt.secure != nil {
				opts = append(opts, WithSecureChannel(tt.secure))
			}
			tr, err := New(config.Default(), opts...)
			if err != nil {
				t.Fatalf("New() error = %v", err)
			}

			tr.handlePacket(tt.role, tt.pkt)

			if tt.dropped {
				if len(got) != 0 {
					t.Errorf("delivered %d datagrams, want none", len(got))
				}
				return
			}
			if len(got) != 1 {
				t.Fatalf("delivered %d datagrams, want 1", len(got))
			}
			if len(errs) != 0 {
				t.Errorf("unexpected errors: %v", errs)
			}
			if got[0].ep.Flags != tt.wantFlags {
				t.Errorf("flags = %s, want %s", got[0].ep.Flags, tt.wantFlags)
			}
			if got[0].ep.IfIndex != 3 {
				t.Errorf("IfIndex = %d, want 3", got[0].ep.IfIndex)
			}
			if string(got[0].data) != tt.wantData {
				t.Errorf("data = %q, want %q", got[0].data, tt.wantData)
			}
		})
	}
}

func TestHandlePacket_DropReasons(t *testing.T) {
	src := &net.UDPAddr{IP: net.ParseIP("192.0.2.7"), Port: 40000}

	tr, err := New(config.Default())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	tr.handlePacket(Role{Secure: true}, packet{data: []byte("x"), src: src})
	tr.handlePacket(Role{}, packet{data: []byte("y"), src: src})

	m := tr.Metrics()
	if v := testutil.ToFloat64(m.PacketsDropped.WithLabelValues("ipv4/unicast/secure", "no_secure_channel")); v != 1 {
		t.Errorf("no_secure_channel drops = %v, want 1", v)
	}
	if v := testutil.ToFloat64(m.PacketsDropped.WithLabelValues("ipv4/unicast", "no_handler")); v != 1 {
		t.Errorf("no_handler drops = %v, want 1", v)
	}
}

func TestIsMulticastDst(t *testing.T) {
	tests := []struct {
		dst  string
		ipv6 bool
		want bool
	}{
		{"224.0.1.187", false, true},
		{"239.255.255.250", false, true},
		{"223.255.255.255", false, false},
		{"240.0.0.1", false, false},
		{"192.0.2.1", false, false},
		{"ff02::fd", true, true},
		{"ff05::fd", true, true},
		{"fe80::1", true, false},
		{"2001:db8::1", true, false},
		{"224.0.1.187", true, false},
		{"ff02::fd", false, false},
		{"", false, false},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/v6=%v", tt.dst, tt.ipv6), func(t *testing.T) {
			if got := isMulticastDst(net.ParseIP(tt.dst), tt.ipv6); got != tt.want {
				t.Errorf("isMulticastDst(%q, %v) = %v, want %v", tt.dst, tt.ipv6, got, tt.want)
			}
		})
	}
}

func TestRoleIndex(t *testing.T) {
	seen := make(map[Role]bool)
	for i := 0; i < roleCount; i++ {
		r := roleAt(i)
		if r.index() != i {
			t.Errorf("roleAt(%d).index() = %d", i, r.index())
		}
		seen[r] = true
	}
	if len(seen) != roleCount {
		t.Errorf("roleAt produced %d distinct roles, want %d", len(seen), roleCount)
	}

	order := []Role{
		{},
		{IPv6: true},
		{Secure: true},
		{IPv6: true, Secure: true},
		{Multicast: true},
		{IPv6: true, Multicast: true},
		{Multicast: true, Secure: true},
		{IPv6: true, Multicast: true, Secure: true},
	}
	for i, r := range order {
		if r.index() != i {
			t.Errorf("%s.index() = %d, want %d", r, r.index(), i)
		}
	}
}

func TestRoleString(t *testing.T) {
	tests := []struct {
		role Role
		want string
	}{
		{Role{}, "ipv4/unicast"},
		{Role{IPv6: true, Secure: true}, "ipv6/unicast/secure"},
		{Role{Multicast: true}, "ipv4/multicast"},
		{Role{IPv6: true, Multicast: true, Secure: true}, "ipv6/multicast/secure"},
	}
	for _, tt := range tests {
		if got := tt.role.String(); got != tt.want {
			t.Errorf("String() = %q, want %q", got, tt.want)
		}
	}
}

func TestIPv6Group(t *testing.T) {
	tests := []struct {
		scope endpoint.Scope
		want  string
	}{
		{endpoint.ScopeInterface, "ff01::fd"},
		{endpoint.ScopeLink, "ff02::fd"},
		{endpoint.ScopeRealm, "ff03::fd"},
		{endpoint.ScopeAdmin, "ff04::fd"},
		{endpoint.ScopeSite, "ff05::fd"},
		{endpoint.ScopeOrg, "ff08::fd"},
		{endpoint.ScopeGlobal, "ff0e::fd"},
	}
	for _, tt := range tests {
		if got := IPv6Group(tt.scope).String(); got != tt.want {
			t.Errorf("IPv6Group(%s) = %s, want %s", tt.scope, got, tt.want)
		}
	}
}

func TestGroupFor(t *testing.T) {
	tr, err := New(config.Default())
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	site, err := endpoint.New("ff05::fd", 0, false)
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name string
		ep   endpoint.Endpoint
		ipv6 bool
		want string
	}{
		{"ipv4 default", endpoint.Endpoint{}, false, "224.0.1.187"},
		{"ipv6 default scope", endpoint.Endpoint{}, true, "ff02::fd"},
		{"ipv6 explicit group", site, true, "ff05::fd"},
		{"ipv6 flag scope", endpoint.Endpoint{Flags: endpoint.FlagIPv6.WithScope(endpoint.ScopeRealm)}, true, "ff03::fd"},
		{"group of other family ignored", site, false, "224.0.1.187"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tr.groupFor(tt.ep, tt.ipv6).String(); got != tt.want {
				t.Errorf("groupFor() = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestFamily(t *testing.T) {
	tests := []struct {
		ep      endpoint.Endpoint
		want    bool
		wantErr bool
	}{
		{endpoint.Endpoint{Flags: endpoint.FlagIPv6}, true, false},
		{endpoint.Endpoint{Flags: endpoint.FlagIPv4}, false, false},
		{endpoint.Endpoint{Addr: "192.0.2.1"}, false, false},
		{endpoint.Endpoint{Addr: "::ffff:192.0.2.1"}, false, false},
		{endpoint.Endpoint{Addr: "2001:db8::1"}, true, false},
		{endpoint.Endpoint{Addr: "nonsense"}, false, true},
	}
	for _, tt := range tests {
		got, err := family(tt.ep)
		if (err != nil) != tt.wantErr {
			t.Errorf("family(%+v) error = %v, wantErr %v", tt.ep, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("family(%+v) = %v, want %v", tt.ep, got, tt.want)
		}
	}
}

func TestSend_NoSocketForFamily(t *testing.T) {
	tr, _ := startTransport(t, ipv4Config())
	ep, err := endpoint.New("2001:db8::1", 5683, false)
	if err != nil {
		t.Fatal(err)
	}
	if err := tr.Send(ep, []byte("x"), false); !errors.Is(err, ErrNoSocket) {
		t.Errorf("Send() error = %v, want ErrNoSocket", err)
	}
}

func TestSend_SecureWithoutChannel(t *testing.T) {
	tr, got := startTransport(t, ipv4Config())

	tests := []struct {
		name      string
		ep        endpoint.Endpoint
		multicast bool
	}{
		{"unicast", loopback(t, tr.Port(Role{Secure: true}), true), false},
		{"multicast", endpoint.Endpoint{Adapter: endpoint.AdapterIP, Flags: endpoint.FlagIPv4 | endpoint.FlagSecure}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tr.Send(tt.ep, []byte("plain"), tt.multicast); !errors.Is(err, ErrNoSecureChannel) {
				t.Errorf("Send() error = %v, want ErrNoSecureChannel", err)
			}
		})
	}

	if v := testutil.ToFloat64(tr.Metrics().SendErrors.WithLabelValues("ipv4/unicast/secure", "no_secure_channel")); v != 2 {
		t.Errorf("send errors = %v, want 2", v)
	}
	if v := testutil.ToFloat64(tr.Metrics().PacketsSent.WithLabelValues("ipv4/unicast/secure", "unicast")); v != 0 {
		t.Errorf("packets sent = %v, want 0", v)
	}
	select {
	case r := <-got:
		t.Errorf("received %q from %s, want nothing", r.data, r.ep)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestSend_MulticastNoInterfaces(t *testing.T) {
	tr, _ := startTransport(t, ipv4Config())
	if err := tr.Send(endpoint.Endpoint{Adapter: endpoint.AdapterIP}, []byte("x"), true); err != nil {
		t.Errorf("multicast Send() with no interfaces error = %v, want nil", err)
	}
}

func TestLocalEndpoints(t *testing.T) {
	src := &fakeInterfaces{}
	src.set(
		[]net.Interface{
			{Index: 1, Name: "lo", Flags: net.FlagUp | net.FlagLoopback},
			{Index: 4242, Name: "test0", Flags: net.FlagUp},
			{Index: 4243, Name: "down0"},
		},
		map[int][]net.Addr{
			1: {&net.IPNet{IP: net.IPv4(127, 0, 0, 1), Mask: net.CIDRMask(8, 32)}},
			4242: {
				&net.IPNet{IP: net.ParseIP("192.0.2.10"), Mask: net.CIDRMask(24, 32)},
				&net.IPNet{IP: net.ParseIP("2001:db8::10"), Mask: net.CIDRMask(64, 128)},
			},
			4243: {&net.IPNet{IP: net.ParseIP("198.51.100.1"), Mask: net.CIDRMask(24, 32)}},
		},
	)
	tr, _ := startTransport(t, ipv4Config(), WithInterfaces(src))

	got, err := tr.LocalEndpoints()
	if err != nil {
		t.Fatalf("LocalEndpoints() error = %v", err)
	}
	want := []endpoint.Endpoint{
		{Adapter: endpoint.AdapterIP, Flags: endpoint.FlagIPv4, Port: tr.Port(Role{}), Addr: "192.0.2.10", IfIndex: 4242},
		{Adapter: endpoint.AdapterIP, Flags: endpoint.FlagIPv4 | endpoint.FlagSecure, Port: tr.Port(Role{Secure: true}), Addr: "192.0.2.10", IfIndex: 4242},
	}
	if diff, equal := messagediff.PrettyDiff(want, got); !equal {
		t.Errorf("LocalEndpoints() mismatch:\n%s", diff)
	}
}

func TestRejoinOnInterfaceEvent(t *testing.T) {
	src := &fakeInterfaces{}
	notifier := newFakeNotifier()
	tr, _ := startTransport(t, ipv4Config(), WithInterfaces(src), WithNotifier(notifier))

	m := tr.Metrics()
	joins := func() float64 {
		var n float64
		for _, result := range []string{"joined", "member", "error"} {
			n += testutil.ToFloat64(m.GroupJoins.WithLabelValues("ipv4", result))
		}
		return n
	}
	if n := joins(); n != 0 {
		t.Fatalf("joins before event = %v, want 0", n)
	}

	// An interface index no host has; the join itself is expected to fail
	// and must only be counted.
	const index = 1 << 20
	src.set(
		[]net.Interface{{Index: index, Name: "test9", Flags: net.FlagUp | net.FlagRunning | net.FlagMulticast}},
		map[int][]net.Addr{index: {&net.IPNet{IP: net.ParseIP("192.0.2.9"), Mask: net.CIDRMask(24, 32)}}},
	)
	notifier.events <- netwatch.Event{Index: index, Name: "test9"}

	deadline := time.Now().Add(5 * time.Second)
	for joins() < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("joins after event = %v, want 2", joins())
		}
		time.Sleep(10 * time.Millisecond)
	}
	if v := testutil.ToFloat64(m.InterfaceEvents); v != 1 {
		t.Errorf("interface events = %v, want 1", v)
	}

	// Events for unknown indexes are counted but join nothing
	notifier.events <- netwatch.Event{Index: index + 1, Name: "gone"}
	for testutil.ToFloat64(m.InterfaceEvents) < 2 {
		if time.Now().After(deadline) {
			t.Fatal("second interface event not handled")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if n := joins(); n != 2 {
		t.Errorf("joins after unknown event = %v, want 2", n)
	}
}

func TestMulticastCapable(t *testing.T) {
	all := net.FlagUp | net.FlagRunning | net.FlagMulticast
	tests := []struct {
		flags net.Flags
		want  bool
	}{
		{all, true},
		{all | net.FlagLoopback, false},
		{net.FlagUp | net.FlagMulticast, false},
		{net.FlagUp | net.FlagRunning, false},
		{0, false},
	}
	for _, tt := range tests {
		if got := multicastCapable(net.Interface{Flags: tt.flags}); got != tt.want {
			t.Errorf("multicastCapable(%v) = %v, want %v", tt.flags, got, tt.want)
		}
	}
}

func TestDiscoveryPort(t *testing.T) {
	cfg := config.Default()
	tr, err := New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	if got := tr.discoveryPort(false); got != 5683 {
		t.Errorf("discoveryPort(false) = %d, want 5683", got)
	}
	if got := tr.discoveryPort(true); got != 5684 {
		t.Errorf("discoveryPort(true) = %d, want 5684", got)
	}

	eph, _ := startTransport(t, ipv4Config())
	want := eph.Port(Role{Multicast: true})
	if got := eph.discoveryPort(false); got != want {
		t.Errorf("ephemeral discoveryPort(false) = %d, want bound port %d", got, want)
	}
}
