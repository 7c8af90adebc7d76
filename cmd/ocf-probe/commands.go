package main

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/muurk/ocfstack/internal/codec"
	"github.com/muurk/ocfstack/internal/discovery"
	"github.com/muurk/ocfstack/internal/document"
	"github.com/muurk/ocfstack/internal/endpoint"
	"github.com/muurk/ocfstack/internal/logging"
	"github.com/muurk/ocfstack/internal/payload"
	"github.com/muurk/ocfstack/internal/server"
	"github.com/muurk/ocfstack/internal/transport"
	"github.com/muurk/ocfstack/internal/ui"
)

// Command flags
var (
	packetKind string

	listenTUI        bool
	listenTap        string
	listenCaptureDir string
	listenAdvertise  bool
	listenKeep       int

	sendTo        string
	sendSecure    bool
	sendMulticast bool
	sendWait      time.Duration

	encodeRaw  bool
	decodeFile string

	browseTimeout time.Duration
)

func init() {
	rootCmd.AddCommand(listenCmd)
	rootCmd.AddCommand(sendCmd)
	rootCmd.AddCommand(encodeCmd)
	rootCmd.AddCommand(decodeCmd)
	rootCmd.AddCommand(endpointsCmd)
	rootCmd.AddCommand(browseCmd)
}

// listenCmd prints every datagram the transport receives
var listenCmd = &cobra.Command{
	Use:   "listen",
	Short: "Listen for unicast and multicast datagrams",
	Long: `Open the transport sockets, join the discovery multicast groups and
print every datagram received, decoded as the payload kind given by --kind.

With --tap the datagrams are also streamed as JSON over a WebSocket at
/packets and the transport metrics are served at /metrics.`,
	Example: `  # Print representation payloads as they arrive
  ocf-probe listen

  # Live view in the terminal
  ocf-probe listen --tui

  # Decode discovery responses and expose a packet tap
  ocf-probe listen --kind discovery --tap 127.0.0.1:8080

  # Keep a JSONL capture of everything received
  ocf-probe listen --tap 127.0.0.1:8080 --capture-dir ./captures`,
	RunE: runListen,
}

func init() {
	listenCmd.Flags().StringVar(&packetKind, "kind", "representation", "Payload kind to decode datagrams as")
	listenCmd.Flags().BoolVar(&listenTUI, "tui", false, "Show a live terminal view")
	listenCmd.Flags().StringVar(&listenTap, "tap", "", "Serve the packet tap and metrics on this address")
	listenCmd.Flags().StringVar(&listenCaptureDir, "capture-dir", "", "Directory to write JSONL packet captures (requires a tap)")
	listenCmd.Flags().BoolVar(&listenAdvertise, "advertise", false, "Advertise the unicast endpoints over DNS-SD")
	listenCmd.Flags().IntVar(&listenKeep, "keep", 50, "Datagrams kept in the live view")
}

func runListen(cmd *cobra.Command, args []string) error {
	kind, err := payload.ParseKind(packetKind)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	tapAddr := listenTap
	if tapAddr == "" {
		tapAddr = cfg.Tap.Addr
	}
	captureDir := listenCaptureDir
	if captureDir == "" {
		captureDir = cfg.Tap.CaptureDir
	}
	if captureDir != "" && tapAddr == "" {
		return errors.New("--capture-dir needs a tap address (--tap or tap.addr)")
	}

	var tap *server.Server
	if tapAddr != "" {
		tap, err = server.New(&server.Config{
			Addr:       tapAddr,
			CaptureDir: captureDir,
			Gatherer:   reg,
			Registerer: reg,
		})
		if err != nil {
			return fmt.Errorf("failed to create packet tap: %w", err)
		}
		if err := tap.Start(ctx); err != nil {
			return fmt.Errorf("failed to start packet tap: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = tap.Shutdown(shutdownCtx)
		}()
	}

	views := make(chan ui.PacketView, 256)
	handler := func(ep endpoint.Endpoint, data []byte) {
		view, rec := decodePacket(ep, data, kind)
		if tap != nil {
			tap.Publish(rec)
		}
		select {
		case views <- view:
		default:
			logging.Warn("Display queue full, dropping packet", zap.Stringer("peer", ep))
		}
	}

	tr, err := startTransport(ctx, reg, handler)
	if err != nil {
		return err
	}
	defer func() { _ = tr.Stop() }()

	if listenAdvertise || cfg.DNSSD.Enabled {
		if adv := advertise(ctx, tr); adv != nil {
			defer adv.Shutdown()
		}
	}

	params := socketParams(tr)
	params["kind"] = kind.String()
	if tap != nil {
		params["tap"] = "ws://" + tap.Addr().String() + server.PacketsPath
	}
	if listenTUI {
		header := ui.NewHeader("Listening", "ocf-probe listen", params)
		return ui.RunMonitor(ctx, ui.NewMonitor(header, listenKeep), func(post func(ui.PacketView)) {
			go func() {
				for {
					select {
					case <-ctx.Done():
						return
					case v := <-views:
						post(v)
					}
				}
			}()
		})
	}

	printer := ui.NewPrinter(nil)
	printer.PrintHeader("Listening", "ocf-probe listen", params)
	count := 0
	for {
		select {
		case <-ctx.Done():
			printer.PrintSuccess("Stopped", map[string]string{"packets": strconv.Itoa(count)})
			return nil
		case v := <-views:
			count++
			printer.PrintPacket(v)
		}
	}
}

// sendCmd encodes a YAML document and sends it
var sendCmd = &cobra.Command{
	Use:   "send <document>",
	Short: "Send a payload described by a YAML document",
	Long: `Encode the payload in a YAML document (use - for stdin) and send it to a
unicast endpoint or to the discovery multicast groups.

With --wait the command keeps listening and prints responses.`,
	Example: `  # Unicast to a device
  ocf-probe send light.yaml --to 192.168.1.20:5683

  # Multicast discovery request, then print answers for 3 seconds
  ocf-probe send discover.yaml --multicast --wait 3s --kind discovery

  # Link-local IPv6 with a zone
  ocf-probe send light.yaml --to '[fe80::1%eth0]:5683'`,
	Args: cobra.ExactArgs(1),
	RunE: runSend,
}

func init() {
	sendCmd.Flags().StringVar(&sendTo, "to", "", "Destination host:port")
	sendCmd.Flags().BoolVar(&sendSecure, "secure", false, "Send through the secure sockets")
	sendCmd.Flags().BoolVar(&sendMulticast, "multicast", false, "Send to the discovery multicast groups")
	sendCmd.Flags().DurationVar(&sendWait, "wait", 0, "Print responses for this long after sending")
	sendCmd.Flags().StringVar(&packetKind, "kind", "representation", "Payload kind to decode responses as")
}

func runSend(cmd *cobra.Command, args []string) error {
	kind, err := payload.ParseKind(packetKind)
	if err != nil {
		return err
	}
	p, err := readDocument(args[0])
	if err != nil {
		return err
	}
	data, err := codec.EncodeWithGuess(p, cfg.EncodeGuess)
	if err != nil {
		return fmt.Errorf("failed to encode payload: %w", err)
	}

	var ep endpoint.Endpoint
	switch {
	case sendMulticast && sendTo != "":
		return errors.New("--to and --multicast are mutually exclusive")
	case sendMulticast:
		ep = endpoint.Endpoint{Adapter: endpoint.AdapterIP}
		if sendSecure {
			ep.Flags |= endpoint.FlagSecure
		}
	case sendTo == "":
		return errors.New("--to is required unless --multicast is set")
	default:
		ep, err = endpoint.Parse(sendTo, sendSecure)
		if err != nil {
			return err
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	views := make(chan ui.PacketView, 64)
	tr, err := startTransport(ctx, nil, func(from endpoint.Endpoint, b []byte) {
		view, _ := decodePacket(from, b, kind)
		select {
		case views <- view:
		default:
		}
	})
	if err != nil {
		return err
	}
	defer func() { _ = tr.Stop() }()

	printer := ui.NewPrinter(nil)
	if err := tr.Send(ep, data, sendMulticast); err != nil {
		printer.PrintError("Send failed", err, []string{
			"Check that the destination address family is enabled in the config",
			"Multicast needs an up, multicast-capable, non-loopback interface",
			"Secure endpoints need a DTLS layer, which ocf-probe does not provide",
		})
		return err
	}
	dest := ep.String()
	if sendMulticast {
		dest = "multicast"
	}
	printer.PrintSuccess("Sent", map[string]string{
		"to":    dest,
		"kind":  p.Kind().String(),
		"bytes": strconv.Itoa(len(data)),
	})

	if sendWait <= 0 {
		return nil
	}
	timer := time.NewTimer(sendWait)
	defer timer.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-timer.C:
			return nil
		case v := <-views:
			printer.PrintPacket(v)
		}
	}
}

// encodeCmd converts a YAML document to the wire encoding
var encodeCmd = &cobra.Command{
	Use:   "encode <document>",
	Short: "Encode a YAML document to the payload wire format",
	Example: `  ocf-probe encode light.yaml
  ocf-probe encode - --raw < light.yaml > light.bin`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		p, err := readDocument(args[0])
		if err != nil {
			return err
		}
		data, err := codec.EncodeWithGuess(p, cfg.EncodeGuess)
		if err != nil {
			return fmt.Errorf("failed to encode payload: %w", err)
		}
		if encodeRaw {
			_, err = cmd.OutOrStdout().Write(data)
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), hex.EncodeToString(data))
		return nil
	},
}

func init() {
	encodeCmd.Flags().BoolVar(&encodeRaw, "raw", false, "Write raw bytes instead of hex")
}

// decodeCmd converts the wire encoding to a YAML document
var decodeCmd = &cobra.Command{
	Use:   "decode [hex]",
	Short: "Decode a wire payload into a YAML document",
	Example: `  ocf-probe decode bf6a737461746586f5ff
  ocf-probe decode --file light.bin --kind representation`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := payload.ParseKind(packetKind)
		if err != nil {
			return err
		}

		var data []byte
		switch {
		case decodeFile != "" && len(args) > 0:
			return errors.New("give either hex input or --file, not both")
		case decodeFile != "":
			data, err = os.ReadFile(decodeFile)
		case len(args) == 1:
			data, err = parseHex(args[0])
		default:
			return errors.New("hex input or --file is required")
		}
		if err != nil {
			return err
		}
		logging.LogRawBytes("Decode input", data)

		p, err := codec.Decode(data, kind)
		if err != nil {
			return err
		}
		doc, err := document.Marshal(p)
		if err != nil {
			return err
		}
		_, err = cmd.OutOrStdout().Write(doc)
		return err
	},
}

func init() {
	decodeCmd.Flags().StringVar(&packetKind, "kind", "representation", "Payload kind to decode as")
	decodeCmd.Flags().StringVar(&decodeFile, "file", "", "Read raw payload bytes from a file")
}

// endpointsCmd lists the local unicast endpoints
var endpointsCmd = &cobra.Command{
	Use:   "endpoints",
	Short: "List the local endpoints the transport answers on",
	RunE: func(cmd *cobra.Command, args []string) error {
		tr, err := startTransport(cmd.Context(), nil, nil)
		if err != nil {
			return err
		}
		defer func() { _ = tr.Stop() }()

		eps, err := tr.LocalEndpoints()
		if err != nil {
			return err
		}
		if len(eps) == 0 {
			fmt.Println("No endpoints: no up, non-loopback interface has an address in an enabled family.")
			return nil
		}
		for _, ep := range eps {
			fmt.Printf("%-40s %s\n", ep.String(), ep.Flags)
		}
		return nil
	},
}

// browseCmd finds advertised peers over DNS-SD
var browseCmd = &cobra.Command{
	Use:   "browse",
	Short: "Browse DNS-SD for CoAP services",
	Example: `  ocf-probe browse
  ocf-probe browse --timeout 10s`,
	RunE: func(cmd *cobra.Command, args []string) error {
		fmt.Printf("Browsing for %s and %s (timeout: %s)...\n\n",
			discovery.ServiceType, discovery.SecureServiceType, browseTimeout)

		peers, err := discovery.Browse(cmd.Context(), browseTimeout)
		if err != nil {
			return fmt.Errorf("browse failed: %w", err)
		}
		if len(peers) == 0 {
			fmt.Println("No peers found.")
			fmt.Println("\nTroubleshooting:")
			fmt.Println("  - Ensure the peer advertises over DNS-SD (ocf-probe listen --advertise)")
			fmt.Println("  - Check that mDNS traffic is not filtered on this network")
			fmt.Println("  - Try increasing --timeout")
			return nil
		}

		fmt.Printf("Found %d peer(s):\n\n", len(peers))
		for i, p := range peers {
			fmt.Printf("%d. %s\n", i+1, p)
			for k, v := range p.Text {
				fmt.Printf("   %s=%s\n", k, v)
			}
		}
		return nil
	},
}

func init() {
	browseCmd.Flags().DurationVar(&browseTimeout, "timeout", discovery.DefaultBrowseTimeout, "Browse duration")
}

// startTransport builds and starts a transport from the loaded config
func startTransport(ctx context.Context, reg prometheus.Registerer, handler transport.PacketHandler) (*transport.Transport, error) {
	opts := []transport.Option{
		transport.WithErrorHandler(func(ep endpoint.Endpoint, data []byte, err error) {
			logging.Warn("Transport error",
				zap.Stringer("peer", ep),
				zap.Int("length", len(data)),
				zap.Error(err),
			)
		}),
	}
	if handler != nil {
		opts = append(opts, transport.WithHandler(handler))
	}
	if reg != nil {
		opts = append(opts, transport.WithRegisterer(reg))
	}

	tr, err := transport.New(cfg, opts...)
	if err != nil {
		return nil, err
	}
	if err := tr.Start(ctx); err != nil {
		return nil, fmt.Errorf("failed to start transport: %w", err)
	}
	return tr, nil
}

// advertise registers the unicast endpoints over DNS-SD; failures only warn
func advertise(ctx context.Context, tr *transport.Transport) *discovery.Advertisement {
	eps, err := tr.LocalEndpoints()
	if err != nil {
		logging.Warn("Cannot list endpoints to advertise", zap.Error(err))
		return nil
	}
	adv, err := discovery.Advertise(ctx, cfg.DNSSD.Instance, eps)
	if err != nil {
		logging.Warn("DNS-SD advertisement failed", zap.Error(err))
		return nil
	}
	return adv
}

// socketParams lists the bound port of every open socket
func socketParams(tr *transport.Transport) map[string]string {
	params := make(map[string]string)
	for _, ipv6 := range []bool{false, true} {
		for _, multicast := range []bool{false, true} {
			for _, secure := range []bool{false, true} {
				r := transport.Role{IPv6: ipv6, Multicast: multicast, Secure: secure}
				if port := tr.Port(r); port != 0 {
					params[r.String()] = strconv.Itoa(int(port))
				}
			}
		}
	}
	return params
}
