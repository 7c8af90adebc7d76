// Package server implements the packet tap, a small HTTP server for
// watching transport traffic from another process.
//
// # Endpoints
//
//	GET /packets   WebSocket; one JSON Record per text message
//	GET /metrics   Prometheus exposition of the configured Gatherer
//
// Each client gets a bounded queue. A client that stops reading is
// disconnected rather than slowing down Publish, which is called from the
// transport's receive loop.
//
// # Captures
//
// When CaptureDir is set, every published Record is also appended to
// capture-<timestamp>.jsonl in that directory, one JSON object per line:
//
//	{"timestamp":"...","seq":1,"source":"192.168.1.20:5683","flags":"ipv4",
//	 "payload_length":4,"payload_hex":"bf6161ff","payload_ascii":"..a.",
//	 "kind":"representation","decoded":"..."}
//
// Usage:
//
//	tap, err := server.New(&server.Config{Addr: "127.0.0.1:8080", Gatherer: reg})
//	if err != nil {
//		return err
//	}
//	if err := tap.Start(ctx); err != nil {
//		return err
//	}
//	tap.Publish(server.NewRecord(ep, data))
package server
