// Package ui renders the terminal output of the ocf-probe CLI.
//
// Commands print through a Printer, which uses Lipgloss boxes when stdout is
// a terminal and plain text otherwise, so output stays greppable in pipes:
//
//   - Header: command banner showing the operation and its parameters
//   - Result: success or failure box with details or troubleshooting tips
//   - PacketView: one received datagram with its source and decoded payload
//
// The listen command can instead run a Monitor, a Bubble Tea live view of
// the most recent datagrams:
//
//	m := ui.NewMonitor(ui.NewHeader("Listen", "ocf-probe listen", params), 50)
//	err := ui.RunMonitor(ctx, m, func(post func(ui.PacketView)) {
//	    handler = func(ep endpoint.Endpoint, b []byte) { post(view(ep, b)) }
//	})
//
// # Logging Integration
//
// zap logging stays silent unless OCF_LOG_LEVEL is set, so the curated output
// is not interleaved with log lines. Set OCF_LOG_LEVEL to "debug", "info",
// "warn" or "error" to enable it.
package ui
