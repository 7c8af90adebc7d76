package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/muurk/ocfstack/internal/endpoint"
)

// PacketView is a received datagram prepared for display
type PacketView struct {
	When   time.Time
	Source endpoint.Endpoint
	Size   int
	Kind   string // Payload kind it was decoded as
	Body   string // Decoded payload, already formatted
	Err    error  // Decode failure, if any
}

func (v PacketView) tags() []string {
	var tags []string
	if v.Source.IsMulticast() {
		tags = append(tags, "multicast")
	}
	if v.Source.IsSecure() {
		tags = append(tags, "secure")
	}
	return tags
}

func (v PacketView) source() string {
	host := v.Source.Addr
	if v.Source.IsIPv6() {
		host = "[" + host + "]"
	}
	return fmt.Sprintf("%s:%d", host, v.Source.Port)
}

// Render returns the styled packet block
func (v PacketView) Render() string {
	var b strings.Builder

	b.WriteString(MutedStyle.Render(v.When.Format("15:04:05.000")) + " ")
	b.WriteString(PacketSourceStyle.Render(PacketMarker + " " + v.source()))
	for _, tag := range v.tags() {
		style := MulticastTagStyle
		if tag == "secure" {
			style = SecureTagStyle
		}
		b.WriteString(" " + style.Render(tag))
	}
	b.WriteString(MutedStyle.Render(fmt.Sprintf("  %d bytes  %s", v.Size, v.Kind)))
	b.WriteString("\n")

	if v.Err != nil {
		b.WriteString(PacketBodyStyle.Inherit(ErrorMessageStyle).Render(v.Err.Error()))
		return b.String()
	}
	b.WriteString(PacketBodyStyle.Render(strings.TrimRight(v.Body, "\n")))
	return b.String()
}

// Plain renders the packet without styling
func (v PacketView) Plain() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s", v.When.Format(time.RFC3339Nano), v.source())
	if tags := v.tags(); len(tags) > 0 {
		b.WriteString(" " + strings.Join(tags, ","))
	}
	fmt.Fprintf(&b, " %d bytes %s\n", v.Size, v.Kind)
	if v.Err != nil {
		b.WriteString("  error: " + v.Err.Error() + "\n")
		return b.String()
	}
	for _, line := range strings.Split(strings.TrimRight(v.Body, "\n"), "\n") {
		b.WriteString("  " + line + "\n")
	}
	return b.String()
}
