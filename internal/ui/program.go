package ui

import (
	"fmt"
	"io"
	"os"
)

// Printer writes UI components to a writer. Styled boxes are used when the
// writer is a terminal; otherwise each component prints its plain form.
type Printer struct {
	out   io.Writer
	width int
	plain bool
}

// NewPrinter creates a new Printer that writes to the given writer.
// If w is nil, os.Stdout is used.
func NewPrinter(w io.Writer) *Printer {
	plain := true
	if w == nil {
		w = os.Stdout
		plain = !IsTerminal()
	}
	return &Printer{
		out:   w,
		width: GetTerminalWidth(),
		plain: plain,
	}
}

// SetPlain forces plain or styled output
func (p *Printer) SetPlain(plain bool) *Printer {
	p.plain = plain
	return p
}

// Plain reports whether the printer writes unstyled output
func (p *Printer) Plain() bool {
	return p.plain
}

// Width returns the current terminal width used by this printer
func (p *Printer) Width() int {
	return p.width
}

// Println writes content with a newline
func (p *Printer) Println(content string) {
	_, _ = fmt.Fprintln(p.out, content)
}

// Print writes content as is
func (p *Printer) Print(content string) {
	_, _ = fmt.Fprint(p.out, content)
}

// PrintHeader prints a command header
func (p *Printer) PrintHeader(title, command string, params map[string]string) {
	h := NewHeader(title, command, params).SetWidth(p.width)
	if p.plain {
		p.Print(h.Plain())
		return
	}
	p.Println(h.Render())
}

// PrintSuccess prints a success result
func (p *Printer) PrintSuccess(title string, details map[string]string) {
	p.printResult(NewSuccessResult(title, details))
}

// PrintError prints an error result with troubleshooting tips
func (p *Printer) PrintError(title string, err error, troubleshooting []string) {
	p.printResult(NewFailureResult(title, err, troubleshooting))
}

func (p *Printer) printResult(r *Result) {
	r.SetWidth(p.width)
	if p.plain {
		p.Print(r.Plain())
		return
	}
	p.Println(r.Render())
}

// PrintPacket prints one received datagram
func (p *Printer) PrintPacket(v PacketView) {
	if p.plain {
		p.Print(v.Plain())
		return
	}
	p.Println(v.Render())
}
