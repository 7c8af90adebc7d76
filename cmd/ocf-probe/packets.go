package main

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/muurk/ocfstack/internal/codec"
	"github.com/muurk/ocfstack/internal/document"
	"github.com/muurk/ocfstack/internal/endpoint"
	"github.com/muurk/ocfstack/internal/payload"
	"github.com/muurk/ocfstack/internal/server"
	"github.com/muurk/ocfstack/internal/ui"
)

// decodePacket decodes data as kind and prepares it for display and for
// the packet tap
func decodePacket(ep endpoint.Endpoint, data []byte, kind payload.Kind) (ui.PacketView, server.Record) {
	view := ui.PacketView{
		When:   time.Now(),
		Source: ep,
		Size:   len(data),
		Kind:   kind.String(),
	}
	rec := server.NewRecord(ep, data)
	rec.Timestamp = view.When
	rec.Kind = kind.String()

	body, err := decodeToDocument(data, kind)
	if err != nil {
		view.Err = err
		rec.Error = err.Error()
		return view, rec
	}
	view.Body = body
	rec.Decoded = body
	return view, rec
}

func decodeToDocument(data []byte, kind payload.Kind) (string, error) {
	p, err := codec.Decode(data, kind)
	if err != nil {
		return "", err
	}
	doc, err := document.Marshal(p)
	if err != nil {
		return "", err
	}
	return string(doc), nil
}

// readDocument loads a YAML payload document from path, or stdin for "-"
func readDocument(path string) (payload.Payload, error) {
	var (
		data []byte
		err  error
	)
	if path == "-" {
		data, err = io.ReadAll(os.Stdin)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read document: %w", err)
	}
	return document.Unmarshal(data)
}

// parseHex accepts hex with optional whitespace, colons or a 0x prefix
func parseHex(s string) ([]byte, error) {
	s = strings.TrimPrefix(strings.TrimSpace(s), "0x")
	s = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\t', '\n', '\r', ':':
			return -1
		}
		return r
	}, s)
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid hex input: %w", err)
	}
	return b, nil
}
