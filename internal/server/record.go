package server

import (
	"encoding/hex"
	"time"

	"github.com/muurk/ocfstack/internal/endpoint"
)

// Record is one captured datagram as published to tap clients and written
// to capture files.
type Record struct {
	Timestamp    time.Time `json:"timestamp"`
	Seq          uint64    `json:"seq"`
	Source       string    `json:"source"`
	Flags        string    `json:"flags"`
	IfIndex      int       `json:"if_index,omitempty"`
	PayloadLen   int       `json:"payload_length"`
	PayloadHex   string    `json:"payload_hex"`
	PayloadASCII string    `json:"payload_ascii"`
	Kind         string    `json:"kind,omitempty"`
	Decoded      string    `json:"decoded,omitempty"`
	Error        string    `json:"error,omitempty"`
}

// NewRecord builds a record for data received from ep. Seq is assigned by
// Publish.
func NewRecord(ep endpoint.Endpoint, data []byte) Record {
	return Record{
		Timestamp:    time.Now(),
		Source:       ep.String(),
		Flags:        ep.Flags.String(),
		IfIndex:      ep.IfIndex,
		PayloadLen:   len(data),
		PayloadHex:   hex.EncodeToString(data),
		PayloadASCII: toASCII(data),
	}
}

// toASCII converts bytes to ASCII string (non-printable chars become '.')
func toASCII(data []byte) string {
	result := make([]byte, len(data))
	for i, b := range data {
		if b >= 32 && b <= 126 {
			result[i] = b
		} else {
			result[i] = '.'
		}
	}
	return string(result)
}
