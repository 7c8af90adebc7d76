package server

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/muurk/ocfstack/internal/logging"
)

// capture appends records to a JSON Lines file, one object per line
type capture struct {
	mu   sync.Mutex
	path string
	f    *os.File
}

// openCapture creates capture-<timestamp>.jsonl in dir
func openCapture(dir string, now time.Time) (*capture, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create capture directory: %w", err)
	}
	path := filepath.Join(dir, fmt.Sprintf("capture-%s.jsonl", now.Format("20060102-150405")))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open capture file: %w", err)
	}
	logging.Info("Capturing packets", zap.String("filename", path))
	return &capture{path: path, f: f}, nil
}

func (c *capture) write(rec *Record) {
	data, err := json.Marshal(rec)
	if err != nil {
		logging.Error("Failed to marshal capture record", zap.Error(err))
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.f == nil {
		return
	}
	if _, err := c.f.Write(append(data, '\n')); err != nil {
		logging.Error("Failed to write to capture file",
			zap.String("filename", c.path),
			zap.Error(err),
		)
		return
	}
	logging.Debug("Saved packet to capture file",
		zap.String("filename", c.path),
		zap.Uint64("seq", rec.Seq),
	)
}

func (c *capture) close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.f == nil {
		return nil
	}
	err := c.f.Close()
	c.f = nil
	return err
}
