// Package audit defines the append-only audit sink contract the Control
// Tower writes every verdict to, plus a file-backed reference
// implementation. The audit database itself is out of scope (spec §1); this
// package owns only the contract and a default that satisfies it.
package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/pranaya-mathur/sovereign-gateway/contracts"
)

// Sink is the append-only audit contract: it never blocks the request path
// past its deadline and never mutates a prior record.
type Sink interface {
	Append(ctx context.Context, v contracts.Verdict) error
}

// NopSink discards every verdict. It is the Control Tower's default when no
// sink is configured, so evaluation never fails for lack of one.
type NopSink struct{}

// Append implements Sink.
func (NopSink) Append(context.Context, contracts.Verdict) error { return nil }

// FileSink appends newline-delimited JSON verdict records to a file,
// flushing each write before returning so a crash never leaves a partial
// record on disk.
type FileSink struct {
	mu sync.Mutex
	f  *os.File
}

// NewFileSink opens (creating if necessary) the audit log at path for
// appending.
func NewFileSink(path string) (*FileSink, error) {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating audit log directory: %w", err)
		}
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening audit log %s: %w", path, err)
	}
	return &FileSink{f: f}, nil
}

// Append writes one verdict as a single JSON line.
func (s *FileSink) Append(_ context.Context, v contracts.Verdict) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling verdict: %w", err)
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.f.Write(data); err != nil {
		return fmt.Errorf("appending audit record: %w", err)
	}
	return s.f.Sync()
}

// Close closes the underlying file.
func (s *FileSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.f.Close()
}
