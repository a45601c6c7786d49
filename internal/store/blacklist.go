package store

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Blacklist is an append-only file of tickers that failed validation, one
// per line. It survives crashes: every Add is flushed before returning.
type Blacklist struct {
	mu      sync.Mutex
	tickers map[string]struct{}
	writer  *bufio.Writer
	file    *os.File
	path    string
}

// OpenBlacklist loads any existing entries at path and opens it for
// appending.
func OpenBlacklist(path string) (*Blacklist, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("creating blacklist dir: %w", err)
	}

	b := &Blacklist{
		tickers: make(map[string]struct{}),
		path:    path,
	}

	data, err := os.ReadFile(path)
	if err == nil {
		for _, line := range strings.Split(string(data), "\n") {
			t := strings.ToUpper(strings.TrimSpace(line))
			if t != "" {
				b.tickers[t] = struct{}{}
			}
		}
	}

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("opening blacklist: %w", err)
	}
	b.file = f
	b.writer = bufio.NewWriter(f)
	return b, nil
}

// Contains reports whether ticker is blacklisted.
func (b *Blacklist) Contains(ticker string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, ok := b.tickers[strings.ToUpper(ticker)]
	return ok
}

// Add records tickers, skipping ones already present.
func (b *Blacklist) Add(tickers ...string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	for _, t := range tickers {
		t = strings.ToUpper(t)
		if _, ok := b.tickers[t]; ok {
			continue
		}
		b.tickers[t] = struct{}{}
		if _, err := b.writer.WriteString(t + "\n"); err != nil {
			return fmt.Errorf("writing to blacklist: %w", err)
		}
	}
	return b.writer.Flush()
}

// List returns the blacklisted tickers, sorted.
func (b *Blacklist) List() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.tickers))
	for t := range b.tickers {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// Reset truncates the file and clears the in-memory set.
func (b *Blacklist) Reset() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.file != nil {
		b.file.Close()
	}
	b.tickers = make(map[string]struct{})

	f, err := os.OpenFile(b.path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("reopening blacklist: %w", err)
	}
	b.file = f
	b.writer = bufio.NewWriter(f)
	return nil
}

// Close flushes and closes the file.
func (b *Blacklist) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.writer != nil {
		b.writer.Flush()
	}
	if b.file != nil {
		return b.file.Close()
	}
	return nil
}
