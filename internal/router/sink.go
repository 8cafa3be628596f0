package router

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"rankfetcher/internal/identifier"
)

// Sink persists accepted payloads.
type Sink interface {
	Save(id identifier.Identifier, market identifier.Market, data json.RawMessage) error
	Close() error
}

// FileSink writes one indented JSON document per identifier into a directory.
type FileSink struct {
	dir        string
	withMarket bool
}

// NewFileSink creates dir if needed. withMarket selects <code>_<market>.json
// over <code>.json.
func NewFileSink(dir string, withMarket bool) (*FileSink, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create output directory %s: %w", dir, err)
	}
	return &FileSink{dir: dir, withMarket: withMarket}, nil
}

// Path returns the document path for id
func (s *FileSink) Path(id identifier.Identifier, market identifier.Market) string {
	name := id.Code + ".json"
	if s.withMarket {
		name = fmt.Sprintf("%s_%s.json", id.Code, market)
	}
	return filepath.Join(s.dir, name)
}

// Save implements Sink. Files of different identifiers never collide, so no lock is needed.
func (s *FileSink) Save(id identifier.Identifier, market identifier.Market, data json.RawMessage) error {
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return fmt.Errorf("failed to format payload for %s: %w", id.Code, err)
	}
	buf.WriteByte('\n')

	path := s.Path(id, market)
	if err := os.WriteFile(path, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// Close implements Sink
func (s *FileSink) Close() error {
	return nil
}

// logLine is one record of the append-only log
type logLine struct {
	Code string          `json:"code"`
	Data json.RawMessage `json:"data"`
}

// LogSink appends one {"code": ..., "data": ...} line per identifier to a shared file.
// Writes are serialized so lines never interleave.
type LogSink struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewLogSink opens path for appending, creating parent directories as needed.
func NewLogSink(path string) (*LogSink, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to open output log %s: %w", path, err)
	}
	return &LogSink{file: f, path: path}, nil
}

// Save implements Sink
func (s *LogSink) Save(id identifier.Identifier, _ identifier.Market, data json.RawMessage) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(logLine{Code: id.Code, Data: data}); err != nil {
		return fmt.Errorf("failed to encode payload for %s: %w", id.Code, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.file.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("failed to append to %s: %w", s.path, err)
	}
	return nil
}

// Close implements Sink
func (s *LogSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

// CodeList is a plain-text list written one record per line. Fields of a
// record are tab-separated. A nil CodeList discards everything.
type CodeList struct {
	mu   sync.Mutex
	file *os.File
}

// CreateCodeList truncates or creates path. An empty path returns a nil list.
func CreateCodeList(path string) (*CodeList, error) {
	if path == "" {
		return nil, nil
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create directory for %s: %w", path, err)
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("failed to create list %s: %w", path, err)
	}
	return &CodeList{file: f}, nil
}

// Add appends one record. Tabs and newlines inside fields are replaced by spaces.
func (l *CodeList) Add(fields ...string) error {
	if l == nil {
		return nil
	}
	for i, f := range fields {
		fields[i] = strings.NewReplacer("\t", " ", "\n", " ", "\r", " ").Replace(f)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := l.file.WriteString(strings.Join(fields, "\t") + "\n")
	return err
}

// Close closes the underlying file
func (l *CodeList) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
