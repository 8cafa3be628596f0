package identifier

import (
	"bufio"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"rankfetcher/internal/config"
)

// Source produces the identifiers of a run. The result is deduplicated and
// contains only well-formed codes, in first-seen order.
type Source interface {
	Produce() ([]Identifier, error)
}

// RangeSource generates every code in [Start, End), zero-padded to CodeWidth.
type RangeSource struct {
	Start  int
	End    int
	Logger *slog.Logger
}

// Produce implements Source
func (s *RangeSource) Produce() ([]Identifier, error) {
	if s.End <= s.Start {
		return nil, &config.Error{Key: "range_end", Reason: fmt.Sprintf("empty range [%d, %d)", s.Start, s.End)}
	}

	c := newCollector(logger(s.Logger))
	for n := s.Start; n < s.End; n++ {
		c.add(Format(n), n-s.Start+1)
	}

	logger(s.Logger).Info("generated identifiers",
		"start", Format(s.Start),
		"end", Format(s.End),
		"count", len(c.ids),
		"skipped", c.skipped)
	return c.ids, nil
}

// FileSource reads one code per line from Path. Blank lines are ignored,
// duplicates are dropped and malformed lines are skipped with a warning.
type FileSource struct {
	Path   string
	Logger *slog.Logger
}

// Produce implements Source. A missing file is a configuration error.
func (s *FileSource) Produce() ([]Identifier, error) {
	f, err := os.Open(s.Path)
	if err != nil {
		return nil, &config.Error{Key: "source_file", Reason: "cannot open identifier file " + s.Path, Err: err}
	}
	defer f.Close()

	c := newCollector(logger(s.Logger))
	scanner := bufio.NewScanner(f)
	line := 0
	for scanner.Scan() {
		line++
		code := strings.TrimSpace(scanner.Text())
		if code == "" {
			continue
		}
		c.add(code, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, &config.Error{Key: "source_file", Reason: "failed to read identifier file " + s.Path, Err: err}
	}

	logger(s.Logger).Info("read identifiers",
		"path", s.Path,
		"count", len(c.ids),
		"duplicates", c.duplicates,
		"skipped", c.skipped)
	return c.ids, nil
}

// FromConfig selects a file source when source_file is set and a range source otherwise.
func FromConfig(cfg *config.Config, log *slog.Logger) Source {
	if cfg.SourceFile != "" {
		return &FileSource{Path: cfg.SourceFile, Logger: log}
	}
	return &RangeSource{Start: cfg.RangeStart, End: cfg.RangeEnd, Logger: log}
}

type collector struct {
	logger     *slog.Logger
	seen       map[string]struct{}
	ids        []Identifier
	duplicates int
	skipped    int
}

func newCollector(l *slog.Logger) *collector {
	return &collector{logger: l, seen: make(map[string]struct{})}
}

func (c *collector) add(code string, line int) {
	id, err := Parse(code)
	if err != nil {
		c.skipped++
		if errors.Is(err, ErrMalformed) {
			c.logger.Warn("skipping malformed code", "line", line, "code", code, "error", err)
		}
		return
	}
	if _, dup := c.seen[id.Code]; dup {
		c.duplicates++
		return
	}
	c.seen[id.Code] = struct{}{}
	c.ids = append(c.ids, id)
}

func logger(l *slog.Logger) *slog.Logger {
	if l == nil {
		return slog.Default()
	}
	return l
}
