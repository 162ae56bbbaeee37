package wal

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/klauspost/compress/zstd"
)

// ErrHistoryNotFound indicates no history file exists for a timeline.
var ErrHistoryNotFound = errors.New("history file not found")

// HistoryEntry is one timeline switch recorded in a history file.
type HistoryEntry struct {
	ParentTimeline uint32
	LSNHigh        uint32
	LSNLow         uint32
	Description    string
}

// Boundary returns the last segment of the parent timeline.
func (e HistoryEntry) Boundary(segmentSize int64) Segment {
	return Segment{
		Timeline: e.ParentTimeline,
		Log:      e.LSNHigh,
		Seg:      uint32(int64(e.LSNLow) / segmentSize),
	}
}

// ParseHistory reads "<parent>\t<hi>/<lo>\t<reason>" lines. Blank lines and
// lines starting with '#' are skipped; anything else malformed fails.
func ParseHistory(r io.Reader) ([]HistoryEntry, error) {
	var entries []HistoryEntry
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimRight(scanner.Text(), "\r")
		if trimmed := strings.TrimSpace(line); trimmed == "" || strings.HasPrefix(trimmed, "#") {
			continue
		}
		entry, err := parseHistoryLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	return entries, nil
}

func parseHistoryLine(line string) (HistoryEntry, error) {
	fields := strings.SplitN(line, "\t", 3)
	if len(fields) < 2 {
		return HistoryEntry{}, fmt.Errorf("%w: history line %q has no tab-separated LSN", ErrParse, line)
	}
	parent, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return HistoryEntry{}, fmt.Errorf("%w: history timeline %q", ErrParse, fields[0])
	}
	hi, lo, ok := strings.Cut(fields[1], "/")
	if !ok {
		return HistoryEntry{}, fmt.Errorf("%w: history LSN %q", ErrParse, fields[1])
	}
	high, err := parseHex32(hi)
	if err != nil {
		return HistoryEntry{}, err
	}
	low, err := parseHex32(lo)
	if err != nil {
		return HistoryEntry{}, err
	}
	entry := HistoryEntry{ParentTimeline: uint32(parent), LSNHigh: high, LSNLow: low}
	if len(fields) == 3 {
		entry.Description = fields[2]
	}
	return entry, nil
}

func parseHex32(s string) (uint32, error) {
	if s == "" || len(s) > 8 {
		return 0, fmt.Errorf("%w: LSN component %q", ErrParse, s)
	}
	v, err := strconv.ParseUint(s, 16, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: LSN component %q", ErrParse, s)
	}
	return uint32(v), nil
}

// HistoryReader returns the switch points recorded for a timeline.
type HistoryReader interface {
	ReadHistory(ctx context.Context, timeline uint32) ([]HistoryEntry, error)
}

// FileReader reads a whole file, local or remote.
type FileReader interface {
	ReadFile(ctx context.Context, name string) ([]byte, error)
}

// HistoryStore looks up "<timeline>.history" files in an archive directory,
// accepting gzip and zstd compressed copies as well.
type HistoryStore struct {
	files FileReader
	dir   string
}

// NewHistoryStore returns a HistoryStore reading from dir through files.
func NewHistoryStore(files FileReader, dir string) *HistoryStore {
	return &HistoryStore{files: files, dir: dir}
}

var historySuffixes = []string{"", ".gz", ".zst"}

// ReadHistory implements HistoryReader.
func (h *HistoryStore) ReadHistory(ctx context.Context, timeline uint32) ([]HistoryEntry, error) {
	base := path.Join(h.dir, TimelineName(timeline)+".history")
	for _, suffix := range historySuffixes {
		name := base + suffix
		data, err := h.files.ReadFile(ctx, name)
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		plain, err := decompress(suffix, data)
		if err != nil {
			return nil, fmt.Errorf("decompress %s: %w", name, err)
		}
		entries, err := ParseHistory(bytes.NewReader(plain))
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		return entries, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrHistoryNotFound, base)
}

func decompress(suffix string, data []byte) ([]byte, error) {
	switch suffix {
	case ".gz":
		r, err := gzip.NewReader(bytes.NewReader(data))
		if err != nil {
			return nil, err
		}
		defer r.Close()
		return io.ReadAll(r)
	case ".zst":
		d, err := zstd.NewReader(nil)
		if err != nil {
			return nil, err
		}
		defer d.Close()
		return d.DecodeAll(data, nil)
	}
	return data, nil
}
