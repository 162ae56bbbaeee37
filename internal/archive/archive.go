package archive

import (
	"context"
	"errors"
	"fmt"
	"path"
	"regexp"
	"sort"
	"time"

	"github.com/kebairia/walcheck/internal/units"
)

var (
	// ErrNotFound indicates that no archived WAL candidate was found.
	ErrNotFound = errors.New("no archived WAL found")
	// ErrConnection indicates a remote listing session failed.
	ErrConnection = errors.New("remote connection failed")
)

// CandidatePattern matches archived segment names, with or without the
// checksum suffix pgBackRest appends.
var CandidatePattern = regexp.MustCompile(`^[0-9A-F]{24}.*\.gz$`)

// ArchivedFile describes one file found under the archive directory.
type ArchivedFile struct {
	Name    string
	Path    string
	Size    int64
	ModTime time.Time
}

// Lister enumerates and reads files below an archive directory. Close
// releases whatever session the implementation holds.
type Lister interface {
	List(ctx context.Context, dir string, match *regexp.Regexp) ([]ArchivedFile, error)
	ReadFile(ctx context.Context, name string) ([]byte, error)
	Close() error
}

// Dir returns the archive directory of a stanza inside a repository.
func Dir(repoPath, stanza, archiveID string) string {
	return path.Join(repoPath, "archive", stanza, archiveID)
}

// Collect lists candidates under dir and sorts them by name. Files modified
// after now-ignoreSince (when ignoreSince is set) are returned apart in
// ignored; modification time is the only timestamp both Lister strategies
// share. ErrNotFound is returned when no file is left to validate.
func Collect(
	ctx context.Context,
	l Lister,
	dir string,
	ignoreSince units.Interval,
	now time.Time,
) (files, ignored []ArchivedFile, err error) {
	all, err := l.List(ctx, dir, CandidatePattern)
	if err != nil {
		return nil, nil, err
	}
	files, ignored = SplitModifiedSince(all, ignoreSince, now)
	if len(files) == 0 {
		return nil, ignored, fmt.Errorf("%w in %s", ErrNotFound, dir)
	}
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })
	return files, ignored, nil
}

// SplitModifiedSince separates files modified within the last since from
// the older ones. A zero or negative interval keeps everything; an infinite
// one keeps nothing.
func SplitModifiedSince(files []ArchivedFile, since units.Interval, now time.Time) (kept, recent []ArchivedFile) {
	if since <= 0 {
		return files, nil
	}
	if since.IsInfinite() {
		return nil, files
	}
	cutoff := now.Add(-since.Duration())
	for _, f := range files {
		if f.ModTime.After(cutoff) {
			recent = append(recent, f)
			continue
		}
		kept = append(kept, f)
	}
	return kept, recent
}
