package archive

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"

	"github.com/kebairia/walcheck/internal/logger"
)

// Local lists archives on the local filesystem.
type Local struct {
	log logger.Logger
}

var _ Lister = (*Local)(nil)

// NewLocal returns a Lister walking local directories.
func NewLocal(log logger.Logger) *Local {
	return &Local{log: log}
}

// List walks dir recursively and stats every entry whose name matches.
func (l *Local) List(ctx context.Context, dir string, match *regexp.Regexp) ([]ArchivedFile, error) {
	var files []ArchivedFile
	err := filepath.WalkDir(dir, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if d.IsDir() || !match.MatchString(d.Name()) {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %q: %w", p, err)
		}
		files = append(files, ArchivedFile{
			Name:    d.Name(),
			Path:    p,
			Size:    info.Size(),
			ModTime: info.ModTime(),
		})
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: %v", ErrNotFound, err)
	}
	if err != nil {
		return nil, fmt.Errorf("walk %q: %w", dir, err)
	}
	l.log.Debug("listed local archives", "dir", dir, "count", len(files))
	return files, nil
}

// ReadFile reads a local file.
func (l *Local) ReadFile(_ context.Context, name string) ([]byte, error) {
	return os.ReadFile(name)
}

// Close is a no-op for local listings.
func (l *Local) Close() error { return nil }
