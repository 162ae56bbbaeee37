package status

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"sort"
	"strings"
	"time"

	json "github.com/goccy/go-json"

	"github.com/kebairia/walcheck/internal/logger"
)

// ErrExternalTool indicates the backup tool failed or printed garbage.
var ErrExternalTool = errors.New("backup tool failed")

// Provider returns the backup status of a stanza.
type Provider interface {
	Status(ctx context.Context, stanza string) (BackupRecord, error)
}

// PgbackrestOption lets you override default settings on a Pgbackrest.
type PgbackrestOption func(*Pgbackrest)

// Pgbackrest runs `pgbackrest info` and parses its JSON output.
type Pgbackrest struct {
	Bin        string
	ConfigFile string
	Timeout    time.Duration
	Logger     logger.Logger
}

var _ Provider = (*Pgbackrest)(nil)

// NewPgbackrest returns a provider with defaults plus any overrides.
func NewPgbackrest(log logger.Logger, opts ...PgbackrestOption) *Pgbackrest {
	p := &Pgbackrest{
		Bin:     "pgbackrest",
		Timeout: 30 * time.Second,
		Logger:  log,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// WithBin overrides the pgbackrest executable.
func WithBin(bin string) PgbackrestOption {
	return func(p *Pgbackrest) {
		if bin != "" {
			p.Bin = bin
		}
	}
}

// WithConfigFile passes --config to pgbackrest.
func WithConfigFile(file string) PgbackrestOption {
	return func(p *Pgbackrest) {
		if file != "" {
			p.ConfigFile = file
		}
	}
}

// WithTimeout bounds the info command.
func WithTimeout(timeout time.Duration) PgbackrestOption {
	return func(p *Pgbackrest) {
		if timeout > 0 {
			p.Timeout = timeout
		}
	}
}

// Status implements Provider.
func (p *Pgbackrest) Status(ctx context.Context, stanza string) (BackupRecord, error) {
	ctx, cancel := context.WithTimeout(ctx, p.Timeout)
	defer cancel()

	args := []string{"--output=json", "--stanza=" + stanza}
	if p.ConfigFile != "" {
		args = append(args, "--config="+p.ConfigFile)
	}
	args = append(args, "info")

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.Bin, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	p.Logger.Debug("running backup tool", "bin", p.Bin, "args", strings.Join(args, " "))
	startTime := time.Now()
	if err := cmd.Run(); err != nil {
		return BackupRecord{}, fmt.Errorf("%w: %s info: %v: %s",
			ErrExternalTool, p.Bin, err, strings.TrimSpace(stderr.String()))
	}
	p.Logger.Debug("backup tool completed", "duration", time.Since(startTime).String())

	return ParseInfo(stdout.Bytes(), stanza)
}

type infoStanza struct {
	Name   string `json:"name"`
	Status struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"status"`
	Archive []struct {
		Database struct {
			ID int `json:"id"`
		} `json:"database"`
		ID  string `json:"id"`
		Min string `json:"min"`
		Max string `json:"max"`
	} `json:"archive"`
	Backup []struct {
		Label     string `json:"label"`
		Type      string `json:"type"`
		Timestamp struct {
			Start int64 `json:"start"`
			Stop  int64 `json:"stop"`
		} `json:"timestamp"`
	} `json:"backup"`
	DB []struct {
		ID      int    `json:"id"`
		Version string `json:"version"`
	} `json:"db"`
}

// ParseInfo decodes `pgbackrest --output=json info` output and returns
// the record of stanza.
func ParseInfo(data []byte, stanza string) (BackupRecord, error) {
	var stanzas []infoStanza
	if err := json.Unmarshal(data, &stanzas); err != nil {
		return BackupRecord{}, fmt.Errorf("%w: decode info JSON: %v", ErrExternalTool, err)
	}

	for _, s := range stanzas {
		if s.Name != stanza {
			continue
		}
		rec := BackupRecord{
			Name:   s.Name,
			Status: Status{Code: s.Status.Code, Message: s.Status.Message},
		}
		for _, b := range s.Backup {
			t := BackupType(b.Type)
			switch t {
			case Full, Differential, Incremental:
			default:
				return BackupRecord{}, fmt.Errorf("%w: backup %s has unknown type %q", ErrExternalTool, b.Label, b.Type)
			}
			rec.Backups = append(rec.Backups, Backup{
				Label: b.Label,
				Type:  t,
				Start: time.Unix(b.Timestamp.Start, 0).UTC(),
				Stop:  time.Unix(b.Timestamp.Stop, 0).UTC(),
			})
		}
		sort.SliceStable(rec.Backups, func(i, j int) bool {
			return rec.Backups[i].Stop.Before(rec.Backups[j].Stop)
		})

		// The current database is the one with the highest id.
		dbID, version := -1, ""
		for _, db := range s.DB {
			if db.ID > dbID {
				dbID, version = db.ID, db.Version
			}
		}
		for _, a := range s.Archive {
			if a.Database.ID == dbID {
				rec.Archive = ArchiveInfo{ID: a.ID, Min: a.Min, Max: a.Max, DBVersion: version}
			}
		}
		return rec, nil
	}
	return BackupRecord{}, fmt.Errorf("%w: stanza %q not found in info output", ErrExternalTool, stanza)
}
