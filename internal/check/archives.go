package check

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/kebairia/walcheck/internal/archive"
	"github.com/kebairia/walcheck/internal/logger"
	"github.com/kebairia/walcheck/internal/status"
	"github.com/kebairia/walcheck/internal/units"
	"github.com/kebairia/walcheck/internal/wal"
)

// ListerFactory opens the Lister for one run. Local or remote is decided
// by whoever builds the factory.
type ListerFactory func(ctx context.Context) (archive.Lister, error)

// ArchivesConfig holds the settings of the archives check.
type ArchivesConfig struct {
	Stanza      string
	RepoPath    string
	IgnoreSince units.Interval
	MaxAge      units.Interval
	SegmentSize int64
	WALSize     int64
}

// Archives verifies that the WAL archive has no gaps and is fresh.
type Archives struct {
	cfg      ArchivesConfig
	provider status.Provider
	open     ListerFactory
	log      logger.Logger
	opts     options
}

var _ Check = (*Archives)(nil)

// NewArchives builds the archives check.
func NewArchives(
	cfg ArchivesConfig,
	provider status.Provider,
	open ListerFactory,
	log logger.Logger,
	opts ...Option,
) *Archives {
	return &Archives{cfg: cfg, provider: provider, open: open, log: log, opts: buildOptions(opts)}
}

// Kind implements Check.
func (a *Archives) Kind() Kind { return KindArchives }

// Run implements Check.
func (a *Archives) Run(ctx context.Context) (Result, error) {
	rec, err := a.provider.Status(ctx, a.cfg.Stanza)
	if err != nil {
		return Result{}, err
	}
	if rec.Status.Code != 0 {
		return stanzaFailure(rec), nil
	}
	if rec.Archive.ID == "" {
		return unknown(fmt.Sprintf("no archive information for stanza %s", a.cfg.Stanza)), nil
	}

	dir := archive.Dir(a.cfg.RepoPath, a.cfg.Stanza, rec.Archive.ID)
	lister, err := a.open(ctx)
	if err != nil {
		return Result{}, err
	}
	defer func() {
		if err := lister.Close(); err != nil {
			a.log.Warn("closing archive lister failed", "error", err)
		}
	}()

	now := a.opts.now()
	a.log.Info("listing archives", "dir", dir, "ignore_since", a.cfg.IgnoreSince.String())
	files, ignored, err := archive.Collect(ctx, lister, dir, a.cfg.IgnoreSince, now)
	if errors.Is(err, archive.ErrNotFound) {
		res := unknown(fmt.Sprintf("no archived WAL found in %s", dir))
		res.Long = []string{"num_archives=0"}
		return res, nil
	}
	if err != nil {
		return Result{}, err
	}

	v, err := wal.NewValidator(wal.Options{
		Min:         a.boundary("min", rec.Archive.Min, ignored),
		Max:         a.boundary("max", rec.Archive.Max, ignored),
		SegmentSize: a.cfg.SegmentSize,
		WALSize:     a.cfg.WALSize,
		DBVersion:   rec.Archive.DBVersion,
		MaxAge:      a.cfg.MaxAge,
	}, wal.NewHistoryStore(lister, dir), a.log)
	if errors.Is(err, wal.ErrParse) {
		return Result{}, fmt.Errorf("%w: archive %s: %v", status.ErrExternalTool, rec.Archive.ID, err)
	}
	if err != nil {
		return Result{}, fmt.Errorf("%w: %v", ErrArgument, err)
	}
	out, err := v.Validate(ctx, files, now)
	if err != nil {
		return Result{}, err
	}
	a.log.Info("archives validated",
		"count", out.Count,
		"critical", len(out.Critical),
		"warnings", len(out.Warnings),
	)
	return archivesResult(out, rec.Archive), nil
}

// boundary returns the reported min or max segment, or "" when that segment
// was listed but archived inside the ignore-since window and so cannot be
// reached by the walk.
func (a *Archives) boundary(label, name string, ignored []archive.ArchivedFile) string {
	for _, f := range ignored {
		if name != "" && strings.HasPrefix(f.Name, name) {
			a.log.Debug("reported boundary archived recently, not validated", label, name)
			return ""
		}
	}
	return name
}

func archivesResult(out wal.Outcome, info status.ArchiveInfo) Result {
	res := Result{Severity: OK}
	switch {
	case len(out.Critical) > 0:
		res.Severity = Critical
	case len(out.Warnings) > 0:
		res.Severity = Warning
	}
	res.Short = append(res.Short, out.Critical...)
	res.Short = append(res.Short, out.Warnings...)
	if res.Severity == OK {
		res.Short = []string{fmt.Sprintf("%d WAL archived, latest archived since %s", out.Count, out.LatestAge)}
	}

	res.Long = []string{
		fmt.Sprintf("num_archives=%d", out.Count),
		fmt.Sprintf("latest_archive_age=%s", out.LatestAge),
	}
	res.HumanOnly = []string{
		fmt.Sprintf("min_wal=%s", info.Min),
		fmt.Sprintf("max_wal=%s", info.Max),
		fmt.Sprintf("oldest_archive=%s", out.Oldest.Name),
		fmt.Sprintf("latest_archive=%s", out.Latest.Name),
	}
	res.Metrics = []Metric{
		{Name: "walcheck_archives_count", Help: "Number of archived WAL segments found.", Value: float64(out.Count)},
		{Name: "walcheck_archives_latest_age_seconds", Help: "Age of the newest archived WAL segment.", Value: float64(out.LatestAge)},
	}
	return res
}

func stanzaFailure(rec status.BackupRecord) Result {
	return Result{
		Severity: Critical,
		Short:    []string{fmt.Sprintf("stanza %s: %s", rec.Name, rec.Status.Message)},
		Long:     []string{fmt.Sprintf("status_code=%d", rec.Status.Code)},
	}
}
