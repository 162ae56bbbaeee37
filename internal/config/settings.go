package config

import (
	"fmt"

	"github.com/kebairia/walcheck/internal/check"
	"github.com/kebairia/walcheck/internal/report"
	"github.com/kebairia/walcheck/internal/units"
	"github.com/kebairia/walcheck/internal/wal"
)

// Settings is the validated, immutable configuration of one run.
type Settings struct {
	Stanza   string
	LogLevel string

	Pgbackrest PgbackrestConfig
	Repo       RepoConfig
	Vault      VaultConfig

	Archives  check.ArchivesConfig
	Retention check.RetentionPolicy

	Format             report.Format
	PrometheusTextfile string
}

// Remote reports whether archives are listed over SSH.
func (s Settings) Remote() bool { return s.Repo.Host != "" }

// Settings validates c for the given check. Every error wraps both
// ErrValidateConfig and units.ErrArgument.
func (c Config) Settings(kind check.Kind) (Settings, error) {
	s := Settings{
		Stanza:             c.Stanza,
		LogLevel:           c.LogLevel,
		Pgbackrest:         c.Pgbackrest,
		Repo:               c.Repo,
		Vault:              c.Vault,
		PrometheusTextfile: c.Output.PrometheusTextfile,
	}
	if s.Stanza == "" {
		return Settings{}, invalid("stanza is required")
	}

	format, err := report.ParseFormat(c.Output.Format)
	if err != nil {
		return Settings{}, invalid(err.Error())
	}
	s.Format = format

	switch kind {
	case check.KindArchives:
		if s.Archives, err = c.archives(); err != nil {
			return Settings{}, err
		}
	case check.KindRetention:
		if s.Retention, err = c.retention(); err != nil {
			return Settings{}, err
		}
	default:
		return Settings{}, invalid(fmt.Sprintf("unknown check %s", kind))
	}
	return s, nil
}

func (c Config) archives() (check.ArchivesConfig, error) {
	a := check.ArchivesConfig{Stanza: c.Stanza, RepoPath: c.Repo.Path}
	if a.RepoPath == "" {
		return a, invalid("repo.path is required")
	}

	var err error
	if a.MaxAge, err = optionalInterval("archives.max-age", c.Archives.MaxAge); err != nil {
		return a, err
	}
	if a.IgnoreSince, err = optionalInterval("archives.ignore-since", c.Archives.IgnoreSince); err != nil {
		return a, err
	}
	if a.SegmentSize, err = units.ParseSize(c.Archives.WALSegSize); err != nil {
		return a, invalid(fmt.Sprintf("archives.wal-segsize: %v", err))
	}
	if a.WALSize, err = units.ParseSize(c.Archives.WALSize); err != nil {
		return a, invalid(fmt.Sprintf("archives.wal-size: %v", err))
	}
	if _, err := wal.SegmentsPerWAL(a.WALSize, a.SegmentSize, ""); err != nil {
		return a, invalid(err.Error())
	}
	return a, nil
}

func (c Config) retention() (check.RetentionPolicy, error) {
	p := check.RetentionPolicy{RequiredFull: c.Retention.Full}
	var err error
	if p.MaxAge, err = optionalInterval("retention.max-age", c.Retention.MaxAge); err != nil {
		return p, err
	}
	if err := p.Validate(); err != nil {
		return p, invalid(err.Error())
	}
	return p, nil
}

func optionalInterval(key, value string) (units.Interval, error) {
	if value == "" {
		return 0, nil
	}
	iv, err := units.ParseInterval(value)
	if err != nil {
		return 0, invalid(fmt.Sprintf("%s: %v", key, err))
	}
	return iv, nil
}

func invalid(msg string) error {
	return fmt.Errorf("%w: %w: %s", ErrValidateConfig, units.ErrArgument, msg)
}
