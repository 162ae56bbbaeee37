package check

import (
	"context"
	"fmt"
	"time"

	"github.com/kebairia/walcheck/internal/logger"
	"github.com/kebairia/walcheck/internal/status"
	"github.com/kebairia/walcheck/internal/units"
)

// RetentionPolicy sets the thresholds of the retention check. A zero
// field is not checked, but at least one must be set.
type RetentionPolicy struct {
	RequiredFull int
	MaxAge       units.Interval
}

// Validate reports an ErrArgument when no threshold is configured.
func (p RetentionPolicy) Validate() error {
	if p.RequiredFull < 0 {
		return fmt.Errorf("%w: required full backups must not be negative", ErrArgument)
	}
	if p.RequiredFull == 0 && p.MaxAge <= 0 {
		return fmt.Errorf("%w: retention needs a full backup count or a maximum age", ErrArgument)
	}
	return nil
}

// Retention verifies the backup count and freshness of a stanza.
type Retention struct {
	stanza   string
	policy   RetentionPolicy
	provider status.Provider
	log      logger.Logger
	opts     options
}

var _ Check = (*Retention)(nil)

// NewRetention builds the retention check.
func NewRetention(
	stanza string,
	policy RetentionPolicy,
	provider status.Provider,
	log logger.Logger,
	opts ...Option,
) (*Retention, error) {
	if err := policy.Validate(); err != nil {
		return nil, err
	}
	return &Retention{stanza: stanza, policy: policy, provider: provider, log: log, opts: buildOptions(opts)}, nil
}

// Kind implements Check.
func (r *Retention) Kind() Kind { return KindRetention }

// Run implements Check.
func (r *Retention) Run(ctx context.Context) (Result, error) {
	rec, err := r.provider.Status(ctx, r.stanza)
	if err != nil {
		return Result{}, err
	}
	if rec.Status.Code != 0 {
		return stanzaFailure(rec), nil
	}
	r.log.Info("evaluating retention", "stanza", r.stanza, "backups", len(rec.Backups))
	return EvaluateRetention(rec, r.policy, r.opts.now()), nil
}

// EvaluateRetention applies p to the backups of rec.
func EvaluateRetention(rec status.BackupRecord, p RetentionPolicy, now time.Time) Result {
	full := rec.Count(status.Full)
	diff := rec.Count(status.Differential)
	incr := rec.Count(status.Incremental)

	res := Result{Severity: OK}
	res.Long = []string{
		fmt.Sprintf("full=%d", full),
		fmt.Sprintf("diff=%d", diff),
		fmt.Sprintf("incr=%d", incr),
	}
	res.Metrics = []Metric{
		countMetric(status.Full, full),
		countMetric(status.Differential, diff),
		countMetric(status.Incremental, incr),
	}

	latest, ok := rec.Latest()
	if !ok {
		res.Severity = Critical
		res.Short = []string{"no backup found"}
		return res
	}
	age := units.Since(now, latest.Stop)
	res.Long = append(res.Long,
		fmt.Sprintf("latest=%s,%s", latest.Type, latest.Label),
		fmt.Sprintf("latest_age=%s", age),
	)
	res.HumanOnly = []string{fmt.Sprintf("latest_stop=%s", latest.Stop.Format(time.RFC3339))}
	res.Metrics = append(res.Metrics, Metric{
		Name:  "walcheck_backup_latest_age_seconds",
		Help:  "Age of the most recent backup.",
		Value: float64(age),
	})

	if p.RequiredFull > 0 && full < p.RequiredFull {
		res.Severity = Critical
		res.Short = append(res.Short, fmt.Sprintf("not enough full backups: %d, required %d", full, p.RequiredFull))
	}
	if p.MaxAge > 0 && age >= p.MaxAge {
		res.Severity = Critical
		res.Short = append(res.Short, fmt.Sprintf("backups are too old: latest %s ago, max %s", age, p.MaxAge))
	}
	if res.Severity == OK {
		res.Short = []string{"backups policy checks ok"}
	}
	return res
}

func countMetric(t status.BackupType, n int) Metric {
	return Metric{
		Name:   "walcheck_backups_count",
		Help:   "Number of backups by type.",
		Value:  float64(n),
		Labels: map[string]string{"type": string(t)},
	}
}
