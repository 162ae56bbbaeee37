package check

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kebairia/walcheck/internal/units"
)

// ErrArgument wraps invalid check configuration.
var ErrArgument = units.ErrArgument

// Kind enumerates the available checks.
type Kind int

const (
	KindArchives Kind = iota + 1
	KindRetention
)

// Kinds lists every Kind in display order.
var Kinds = []Kind{KindArchives, KindRetention}

func (k Kind) String() string {
	switch k {
	case KindArchives:
		return "archives"
	case KindRetention:
		return "retention"
	}
	return fmt.Sprintf("Kind(%d)", int(k))
}

// ParseKind maps a subcommand name onto a Kind.
func ParseKind(s string) (Kind, error) {
	for _, k := range Kinds {
		if strings.EqualFold(k.String(), s) {
			return k, nil
		}
	}
	return 0, fmt.Errorf("%w: unknown check %q", ErrArgument, s)
}

// Check runs one kind of verification. A returned error is fatal; every
// alerting outcome is expressed through Result.
type Check interface {
	Kind() Kind
	Run(ctx context.Context) (Result, error)
}

type options struct {
	now func() time.Time
}

// Option tunes a check.
type Option func(*options)

// WithClock replaces time.Now, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		if now != nil {
			o.now = now
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
