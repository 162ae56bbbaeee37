package units

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// Interval is a number of seconds. Infinite and NegInfinite are sentinels
// carried through parsing and formatting without conversion.
type Interval int64

const (
	Infinite    Interval = math.MaxInt64
	NegInfinite Interval = math.MinInt64
)

var intervalUnits = map[byte]int64{
	's': 1,
	'm': 60,
	'h': 3600,
	'd': 86400,
	'w': 7 * 86400,
}

// ParseInterval parses values such as "90", "1h30m", "2D" or "1d12h5".
// A trailing number without unit counts as seconds.
func ParseInterval(text string) (Interval, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	switch s {
	case "inf":
		return Infinite, nil
	case "-inf":
		return NegInfinite, nil
	case "":
		return 0, fmt.Errorf("%w: empty interval", ErrArgument)
	}

	var total int64
	for i := 0; i < len(s); {
		start := i
		for i < len(s) && s[i] >= '0' && s[i] <= '9' {
			i++
		}
		if start == i {
			return 0, fmt.Errorf("%w: malformed interval %q", ErrArgument, text)
		}
		n, err := strconv.ParseInt(s[start:i], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: interval %q: %v", ErrArgument, text, err)
		}

		mult := int64(1)
		if i < len(s) {
			m, ok := intervalUnits[s[i]]
			if !ok {
				return 0, fmt.Errorf("%w: unknown interval unit %q in %q", ErrArgument, s[i], text)
			}
			mult = m
			i++
		}
		if n > (math.MaxInt64-total)/mult {
			return 0, fmt.Errorf("%w: interval %q overflows", ErrArgument, text)
		}
		total += n * mult
	}
	return Interval(total), nil
}

// FormatInterval renders seconds as weeks, days, hours, minutes and seconds,
// skipping zero components: 93784 becomes "1d2h3m4s".
func FormatInterval(iv Interval) string {
	switch {
	case iv == Infinite:
		return "inf"
	case iv == NegInfinite:
		return "-inf"
	case iv == 0:
		return "0s"
	case iv < 0:
		return strconv.FormatInt(int64(iv), 10)
	}

	var b strings.Builder
	rest := int64(iv)
	for _, u := range []struct {
		suffix string
		secs   int64
	}{
		{"w", 7 * 86400},
		{"d", 86400},
		{"h", 3600},
		{"m", 60},
		{"s", 1},
	} {
		if n := rest / u.secs; n > 0 {
			b.WriteString(strconv.FormatInt(n, 10))
			b.WriteString(u.suffix)
			rest -= n * u.secs
		}
	}
	return b.String()
}

// String implements fmt.Stringer.
func (iv Interval) String() string { return FormatInterval(iv) }

// IsInfinite reports whether iv is one of the sentinels.
func (iv Interval) IsInfinite() bool { return iv == Infinite || iv == NegInfinite }

// Duration converts iv to a time.Duration, saturating the sentinels.
func (iv Interval) Duration() time.Duration {
	switch {
	case iv == Infinite, int64(iv) > math.MaxInt64/int64(time.Second):
		return time.Duration(math.MaxInt64)
	case iv == NegInfinite, int64(iv) < math.MinInt64/int64(time.Second):
		return time.Duration(math.MinInt64)
	}
	return time.Duration(iv) * time.Second
}

// Since returns the whole seconds elapsed between t and now.
func Since(now, t time.Time) Interval {
	return Interval(now.Sub(t) / time.Second)
}
