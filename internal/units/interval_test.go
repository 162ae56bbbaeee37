package units

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseInterval(t *testing.T) {
	tests := []struct {
		in   string
		want Interval
	}{
		{"0", 0},
		{"90", 90},
		{"90s", 90},
		{"5m", 300},
		{"1h30m", 5400},
		{"1H30M", 5400},
		{"1h30", 3630},
		{"2d", 172800},
		{"1w1d", 8 * 86400},
		{"1d2h3m4s", 93784},
		{"inf", Infinite},
		{"-inf", NegInfinite},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseInterval(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseInterval_Malformed(t *testing.T) {
	for _, in := range []string{"", "h", "1x", "1.5h", "-5m", "1h m", "99999999999999999999"} {
		t.Run(in, func(t *testing.T) {
			_, err := ParseInterval(in)
			assert.ErrorIs(t, err, ErrArgument)
		})
	}
}

func TestFormatInterval(t *testing.T) {
	assert.Equal(t, "0s", FormatInterval(0))
	assert.Equal(t, "-42", FormatInterval(-42))
	assert.Equal(t, "inf", FormatInterval(Infinite))
	assert.Equal(t, "-inf", FormatInterval(NegInfinite))
	assert.Equal(t, "1m", FormatInterval(60))
	assert.Equal(t, "1d2h3m4s", FormatInterval(93784))
	assert.Equal(t, "2w3s", FormatInterval(2*7*86400+3))
}

func TestInterval_RoundTrip(t *testing.T) {
	for _, iv := range []Interval{1, 59, 60, 3600, 86400, 604800, 694861, 3*604800 + 5*3600 + 7, Infinite} {
		got, err := ParseInterval(FormatInterval(iv))
		require.NoError(t, err)
		assert.Equal(t, iv, got, FormatInterval(iv))
	}
}

func TestInterval_Duration(t *testing.T) {
	assert.Equal(t, 90*time.Second, Interval(90).Duration())
	assert.True(t, Infinite.Duration() > 100*365*24*time.Hour)
	assert.True(t, Infinite.IsInfinite())
	assert.False(t, Interval(3).IsInfinite())
}

func TestSince(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	assert.Equal(t, Interval(3610), Since(now, now.Add(-time.Hour-10*time.Second-500*time.Millisecond)))
}
