package wal

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/kebairia/walcheck/internal/archive"
	"github.com/kebairia/walcheck/internal/logger"
	"github.com/kebairia/walcheck/internal/units"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeHistory map[uint32][]HistoryEntry

func (f fakeHistory) ReadHistory(_ context.Context, tl uint32) ([]HistoryEntry, error) {
	entries, ok := f[tl]
	if !ok {
		return nil, fmt.Errorf("%w: %s.history", ErrHistoryNotFound, TimelineName(tl))
	}
	return entries, nil
}

func files(names ...string) []archive.ArchivedFile {
	out := make([]archive.ArchivedFile, len(names))
	for i, n := range names {
		out[i] = archive.ArchivedFile{
			Name:    n + ".gz",
			Path:    "/repo/" + n + ".gz",
			ModTime: now.Add(-time.Duration(len(names)-i) * time.Minute),
		}
	}
	return out
}

func newValidator(t *testing.T, opts Options, h HistoryReader) *Validator {
	t.Helper()
	if opts.SegmentSize == 0 {
		opts.SegmentSize = 16 << 20
	}
	if opts.WALSize == 0 {
		opts.WALSize = 4 << 30
	}
	if h == nil {
		h = fakeHistory{}
	}
	v, err := NewValidator(opts, h, logger.New(zaptest.NewLogger(t)))
	require.NoError(t, err)
	return v
}

func TestValidate_GapFree(t *testing.T) {
	in := files(
		"0000000100000000000000FE",
		"0000000100000000000000FF",
		"000000010000000100000000",
		"000000010000000100000001",
	)
	v := newValidator(t, Options{Min: "0000000100000000000000FE", Max: "000000010000000100000001"}, nil)

	out, err := v.Validate(context.Background(), in, now)
	require.NoError(t, err)
	assert.True(t, out.OK(), "%+v", out)
	assert.Equal(t, 4, out.Count)
	assert.Equal(t, units.Interval(60), out.LatestAge)
	assert.Equal(t, in[3].Name, out.Latest.Name)
}

func TestValidate_UnsortedInput(t *testing.T) {
	in := files("000000010000000000000003", "000000010000000000000001", "000000010000000000000002")
	out, err := newValidator(t, Options{}, nil).Validate(context.Background(), in, now)
	require.NoError(t, err)
	assert.True(t, out.OK(), "%+v", out)
	assert.Equal(t, "000000010000000000000001.gz", out.Oldest.Name)
}

func TestValidate_MissingInterior(t *testing.T) {
	in := files(
		"000000010000000000000001",
		"000000010000000000000002",
		"000000010000000000000004",
		"000000010000000000000005",
	)
	out, err := newValidator(t, Options{}, nil).Validate(context.Background(), in, now)
	require.NoError(t, err)
	require.Len(t, out.Critical, 1)
	assert.Contains(t, out.Critical[0], "000000010000000000000003")
	assert.Equal(t, 4, out.Count)
}

func TestValidate_Duplicate(t *testing.T) {
	in := files("000000010000000000000001", "000000010000000000000002")
	in = append(in, archive.ArchivedFile{Name: "000000010000000000000002-dup.gz", ModTime: now})
	out, err := newValidator(t, Options{}, nil).Validate(context.Background(), in, now)
	require.NoError(t, err)
	require.Len(t, out.Critical, 1)
	assert.Contains(t, out.Critical[0], "000000010000000000000003")
}

func TestValidate_MinMaxAbsent(t *testing.T) {
	in := files("000000010000000000000002", "000000010000000000000003")
	v := newValidator(t, Options{Min: "000000010000000000000001", Max: "000000010000000000000009"}, nil)

	out, err := v.Validate(context.Background(), in, now)
	require.NoError(t, err)
	require.Len(t, out.Critical, 2)
	assert.Equal(t, "min WAL not found: 000000010000000000000001", out.Critical[0])
	assert.Equal(t, "max WAL not found: 000000010000000000000009", out.Critical[1])
	assert.Equal(t, 2, out.Count)
}

func TestValidate_MinNotOldestWarns(t *testing.T) {
	in := files("000000010000000000000001", "000000010000000000000002", "000000010000000000000003")
	v := newValidator(t, Options{Min: "000000010000000000000002", Max: "000000010000000000000002"}, nil)

	out, err := v.Validate(context.Background(), in, now)
	require.NoError(t, err)
	assert.Empty(t, out.Critical)
	assert.Len(t, out.Warnings, 2)
}

func TestValidate_WrapsAtSegmentsPerWAL(t *testing.T) {
	in := files(
		"000000010000000000000000",
		"000000010000000000000001",
		"000000010000000100000000",
		"000000010000000100000001",
		"000000010000000200000000",
	)
	v := newValidator(t, Options{SegmentSize: 16 << 20, WALSize: 32 << 20}, nil)
	require.Equal(t, uint32(2), v.SegmentsPerWAL())

	out, err := v.Validate(context.Background(), in, now)
	require.NoError(t, err)
	assert.True(t, out.OK(), "%+v", out)

	bad := files("000000010000000000000000", "000000010000000000000001", "000000010000000000000002")
	out, err = v.Validate(context.Background(), bad, now)
	require.NoError(t, err)
	require.Len(t, out.Critical, 1)
	assert.Contains(t, out.Critical[0], "000000010000000100000000")
}

func TestValidate_SkipsReservedSegmentOn92(t *testing.T) {
	in := files("0000000100000000000000FD", "0000000100000000000000FE", "000000010000000100000000")
	out, err := newValidator(t, Options{DBVersion: "9.2"}, nil).Validate(context.Background(), in, now)
	require.NoError(t, err)
	assert.True(t, out.OK(), "%+v", out)
}

var twoTimelines = []string{
	"000000010000000000000003",
	"000000010000000000000004",
	"000000010000000000000005",
	"000000020000000000000005",
	"000000020000000000000006",
}

func TestValidate_TimelineSwitch(t *testing.T) {
	h := fakeHistory{2: {{ParentTimeline: 1, LSNHigh: 0, LSNLow: 0x050000A0, Description: "no recovery target specified"}}}
	out, err := newValidator(t, Options{}, h).Validate(context.Background(), files(twoTimelines...), now)
	require.NoError(t, err)
	assert.True(t, out.OK(), "%+v", out)
	assert.Equal(t, 5, out.Count)
}

func TestValidate_TimelineSwitchWithPartial(t *testing.T) {
	names := []string{
		"000000010000000000000004",
		"000000010000000000000005.partial",
		"000000020000000000000005",
	}
	h := fakeHistory{2: {{ParentTimeline: 1, LSNLow: 0x05000000}}}
	out, err := newValidator(t, Options{}, h).Validate(context.Background(), files(names...), now)
	require.NoError(t, err)
	assert.True(t, out.OK(), "%+v", out)
}

func TestValidate_TwoSwitches(t *testing.T) {
	names := []string{
		"000000010000000000000005",
		"000000020000000000000005",
		"000000020000000000000006",
		"000000020000000000000007",
		"000000030000000000000007",
		"000000030000000000000008",
	}
	h := fakeHistory{3: {
		{ParentTimeline: 1, LSNLow: 0x05000098},
		{ParentTimeline: 2, LSNLow: 0x07000028},
	}}
	out, err := newValidator(t, Options{}, h).Validate(context.Background(), files(names...), now)
	require.NoError(t, err)
	assert.True(t, out.OK(), "%+v", out)
}

func TestValidate_TimelineHistoryMissing(t *testing.T) {
	out, err := newValidator(t, Options{}, nil).Validate(context.Background(), files(twoTimelines...), now)
	require.NoError(t, err)
	assert.True(t, out.Unresolved)
	require.Len(t, out.Critical, 2)
	assert.Contains(t, out.Critical[0], "timeline boundary unresolved")
	assert.Contains(t, out.Critical[1], "000000010000000000000006")
}

func TestValidate_TimelineWrongBoundary(t *testing.T) {
	h := fakeHistory{2: {{ParentTimeline: 1, LSNLow: 0x04000000}}}
	out, err := newValidator(t, Options{}, h).Validate(context.Background(), files(twoTimelines...), now)
	require.NoError(t, err)
	assert.False(t, out.Unresolved)
	require.Len(t, out.Critical, 1)
	assert.Contains(t, out.Critical[0], "000000020000000000000004")
}

func TestValidate_MaxAge(t *testing.T) {
	in := files("000000010000000000000001", "000000010000000000000002")
	in[1].ModTime = now.Add(-2 * time.Hour)

	out, err := newValidator(t, Options{MaxAge: 3600}, nil).Validate(context.Background(), in, now)
	require.NoError(t, err)
	require.Len(t, out.Critical, 1)
	assert.Equal(t, "latest archived since 2h", out.Critical[0])

	out, err = newValidator(t, Options{MaxAge: 3 * 3600}, nil).Validate(context.Background(), in, now)
	require.NoError(t, err)
	assert.True(t, out.OK())
	assert.Equal(t, units.Interval(7200), out.LatestAge)
}

func TestValidate_Empty(t *testing.T) {
	_, err := newValidator(t, Options{}, nil).Validate(context.Background(), nil, now)
	assert.ErrorIs(t, err, archive.ErrNotFound)
}
