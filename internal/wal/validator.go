package wal

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/kebairia/walcheck/internal/archive"
	"github.com/kebairia/walcheck/internal/logger"
	"github.com/kebairia/walcheck/internal/units"
)

// Options configures a Validator.
type Options struct {
	// Min and Max are the oldest and newest segments the backup system
	// reports as archived. Either may be empty.
	Min string
	Max string

	SegmentSize int64
	WALSize     int64
	DBVersion   string

	// MaxAge raises a critical outcome when the newest archive is older.
	// Zero disables the check.
	MaxAge units.Interval
}

// Outcome is what one validation pass found.
type Outcome struct {
	Count     int
	Oldest    archive.ArchivedFile
	Latest    archive.ArchivedFile
	LatestAge units.Interval

	Warnings []string
	Critical []string

	// Unresolved is set when a timeline switch was implied but the
	// history file describing it could not be read.
	Unresolved bool
}

// OK reports whether nothing critical or suspicious was found.
func (o Outcome) OK() bool { return len(o.Critical) == 0 && len(o.Warnings) == 0 }

// Validator walks a sorted candidate list and checks that every expected
// segment is present in order.
type Validator struct {
	opts    Options
	perWAL  uint32
	history HistoryReader
	log     logger.Logger
}

// NewValidator checks opts and derives the number of segments per WAL file.
func NewValidator(opts Options, history HistoryReader, log logger.Logger) (*Validator, error) {
	perWAL, err := SegmentsPerWAL(opts.WALSize, opts.SegmentSize, opts.DBVersion)
	if err != nil {
		return nil, err
	}
	return &Validator{opts: opts, perWAL: perWAL, history: history, log: log}, nil
}

// SegmentsPerWAL returns the derived segment count.
func (v *Validator) SegmentsPerWAL() uint32 { return v.perWAL }

// Validate checks files against the expected segment progression. Files
// need not be sorted. An empty list yields archive.ErrNotFound.
func (v *Validator) Validate(ctx context.Context, files []archive.ArchivedFile, now time.Time) (Outcome, error) {
	if len(files) == 0 {
		return Outcome{}, archive.ErrNotFound
	}
	sorted := make([]archive.ArchivedFile, len(files))
	copy(sorted, files)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	out := Outcome{
		Count:  len(sorted),
		Oldest: sorted[0],
		Latest: sorted[len(sorted)-1],
	}
	out.LatestAge = units.Since(now, out.Latest.ModTime)

	present := make(map[string]bool, len(sorted))
	for _, f := range sorted {
		present[prefix(f.Name)] = true
	}
	for _, bound := range []struct{ label, name string }{{"min", v.opts.Min}, {"max", v.opts.Max}} {
		if bound.name != "" && !present[bound.name] {
			out.Critical = append(out.Critical, fmt.Sprintf("%s WAL not found: %s", bound.label, bound.name))
		}
	}
	if len(out.Critical) > 0 {
		return out, nil
	}

	if v.opts.Min != "" && prefix(out.Oldest.Name) != v.opts.Min {
		out.Warnings = append(out.Warnings,
			fmt.Sprintf("min WAL %s is not the oldest archived file (%s)", v.opts.Min, prefix(out.Oldest.Name)))
	}
	if v.opts.Max != "" && prefix(out.Latest.Name) != v.opts.Max {
		out.Warnings = append(out.Warnings,
			fmt.Sprintf("max WAL %s is not the latest archived file (%s)", v.opts.Max, prefix(out.Latest.Name)))
	}

	start, err := ParseSegment(out.Oldest.Name)
	if err != nil {
		return out, err
	}
	end, err := ParseSegment(out.Latest.Name)
	if err != nil {
		return out, err
	}

	switches := map[Segment]uint32{}
	if start.Timeline != end.Timeline {
		switches, err = v.switchPoints(ctx, end.Timeline)
		if err != nil {
			v.log.Warn("timeline boundary unresolved", "timeline", TimelineName(end.Timeline), "error", err)
			out.Unresolved = true
			out.Critical = append(out.Critical,
				fmt.Sprintf("timeline boundary unresolved: history of timeline %s unavailable", TimelineName(end.Timeline)))
			switches = map[Segment]uint32{}
		}
	}

	if missing, ok := v.walk(start, sorted, switches); !ok {
		out.Critical = append(out.Critical, fmt.Sprintf("wrong sequence or missing file @ '%s'", missing))
		return out, nil
	}
	if out.Unresolved {
		return out, nil
	}

	if v.opts.MaxAge > 0 && out.LatestAge > v.opts.MaxAge {
		out.Critical = append(out.Critical, fmt.Sprintf("latest archived since %s", out.LatestAge))
	}
	return out, nil
}

// walk compares each file with the expected cursor value. It returns the
// first expected segment that did not match.
func (v *Validator) walk(cur Segment, sorted []archive.ArchivedFile, switches map[Segment]uint32) (string, bool) {
	for i, f := range sorted {
		want := cur.String()
		if prefix(f.Name) != want {
			v.log.Debug("sequence mismatch", "index", i, "expected", want, "found", f.Name)
			return want, false
		}
		if next, ok := switches[cur]; ok {
			delete(switches, cur)
			v.log.Debug("timeline switch", "at", want, "timeline", TimelineName(next))
			cur.Timeline = next
			continue
		}
		cur = cur.Next(v.perWAL)
	}
	return "", true
}

// switchPoints maps every boundary segment recorded in the history of
// timeline to the timeline that follows it.
func (v *Validator) switchPoints(ctx context.Context, timeline uint32) (map[Segment]uint32, error) {
	entries, err := v.history.ReadHistory(ctx, timeline)
	if err != nil {
		return nil, err
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: history of timeline %s is empty", ErrParse, TimelineName(timeline))
	}
	switches := make(map[Segment]uint32, len(entries))
	for i, e := range entries {
		next := timeline
		if i+1 < len(entries) {
			next = entries[i+1].ParentTimeline
		}
		b := e.Boundary(v.opts.SegmentSize)
		switches[b] = next
		v.log.Debug("timeline boundary", "segment", b.String(), "next", TimelineName(next))
	}
	return switches, nil
}

func prefix(name string) string {
	if len(name) < SegmentNameLen {
		return name
	}
	return name[:SegmentNameLen]
}
