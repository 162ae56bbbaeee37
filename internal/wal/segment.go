package wal

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ErrParse indicates a malformed segment name or history line.
var ErrParse = errors.New("parse error")

// SegmentNameLen is the width of a segment identifier: three 8-digit hex fields.
const SegmentNameLen = 24

// Segment identifies one WAL segment. Its rendered form is fixed-width
// uppercase hex so that string order equals numeric order.
type Segment struct {
	Timeline uint32
	Log      uint32
	Seg      uint32
}

// ParseSegment decodes the leading 24 characters of name. Anything other
// than uppercase hex digits in that prefix is rejected.
func ParseSegment(name string) (Segment, error) {
	if len(name) < SegmentNameLen {
		return Segment{}, fmt.Errorf("%w: segment name %q is shorter than %d characters", ErrParse, name, SegmentNameLen)
	}
	var fields [3]uint32
	for i := range fields {
		part := name[i*8 : (i+1)*8]
		if !isUpperHex(part) {
			return Segment{}, fmt.Errorf("%w: segment name %q is not uppercase hex", ErrParse, name)
		}
		v, err := strconv.ParseUint(part, 16, 32)
		if err != nil {
			return Segment{}, fmt.Errorf("%w: segment name %q: %v", ErrParse, name, err)
		}
		fields[i] = uint32(v)
	}
	return Segment{Timeline: fields[0], Log: fields[1], Seg: fields[2]}, nil
}

// String renders the 24 hex digit identifier.
func (s Segment) String() string {
	return fmt.Sprintf("%08X%08X%08X", s.Timeline, s.Log, s.Seg)
}

// Next returns the following segment on the same timeline, carrying into
// Log once Seg reaches perWAL.
func (s Segment) Next(perWAL uint32) Segment {
	s.Seg++
	if s.Seg >= perWAL {
		s.Seg = 0
		s.Log++
	}
	return s
}

// TimelineName renders a timeline the way history files are named.
func TimelineName(tl uint32) string {
	return fmt.Sprintf("%08X", tl)
}

func isUpperHex(s string) bool {
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}

// SegmentsPerWAL derives how many segments make up one logical WAL file.
// Servers up to 9.2 never use the last segment of each WAL file.
func SegmentsPerWAL(walSize, segmentSize int64, dbVersion string) (uint32, error) {
	if segmentSize <= 0 || walSize <= 0 {
		return 0, fmt.Errorf("wal size %d and segment size %d must be positive", walSize, segmentSize)
	}
	if walSize%segmentSize != 0 || walSize/segmentSize < 2 {
		return 0, fmt.Errorf("wal size %d is not a multiple (>1) of segment size %d", walSize, segmentSize)
	}
	n := walSize / segmentSize
	older, err := versionAtMost92(dbVersion)
	if err != nil {
		return 0, err
	}
	if older {
		n--
	}
	if n > math.MaxUint32 {
		return 0, fmt.Errorf("wal size %d holds too many segments of %d bytes", walSize, segmentSize)
	}
	return uint32(n), nil
}

func versionAtMost92(v string) (bool, error) {
	v = strings.TrimSpace(v)
	if v == "" {
		return false, nil
	}
	majorStr, minorStr, _ := strings.Cut(v, ".")
	major, err := strconv.Atoi(majorStr)
	if err != nil {
		return false, fmt.Errorf("%w: database version %q", ErrParse, v)
	}
	minor := 0
	if minorStr != "" {
		if minor, err = strconv.Atoi(minorStr); err != nil {
			return false, fmt.Errorf("%w: database version %q", ErrParse, v)
		}
	}
	return major < 9 || (major == 9 && minor <= 2), nil
}
