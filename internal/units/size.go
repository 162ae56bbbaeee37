package units

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

var sizeRegexp = regexp.MustCompile(`^(\d+(?:\.\d+)?)\s*(%|[a-z]{1,2})?$`)

// byte-multiplier units, each a further power of 1024
const byteUnits = "bkmgtpez"

// ParseSize parses a byte size such as "512", "16MB", "1g" or "4Ko".
// A "%" value needs ratioBase and yields floor(n * ratioBase / 100).
func ParseSize(text string, ratioBase ...int64) (int64, error) {
	s := strings.ToLower(strings.TrimSpace(text))
	m := sizeRegexp.FindStringSubmatch(s)
	if m == nil {
		return 0, fmt.Errorf("%w: malformed size %q", ErrArgument, text)
	}
	if strings.Contains(m[1], ".") {
		return 0, fmt.Errorf("%w: size %q must be an integer, adjust the unit", ErrArgument, text)
	}
	n, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: size %q: %v", ErrArgument, text, err)
	}

	unit := m[2]
	switch {
	case unit == "":
		return n, nil
	case unit == "%":
		if len(ratioBase) == 0 {
			return 0, fmt.Errorf("%w: size %q is a ratio but no base was given", ErrArgument, text)
		}
		base := ratioBase[0]
		if base != 0 && n > math.MaxInt64/base {
			return 0, fmt.Errorf("%w: size %q overflows", ErrArgument, text)
		}
		return n * base / 100, nil
	}

	exp := strings.IndexByte(byteUnits, unit[0])
	if exp < 0 {
		return 0, fmt.Errorf("%w: unknown size unit %q in %q", ErrArgument, unit, text)
	}
	mult := int64(1) << (10 * uint(exp))
	if exp > 6 || (n != 0 && n > math.MaxInt64/mult) {
		return 0, fmt.Errorf("%w: size %q overflows", ErrArgument, text)
	}
	return n * mult, nil
}
