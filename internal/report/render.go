package report

import (
	"fmt"
	"io"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/kebairia/walcheck/internal/check"
	"github.com/kebairia/walcheck/internal/units"
)

// Format selects how a Result is printed.
type Format string

const (
	FormatNagios Format = "nagios"
	FormatHuman  Format = "human"
	FormatJSON   Format = "json"
)

// ParseFormat validates a format name.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatNagios, FormatHuman, FormatJSON:
		return f, nil
	case "":
		return FormatNagios, nil
	}
	return "", fmt.Errorf("%w: unknown output format %q", units.ErrArgument, s)
}

// Render writes res for the check kind in the given format.
func Render(w io.Writer, format Format, kind check.Kind, res check.Result) error {
	switch format {
	case FormatHuman:
		return renderHuman(w, kind, res)
	case FormatJSON:
		return renderJSON(w, kind, res)
	default:
		return renderNagios(w, kind, res)
	}
}

// WALCHECK_ARCHIVES CRITICAL - short1, short2 | long1 long2
func renderNagios(w io.Writer, kind check.Kind, res check.Result) error {
	var b strings.Builder
	fmt.Fprintf(&b, "WALCHECK_%s %s", strings.ToUpper(kind.String()), res.Severity)
	if len(res.Short) > 0 {
		b.WriteString(" - ")
		b.WriteString(strings.Join(res.Short, ", "))
	}
	if len(res.Long) > 0 {
		b.WriteString(" | ")
		b.WriteString(strings.Join(res.Long, " "))
	}
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func renderHuman(w io.Writer, kind check.Kind, res check.Result) error {
	var b strings.Builder
	fmt.Fprintf(&b, "Service        : %s\n", strings.ToUpper(kind.String()))
	fmt.Fprintf(&b, "Returns        : %d (%s)\n", res.Severity.ExitCode(), res.Severity)
	if len(res.Short) > 0 {
		fmt.Fprintf(&b, "Message        : %s\n", strings.Join(res.Short, "\nMessage        : "))
	}
	for _, l := range append(append([]string{}, res.Long...), res.HumanOnly...) {
		k, v, ok := strings.Cut(l, "=")
		if !ok {
			fmt.Fprintf(&b, "Long message   : %s\n", l)
			continue
		}
		fmt.Fprintf(&b, "Long message   : %s = %s\n", k, v)
	}
	_, err := io.WriteString(w, b.String())
	return err
}

type jsonResult struct {
	Check     string   `json:"check"`
	Status    string   `json:"status"`
	Code      int      `json:"code"`
	Short     []string `json:"short"`
	Long      []string `json:"long"`
	HumanOnly []string `json:"human_only,omitempty"`
}

func renderJSON(w io.Writer, kind check.Kind, res check.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(jsonResult{
		Check:     kind.String(),
		Status:    res.Severity.String(),
		Code:      res.Severity.ExitCode(),
		Short:     nonNil(res.Short),
		Long:      nonNil(res.Long),
		HumanOnly: res.HumanOnly,
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
