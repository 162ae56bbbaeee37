package check

import "fmt"

// Severity orders check outcomes; higher is worse, except Unknown which
// ranks above everything for exit code purposes.
type Severity int

const (
	OK Severity = iota
	Warning
	Critical
	Unknown
)

func (s Severity) String() string {
	switch s {
	case OK:
		return "OK"
	case Warning:
		return "WARNING"
	case Critical:
		return "CRITICAL"
	case Unknown:
		return "UNKNOWN"
	}
	return fmt.Sprintf("Severity(%d)", int(s))
}

// ExitCode follows the monitoring plugin convention.
func (s Severity) ExitCode() int { return int(s) }

// Metric is a numeric sample attached to a result.
type Metric struct {
	Name   string
	Help   string
	Value  float64
	Labels map[string]string
}

// Result is the terminal output of a check. Build it once; do not mutate.
type Result struct {
	Severity Severity
	// Short messages summarize the outcome.
	Short []string
	// Long messages are machine oriented key=value pairs.
	Long []string
	// HumanOnly messages are shown only in human readable output.
	HumanOnly []string
	Metrics   []Metric
}

func unknown(msg string) Result {
	return Result{Severity: Unknown, Short: []string{msg}}
}
