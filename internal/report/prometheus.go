package report

import (
	"fmt"
	"sort"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kebairia/walcheck/internal/check"
)

// Registry turns a Result into Prometheus gauges.
func Registry(kind check.Kind, stanza string, res check.Result) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	constLabels := prometheus.Labels{"check": kind.String(), "stanza": stanza}

	statusGauge := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "walcheck_check_status",
		Help:        "Check severity: 0 ok, 1 warning, 2 critical, 3 unknown.",
		ConstLabels: constLabels,
	})
	statusGauge.Set(float64(res.Severity.ExitCode()))
	if err := reg.Register(statusGauge); err != nil {
		return nil, fmt.Errorf("register walcheck_check_status: %w", err)
	}

	vecs := map[string]*prometheus.GaugeVec{}
	for _, m := range res.Metrics {
		labelNames := make([]string, 0, len(m.Labels))
		for k := range m.Labels {
			labelNames = append(labelNames, k)
		}
		sort.Strings(labelNames)

		vec, ok := vecs[m.Name]
		if !ok {
			vec = prometheus.NewGaugeVec(prometheus.GaugeOpts{
				Name:        m.Name,
				Help:        m.Help,
				ConstLabels: constLabels,
			}, labelNames)
			if err := reg.Register(vec); err != nil {
				return nil, fmt.Errorf("register %s: %w", m.Name, err)
			}
			vecs[m.Name] = vec
		}
		g, err := vec.GetMetricWith(m.Labels)
		if err != nil {
			return nil, fmt.Errorf("metric %s: %w", m.Name, err)
		}
		g.Set(m.Value)
	}
	return reg, nil
}

// WriteTextfile writes the metrics of res for the node exporter textfile
// collector. The file is replaced atomically.
func WriteTextfile(path string, kind check.Kind, stanza string, res check.Result) error {
	reg, err := Registry(kind, stanza, res)
	if err != nil {
		return err
	}
	if err := prometheus.WriteToTextfile(path, reg); err != nil {
		return fmt.Errorf("write metrics to %s: %w", path, err)
	}
	return nil
}
