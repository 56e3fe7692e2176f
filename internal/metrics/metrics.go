// Package metrics records breakpoint activity of debugging environments.
package metrics

import (
	"fmt"
	"sort"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Collector holds the breakpoint metrics on a private prometheus registry.
type Collector struct {
	registry *prometheus.Registry

	ops          *prometheus.CounterVec
	cascade      *prometheus.CounterVec
	environments prometheus.Gauge
}

// New creates a Collector with all metrics registered.
func New() *Collector {
	c := &Collector{
		registry: prometheus.NewRegistry(),
		ops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coral_bp_breakpoint_ops_total",
				Help: "Breakpoint operations by operation and result code.",
			},
			[]string{"op", "result"},
		),
		cascade: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "coral_bp_cascade_removed_total",
				Help: "Breakpoints removed because their class was unloaded or redefined.",
			},
			[]string{"reason"},
		),
		environments: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "coral_bp_environments",
				Help: "Live debugging environments.",
			},
		),
	}

	c.registry.MustRegister(c.ops, c.cascade, c.environments)
	return c
}

// Registry returns the underlying prometheus registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveOp counts one breakpoint operation.
func (c *Collector) ObserveOp(op, result string) {
	c.ops.WithLabelValues(op, result).Inc()
}

// ObserveCascade counts breakpoints dropped by class removal.
func (c *Collector) ObserveCascade(reason string, removed int) {
	if removed <= 0 {
		return
	}
	c.cascade.WithLabelValues(reason).Add(float64(removed))
}

// SetEnvironments records the number of live environments.
func (c *Collector) SetEnvironments(n int) {
	c.environments.Set(float64(n))
}

// Sample is one gathered metric value.
type Sample struct {
	Name   string
	Labels map[string]string
	Value  float64
}

// Series renders the metric name with its sorted labels, e.g. name{a="b"}.
func (s Sample) Series() string {
	if len(s.Labels) == 0 {
		return s.Name
	}
	keys := make([]string, 0, len(s.Labels))
	for k := range s.Labels {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	pairs := make([]string, 0, len(keys))
	for _, k := range keys {
		pairs = append(pairs, fmt.Sprintf("%s=%q", k, s.Labels[k]))
	}
	return fmt.Sprintf("%s{%s}", s.Name, strings.Join(pairs, ","))
}

// String renders the sample in exposition-like form, e.g. name{a="b"} 1.
func (s Sample) String() string {
	return fmt.Sprintf("%s %g", s.Series(), s.Value)
}

// Snapshot gathers all counters and gauges as flat samples.
func (c *Collector) Snapshot() ([]Sample, error) {
	families, err := c.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	var samples []Sample
	for _, family := range families {
		for _, m := range family.GetMetric() {
			samples = append(samples, Sample{
				Name:   family.GetName(),
				Labels: labelMap(m.GetLabel()),
				Value:  metricValue(family.GetType(), m),
			})
		}
	}
	return samples, nil
}

func labelMap(pairs []*dto.LabelPair) map[string]string {
	if len(pairs) == 0 {
		return nil
	}
	labels := make(map[string]string, len(pairs))
	for _, p := range pairs {
		labels[p.GetName()] = p.GetValue()
	}
	return labels
}

func metricValue(t dto.MetricType, m *dto.Metric) float64 {
	switch t {
	case dto.MetricType_COUNTER:
		return m.GetCounter().GetValue()
	case dto.MetricType_GAUGE:
		return m.GetGauge().GetValue()
	default:
		return m.GetUntyped().GetValue()
	}
}
