package dggchat

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func findMetric(t *testing.T, reg *prometheus.Registry, name string) []float64 {
	t.Helper()

	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}

	var values []float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			switch {
			case m.GetCounter() != nil:
				values = append(values, m.GetCounter().GetValue())
			case m.GetGauge() != nil:
				values = append(values, m.GetGauge().GetValue())
			}
		}
	}
	return values
}

func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	var sum float64
	for _, v := range findMetric(t, reg, name) {
		sum += v
	}
	return sum
}

func gaugeValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	values := findMetric(t, reg, name)
	if len(values) != 1 {
		t.Fatalf("%s has %d series, want 1", name, len(values))
	}
	return values[0]
}
