package testutil

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

// Labels selects a single series by label name. Labels not present in the
// map must be empty on the series.
type Labels map[string]string

// Gather collects every metric family from the gatherer.
func Gather(t testing.TB, g prometheus.Gatherer) []*dto.MetricFamily {
	t.Helper()
	families, err := g.Gather()
	require.NoError(t, err)
	return families
}

// PromValue finds the series named name whose labels equal labels and
// returns its counter or gauge value.
func PromValue(t testing.TB, families []*dto.MetricFamily, name string, labels Labels) (float64, bool) {
	t.Helper()
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		for _, m := range family.GetMetric() {
			if !labelsMatch(m, labels) {
				continue
			}
			switch family.GetType() {
			case dto.MetricType_COUNTER:
				return m.GetCounter().GetValue(), true
			case dto.MetricType_GAUGE:
				return m.GetGauge().GetValue(), true
			default:
				require.Failf(t, "unsupported metric type", "%s is %s", name, family.GetType())
			}
		}
	}
	return 0, false
}

// PromCounterHasValue reports whether the counter series exists and holds
// exactly value.
func PromCounterHasValue(t testing.TB, families []*dto.MetricFamily, value float64, name string, labels Labels) bool {
	t.Helper()
	got, ok := PromValue(t, families, name, labels)
	return ok && got == value
}

func labelsMatch(m *dto.Metric, labels Labels) bool {
	seen := 0
	for _, lp := range m.GetLabel() {
		want := labels[lp.GetName()]
		if lp.GetValue() != want {
			return false
		}
		if _, ok := labels[lp.GetName()]; ok {
			seen++
		}
	}
	return seen == len(labels)
}
