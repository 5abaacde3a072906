package metrics_test

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"

	"github.com/lukasojd/puregit/metrics"
)

func counterValue(t *testing.T, c *prometheus.CounterVec, labels ...string) float64 {
	t.Helper()
	m := &dto.Metric{}
	require.NoError(t, c.WithLabelValues(labels...).Write(m))
	return m.GetCounter().GetValue()
}

func TestObjectWrittenIncrementsCounter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewRegistry(reg)

	m.ObjectWritten("blob")
	m.ObjectWritten("blob")
	m.ObjectWritten("tree")

	families, err := reg.Gather()
	require.NoError(t, err)
	require.NotEmpty(t, families)

	writes := map[string]float64{}
	for _, f := range families {
		if f.GetName() != "puregit_storage_object_writes_total" {
			continue
		}
		for _, metric := range f.GetMetric() {
			for _, l := range metric.GetLabel() {
				if l.GetName() == "type" {
					writes[l.GetValue()] = metric.GetCounter().GetValue()
				}
			}
		}
	}
	require.Equal(t, 2.0, writes["blob"])
	require.Equal(t, 1.0, writes["tree"])
}

func TestNilRegistryMethodsAreNoOps(t *testing.T) {
	var m *metrics.Registry
	require.NotPanics(t, func() {
		m.ObjectWritten("blob")
		m.ObjectRead("blob", "loose")
		m.PackWritten(3, 128)
		m.PackReceived(128)
		m.TransportTransferred("out", "http", 64)
		m.TransportOperation("fetch-pack", "ok")
		done := m.TimePackOperation("write")
		done()
	})
}

func TestTimePackOperationRecordsDuration(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.NewRegistry(reg)

	done := m.TimePackOperation("write")
	done()

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, f := range families {
		if f.GetName() == "puregit_pack_operation_duration_seconds" {
			found = true
		}
	}
	require.True(t, found)
}
