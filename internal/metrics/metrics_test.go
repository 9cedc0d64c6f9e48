package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func value(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	close(ch)

	var m dto.Metric
	require.NoError(t, (<-ch).Write(&m))
	switch {
	case m.Counter != nil:
		return m.Counter.GetValue()
	case m.Gauge != nil:
		return m.Gauge.GetValue()
	}
	t.Fatalf("unsupported metric %v", &m)
	return 0
}

func TestCollectorsRecord(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveCycle("USDC", OutcomeOK, 150*time.Millisecond)
	m.ObserveCycle("USDC", OutcomeOK, 10*time.Millisecond)
	m.ObserveDelivery("USDC", DeliverySent)
	m.ObserveDelivery("USDC", DeliveryFailed)
	m.ObserveRetired("USDC", 2)
	m.ObserveRetired("USDC", 0)
	m.SetAvailable("USDC", decimal.RequireFromString("200000.5"))

	assert.InDelta(t, 2, value(t, m.Cycles.WithLabelValues("USDC", OutcomeOK)), 0)
	assert.InDelta(t, 1, value(t, m.Deliveries.WithLabelValues("USDC", DeliveryFailed)), 0)
	assert.InDelta(t, 2, value(t, m.Retired.WithLabelValues("USDC")), 0)
	assert.InDelta(t, 200000.5, value(t, m.AvailableCapacity.WithLabelValues("USDC")), 1e-9)

	families, err := reg.Gather()
	require.NoError(t, err)
	assert.Len(t, families, 5)
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveCycle("SUI", OutcomeIdle, time.Second)
		m.ObserveDelivery("SUI", DeliverySent)
		m.ObserveRetired("SUI", 3)
		m.SetAvailable("SUI", decimal.NewFromInt(1))
	})
}
