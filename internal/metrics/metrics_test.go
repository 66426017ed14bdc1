package metrics_test

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ampere/internal/core"
	"ampere/internal/metrics"
)

func TestCollector_CountsByKind(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := metrics.NewCollector(reg)

	err := c.Publish(context.Background(), []core.Event{
		core.OrderCreatedEvent{},
		core.OrderCreatedEvent{},
		core.OrdersMatchedEvent{},
	})
	require.NoError(t, err)

	families, err := reg.Gather()
	require.NoError(t, err)
	require.Len(t, families, 1)
	assert.Equal(t, "ampere_events_total", families[0].GetName())

	counts := make(map[string]float64)
	for _, m := range families[0].GetMetric() {
		counts[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
	}
	assert.Equal(t, float64(2), counts["order_created"])
	assert.Equal(t, float64(1), counts["orders_matched"])
}
