package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestBookingMetricsObserve(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewBookingMetrics(reg)
	m.ObserveOperation("book", "success", 0.02)
	m.ObserveOperation("book", "success", 0.03)
	m.ObserveOperation("book", "conflict", 0.01)
	m.ObserveUnavailable("fully_booked")
	m.ObserveUnavailable("")
	m.ObserveOutboxDelivered(3)
	m.ObserveOutboxDelivered(0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("book", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.operationsTotal.WithLabelValues("book", "conflict")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.unavailableTotal.WithLabelValues("fully_booked")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.outboxDelivered))
	assert.Equal(t, 1, testutil.CollectAndCount(m.unavailableTotal))
}

func TestBookingMetricsDefaultRegistry(t *testing.T) {
	prev := prometheus.DefaultRegisterer
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	defer func() { prometheus.DefaultRegisterer = prev }()

	m := NewBookingMetrics(nil)
	m.ObserveOperation("cancel", "success", 0.1)
}

func TestBookingMetricsNilSafe(t *testing.T) {
	var m *BookingMetrics
	m.ObserveOperation("book", "success", 0.1)
	m.ObserveUnavailable("fully_booked")
	m.ObserveOutboxDelivered(1)
}
