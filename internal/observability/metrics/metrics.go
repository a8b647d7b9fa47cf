package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking tools.
type BookingMetrics struct {
	operationsTotal  *prometheus.CounterVec
	operationLatency *prometheus.HistogramVec
	unavailableTotal *prometheus.CounterVec
	outboxDelivered  prometheus.Counter
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		operationsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "booking",
			Name:      "operations_total",
			Help:      "Total booking tool invocations by outcome",
		}, []string{"operation", "outcome"}),
		operationLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "salon",
			Subsystem: "booking",
			Name:      "operation_latency_seconds",
			Help:      "Latency of booking tool invocations",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		unavailableTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "booking",
			Name:      "unavailable_total",
			Help:      "Availability checks that found no technician, by reason",
		}, []string{"reason"}),
		outboxDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "salon",
			Subsystem: "events",
			Name:      "outbox_delivered_total",
			Help:      "Booking events relayed from the outbox",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.operationsTotal, m.operationLatency, m.unavailableTotal, m.outboxDelivered)
	return m
}

func (m *BookingMetrics) ObserveOperation(operation, outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.operationsTotal.WithLabelValues(operation, outcome).Inc()
	m.operationLatency.WithLabelValues(operation).Observe(seconds)
}

func (m *BookingMetrics) ObserveUnavailable(reason string) {
	if m == nil || reason == "" {
		return
	}
	m.unavailableTotal.WithLabelValues(reason).Inc()
}

func (m *BookingMetrics) ObserveOutboxDelivered(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.outboxDelivered.Add(float64(n))
}
