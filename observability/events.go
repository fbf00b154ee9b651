package observability

import (
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"metanode/core/events"
)

// EventMetrics counts committed ledger events and tracks the latest sequence
// number. It is an events.Emitter so the node fan-out can feed it directly.
type EventMetrics struct {
	emitted *prometheus.CounterVec
	lastSeq prometheus.Gauge
}

var (
	eventMetricsOnce sync.Once
	eventMetrics     *EventMetrics
)

// Events returns the process-wide event collectors.
func Events() *EventMetrics {
	eventMetricsOnce.Do(func() {
		eventMetrics = &EventMetrics{
			emitted: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "metanode",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Committed events by type.",
			}, []string{"type"}),
			lastSeq: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "metanode",
				Subsystem: "events",
				Name:      "last_seq",
				Help:      "Sequence number of the most recently committed event.",
			}),
		}
		prometheus.MustRegister(eventMetrics.emitted, eventMetrics.lastSeq)
	})
	return eventMetrics
}

// Emit implements events.Emitter.
func (m *EventMetrics) Emit(evt events.Event) {
	if m == nil || evt == nil {
		return
	}
	if committed, ok := evt.(events.Committed); ok {
		m.lastSeq.Set(float64(committed.Seq))
	}
	m.Record(evt.EventType())
}

// Record counts one event of eventType.
func (m *EventMetrics) Record(eventType string) {
	if m == nil {
		return
	}
	eventType = strings.TrimSpace(eventType)
	if eventType == "" {
		eventType = "unknown"
	}
	m.emitted.WithLabelValues(eventType).Inc()
}
