package observability

import (
	"math/big"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"

	"deedescrow/core/events"
)

type eventMetrics struct {
	events *prometheus.CounterVec
	vault  prometheus.Gauge
}

var (
	eventMetricsOnce sync.Once
	eventRegistry    *eventMetrics
)

// Events returns the metrics registry tracking structured service events.
func Events() *eventMetrics {
	eventMetricsOnce.Do(func() {
		eventRegistry = &eventMetrics{
			events: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "deed",
				Subsystem: "events",
				Name:      "emitted_total",
				Help:      "Count of committed events segmented by module and type.",
			}, []string{"module", "type"}),
			vault: prometheus.NewGauge(prometheus.GaugeOpts{
				Namespace: "deed",
				Subsystem: "escrow",
				Name:      "vault_balance",
				Help:      "Funds currently held by the escrow vault, in base units.",
			}),
		}
		prometheus.MustRegister(eventRegistry.events, eventRegistry.vault)
	})
	return eventRegistry
}

// RecordEvent increments the counter for the supplied event type.
func (m *eventMetrics) RecordEvent(eventType string) {
	if m == nil {
		return
	}
	normalized := strings.TrimSpace(strings.ToLower(eventType))
	if normalized == "" {
		normalized = "unknown"
	}
	module := normalized
	if idx := strings.IndexByte(normalized, '.'); idx > 0 {
		module = normalized[:idx]
	}
	m.events.WithLabelValues(module, normalized).Inc()
}

// SetVaultBalance publishes the current escrow vault balance.
func (m *eventMetrics) SetVaultBalance(balance *big.Int) {
	if m == nil || balance == nil {
		return
	}
	value, _ := new(big.Float).SetInt(balance).Float64()
	m.vault.Set(value)
}

// Emit implements events.Emitter so the registry can observe every committed
// event.
func (m *eventMetrics) Emit(evt events.Event) {
	if evt == nil {
		return
	}
	m.RecordEvent(evt.EventType())
}
