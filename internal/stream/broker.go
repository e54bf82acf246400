package stream

import (
	"encoding/json"
	"log/slog"

	"github.com/pingup/pingup/internal/metrics"
)

// Broker pushes serialized events to a subject's registered stream
// handle. Delivery is strictly best-effort: no queueing, no retries,
// and no persistence of missed events. The sender's own persistence of
// the domain record is what lets an offline recipient catch up through
// a pull query.
type Broker struct {
	registry *Registry
	logger   *slog.Logger
	metrics  *metrics.Metrics
}

// NewBroker creates a broker over the given registry.
func NewBroker(registry *Registry, logger *slog.Logger, m *metrics.Metrics) *Broker {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.NewNop()
	}
	return &Broker{registry: registry, logger: logger, metrics: m}
}

// Send serializes event and writes it as one frame to subjectID's
// registered handle. It reports whether the event was delivered; it
// never returns an error. A write failure evicts the handle (the peer
// is presumed dead) and counts as not delivered.
func (b *Broker) Send(subjectID string, event any) bool {
	h, ok := b.registry.Lookup(subjectID)
	if !ok {
		b.metrics.EventsUndelivered.Inc()
		return false
	}

	data, err := json.Marshal(event)
	if err != nil {
		b.logger.Error("failed to marshal event", "subject", subjectID, "error", err)
		b.metrics.EventsUndelivered.Inc()
		return false
	}

	if err := h.WriteEvent(data); err != nil {
		b.logger.Debug("stream write failed, evicting handle", "subject", subjectID, "error", err)
		b.registry.Release(subjectID, h)
		h.Close()
		b.metrics.StreamWriteErrors.Inc()
		b.metrics.EventsUndelivered.Inc()
		return false
	}

	b.metrics.EventsDelivered.Inc()
	return true
}
