package relay

import (
	"log/slog"

	"github.com/example/ride-dispatch/internal/observability"
)

// Relay pushes named events to a participant's live session. Delivery is
// at-most-once and best-effort: no session means the event is dropped on
// the floor, with no queue, no persistence and no retry. Do not upgrade
// this to guaranteed delivery without an explicit product decision.
type Relay struct {
	router *Router
	log    *slog.Logger
}

func NewRelay(router *Router, log *slog.Logger) *Relay {
	return &Relay{router: router, log: log}
}

// Send reports whether the event reached a live session. A failed write
// evicts the dead session and still counts as not delivered.
func (r *Relay) Send(key, event string, data interface{}) bool {
	s, ok := r.router.Lookup(key)
	if !ok {
		observability.NotificationsDropped.WithLabelValues(event).Inc()
		return false
	}
	if err := s.Send(event, data); err != nil {
		r.log.Warn("relay send failed", "participant", key, "event", event, "error", err)
		r.router.Drop(key, s)
		observability.NotificationsDropped.WithLabelValues(event).Inc()
		return false
	}
	observability.NotificationsDelivered.WithLabelValues(event).Inc()
	return true
}
