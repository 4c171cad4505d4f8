package httpapi

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/ingest"
	"github.com/example/ride-dispatch/internal/registry"
	"github.com/example/ride-dispatch/internal/relay"
)

// Pinger is a dependency that can report liveness for the health probe.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Server struct {
	Coordinator *dispatch.Coordinator
	Registry    registry.Registry
	Sessions    *relay.Router
	Relay       *relay.Relay
	Heartbeats  *ingest.KafkaProducer // optional
	Pingers     map[string]Pinger

	logger *slog.Logger
	mux    *mux.Router
}

func NewServer(coord *dispatch.Coordinator, reg registry.Registry, sessions *relay.Router, rel *relay.Relay, hb *ingest.KafkaProducer, pingers map[string]Pinger, logger *slog.Logger) *Server {
	s := &Server{
		Coordinator: coord,
		Registry:    reg,
		Sessions:    sessions,
		Relay:       rel,
		Heartbeats:  hb,
		Pingers:     pingers,
		logger:      logger,
		mux:         mux.NewRouter(),
	}
	s.registerMiddleware()
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/v1/orders", s.handleCreateOrder).Methods("POST")
	s.mux.HandleFunc("/api/v1/orders/rider/{rider_id}", s.handleListRiderOrders).Methods("GET")
	s.mux.HandleFunc("/api/v1/orders/{id}/accept", s.handleAcceptOrder).Methods("POST")
	s.mux.HandleFunc("/api/v1/orders/{id}/status", s.handleUpdateStatus).Methods("PATCH")
	s.mux.HandleFunc("/api/v1/drivers/status/{driver_id}", s.handleDriverStatus).Methods("PATCH")
	s.mux.HandleFunc("/internal/drivers/nearby", s.handleNearbyDrivers).Methods("GET")
	s.mux.HandleFunc("/internal/notify/driver", s.handleNotifyDriver).Methods("POST")
	s.mux.HandleFunc("/internal/notify/rider", s.handleNotifyRider).Methods("POST")
	s.mux.HandleFunc("/ws", s.handleWS)
	s.mux.HandleFunc("/healthz", s.handleHealth).Methods("GET")
	s.mux.Handle("/metrics", promhttp.Handler())
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) { s.mux.ServeHTTP(w, r) }

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	for name, p := range s.Pingers {
		if err := p.Ping(r.Context()); err != nil {
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "dependency": name})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"message": msg})
}
