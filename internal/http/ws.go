package httpapi

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/websocket"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/relay"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type wsInbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

type joinMessage struct {
	ParticipantID int64      `json:"participant_id"`
	Role          relay.Role `json:"role"`
	DriverID      *int64     `json:"driver_id,omitempty"`
}

type locationMessage struct {
	DriverID int64    `json:"driver_id"`
	Lat      *float64 `json:"lat"`
	Lon      *float64 `json:"lon"`
}

// handleWS upgrades the connection and waits for a join frame before
// registering the session. The session lives until the read loop fails.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	go s.serveSession(conn)
}

func (s *Server) serveSession(conn *websocket.Conn) {
	defer conn.Close()

	key, ok := s.awaitJoin(conn)
	if !ok {
		return
	}
	session := s.Sessions.Join(key, conn)
	// Drop rather than Leave: a reconnect that arrived while this read
	// loop was dying must keep its fresh session.
	defer s.Sessions.Drop(key, session)
	s.logger.Info("participant joined", "participant", key)

	for {
		var in wsInbound
		if err := conn.ReadJSON(&in); err != nil {
			s.logger.Info("participant disconnected", "participant", key)
			return
		}
		switch in.Event {
		case "driver:update-location":
			s.handleDriverLocation(in.Data)
		default:
			// unknown client events are ignored
		}
	}
}

func (s *Server) awaitJoin(conn *websocket.Conn) (string, bool) {
	var in wsInbound
	if err := conn.ReadJSON(&in); err != nil || in.Event != "join" {
		return "", false
	}
	var join joinMessage
	if err := json.Unmarshal(in.Data, &join); err != nil {
		return "", false
	}
	switch join.Role {
	case relay.RoleRider:
		if join.ParticipantID <= 0 {
			return "", false
		}
		return relay.RiderKey(join.ParticipantID), true
	case relay.RoleDriver:
		id := join.ParticipantID
		if join.DriverID != nil {
			id = *join.DriverID
		}
		if id <= 0 {
			return "", false
		}
		return relay.DriverKey(id), true
	}
	return "", false
}

// handleDriverLocation applies a websocket heartbeat to the registry and
// mirrors it onto the driver-status topic. Reporting a location marks
// the driver online.
func (s *Server) handleDriverLocation(raw json.RawMessage) {
	var loc locationMessage
	if err := json.Unmarshal(raw, &loc); err != nil || loc.DriverID <= 0 {
		return
	}
	online := true
	if _, err := s.Registry.SetOnline(context.Background(), loc.DriverID, &online, loc.Lat, loc.Lon); err != nil {
		s.logger.Error("location update failed", "driver_id", loc.DriverID, "error", err)
		return
	}
	s.publishHeartbeat(models.StatusHeartbeat{DriverID: loc.DriverID, Online: &online, Lat: loc.Lat, Lon: loc.Lon})
}
