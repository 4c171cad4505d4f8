package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/example/ride-dispatch/internal/dispatch"
	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/relay"
)

type createOrderRequest struct {
	RiderID int64  `json:"rider_id"`
	Pickup  string `json:"pickup_location"`
	Dropoff string `json:"dropoff_location"`
}

func (s *Server) handleCreateOrder(w http.ResponseWriter, r *http.Request) {
	var req createOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	o, err := s.Coordinator.CreateOrder(r.Context(), req.RiderID, req.Pickup, req.Dropoff)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, o)
}

func (s *Server) handleListRiderOrders(w http.ResponseWriter, r *http.Request) {
	riderID, err := pathID(r, "rider_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid rider id")
		return
	}
	orders, err := s.Coordinator.ListRiderOrders(r.Context(), riderID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, orders)
}

func (s *Server) handleAcceptOrder(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	var req struct {
		DriverID int64 `json:"driver_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	o, err := s.Coordinator.AcceptOrder(r.Context(), orderID, req.DriverID)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

func (s *Server) handleUpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, err := pathID(r, "id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid order id")
		return
	}
	var req struct {
		Status models.Status `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	o, err := s.Coordinator.UpdateStatus(r.Context(), orderID, req.Status)
	if err != nil {
		s.writeDispatchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, o)
}

type driverStatusRequest struct {
	IsOnline *bool    `json:"is_online,omitempty"`
	Lat      *float64 `json:"lat,omitempty"`
	Lon      *float64 `json:"lon,omitempty"`
}

func (s *Server) handleDriverStatus(w http.ResponseWriter, r *http.Request) {
	driverID, err := pathID(r, "driver_id")
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid driver id")
		return
	}
	var req driverStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	avail, err := s.Registry.SetOnline(r.Context(), driverID, req.IsOnline, req.Lat, req.Lon)
	if err != nil {
		s.logger.Error("driver status update failed", "driver_id", driverID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	s.publishHeartbeat(models.StatusHeartbeat{DriverID: driverID, Online: req.IsOnline, Lat: req.Lat, Lon: req.Lon})
	writeJSON(w, http.StatusOK, avail)
}

func (s *Server) handleNearbyDrivers(w http.ResponseWriter, r *http.Request) {
	online, err := s.Registry.ListOnline(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	writeJSON(w, http.StatusOK, online)
}

type notifyDriverRequest struct {
	DriverID int64           `json:"driver_id"`
	Event    string          `json:"event"`
	Data     json.RawMessage `json:"data"`
}

func (s *Server) handleNotifyDriver(w http.ResponseWriter, r *http.Request) {
	var req notifyDriverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Event == "" {
		writeError(w, http.StatusBadRequest, "driver_id and event are required")
		return
	}
	delivered := s.Relay.Send(relay.DriverKey(req.DriverID), req.Event, req.Data)
	writeJSON(w, http.StatusOK, map[string]bool{"delivered": delivered})
}

type notifyRiderRequest struct {
	UserID int64           `json:"user_id"`
	Event  string          `json:"event"`
	Data   json.RawMessage `json:"data"`
}

func (s *Server) handleNotifyRider(w http.ResponseWriter, r *http.Request) {
	var req notifyRiderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Event == "" {
		writeError(w, http.StatusBadRequest, "user_id and event are required")
		return
	}
	delivered := s.Relay.Send(relay.RiderKey(req.UserID), req.Event, req.Data)
	writeJSON(w, http.StatusOK, map[string]bool{"delivered": delivered})
}

func (s *Server) publishHeartbeat(hb models.StatusHeartbeat) {
	if s.Heartbeats == nil {
		return
	}
	if err := s.Heartbeats.PublishHeartbeat(hb); err != nil {
		s.logger.Warn("heartbeat publish failed", "driver_id", hb.DriverID, "error", err)
	}
}

// writeDispatchError maps the coordinator's error taxonomy onto HTTP.
func (s *Server) writeDispatchError(w http.ResponseWriter, err error) {
	var verr *dispatch.ValidationError
	var uerr *dispatch.UpstreamError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Msg)
	case errors.As(err, &uerr):
		writeError(w, http.StatusBadRequest, uerr.Error())
	case errors.Is(err, dispatch.ErrNotFound):
		writeError(w, http.StatusNotFound, "order not found")
	case errors.Is(err, dispatch.ErrConflict):
		writeError(w, http.StatusConflict, "order already taken")
	case errors.Is(err, dispatch.ErrInvalidTransition):
		writeError(w, http.StatusBadRequest, "invalid status transition")
	default:
		s.logger.Error("dispatch error", "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(r *http.Request, key string) (int64, error) {
	raw := mux.Vars(r)[key]
	return strconv.ParseInt(raw, 10, 64)
}
