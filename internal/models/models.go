package models

import "time"

// Status is the lifecycle state of an order.
type Status string

const (
	StatusPending    Status = "PENDING"
	StatusAccepted   Status = "ACCEPTED"
	StatusArrived    Status = "ARRIVED"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// transitions is the forward-only state machine. CANCELLED is reachable
// from every non-terminal state except IN_PROGRESS.
var transitions = map[Status][]Status{
	StatusPending:    {StatusAccepted, StatusCancelled},
	StatusAccepted:   {StatusArrived, StatusCancelled},
	StatusArrived:    {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted},
}

// ValidStatus reports whether s is a known order status.
func ValidStatus(s Status) bool {
	switch s {
	case StatusPending, StatusAccepted, StatusArrived, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// CanTransition reports whether from -> to is a legal forward step.
func CanTransition(from, to Status) bool {
	for _, next := range transitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether s admits no further transitions.
func Terminal(s Status) bool {
	return len(transitions[s]) == 0 && ValidStatus(s)
}

// Order is a single ride request and its lifecycle record. Price and
// DistanceKm are computed once at creation and never change; DriverID is
// set exactly once, by the PENDING -> ACCEPTED transition.
type Order struct {
	ID         int64     `json:"id"`
	RiderID    int64     `json:"rider_id"`
	Pickup     string    `json:"pickup_location"`
	Dropoff    string    `json:"dropoff_location"`
	Price      int64     `json:"price"`
	DistanceKm float64   `json:"distance_km"`
	Status     Status    `json:"status"`
	DriverID   *int64    `json:"driver_id,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// DriverAvailability is a driver's last-known presence. Lat/Lon stay nil
// until the driver reports a location; partial updates never clear them.
type DriverAvailability struct {
	DriverID    int64     `json:"driver_id"`
	Online      bool      `json:"is_online"`
	Lat         *float64  `json:"lat,omitempty"`
	Lon         *float64  `json:"lon,omitempty"`
	LastUpdated time.Time `json:"last_updated"`
}

// StatusHeartbeat is the driver presence message carried over the
// driver-status topic and the websocket location channel. Nil fields mean
// "leave as-is".
type StatusHeartbeat struct {
	DriverID int64    `json:"driver_id"`
	Online   *bool    `json:"is_online,omitempty"`
	Lat      *float64 `json:"lat,omitempty"`
	Lon      *float64 `json:"lon,omitempty"`
}

// OrderEvent is the status-change record published to the order-events
// topic after every successful persist.
type OrderEvent struct {
	OrderID    int64     `json:"order_id"`
	RiderID    int64     `json:"rider_id"`
	Status     Status    `json:"status"`
	DriverID   *int64    `json:"driver_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}
