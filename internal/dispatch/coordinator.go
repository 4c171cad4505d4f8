package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/observability"
	"github.com/example/ride-dispatch/internal/profile"
	"github.com/example/ride-dispatch/internal/relay"
	"github.com/example/ride-dispatch/internal/storage"
)

// Notifier pushes a named event to a participant's live session,
// reporting delivery. relay.Relay satisfies it.
type Notifier interface {
	Send(participantKey, event string, data interface{}) bool
}

// Quoter fixes price and distance at order creation.
type Quoter interface {
	Quote() (price int64, distanceKm float64)
}

// EventPublisher streams status changes to the order-events topic.
type EventPublisher interface {
	PublishOrderEvent(ev models.OrderEvent) error
}

// PaymentProvider reserves the fare on accept and settles it at ride end.
type PaymentProvider interface {
	Hold(ctx context.Context, amount int64, currency string, riderID int64) (string, error)
	Capture(ctx context.Context, holdID string) error
	Cancel(ctx context.Context, holdID string) error
}

// Coordinator orchestrates order creation, candidate fan-out, race-safe
// acceptance and status transitions. All notification and event
// publishing is fire-and-forget: a failure is logged and never surfaced
// to the triggering caller.
// CandidateSource lists the online drivers considered for an order at
// dispatch time.
type CandidateSource interface {
	ListOnline(ctx context.Context) ([]models.DriverAvailability, error)
}

type Coordinator struct {
	Store    storage.OrderStore
	Registry CandidateSource
	Notifier Notifier
	Profiles profile.Lookup
	Pricer   Quoter
	Events   EventPublisher  // optional
	Payments PaymentProvider // optional
	Currency string
	Log      *slog.Logger

	holdMu sync.Mutex
	holds  map[int64]string // orderID -> payment hold id, process-local
}

// RideUpdate is the payload pushed to the rider on every status change.
type RideUpdate struct {
	OrderID  int64         `json:"order_id"`
	Status   models.Status `json:"status"`
	DriverID *int64        `json:"driver_id,omitempty"`
}

// RideCancelled is pushed to the assigned driver when a ride is
// cancelled out from under them.
type RideCancelled struct {
	OrderID int64 `json:"order_id"`
}

// CreateOrder validates the rider against the profile service, fixes
// price and distance, persists the order as PENDING and returns it
// before any driver has seen it. Candidate fan-out happens after the
// fact; matching is eventually consistent with creation.
func (c *Coordinator) CreateOrder(ctx context.Context, riderID int64, pickup, dropoff string) (*models.Order, error) {
	if riderID <= 0 {
		return nil, validationf("rider_id is required")
	}
	if pickup == "" || dropoff == "" {
		return nil, validationf("pickup_location and dropoff_location are required")
	}
	exists, err := c.Profiles.RiderExists(ctx, riderID)
	if err != nil {
		return nil, &UpstreamError{Op: "rider profile lookup", Err: err}
	}
	if !exists {
		return nil, validationf("rider profile not found for id %d", riderID)
	}

	price, distanceKm := c.Pricer.Quote()
	o := &models.Order{
		RiderID:    riderID,
		Pickup:     pickup,
		Dropoff:    dropoff,
		Price:      price,
		DistanceKm: distanceKm,
		Status:     models.StatusPending,
	}
	if err := c.Store.Create(ctx, o); err != nil {
		return nil, err
	}
	observability.OrdersCreated.Inc()
	c.publishEvent(o)

	go c.fanOut(*o)
	return o, nil
}

// fanOut offers the order to every online driver. Best-effort and
// unbounded: a burst of candidates is a burst of unacknowledged sends.
func (c *Coordinator) fanOut(o models.Order) {
	candidates, err := c.Registry.ListOnline(context.Background())
	if err != nil {
		c.Log.Error("candidate listing failed", "order_id", o.ID, "error", err)
		return
	}
	delivered := 0
	for _, d := range candidates {
		if c.Notifier.Send(relay.DriverKey(d.DriverID), relay.EventRideRequest, o) {
			delivered++
		}
	}
	c.Log.Info("ride request fanned out", "order_id", o.ID, "candidates", len(candidates), "delivered", delivered)
}

// AcceptOrder makes driverID the winner iff the order is still PENDING.
// The store's single conditional write is the only decision point:
// exactly one of any racing drivers gets an order back, the rest get
// ErrConflict.
func (c *Coordinator) AcceptOrder(ctx context.Context, orderID, driverID int64) (*models.Order, error) {
	if driverID <= 0 {
		return nil, validationf("driver_id is required")
	}
	o, err := c.Store.AcceptPending(ctx, orderID, driverID)
	if errors.Is(err, storage.ErrConflict) {
		if _, gerr := c.Store.Get(ctx, orderID); errors.Is(gerr, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		observability.AcceptConflicts.Inc()
		return nil, ErrConflict
	}
	if err != nil {
		return nil, err
	}
	observability.AcceptWins.Inc()
	observability.StatusTransitions.WithLabelValues(string(models.StatusAccepted)).Inc()

	c.holdFare(ctx, o)
	c.Notifier.Send(relay.RiderKey(o.RiderID), relay.EventRideUpdate, RideUpdate{OrderID: o.ID, Status: o.Status, DriverID: o.DriverID})
	c.publishEvent(o)
	return o, nil
}

// UpdateStatus applies a legal forward transition and notifies the
// rider. ACCEPTED is not reachable here: driver assignment happens only
// through AcceptOrder.
func (c *Coordinator) UpdateStatus(ctx context.Context, orderID int64, next models.Status) (*models.Order, error) {
	if !models.ValidStatus(next) {
		return nil, validationf("unknown status %q", next)
	}
	if next == models.StatusAccepted || next == models.StatusPending {
		return nil, ErrInvalidTransition
	}
	cur, err := c.Store.Get(ctx, orderID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if !models.CanTransition(cur.Status, next) {
		return nil, ErrInvalidTransition
	}
	o, err := c.Store.TransitionStatus(ctx, orderID, cur.Status, next)
	if errors.Is(err, storage.ErrConflict) {
		// status moved between the read and the guarded write
		return nil, ErrInvalidTransition
	}
	if err != nil {
		return nil, err
	}
	observability.StatusTransitions.WithLabelValues(string(next)).Inc()

	c.settleFare(ctx, o)
	c.Notifier.Send(relay.RiderKey(o.RiderID), relay.EventRideUpdate, RideUpdate{OrderID: o.ID, Status: o.Status, DriverID: o.DriverID})
	if next == models.StatusCancelled && o.DriverID != nil {
		c.Notifier.Send(relay.DriverKey(*o.DriverID), relay.EventRideCancelled, RideCancelled{OrderID: o.ID})
	}
	c.publishEvent(o)
	return o, nil
}

func (c *Coordinator) ListRiderOrders(ctx context.Context, riderID int64) ([]models.Order, error) {
	return c.Store.ListByRider(ctx, riderID)
}

// holdFare reserves the fare on accept. Best-effort: the accepted order
// stands whether or not the hold succeeds.
func (c *Coordinator) holdFare(ctx context.Context, o *models.Order) {
	if c.Payments == nil {
		return
	}
	holdID, err := c.Payments.Hold(ctx, o.Price, c.Currency, o.RiderID)
	if err != nil {
		c.Log.Warn("fare hold failed", "order_id", o.ID, "error", err)
		return
	}
	c.holdMu.Lock()
	if c.holds == nil {
		c.holds = make(map[int64]string)
	}
	c.holds[o.ID] = holdID
	c.holdMu.Unlock()
}

func (c *Coordinator) settleFare(ctx context.Context, o *models.Order) {
	if c.Payments == nil || !models.Terminal(o.Status) {
		return
	}
	c.holdMu.Lock()
	holdID, ok := c.holds[o.ID]
	delete(c.holds, o.ID)
	c.holdMu.Unlock()
	if !ok {
		return
	}
	var err error
	if o.Status == models.StatusCompleted {
		err = c.Payments.Capture(ctx, holdID)
	} else {
		err = c.Payments.Cancel(ctx, holdID)
	}
	if err != nil {
		c.Log.Warn("fare settlement failed", "order_id", o.ID, "status", o.Status, "error", err)
	}
}

func (c *Coordinator) publishEvent(o *models.Order) {
	if c.Events == nil {
		return
	}
	ev := models.OrderEvent{OrderID: o.ID, RiderID: o.RiderID, Status: o.Status, DriverID: o.DriverID, OccurredAt: o.UpdatedAt}
	if err := c.Events.PublishOrderEvent(ev); err != nil {
		c.Log.Warn("order event publish failed", "order_id", o.ID, "error", err)
	}
}
