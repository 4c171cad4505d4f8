package dispatch

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/example/ride-dispatch/internal/models"
	"github.com/example/ride-dispatch/internal/registry"
	"github.com/example/ride-dispatch/internal/relay"
	"github.com/example/ride-dispatch/internal/storage"
)

type fakeProfiles struct {
	known map[int64]bool
	err   error
}

func (f *fakeProfiles) RiderExists(_ context.Context, riderID int64) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.known[riderID], nil
}

type sentEvent struct {
	key   string
	event string
	data  interface{}
}

// fakeNotifier records sends and signals each one on a channel so tests
// can wait out the async fan-out.
type fakeNotifier struct {
	mu     sync.Mutex
	sent   []sentEvent
	signal chan sentEvent
}

func newFakeNotifier() *fakeNotifier {
	return &fakeNotifier{signal: make(chan sentEvent, 64)}
}

func (f *fakeNotifier) Send(key, event string, data interface{}) bool {
	ev := sentEvent{key: key, event: event, data: data}
	f.mu.Lock()
	f.sent = append(f.sent, ev)
	f.mu.Unlock()
	f.signal <- ev
	return true
}

func (f *fakeNotifier) wait(t *testing.T, n int) []sentEvent {
	t.Helper()
	out := make([]sentEvent, 0, n)
	for len(out) < n {
		select {
		case ev := <-f.signal:
			out = append(out, ev)
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for %d sends, got %d", n, len(out))
		}
	}
	return out
}

type fixedQuote struct {
	price int64
	km    float64
}

func (q fixedQuote) Quote() (int64, float64) { return q.price, q.km }

type fakePayments struct {
	mu       sync.Mutex
	held     []int64
	captured []string
	canceled []string
}

func (f *fakePayments) Hold(_ context.Context, amount int64, _ string, _ int64) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.held = append(f.held, amount)
	return "pi_test", nil
}

func (f *fakePayments) Capture(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.captured = append(f.captured, id)
	return nil
}

func (f *fakePayments) Cancel(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.canceled = append(f.canceled, id)
	return nil
}

func boolPtr(b bool) *bool { return &b }

func newCoordinator(t *testing.T) (*Coordinator, *registry.MemoryRegistry, *fakeNotifier) {
	t.Helper()
	reg := registry.NewMemoryRegistry()
	notifier := newFakeNotifier()
	c := &Coordinator{
		Store:    storage.NewMemoryStore(),
		Registry: reg,
		Notifier: notifier,
		Profiles: &fakeProfiles{known: map[int64]bool{7: true}},
		Pricer:   fixedQuote{price: 12000, km: 3.5},
		Currency: "uzs",
		Log:      slog.Default(),
	}
	return c, reg, notifier
}

func TestCreateOrderUnknownRider(t *testing.T) {
	c, _, _ := newCoordinator(t)
	_, err := c.CreateOrder(context.Background(), 99, "A", "B")
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestCreateOrderMissingFields(t *testing.T) {
	c, _, _ := newCoordinator(t)
	var verr *ValidationError
	if _, err := c.CreateOrder(context.Background(), 7, "", "B"); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if _, err := c.CreateOrder(context.Background(), 0, "A", "B"); !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestCreateOrderUpstreamFailureSurfaced(t *testing.T) {
	c, _, _ := newCoordinator(t)
	c.Profiles = &fakeProfiles{err: errors.New("user-service down")}
	_, err := c.CreateOrder(context.Background(), 7, "A", "B")
	var uerr *UpstreamError
	if !errors.As(err, &uerr) {
		t.Fatalf("expected UpstreamError, got %v", err)
	}
}

func TestCreateOrderReturnsBeforeFanout(t *testing.T) {
	c, reg, notifier := newCoordinator(t)
	reg.SetOnline(context.Background(), 101, boolPtr(true), nil, nil)

	o, err := c.CreateOrder(context.Background(), 7, "A", "B")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if o.Status != models.StatusPending || o.Price != 12000 || o.DistanceKm != 3.5 {
		t.Fatalf("unexpected order: %+v", o)
	}
	if o.DriverID != nil {
		t.Fatal("driver assigned at creation")
	}
	// fan-out lands after the synchronous return
	sends := notifier.wait(t, 1)
	if sends[0].event != relay.EventRideRequest || sends[0].key != relay.DriverKey(101) {
		t.Fatalf("unexpected fan-out: %+v", sends[0])
	}
}

func TestAcceptUnknownOrder(t *testing.T) {
	c, _, _ := newCoordinator(t)
	if _, err := c.AcceptOrder(context.Background(), 42, 101); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestAcceptIdempotentRejection(t *testing.T) {
	c, _, _ := newCoordinator(t)
	o, _ := c.CreateOrder(context.Background(), 7, "A", "B")

	if _, err := c.AcceptOrder(context.Background(), o.ID, 101); err != nil {
		t.Fatalf("first accept: %v", err)
	}
	// same driver accepting its own win still loses: the order is no
	// longer PENDING
	if _, err := c.AcceptOrder(context.Background(), o.ID, 101); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
}

func TestUpdateStatusRejectsIllegalPairs(t *testing.T) {
	c, _, _ := newCoordinator(t)
	o, _ := c.CreateOrder(context.Background(), 7, "A", "B")

	for _, next := range []models.Status{models.StatusArrived, models.StatusInProgress, models.StatusCompleted, models.StatusAccepted, "DRIVING"} {
		if _, err := c.UpdateStatus(context.Background(), o.ID, next); err == nil {
			t.Fatalf("PENDING -> %s unexpectedly allowed", next)
		}
		got, _ := c.Store.Get(context.Background(), o.ID)
		if got.Status != models.StatusPending {
			t.Fatalf("rejected transition mutated order to %s", got.Status)
		}
	}
}

func TestUpdateStatusUnknownOrder(t *testing.T) {
	c, _, _ := newCoordinator(t)
	if _, err := c.UpdateStatus(context.Background(), 42, models.StatusCancelled); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestCancelNotifiesAssignedDriver(t *testing.T) {
	c, _, notifier := newCoordinator(t)
	o, _ := c.CreateOrder(context.Background(), 7, "A", "B")
	if _, err := c.AcceptOrder(context.Background(), o.ID, 101); err != nil {
		t.Fatalf("accept: %v", err)
	}
	if _, err := c.UpdateStatus(context.Background(), o.ID, models.StatusCancelled); err != nil {
		t.Fatalf("cancel: %v", err)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	var sawDriverCancel bool
	for _, ev := range notifier.sent {
		if ev.key == relay.DriverKey(101) && ev.event == relay.EventRideCancelled {
			sawDriverCancel = true
		}
	}
	if !sawDriverCancel {
		t.Fatal("assigned driver did not receive ride:cancelled")
	}
}

func TestPaymentsHoldCaptureLifecycle(t *testing.T) {
	c, _, _ := newCoordinator(t)
	pay := &fakePayments{}
	c.Payments = pay

	o, _ := c.CreateOrder(context.Background(), 7, "A", "B")
	c.AcceptOrder(context.Background(), o.ID, 101)
	c.UpdateStatus(context.Background(), o.ID, models.StatusArrived)
	c.UpdateStatus(context.Background(), o.ID, models.StatusInProgress)
	c.UpdateStatus(context.Background(), o.ID, models.StatusCompleted)

	pay.mu.Lock()
	defer pay.mu.Unlock()
	if len(pay.held) != 1 || pay.held[0] != 12000 {
		t.Fatalf("expected one hold of 12000, got %v", pay.held)
	}
	if len(pay.captured) != 1 || len(pay.canceled) != 0 {
		t.Fatalf("expected capture on completion, got captured=%v canceled=%v", pay.captured, pay.canceled)
	}
}

func TestPaymentsCancelReleasesHold(t *testing.T) {
	c, _, _ := newCoordinator(t)
	pay := &fakePayments{}
	c.Payments = pay

	o, _ := c.CreateOrder(context.Background(), 7, "A", "B")
	c.AcceptOrder(context.Background(), o.ID, 101)
	c.UpdateStatus(context.Background(), o.ID, models.StatusCancelled)

	pay.mu.Lock()
	defer pay.mu.Unlock()
	if len(pay.canceled) != 1 || len(pay.captured) != 0 {
		t.Fatalf("expected hold release on cancel, got captured=%v canceled=%v", pay.captured, pay.canceled)
	}
}

// Two drivers online, both offered the ride, 101 accepts first, 102
// loses, rider sees exactly one ACCEPTED update carrying driver 101.
func TestTwoDriverRaceScenario(t *testing.T) {
	c, reg, notifier := newCoordinator(t)
	ctx := context.Background()
	reg.SetOnline(ctx, 101, boolPtr(true), nil, nil)
	reg.SetOnline(ctx, 102, boolPtr(true), nil, nil)

	o, err := c.CreateOrder(ctx, 7, "A", "B")
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	offers := notifier.wait(t, 2)
	offered := map[string]bool{}
	for _, ev := range offers {
		if ev.event != relay.EventRideRequest {
			t.Fatalf("unexpected event during fan-out: %+v", ev)
		}
		offered[ev.key] = true
	}
	if !offered[relay.DriverKey(101)] || !offered[relay.DriverKey(102)] {
		t.Fatalf("both drivers should be offered the ride, got %v", offered)
	}

	won, err := c.AcceptOrder(ctx, o.ID, 101)
	if err != nil {
		t.Fatalf("driver 101 accept: %v", err)
	}
	if won.Status != models.StatusAccepted || won.DriverID == nil || *won.DriverID != 101 {
		t.Fatalf("winner order wrong: %+v", won)
	}

	if _, err := c.AcceptOrder(ctx, o.ID, 102); !errors.Is(err, ErrConflict) {
		t.Fatalf("driver 102 should lose with ErrConflict, got %v", err)
	}

	notifier.mu.Lock()
	defer notifier.mu.Unlock()
	updates := 0
	for _, ev := range notifier.sent {
		if ev.key == relay.RiderKey(7) && ev.event == relay.EventRideUpdate {
			updates++
			upd := ev.data.(RideUpdate)
			if upd.Status != models.StatusAccepted || upd.DriverID == nil || *upd.DriverID != 101 {
				t.Fatalf("rider update wrong: %+v", upd)
			}
		}
	}
	if updates != 1 {
		t.Fatalf("rider should receive exactly one ride:update, got %d", updates)
	}
}

func TestConcurrentAcceptsExactlyOneWinner(t *testing.T) {
	c, _, _ := newCoordinator(t)
	o, _ := c.CreateOrder(context.Background(), 7, "A", "B")

	const n = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0
	conflicts := 0
	for i := 0; i < n; i++ {
		driverID := int64(100 + i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.AcceptOrder(context.Background(), o.ID, driverID)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				winners++
			case errors.Is(err, ErrConflict):
				conflicts++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()
	if winners != 1 || conflicts != n-1 {
		t.Fatalf("expected 1 winner and %d conflicts, got %d/%d", n-1, winners, conflicts)
	}
}

func TestValidationMessagesNameTheField(t *testing.T) {
	c, _, _ := newCoordinator(t)
	_, err := c.CreateOrder(context.Background(), 7, "A", "")
	if err == nil || !strings.Contains(err.Error(), "dropoff_location") {
		t.Fatalf("validation message should name the missing field, got %v", err)
	}
}
