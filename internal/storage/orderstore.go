package storage

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

var (
	// ErrNotFound means the order id does not exist.
	ErrNotFound = errors.New("order not found")
	// ErrConflict means a conditional write matched zero rows: the order
	// is missing or its status moved on since the caller last looked.
	ErrConflict = errors.New("order state conflict")
)

// OrderStore defines persistence operations for orders. AcceptPending and
// TransitionStatus must be single atomic conditional writes: the row
// count of that one write decides the outcome, never a prior read.
type OrderStore interface {
	Create(ctx context.Context, o *models.Order) error
	Get(ctx context.Context, id int64) (*models.Order, error)
	ListByRider(ctx context.Context, riderID int64) ([]models.Order, error)
	AcceptPending(ctx context.Context, orderID, driverID int64) (*models.Order, error)
	TransitionStatus(ctx context.Context, orderID int64, from, to models.Status) (*models.Order, error)
}

// MemoryStore keeps orders in a mutex-guarded map. The conditional writes
// check-and-mutate under the lock, matching the Postgres semantics.
type MemoryStore struct {
	mu     sync.RWMutex
	nextID int64
	orders map[int64]*models.Order
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{orders: make(map[int64]*models.Order)}
}

func (m *MemoryStore) Create(_ context.Context, o *models.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	o.ID = m.nextID
	now := time.Now()
	o.CreatedAt = now
	o.UpdatedAt = now
	cp := *o
	m.orders[o.ID] = &cp
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id int64) (*models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	o, ok := m.orders[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) ListByRider(_ context.Context, riderID int64) ([]models.Order, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Order, 0)
	for _, o := range m.orders {
		if o.RiderID == riderID {
			out = append(out, *o)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MemoryStore) AcceptPending(_ context.Context, orderID, driverID int64) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.Status != models.StatusPending {
		return nil, ErrConflict
	}
	d := driverID
	o.Status = models.StatusAccepted
	o.DriverID = &d
	o.UpdatedAt = time.Now()
	cp := *o
	return &cp, nil
}

func (m *MemoryStore) TransitionStatus(_ context.Context, orderID int64, from, to models.Status) (*models.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	o, ok := m.orders[orderID]
	if !ok || o.Status != from {
		return nil, ErrConflict
	}
	o.Status = to
	o.UpdatedAt = time.Now()
	cp := *o
	return &cp, nil
}
