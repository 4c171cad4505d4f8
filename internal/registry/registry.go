package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/example/ride-dispatch/internal/models"
)

// Registry tracks which drivers are online and their last-known location.
// Nil fields in SetOnline are coalesced: an online toggle without
// coordinates keeps the stored coordinates, and vice versa. Records are
// never deleted, only marked offline.
type Registry interface {
	SetOnline(ctx context.Context, driverID int64, online *bool, lat, lon *float64) (models.DriverAvailability, error)
	ListOnline(ctx context.Context) ([]models.DriverAvailability, error)
}

// MemoryRegistry is the process-local implementation used for tests and
// single-node runs.
type MemoryRegistry struct {
	mu      sync.RWMutex
	drivers map[int64]models.DriverAvailability
}

func NewMemoryRegistry() *MemoryRegistry {
	return &MemoryRegistry{drivers: make(map[int64]models.DriverAvailability)}
}

func (r *MemoryRegistry) SetOnline(_ context.Context, driverID int64, online *bool, lat, lon *float64) (models.DriverAvailability, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.drivers[driverID]
	if !ok {
		d = models.DriverAvailability{DriverID: driverID}
	}
	if online != nil {
		d.Online = *online
	}
	if lat != nil {
		v := *lat
		d.Lat = &v
	}
	if lon != nil {
		v := *lon
		d.Lon = &v
	}
	d.LastUpdated = time.Now()
	r.drivers[driverID] = d
	return d, nil
}

// ListOnline returns every online driver, no radius or ranking filter.
// Proximity/ETA ranking is the extension point for a real matcher.
func (r *MemoryRegistry) ListOnline(_ context.Context) ([]models.DriverAvailability, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]models.DriverAvailability, 0)
	for _, d := range r.drivers {
		if d.Online {
			out = append(out, d)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DriverID < out[j].DriverID })
	return out, nil
}
