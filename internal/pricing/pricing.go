package pricing

import (
	"math"
	"math/rand"
)

// Calculator quotes a fare as base fare + per-kilometer rate. The
// distance is a placeholder draw, not a routed distance; swapping in a
// real routing engine only has to replace the distance source.
type Calculator struct {
	BaseFare  int64
	PerKmRate int64

	// distanceFn overrides the placeholder draw in tests.
	distanceFn func() float64
}

func New(baseFare, perKmRate int64) *Calculator {
	return &Calculator{BaseFare: baseFare, PerKmRate: perKmRate}
}

// Quote returns the fare and the distance it was computed from. Both are
// fixed at order creation and never recomputed.
func (c *Calculator) Quote() (price int64, distanceKm float64) {
	distanceKm = c.distance()
	price = c.BaseFare + int64(math.Round(distanceKm*float64(c.PerKmRate)))
	return price, distanceKm
}

func (c *Calculator) distance() float64 {
	if c.distanceFn != nil {
		return c.distanceFn()
	}
	// 1..15 km, one decimal
	d := 1.0 + rand.Float64()*14.0
	return math.Round(d*10) / 10
}
