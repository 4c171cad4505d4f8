package pricing

import "testing"

func TestQuoteAppliesBaseAndRate(t *testing.T) {
	c := New(5000, 2000)
	c.distanceFn = func() float64 { return 3.5 }
	price, dist := c.Quote()
	if dist != 3.5 {
		t.Fatalf("expected distance 3.5, got %f", dist)
	}
	if price != 5000+7000 {
		t.Fatalf("expected price 12000, got %d", price)
	}
}

func TestQuoteDistanceInRange(t *testing.T) {
	c := New(5000, 2000)
	for i := 0; i < 100; i++ {
		_, dist := c.Quote()
		if dist < 1.0 || dist > 15.0 {
			t.Fatalf("distance %f out of range", dist)
		}
	}
}
