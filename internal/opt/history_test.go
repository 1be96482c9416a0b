package opt

import (
	"math"
	"testing"
)

func TestConvergenceTrackerStalls(t *testing.T) {
	c := NewConvergenceTracker(ConvergenceConfig{Enabled: true, Patience: 2, Threshold: 0.01})

	if c.Update(100) {
		t.Fatal("First value cannot stall")
	}
	if c.Update(50) {
		t.Fatal("Large improvement must reset the stale counter")
	}
	if c.Update(49.9) {
		t.Fatal("One stale value is below patience")
	}
	if !c.Update(49.8) {
		t.Fatal("Expected stall after two values without 1% improvement")
	}

	best, idx := c.Best()
	if best != 49.8 || idx != 3 {
		t.Errorf("Expected best 49.8 at 3, got %g at %d", best, idx)
	}
	if c.Len() != 4 {
		t.Errorf("Expected 4 recorded values, got %d", c.Len())
	}
}

func TestConvergenceTrackerDisabled(t *testing.T) {
	c := NewConvergenceTracker(ConvergenceConfig{Enabled: false, Patience: 1})
	for i := 0; i < 5; i++ {
		if c.Update(1) {
			t.Fatal("Disabled tracker must never stall")
		}
	}
	if c.Len() != 5 {
		t.Errorf("Values must still be recorded, got %d", c.Len())
	}
}

func TestConvergenceTrackerIgnoresInfiniteReference(t *testing.T) {
	c := NewConvergenceTracker(DefaultConvergenceConfig())
	c.Update(math.Inf(1))
	c.Update(10)
	if c.StaleCount() != 0 {
		t.Errorf("A finite value after +Inf must become the reference, stale=%d", c.StaleCount())
	}
}

func TestConvergenceTrackerHistoryIsCopy(t *testing.T) {
	c := NewConvergenceTracker(DefaultConvergenceConfig())
	c.Update(3)
	h := c.History()
	h[0] = 0
	if c.History()[0] != 3 {
		t.Error("History must return a copy")
	}
}
