package main

import "github.com/erisproject/eris-sub001/pkg/sim"

// Walker is a demonstration agent that bisects its way to the square
// root of a target value. Each intra-period round halves the bracket,
// and the agent keeps requesting rounds until the bracket collapses
// below tolerance. With several walkers active at once the simulation
// keeps iterating until the slowest one converges, which exercises the
// Reoptimize voting across the whole bucket.
type Walker struct {
	sim.BaseAgent

	target    float64
	lo, hi    float64
	tolerance float64
}

func NewWalker(target float64) *Walker {
	return &Walker{target: target, tolerance: 1e-9}
}

func (w *Walker) Target() float64 { return w.target }

// Root returns the midpoint of the current bracket.
func (w *Walker) Root() float64 { return (w.lo + w.hi) / 2 }

func (w *Walker) InterBegin() {
	// Restart the search each period so every period does real work.
	w.lo = 0
	w.hi = w.target
	if w.hi < 1 {
		w.hi = 1
	}
}

func (w *Walker) IntraReoptimize() bool {
	if w.hi-w.lo <= w.tolerance {
		return false
	}
	mid := (w.lo + w.hi) / 2
	if mid*mid < w.target {
		w.lo = mid
	} else {
		w.hi = mid
	}
	return true
}
