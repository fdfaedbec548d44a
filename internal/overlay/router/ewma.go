package router

// EWMA is an exponentially-weighted moving average with the router's
// fixed alpha=0.1, split out from the hello state machine (SPEC_FULL §6)
// so the "cost equals the iterated EWMA of r_i/2" contract (spec.md §8)
// can be unit tested on its own.
type EWMA struct {
	Alpha    float64
	value    float64
	seeded   bool
	Count    int
	Total    float64
	Min, Max float64
}

// NewEWMA builds an EWMA seeded at the given initial cost, with the
// router's standard alpha of 0.1. The seed is a starting prior, not a
// sample: it does not count toward Count/Total/Min/Max.
func NewEWMA(initial float64) *EWMA {
	return &EWMA{Alpha: 0.1, value: initial}
}

// Update folds sample into the average via cost := (1-alpha)*cost +
// alpha*sample and updates the running count/total/min/max statistics,
// mirroring spec.md §4.2's "update count/totalCost/min/max".
func (e *EWMA) Update(sample float64) float64 {
	e.value = (1-e.Alpha)*e.value + e.Alpha*sample
	if !e.seeded {
		e.Min, e.Max = sample, sample
		e.seeded = true
	} else {
		if sample < e.Min {
			e.Min = sample
		}
		if sample > e.Max {
			e.Max = sample
		}
	}
	e.Count++
	e.Total += sample
	return e.value
}

// Value returns the current smoothed cost.
func (e *EWMA) Value() float64 {
	return e.value
}
