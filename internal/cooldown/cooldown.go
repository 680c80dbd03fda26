// Package cooldown draws the randomized pauses that keep the oracle from
// rate-limiting a credential.
package cooldown

import (
	"math/rand/v2"
	"time"
)

// Range is an inclusive interval a cooldown is drawn from uniformly.
type Range struct {
	Min time.Duration `json:"min"`
	Max time.Duration `json:"max"`
}

// Seconds builds a Range from whole seconds.
func Seconds(lo, hi int) Range {
	return Range{Min: time.Duration(lo) * time.Second, Max: time.Duration(hi) * time.Second}
}

// Hours builds a Range from whole hours.
func Hours(lo, hi int) Range {
	return Range{Min: time.Duration(lo) * time.Hour, Max: time.Duration(hi) * time.Hour}
}

// Pick returns a duration in [Min, Max]. A degenerate range returns Min.
func (r Range) Pick() time.Duration {
	if r.Max <= r.Min {
		return max(r.Min, 0)
	}
	return r.Min + rand.N(r.Max-r.Min+1)
}

// Zero reports whether the range never pauses.
func (r Range) Zero() bool {
	return r.Min <= 0 && r.Max <= 0
}
