// Package oracle derives time-weighted average prices from a pool's
// cumulative price counters.
//
// The counters are UQ112.112 price-seconds that wrap at 2^256, and the pool
// timestamp wraps at 2^32; both are intentional. Every subtraction in this
// package is modular. Taking differences non-modularly is incorrect and will
// misprice any window that straddles a wrap.
package oracle

import (
	"errors"
	"sync"

	"github.com/holiman/uint256"

	"github.com/defistate/amm-pool-go/pool"
)

var (
	// ErrZeroElapsed is returned when two observations share a timestamp.
	ErrZeroElapsed = errors.New("zero elapsed time between observations")
	// ErrInsufficientHistory is returned when a window holds no observation old enough.
	ErrInsufficientHistory = errors.New("insufficient observation history")
)

// Observation is a point sample of a pool's cumulative price counters.
type Observation struct {
	Timestamp        uint32
	Price0Cumulative *uint256.Int
	Price1Cumulative *uint256.Int
}

// Observe samples the pool at the given timestamp, extrapolating the
// counters if no reserve update has happened since the last mutation.
func Observe(p *pool.Pool, now uint32) Observation {
	price0, price1 := p.CumulativePricesAt(now)
	return Observation{
		Timestamp:        now,
		Price0Cumulative: price0,
		Price1Cumulative: price1,
	}
}

// TWAP computes the average UQ112.112 prices over [earlier, later].
// Differences are taken mod 2^256 and mod 2^32; a counter or clock wrap
// inside the window therefore cancels out.
func TWAP(earlier, later Observation) (price0, price1 *uint256.Int, err error) {
	elapsed := later.Timestamp - earlier.Timestamp // wraps mod 2^32
	if elapsed == 0 {
		return nil, nil, ErrZeroElapsed
	}
	e := uint256.NewInt(uint64(elapsed))

	price0 = new(uint256.Int).Sub(later.Price0Cumulative, earlier.Price0Cumulative) // wraps mod 2^256
	price0.Div(price0, e)
	price1 = new(uint256.Int).Sub(later.Price1Cumulative, earlier.Price1Cumulative)
	price1.Div(price1, e)
	return price0, price1, nil
}

// Window keeps a fixed-capacity ring of observations and answers TWAP
// queries against the most recent sample. Safe for concurrent use.
type Window struct {
	mu   sync.RWMutex
	ring []Observation
	next int
	size int
}

// NewWindow creates a window holding up to capacity observations.
func NewWindow(capacity int) *Window {
	if capacity < 2 {
		capacity = 2
	}
	return &Window{ring: make([]Observation, capacity)}
}

// Record appends an observation, overwriting the oldest once full.
func (w *Window) Record(o Observation) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.ring[w.next] = o
	w.next = (w.next + 1) % len(w.ring)
	if w.size < len(w.ring) {
		w.size++
	}
}

// Consult returns the TWAP between the newest observation and the most
// recent one at least minElapsed seconds older than it.
func (w *Window) Consult(minElapsed uint32) (price0, price1 *uint256.Int, err error) {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if w.size < 2 {
		return nil, nil, ErrInsufficientHistory
	}

	newest := w.at(w.size - 1)
	// Walk from second-newest to oldest and take the first observation far
	// enough in the past. Wrapping subtraction keeps this correct across a
	// clock wrap as long as the window spans less than 2^32 seconds.
	for i := w.size - 2; i >= 0; i-- {
		o := w.at(i)
		if newest.Timestamp-o.Timestamp >= minElapsed {
			return TWAP(o, newest)
		}
	}
	return nil, nil, ErrInsufficientHistory
}

// at indexes observations oldest-first. Caller holds w.mu.
func (w *Window) at(i int) Observation {
	if w.size < len(w.ring) {
		return w.ring[i]
	}
	return w.ring[(w.next+i)%len(w.ring)]
}
