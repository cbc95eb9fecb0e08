package generator

import "sync/atomic"

// Ticker issues generation stamps. Stamps start at 1 so that a stamp is
// always newer than a coordinate that was never written.
type Ticker struct {
	n atomic.Uint64
}

// Next returns a stamp strictly greater than every stamp returned before.
func (t *Ticker) Next() uint64 {
	return t.n.Add(1)
}

// Current returns the last stamp issued, 0 if none.
func (t *Ticker) Current() uint64 {
	return t.n.Load()
}
