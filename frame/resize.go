package frame

import "sync/atomic"

// ResizeRequest hands a pending window size from the window callback to the
// render loop. Writers replace any earlier request; the reader takes and
// clears it in one atomic step, so a burst of resizes collapses into the last
// one.
type ResizeRequest struct {
	pending atomic.Pointer[Extent]
}

// Request records a new size. Safe to call from any goroutine.
func (r *ResizeRequest) Request(width, height int) {
	r.pending.Store(&Extent{Width: width, Height: height})
}

// Take returns the pending size and clears it.
func (r *ResizeRequest) Take() (Extent, bool) {
	e := r.pending.Swap(nil)
	if e == nil {
		return Extent{}, false
	}
	return *e, true
}

func (r *ResizeRequest) Pending() bool {
	return r.pending.Load() != nil
}

// restore puts a taken request back unless a newer one arrived meanwhile.
func (r *ResizeRequest) restore(e Extent) {
	r.pending.CompareAndSwap(nil, &e)
}
