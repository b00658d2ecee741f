package lifecycle

// Handle tracks one asynchronous unit operation. The reconciler keeps a
// handle per in-flight create or terminate and checks it on every pass.
type Handle struct {
	done chan struct{}
	err  error
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

// finish records the outcome and releases waiters. Called exactly once.
func (h *Handle) finish(err error) {
	h.err = err
	close(h.done)
}

// Done is closed once the operation has completed or failed.
func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Err reports the outcome. Only meaningful after Done is closed.
func (h *Handle) Err() error {
	return h.err
}

// Finished reports completion without blocking.
func (h *Handle) Finished() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}
