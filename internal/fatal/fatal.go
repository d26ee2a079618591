// Package fatal carries InvariantViolation errors out of the components
// that detect them (the Portfolio Manager) to cmd/strateq's
// main loop, without panicking on the detecting goroutine. Grounded on
// the teacher's LiveTradingCallbacks convention of reporting failures
// through a channel rather than crashing inline.
package fatal

// Reporter is a single-slot mailbox for the first invariant violation
// observed by any component sharing it. Later violations are dropped:
// the process is already coming down once the first is reported.
type Reporter struct {
	ch chan error
}

// NewReporter creates an empty Reporter.
func NewReporter() *Reporter {
	return &Reporter{ch: make(chan error, 1)}
}

// Report delivers err to the channel returned by C, if nothing is
// already pending there. Non-blocking: callers must not stall on a
// slow or absent reader.
func (r *Reporter) Report(err error) {
	select {
	case r.ch <- err:
	default:
	}
}

// C returns the channel the main loop reads to learn a component has
// detected an unrecoverable invariant violation.
func (r *Reporter) C() <-chan error {
	return r.ch
}
