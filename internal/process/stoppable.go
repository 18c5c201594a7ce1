package process

import "time"

// Stoppable represents a process that can be stopped and have its
// resources closed.
type Stoppable interface {
	Stop(timeout time.Duration) error
	Close()
}

// StopCloseAndNil stops, closes, and nils a Stoppable pointer in one
// cleanup step. Safe to call with a nil p or a nil *p; returns nil
// immediately in both cases.
//
// The two type parameters enforce at compile time that only pointer types
// implementing Stoppable are accepted, so *p is directly comparable to
// nil without reflection. Close and the nil-out always run even when Stop
// fails: a failed stop leaves the process in an unknown state, but file
// handles must still be released and the stale reference cleared. The
// Stop error is returned either way.
func StopCloseAndNil[P interface {
	*E
	Stoppable
}, E any](p *P, timeout time.Duration) error {
	if p == nil || *p == nil {
		return nil
	}
	defer func() {
		(*p).Close()
		*p = nil
	}()
	return (*p).Stop(timeout)
}
