package core

import (
	"os"
	"os/signal"
	"syscall"
)

// signalEvent maps each accepted OS signal to its control action:
// hang-up reloads settings, termination/interrupt shuts down, and the
// two user signals toggle verbose command tracing.
func signalEvent(sig os.Signal) (ControlEvent, bool) {
	switch sig {
	case syscall.SIGHUP:
		return Reload, true
	case syscall.SIGTERM, syscall.SIGINT:
		return Shutdown, true
	case syscall.SIGUSR1:
		return DebugOn, true
	case syscall.SIGUSR2:
		return DebugOff, true
	default:
		return 0, false
	}
}

// ListenSignals installs the process-wide signal handlers and starts a
// goroutine translating each delivery into a ControlEvent on events.
// Installed once, before any blocking bootstrap operation, so a signal
// during bootstrap is queued rather than killing the process. Events are
// dropped if the buffered channel is full; control signals are
// level-style requests and a queue of stale repeats has no value.
//
// The returned stop function detaches the handlers and ends the
// goroutine.
func ListenSignals(events chan<- ControlEvent) (stop func()) {
	sigc := make(chan os.Signal, 4)
	signal.Notify(sigc,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
		syscall.SIGUSR1,
		syscall.SIGUSR2,
	)

	done := make(chan struct{})
	go func() {
		for {
			select {
			case sig := <-sigc:
				ev, ok := signalEvent(sig)
				if !ok {
					continue
				}
				select {
				case events <- ev:
				default:
				}
			case <-done:
				return
			}
		}
	}()

	return func() {
		signal.Stop(sigc)
		close(done)
	}
}
