package core

import "fmt"

// ControlEvent is a typed control action for the supervisor loop. OS
// signals are translated into these by ListenSignals, keeping signal
// handling free of re-entrancy: the handlers only enqueue, and the
// single-consumer supervisor loop does all the work.
type ControlEvent int

const (
	// Reload asks the engine to re-read its settings file.
	Reload ControlEvent = iota

	// Shutdown stops the engine gracefully and exits the controller.
	Shutdown

	// DebugOn enables verbose command tracing for the rest of the
	// process lifetime.
	DebugOn

	// DebugOff disables verbose command tracing.
	DebugOff
)

// String returns the event name.
func (e ControlEvent) String() string {
	switch e {
	case Reload:
		return "reload"
	case Shutdown:
		return "shutdown"
	case DebugOn:
		return "debug-on"
	case DebugOff:
		return "debug-off"
	default:
		return fmt.Sprintf("ControlEvent(%d)", int(e))
	}
}
