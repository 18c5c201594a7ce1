package sentinel

// Compile-time check that Error implements the error interface.
var _ error = Error("")

// Error is an error type backed by a string constant. Declaring sentinel
// errors as const Error values (instead of var + errors.New) makes them
// immutable: they cannot be reassigned at runtime.
//
// Error is comparable, so the default == comparison used by errors.Is
// matches these sentinels through wrapped error chains.
type Error string

// Error implements the error interface.
func (e Error) Error() string {
	return string(e)
}
