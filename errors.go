package pgstack

import (
	"github.com/pgstack/pgstack/internal/config"
	"github.com/pgstack/pgstack/internal/process"
	"github.com/pgstack/pgstack/internal/settings"
)

// Sentinel errors for error inspection with errors.Is.
// These are immutable constants safe for use in wrapped error chain comparison.
const (
	// ErrMissingRequired indicates a mandatory environment variable is
	// absent or empty. Run maps it to ExitConfig.
	ErrMissingRequired = config.ErrMissingRequired

	// ErrSettingNotDeclared indicates an engine settings override names
	// a key the settings file never declares, not even commented out.
	ErrSettingNotDeclared = settings.ErrNotDeclared

	// ErrEngineExited indicates the engine terminated while a readiness
	// or membership wait was still in progress.
	ErrEngineExited = process.ErrProcessExited
)
