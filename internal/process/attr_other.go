//go:build !linux

package process

import (
	"os/exec"

	"github.com/pgstack/pgstack/internal/fileutil"
)

// configureSysProcAttr is a no-op on non-Linux platforms. Pdeathsig and
// credential switching are Linux kernel features; the controller targets
// Linux containers and other platforms are build-only.
func configureSysProcAttr(_ *exec.Cmd, _ *fileutil.Owner) {}
