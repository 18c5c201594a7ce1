//go:build linux

package process

import (
	"os/exec"
	"syscall"

	"github.com/pgstack/pgstack/internal/fileutil"
)

// configureSysProcAttr sets Linux-specific process attributes on cmd.
// Pdeathsig ensures the child receives SIGTERM if the controller dies
// abruptly, so no orphaned engine keeps the data directory locked. When
// owner is non-nil the child runs under that principal's credentials
// instead of the controller's own identity.
func configureSysProcAttr(cmd *exec.Cmd, owner *fileutil.Owner) {
	attr := &syscall.SysProcAttr{
		Pdeathsig: syscall.SIGTERM,
	}
	if owner != nil {
		attr.Credential = &syscall.Credential{
			Uid: uint32(owner.UID),
			Gid: uint32(owner.GID),
		}
	}
	cmd.SysProcAttr = attr
}
