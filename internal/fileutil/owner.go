package fileutil

import (
	"fmt"
	"os"
	"os/user"
	"strconv"
)

// Owner identifies an OS principal by numeric uid/gid. Storage, TLS
// material, and the engine process itself must all belong to the
// unprivileged database principal rather than the controlling process's
// own identity.
type Owner struct {
	UID int
	GID int
}

// LookupOwner resolves a user name to an Owner via the system user database.
func LookupOwner(name string) (Owner, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return Owner{}, fmt.Errorf("look up user %s: %w", name, err)
	}
	uid, err := strconv.Atoi(u.Uid)
	if err != nil {
		return Owner{}, fmt.Errorf("parse uid %q for user %s: %w", u.Uid, name, err)
	}
	gid, err := strconv.Atoi(u.Gid)
	if err != nil {
		return Owner{}, fmt.Errorf("parse gid %q for user %s: %w", u.Gid, name, err)
	}
	return Owner{UID: uid, GID: gid}, nil
}

// Chown transfers ownership of each given path to the owner.
func (o Owner) Chown(paths ...string) error {
	for _, path := range paths {
		if err := os.Chown(path, o.UID, o.GID); err != nil {
			return fmt.Errorf("chown %s to %d:%d: %w", path, o.UID, o.GID, err)
		}
	}
	return nil
}
