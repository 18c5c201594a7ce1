package fileutil

import (
	"fmt"
	"os"
)

// EnsureDir creates path and any missing parents with mode 0755. An
// existing directory is left untouched. Ownership is not adjusted here;
// callers that need the storage principal to own the result follow up
// with Owner.Chown.
func EnsureDir(path string) error {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return fmt.Errorf("create directory %s: %w", path, err)
	}
	return nil
}
