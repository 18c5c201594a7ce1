package fileutil

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEnsureDirCreatesNested(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	target := filepath.Join(base, "a", "b", "c")

	if err := EnsureDir(target); err != nil {
		t.Fatalf("EnsureDir: %v", err)
	}

	info, err := os.Stat(target)
	if err != nil {
		t.Fatalf("stat created dir: %v", err)
	}
	if !info.IsDir() {
		t.Fatal("created path is not a directory")
	}
}

func TestEnsureDirExistingIsNoop(t *testing.T) {
	t.Parallel()

	base := t.TempDir()
	if err := EnsureDir(base); err != nil {
		t.Fatalf("EnsureDir on existing dir: %v", err)
	}
}
