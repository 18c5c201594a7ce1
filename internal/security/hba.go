package security

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/pgstack/pgstack/internal/config"
	"github.com/pgstack/pgstack/internal/settings"
)

// HBAFileName is the engine's access-control rules file.
const HBAFileName = "pg_hba.conf"

// WriteAccessRules rewrites pg_hba.conf from scratch on every startup.
// The engine evaluates rules first-match-wins, so order is load-bearing:
// local peer-trust rules for the database principal come first, then
// password-over-TLS rules for everyone, then the operator-supplied extra
// block verbatim.
//
// TLS enforcement (ssl = on) is applied to the settings file first, as a
// precondition: the hostssl rules below only reject plaintext if the
// listener actually offers TLS.
func WriteAccessRules(dataDir, extra string) error {
	if err := settings.Apply(filepath.Join(dataDir, settings.FileName), "ssl", "on"); err != nil {
		return fmt.Errorf("enable TLS enforcement: %w", err)
	}

	var b strings.Builder
	b.WriteString("# Generated by pgstack; rewritten on every startup. Do not edit.\n")
	fmt.Fprintf(&b, "local all %s peer\n", config.Principal)
	fmt.Fprintf(&b, "local replication %s peer\n", config.Principal)
	b.WriteString("hostssl all all 0.0.0.0/0 md5\n")
	b.WriteString("hostssl all all ::/0 md5\n")
	b.WriteString("hostssl replication all 0.0.0.0/0 md5\n")
	b.WriteString("hostssl replication all ::/0 md5\n")
	if extra != "" {
		b.WriteString(strings.TrimRight(extra, "\n"))
		b.WriteString("\n")
	}

	path := filepath.Join(dataDir, HBAFileName)
	if err := os.WriteFile(path, []byte(b.String()), 0o600); err != nil {
		return fmt.Errorf("write access rules: %w", err)
	}
	return nil
}
