package config

import (
	"errors"
	"os"
	"strings"
	"testing"
)

// setRequired sets the two mandatory variables so individual tests only
// vary what they care about. t.Setenv also restores prior values,
// including the password variable that Resolve scrubs.
func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("PGSTACK_SUPERUSER_PASSWORD", "secret")
	t.Setenv("PGSTACK_DATABASE", "app")
}

func TestResolveMissingRequired(t *testing.T) {
	t.Setenv("PGSTACK_SUPERUSER_PASSWORD", "")
	t.Setenv("PGSTACK_DATABASE", "")

	_, err := Resolve()
	if !errors.Is(err, ErrMissingRequired) {
		t.Fatalf("expected ErrMissingRequired, got %v", err)
	}
	// Both violations must be reported at once.
	msg := err.Error()
	if !strings.Contains(msg, "SUPERUSER_PASSWORD") || !strings.Contains(msg, "DATABASE") {
		t.Fatalf("error %q should name both missing variables", msg)
	}
}

func TestResolveDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	hostname, _ := os.Hostname()
	if cfg.NodeName != hostname {
		t.Fatalf("NodeName = %q, want host name %q", cfg.NodeName, hostname)
	}
	if cfg.PGMajor != "9.4" {
		t.Fatalf("PGMajor = %q, want default 9.4", cfg.PGMajor)
	}
	if cfg.DataDir != "/var/lib/postgresql/9.4/main" {
		t.Fatalf("DataDir = %q", cfg.DataDir)
	}
	if cfg.BinDir != "/usr/lib/postgresql/9.4/bin" {
		t.Fatalf("BinDir = %q", cfg.BinDir)
	}
	for _, part := range []string{"host=" + hostname, "port=5432", "dbname=app", "user=postgres", "password=secret"} {
		if !strings.Contains(cfg.NodeDSN, part) {
			t.Fatalf("NodeDSN %q missing %q", cfg.NodeDSN, part)
		}
	}
}

func TestResolveRoleDecision(t *testing.T) {
	type testCase struct {
		joinDSN  string
		wantRole Role
	}

	tests := map[string]testCase{
		"no rendezvous address founds a group": {
			joinDSN:  "",
			wantRole: Founder,
		},
		"rendezvous address joins a group": {
			joinDSN:  "host=peer0 port=5432 dbname=app user=postgres",
			wantRole: Joiner,
		},
	}

	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			setRequired(t)
			t.Setenv("PGSTACK_JOIN_DSN", tc.joinDSN)

			cfg, err := Resolve()
			if err != nil {
				t.Fatalf("Resolve: %v", err)
			}
			if cfg.Role != tc.wantRole {
				t.Fatalf("Role = %v, want %v", cfg.Role, tc.wantRole)
			}
		})
	}
}

func TestResolveScrubsPassword(t *testing.T) {
	setRequired(t)

	cfg, err := Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if cfg.SuperuserPassword != "secret" {
		t.Fatalf("SuperuserPassword = %q", cfg.SuperuserPassword)
	}
	if got, present := os.LookupEnv("PGSTACK_SUPERUSER_PASSWORD"); present {
		t.Fatalf("password still exported in environment: %q", got)
	}
}

func TestResolveOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("PGCONF_MAX_CONNECTIONS", "200")
	t.Setenv("PGCONF_WORK_MEM", "'64MB'")

	cfg, err := Resolve()
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	found := map[string]string{}
	for _, o := range cfg.Overrides {
		found[o.Key] = o.Value
	}
	if found["max_connections"] != "200" {
		t.Fatalf("max_connections override = %q, want 200", found["max_connections"])
	}
	if found["work_mem"] != "'64MB'" {
		t.Fatalf("work_mem override = %q", found["work_mem"])
	}
}

func TestScanOverrides(t *testing.T) {
	t.Parallel()

	environ := []string{
		"PATH=/usr/bin",
		"PGCONF_SHARED_BUFFERS='1GB'",
		"PGCONF_=ignored-empty-key",
		"PGCONFX_NOT_OURS=1",
		"PGCONF_FSYNC=off",
	}

	got := scanOverrides(environ)
	want := []Override{
		{Key: "shared_buffers", Value: "'1GB'"},
		{Key: "fsync", Value: "off"},
	}
	if len(got) != len(want) {
		t.Fatalf("scanOverrides = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("override[%d] = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestLocalDSN(t *testing.T) {
	t.Parallel()

	cfg := &Config{SuperuserPassword: "pw", Database: "app"}
	dsn := cfg.LocalDSN("postgres")
	for _, part := range []string{"host=127.0.0.1", "dbname=postgres", "sslmode=require", "password=pw"} {
		if !strings.Contains(dsn, part) {
			t.Fatalf("LocalDSN %q missing %q", dsn, part)
		}
	}
}
