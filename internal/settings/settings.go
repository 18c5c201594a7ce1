// Package settings rewrites the engine's persisted settings file
// (postgresql.conf). The file is line-oriented key = value with
// comment-toggle syntax; initdb pre-declares every recognized key as a
// commented template line, and enforcement works by activating and
// rewriting the matching line in place.
package settings

import (
	"fmt"
	"log/slog"
	"os"
	"regexp"

	"github.com/pgstack/pgstack/internal/config"
	"github.com/pgstack/pgstack/internal/sentinel"
)

// FileName is the engine's persisted settings file inside the data
// directory.
const FileName = "postgresql.conf"

// ErrNotDeclared is returned when a settings key has no template line in
// the file, commented or active. The engine's stock settings file
// declares every key it understands, so hitting this means the key is
// not a real setting (or the file is not one initdb produced). The
// rewrite never silently leaves the file unchanged.
const ErrNotDeclared = sentinel.Error("setting not declared in settings file")

// mandatory is the fixed set of settings multi-master replication
// requires, plus one convenience default (listen_addresses). Applied in
// order on every startup, before any user override.
var mandatory = []config.Override{
	{Key: "listen_addresses", Value: "'*'"},
	{Key: "shared_preload_libraries", Value: "'bdr'"},
	{Key: "wal_level", Value: "'logical'"},
	{Key: "track_commit_timestamp", Value: "on"},
	{Key: "max_wal_senders", Value: "10"},
	{Key: "max_replication_slots", Value: "10"},
	{Key: "log_destination", Value: "'stderr'"},
}

// Apply rewrites the line for key in the settings file at path to an
// active `key = value` line. Both commented and active declarations
// match; the first match is rewritten and later duplicates are left
// alone, so repeated Apply calls for one key are last-writer-wins on the
// same line. Values are not validated; a malformed value surfaces as an
// engine configuration error on the next start.
func Apply(path, key, value string) error {
	content, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read settings file: %w", err)
	}

	// Template lines look like `#key = value ...` or `key = value ...`,
	// possibly with leading whitespace after the comment marker.
	pattern, err := regexp.Compile(`(?m)^#?\s*` + regexp.QuoteMeta(key) + `\s*=.*$`)
	if err != nil {
		return fmt.Errorf("build pattern for setting %s: %w", key, err)
	}
	if !pattern.Match(content) {
		return fmt.Errorf("setting %s: %w", key, ErrNotDeclared)
	}

	replaced := false
	updated := pattern.ReplaceAllFunc(content, func(line []byte) []byte {
		if replaced {
			return line
		}
		replaced = true
		return []byte(key + " = " + value)
	})

	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("stat settings file: %w", err)
	}
	if err := os.WriteFile(path, updated, info.Mode().Perm()); err != nil {
		return fmt.Errorf("write settings file: %w", err)
	}
	return nil
}

// EnforceAll applies the mandatory replication settings and then every
// user override, in order. Overrides run last, so a user override of a
// mandatory key determines the final persisted value.
func EnforceAll(log *slog.Logger, path string, overrides []config.Override) error {
	for _, s := range mandatory {
		if err := Apply(path, s.Key, s.Value); err != nil {
			return fmt.Errorf("enforce mandatory setting: %w", err)
		}
	}
	for _, o := range overrides {
		log.Info("applying settings override", "key", o.Key, "value", o.Value)
		if err := Apply(path, o.Key, o.Value); err != nil {
			return fmt.Errorf("apply settings override: %w", err)
		}
	}
	return nil
}
