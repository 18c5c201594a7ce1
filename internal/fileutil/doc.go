// Package fileutil provides small filesystem helpers: directory creation
// and file ownership management for the database principal.
package fileutil
