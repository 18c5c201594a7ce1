// Package sentinel provides a const-able error type for sentinel errors.
//
// Sentinel errors declared as sentinel.Error constants are immutable and
// work with errors.Is through wrapped chains.
package sentinel
