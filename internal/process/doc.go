// Package process manages child process lifecycle for the controller:
// starting a command as the database principal, capturing its output to
// log files, delivering control signals, and the SIGTERM-then-SIGKILL
// stop sequence. It also provides the polling primitives used by every
// wait in the bootstrap sequence.
package process
