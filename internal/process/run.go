package process

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"strings"

	"github.com/pgstack/pgstack/internal/fileutil"
)

// RunOptions configures a one-shot command execution.
type RunOptions struct {
	Owner *fileutil.Owner // principal to run as; nil keeps the parent identity
	Stdin io.Reader       // optional stdin payload (e.g. single-user-mode SQL)
	Dir   string          // optional working directory
	Log   *slog.Logger    // optional, defaults to slog.Default()
}

// Run executes a command to completion, capturing combined output. On
// failure the output is folded into the returned error so privileged
// bootstrap commands leave a usable trace. The argv is logged at debug
// level, which is what the debug-enable control signal turns on.
func Run(ctx context.Context, opts RunOptions, name string, args ...string) error {
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}

	cmd := exec.CommandContext(ctx, name, args...)
	configureSysProcAttr(cmd, opts.Owner)
	cmd.Stdin = opts.Stdin
	cmd.Dir = opts.Dir

	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	log.Debug("running command", "argv", cmd.Args)
	if err := cmd.Run(); err != nil {
		trimmed := strings.TrimSpace(output.String())
		if trimmed != "" {
			return fmt.Errorf("run %s: %w: %s", name, err, trimmed)
		}
		return fmt.Errorf("run %s: %w", name, err)
	}
	return nil
}
