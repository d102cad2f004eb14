// Package cmdlog wraps CLI command bodies with run/error metrics and a
// closing log line.
package cmdlog

import (
	"time"

	"xnom/internal/logging"
	"xnom/internal/metrics"
)

// Run executes f under the command name cmd.
func Run(cmd string, f func() error) error {
	start := time.Now()
	metrics.IncCommandRun(cmd)
	err := f()
	fields := map[string]any{"duration_ms": time.Since(start).Milliseconds()}
	if err != nil {
		metrics.IncCommandError(cmd)
		fields["error"] = err.Error()
		logging.Error(cmd+"_error", fields)
	} else {
		logging.Info(cmd+"_ok", fields)
	}
	return err
}
