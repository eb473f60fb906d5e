package backup

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"time"

	"tenant-backup-worker/internal/logging"
)

const (
	// DefaultCommandTimeout bounds every external tool invocation
	DefaultCommandTimeout = 30 * time.Minute

	maxCapturedOutput = 64 * 1024
	processWaitDelay  = 10 * time.Second
)

// ExecCommandExecutor runs tools as child processes with a bounded timeout
type ExecCommandExecutor struct {
	timeout time.Duration
	logger  *logging.Logger
	metrics *Metrics
}

// NewExecCommandExecutor creates an executor. A non-positive timeout falls
// back to DefaultCommandTimeout.
func NewExecCommandExecutor(timeout time.Duration, logger *logging.Logger, metrics *Metrics) *ExecCommandExecutor {
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	if logger == nil {
		logger = logging.NewDefaultLogger()
	}
	return &ExecCommandExecutor{
		timeout: timeout,
		logger:  logger,
		metrics: metrics,
	}
}

// Timeout returns the per-command deadline
func (e *ExecCommandExecutor) Timeout() time.Duration {
	return e.timeout
}

// Execute runs cmd to completion. Start failures, timeouts and cancellation
// are PROCESS_ERRORs; a non-zero exit is returned in the result.
func (e *ExecCommandExecutor) Execute(ctx context.Context, c Command) (*CommandResult, error) {
	if c.Name == "" {
		return nil, NewValidationError("command name cannot be empty", nil)
	}

	runCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, c.Name, c.Args...)
	cmd.Env = append(os.Environ(), c.Env...)
	cmd.Dir = c.Dir
	cmd.Stdin = c.Stdin
	cmd.WaitDelay = processWaitDelay

	stdout := &cappedBuffer{limit: maxCapturedOutput}
	stderr := &cappedBuffer{limit: maxCapturedOutput}
	if c.Stdout != nil {
		cmd.Stdout = c.Stdout
	} else {
		cmd.Stdout = stdout
	}
	cmd.Stderr = stderr

	start := time.Now()
	runErr := cmd.Run()
	duration := time.Since(start)

	result := &CommandResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: duration,
	}

	var err error
	switch {
	case runErr == nil:
	case ctx.Err() != nil:
		result.ExitCode = -1
		err = NewProcessError(fmt.Sprintf("%s was canceled", c.Name), ctx.Err())
	case errors.Is(runCtx.Err(), context.DeadlineExceeded):
		result.ExitCode = -1
		err = NewProcessError(fmt.Sprintf("%s timed out after %s", c.Name, e.timeout), runCtx.Err()).
			WithContext("timeout", e.timeout.String())
	default:
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			result.ExitCode = exitErr.ExitCode()
		} else {
			result.ExitCode = -1
			err = NewProcessError(fmt.Sprintf("failed to start %s", c.Name), runErr)
		}
	}

	e.logger.LogCommandExecution(ctx, c.Name, c.Args, result.ExitCode, result.Stderr, duration, err)
	e.metrics.ObserveCommand(c.Name, duration, err != nil || result.ExitCode != 0)

	if err != nil {
		return result, err
	}
	return result, nil
}

// cappedBuffer keeps at most limit bytes and silently drops the rest so a
// chatty tool cannot exhaust memory.
type cappedBuffer struct {
	buf   bytes.Buffer
	limit int
}

func (b *cappedBuffer) Write(p []byte) (int, error) {
	if room := b.limit - b.buf.Len(); room > 0 {
		if len(p) > room {
			b.buf.Write(p[:room])
		} else {
			b.buf.Write(p)
		}
	}
	return len(p), nil
}

func (b *cappedBuffer) String() string {
	return b.buf.String()
}
