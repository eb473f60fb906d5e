package backup

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tenant-backup-worker/internal/logging"
)

func newTestExecutor(timeout time.Duration, metrics *Metrics) *ExecCommandExecutor {
	return NewExecCommandExecutor(timeout, logging.NewDiscardLogger(), metrics)
}

func TestExecCommandExecutor_Success(t *testing.T) {
	executor := newTestExecutor(time.Minute, nil)

	result, err := executor.Execute(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo hello; echo oops >&2"},
	})
	require.NoError(t, err)
	assert.Equal(t, 0, result.ExitCode)
	assert.Equal(t, "hello\n", result.Stdout)
	assert.Equal(t, "oops\n", result.Stderr)
}

func TestExecCommandExecutor_NonZeroExitIsNotAnError(t *testing.T) {
	executor := newTestExecutor(time.Minute, nil)

	result, err := executor.Execute(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "echo denied >&2; exit 3"},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, result.ExitCode)
	assert.Contains(t, result.Stderr, "denied")
}

func TestExecCommandExecutor_StartFailure(t *testing.T) {
	executor := newTestExecutor(time.Minute, nil)

	_, err := executor.Execute(context.Background(), Command{Name: "definitely-not-a-real-binary-xyz"})
	assert.True(t, IsProcessError(err))
}

func TestExecCommandExecutor_Timeout(t *testing.T) {
	executor := newTestExecutor(100*time.Millisecond, nil)

	start := time.Now()
	result, err := executor.Execute(context.Background(), Command{
		Name: "sh",
		Args: []string{"-c", "exec sleep 5"},
	})
	assert.True(t, IsProcessError(err))
	assert.Contains(t, err.Error(), "timed out")
	assert.Equal(t, -1, result.ExitCode)
	assert.Less(t, time.Since(start), 4*time.Second)
}

func TestExecCommandExecutor_Canceled(t *testing.T) {
	executor := newTestExecutor(time.Minute, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := executor.Execute(ctx, Command{Name: "sh", Args: []string{"-c", "true"}})
	assert.True(t, IsProcessError(err))
}

func TestExecCommandExecutor_StreamsAndEnvironment(t *testing.T) {
	executor := newTestExecutor(time.Minute, nil)
	var out bytes.Buffer

	_, err := executor.Execute(context.Background(), Command{
		Name:   "sh",
		Args:   []string{"-c", `cat; printf "%s" "$MYSQL_PWD"`},
		Env:    []string{"MYSQL_PWD=s3cret"},
		Stdin:  strings.NewReader("from stdin;"),
		Stdout: &out,
	})
	require.NoError(t, err)
	assert.Equal(t, "from stdin;s3cret", out.String())
}

func TestExecCommandExecutor_RecordsMetrics(t *testing.T) {
	metrics := NewMetrics(prometheus.NewRegistry())
	executor := newTestExecutor(time.Minute, metrics)

	_, err := executor.Execute(context.Background(), Command{Name: "sh", Args: []string{"-c", "exit 1"}})
	require.NoError(t, err)
	_, err = executor.Execute(context.Background(), Command{Name: "sh", Args: []string{"-c", "exit 0"}})
	require.NoError(t, err)

	assert.Equal(t, float64(1), testutil.ToFloat64(metrics.commandFailures.WithLabelValues("sh")))
}

func TestExecCommandExecutor_EmptyName(t *testing.T) {
	_, err := newTestExecutor(0, nil).Execute(context.Background(), Command{})
	assert.True(t, IsValidation(err))
}

func TestNewExecCommandExecutor_DefaultTimeout(t *testing.T) {
	assert.Equal(t, DefaultCommandTimeout, newTestExecutor(0, nil).Timeout())
}

func TestCappedBuffer(t *testing.T) {
	buf := &cappedBuffer{limit: 4}
	n, err := buf.Write([]byte("abcdef"))
	require.NoError(t, err)
	assert.Equal(t, 6, n)
	_, _ = buf.Write([]byte("gh"))
	assert.Equal(t, "abcd", buf.String())
}
