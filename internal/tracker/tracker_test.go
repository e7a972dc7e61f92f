package tracker

import (
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// spawnSleeper starts a long-running child process for use as a termination target.
func spawnSleeper(t *testing.T) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("sleep", "60")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() { _ = cmd.Process.Kill() })
	return cmd
}

// S8 — terminate returns true iff the pid no longer exists afterward.
func TestTerminate_KillsRegisteredProcess(t *testing.T) {
	tr := New()
	cmd := spawnSleeper(t)

	tr.Register(1, cmd.Process, cmd.Process.Pid, "sleep 60")
	assert.Equal(t, 1, tr.Len())

	ok := tr.Terminate(1, 200*time.Millisecond)
	assert.True(t, ok)
	assert.True(t, tr.VerifyDead(cmd.Process.Pid))
	assert.Equal(t, 0, tr.Len())
}

func TestTerminate_UnknownSessionReturnsTrue(t *testing.T) {
	tr := New()
	assert.True(t, tr.Terminate(999, time.Second))
}

func TestTerminateAll_BestEffort(t *testing.T) {
	tr := New()
	cmd1 := spawnSleeper(t)
	cmd2 := spawnSleeper(t)
	tr.Register(1, cmd1.Process, cmd1.Process.Pid, "sleep 60")
	tr.Register(2, cmd2.Process, cmd2.Process.Pid, "sleep 60")

	report := tr.TerminateAll(200 * time.Millisecond)
	assert.Equal(t, 2, report.Terminated)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 0, tr.Len())
}

func TestRegister_IdempotentOverwrite(t *testing.T) {
	tr := New()
	cmd1 := spawnSleeper(t)
	cmd2 := spawnSleeper(t)

	tr.Register(1, cmd1.Process, cmd1.Process.Pid, "sleep 60")
	tr.Register(1, cmd2.Process, cmd2.Process.Pid, "sleep 60")

	p, ok := tr.Get(1)
	require.True(t, ok)
	assert.Equal(t, cmd2.Process.Pid, p.PID)

	_ = cmd1.Process.Kill()
	_ = cmd2.Process.Kill()
}
