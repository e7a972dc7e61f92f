package reaper

import (
	"context"
	"os/exec"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pitimon/claude-mem-plugin/internal/tracker"
)

type fakeScanner struct {
	procs []ProcessInfo
}

func (f fakeScanner) List(ctx context.Context) ([]ProcessInfo, error) {
	return f.procs, nil
}

func spawnSleeper(t *testing.T) *exec.Cmd {
	t.Helper()
	cmd := exec.Command("sleep", "60")
	require.NoError(t, cmd.Start())
	t.Cleanup(func() { _ = cmd.Process.Kill() })
	return cmd
}

// Orphan: matches the signature, untracked, older than MaxAge — must be killed.
func TestScan_KillsOldUntrackedMatch(t *testing.T) {
	tr := tracker.New()
	cmd := spawnSleeper(t)

	r := New(Config{
		Signature:       "sleep",
		MaxAge:          time.Minute,
		GracefulTimeout: 200 * time.Millisecond,
		Scanner: fakeScanner{procs: []ProcessInfo{
			{PID: cmd.Process.Pid, Age: 2 * time.Hour, Command: "sleep 60"},
		}},
		Tracker: tr,
	})

	report, err := r.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, report.Found)
	assert.Equal(t, 1, report.Killed)
	assert.Equal(t, 0, report.Failed)
	assert.True(t, tr.VerifyDead(cmd.Process.Pid))
}

// A process already registered with the tracker is never touched, regardless of age.
func TestScan_SkipsTrackedProcess(t *testing.T) {
	tr := tracker.New()
	cmd := spawnSleeper(t)
	tr.Register(1, cmd.Process, cmd.Process.Pid, "sleep 60")

	r := New(Config{
		Signature: "sleep",
		MaxAge:    time.Minute,
		Scanner: fakeScanner{procs: []ProcessInfo{
			{PID: cmd.Process.Pid, Age: 2 * time.Hour, Command: "sleep 60"},
		}},
		Tracker: tr,
	})

	report, err := r.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Found)
	assert.False(t, tr.VerifyDead(cmd.Process.Pid))

	_ = tr.Terminate(1, 200*time.Millisecond)
}

// A young untracked match is left alone: it may be mid-startup.
func TestScan_SkipsYoungUntrackedMatch(t *testing.T) {
	tr := tracker.New()

	r := New(Config{
		Signature: "sleep",
		MaxAge:    30 * time.Minute,
		Scanner: fakeScanner{procs: []ProcessInfo{
			{PID: 123456, Age: time.Minute, Command: "sleep 60"},
		}},
		Tracker: tr,
	})

	report, err := r.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Found)
}

// A process whose command doesn't match the signature is ignored entirely.
func TestScan_IgnoresNonMatchingSignature(t *testing.T) {
	tr := tracker.New()

	r := New(Config{
		Signature: "claude",
		MaxAge:    time.Minute,
		Scanner: fakeScanner{procs: []ProcessInfo{
			{PID: 999, Age: 2 * time.Hour, Command: "nginx -g daemon off;"},
		}},
		Tracker: tr,
	})

	report, err := r.Scan(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, report.Found)
}

func TestParseEtime(t *testing.T) {
	cases := []struct {
		in   string
		want time.Duration
	}{
		{"00:05", 5 * time.Second},
		{"02:30", 2*time.Minute + 30*time.Second},
		{"01:02:30", time.Hour + 2*time.Minute + 30*time.Second},
		{"3-01:02:30", 3*24*time.Hour + time.Hour + 2*time.Minute + 30*time.Second},
	}
	for _, c := range cases {
		got, err := ParseEtime(c.in)
		require.NoError(t, err)
		assert.Equal(t, c.want, got, c.in)
	}
}

func TestParseEtime_Invalid(t *testing.T) {
	_, err := ParseEtime("not-a-time")
	assert.Error(t, err)
}
