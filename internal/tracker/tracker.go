// Package tracker implements the Process Tracker (spec §4.2): an in-memory
// registry of child processes spawned on behalf of the assistant's LLM
// agent, with graceful-then-forceful termination.
package tracker

import (
	"log/slog"
	"os"
	"sync"
	"syscall"
	"time"
)

// DefaultGracefulTimeout is used when callers do not specify one.
const DefaultGracefulTimeout = 5 * time.Second

// Handle is the minimal process-control surface the tracker needs. It is
// satisfied by *os.Process so production code can register real processes,
// while tests substitute a fake.
type Handle interface {
	Signal(sig os.Signal) error
	Kill() error
}

// TrackedProcess records one agent child process, keyed by session_db_id.
type TrackedProcess struct {
	Handle    Handle
	PID       int
	SessionDB int64
	SpawnedAt time.Time
	Command   string
}

// Tracker is a single in-process, non-persisted registry of TrackedProcess
// records. Callers never hold its lock; all mutation goes through its methods.
type Tracker struct {
	mu       sync.Mutex
	byID     map[int64]*TrackedProcess
	logger   *slog.Logger
	killFunc func(pid int, sig syscall.Signal) error
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithLogger sets the tracker's logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// New creates an empty Tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		byID:     make(map[int64]*TrackedProcess),
		logger:   slog.Default(),
		killFunc: syscall.Kill,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Register records a spawned process for sessionDBID. Idempotent overwrite:
// a second call for the same session replaces the prior record.
func (t *Tracker) Register(sessionDBID int64, handle Handle, pid int, command string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.byID[sessionDBID] = &TrackedProcess{
		Handle:    handle,
		PID:       pid,
		SessionDB: sessionDBID,
		SpawnedAt: time.Now(),
		Command:   command,
	}
}

// Remove drops a record without attempting to terminate anything, used when
// the OS has already delivered an exit notification for the handle.
func (t *Tracker) Remove(sessionDBID int64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.byID, sessionDBID)
}

// Get returns the tracked process for a session, if any.
func (t *Tracker) Get(sessionDBID int64) (*TrackedProcess, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.byID[sessionDBID]
	return p, ok
}

// Len reports how many processes are currently tracked.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.byID)
}

// Terminate sends SIGTERM, waits up to gracefulTimeout, then sends SIGKILL
// and waits a short additional timeout, verifying death with a zero-impact
// probe signal. Returns true iff the pid is gone by the time it returns.
// If no tracked process exists for sessionDBID, returns true (nothing to do).
func (t *Tracker) Terminate(sessionDBID int64, gracefulTimeout time.Duration) bool {
	if gracefulTimeout <= 0 {
		gracefulTimeout = DefaultGracefulTimeout
	}

	t.mu.Lock()
	p, ok := t.byID[sessionDBID]
	t.mu.Unlock()
	if !ok {
		return true
	}

	dead := t.terminatePID(p.PID, p.Handle, gracefulTimeout)

	t.mu.Lock()
	delete(t.byID, sessionDBID)
	t.mu.Unlock()

	return dead
}

func (t *Tracker) terminatePID(pid int, handle Handle, gracefulTimeout time.Duration) bool {
	if handle != nil {
		_ = handle.Signal(syscall.SIGTERM)
	} else {
		_ = t.killFunc(pid, syscall.SIGTERM)
	}

	if waitForDeath(pid, gracefulTimeout, t.verifyDeadFunc()) {
		return true
	}

	t.logger.Warn("process did not exit after SIGTERM, sending SIGKILL", "pid", pid)
	if handle != nil {
		_ = handle.Kill()
	} else {
		_ = t.killFunc(pid, syscall.SIGKILL)
	}

	return waitForDeath(pid, 2*time.Second, t.verifyDeadFunc())
}

// waitForDeath polls verify until it reports death or timeout elapses.
func waitForDeath(pid int, timeout time.Duration, verify func(pid int) bool) bool {
	deadline := time.Now().Add(timeout)
	for {
		if verify(pid) {
			return true
		}
		if time.Now().After(deadline) {
			return verify(pid)
		}
		time.Sleep(50 * time.Millisecond)
	}
}

func (t *Tracker) verifyDeadFunc() func(pid int) bool {
	return t.VerifyDead
}

// VerifyDead probes pid with signal 0, the standard Unix "does this process
// still exist" check: no signal is actually delivered, only existence and
// permission are checked. "no such process" is treated as dead. If pid is an
// exited child of this process, it is reaped first so that its zombie entry
// does not answer the probe.
func (t *Tracker) VerifyDead(pid int) bool {
	if pid <= 0 {
		return true
	}
	var ws syscall.WaitStatus
	_, _ = syscall.Wait4(pid, &ws, syscall.WNOHANG, nil)
	proc, err := os.FindProcess(pid)
	if err != nil {
		return true
	}
	err = proc.Signal(syscall.Signal(0))
	return err != nil
}

// TerminationReport summarizes a TerminateAll call.
type TerminationReport struct {
	Terminated int
	Failed     int
}

// HasPID reports whether pid belongs to any currently tracked process. Used
// by the Orphan Reaper to exclude processes the tracker already owns.
func (t *Tracker) HasPID(pid int) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, p := range t.byID {
		if p.PID == pid {
			return true
		}
	}
	return false
}

// KillUntracked terminates a pid the tracker has no record for, using the
// same graceful-then-forceful sequence as Terminate. For use by the Orphan
// Reaper against pids discovered via a host process scan rather than
// Register.
func (t *Tracker) KillUntracked(pid int, gracefulTimeout time.Duration) bool {
	if gracefulTimeout <= 0 {
		gracefulTimeout = DefaultGracefulTimeout
	}
	return t.terminatePID(pid, nil, gracefulTimeout)
}

// TerminateAll best-effort terminates every tracked process, for service shutdown.
func (t *Tracker) TerminateAll(gracefulTimeout time.Duration) TerminationReport {
	t.mu.Lock()
	ids := make([]int64, 0, len(t.byID))
	for id := range t.byID {
		ids = append(ids, id)
	}
	t.mu.Unlock()

	var report TerminationReport
	for _, id := range ids {
		if t.Terminate(id, gracefulTimeout) {
			report.Terminated++
		} else {
			report.Failed++
		}
	}
	return report
}
