package reaper

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"github.com/pitimon/claude-mem-plugin/internal/tracker"
)

// DefaultInterval is how often a scheduled Reaper scans the process table.
const DefaultInterval = 5 * time.Minute

// DefaultMaxAge is how old an untracked candidate must be before it is
// considered orphaned rather than merely not-yet-registered.
const DefaultMaxAge = 30 * time.Minute

// DefaultSignature is the command-line substring used to recognize agent
// child processes among the full host process table.
const DefaultSignature = "claude"

// Killer is the Process Tracker surface the Reaper depends on: whether a pid
// is already tracked, and killing the ones that are not. *tracker.Tracker
// satisfies this.
type Killer interface {
	HasPID(pid int) bool
	KillUntracked(pid int, gracefulTimeout time.Duration) bool
}

// Config configures a Reaper.
type Config struct {
	Signature       string
	MaxAge          time.Duration
	GracefulTimeout time.Duration
	Scanner         Scanner
	Tracker         Killer
	Logger          *slog.Logger
}

// Reaper periodically scans the host process table for agent child processes
// the Process Tracker lost track of (crash, restart, detach) and terminates
// ones old enough to be considered abandoned.
type Reaper struct {
	signature       string
	maxAge          time.Duration
	gracefulTimeout time.Duration
	scanner         Scanner
	tracker         Killer
	logger          *slog.Logger
}

// New builds a Reaper from cfg, filling defaults for zero-valued fields.
func New(cfg Config) *Reaper {
	r := &Reaper{
		signature:       cfg.Signature,
		maxAge:          cfg.MaxAge,
		gracefulTimeout: cfg.GracefulTimeout,
		scanner:         cfg.Scanner,
		tracker:         cfg.Tracker,
		logger:          cfg.Logger,
	}
	if r.signature == "" {
		r.signature = DefaultSignature
	}
	if r.maxAge <= 0 {
		r.maxAge = DefaultMaxAge
	}
	if r.gracefulTimeout <= 0 {
		r.gracefulTimeout = tracker.DefaultGracefulTimeout
	}
	if r.scanner == nil {
		r.scanner = NewHostScanner()
	}
	if r.logger == nil {
		r.logger = slog.Default()
	}
	return r
}

// Report summarizes one Scan call.
type Report struct {
	Found  int
	Killed int
	Failed int
}

// Scan enumerates host processes, filters to candidates matching the agent
// signature that the Process Tracker does not know about and that are older
// than MaxAge, and terminates each. A process younger than MaxAge is left
// alone: it may be mid-startup, not yet registered.
func (r *Reaper) Scan(ctx context.Context) (Report, error) {
	procs, err := r.scanner.List(ctx)
	if err != nil {
		return Report{}, err
	}

	var report Report
	for _, p := range procs {
		if !strings.Contains(p.Command, r.signature) {
			continue
		}
		if r.isTracked(p.PID) {
			continue
		}
		if p.Age < r.maxAge {
			continue
		}

		report.Found++
		if r.tracker.KillUntracked(p.PID, r.gracefulTimeout) {
			report.Killed++
			r.logger.Warn("reaper: killed orphaned process", "pid", p.PID, "age", p.Age, "command", p.Command)
		} else {
			report.Failed++
			r.logger.Error("reaper: failed to kill orphaned process", "pid", p.PID, "age", p.Age)
		}
	}
	return report, nil
}

func (r *Reaper) isTracked(pid int) bool {
	if r.tracker == nil {
		return false
	}
	return r.tracker.HasPID(pid)
}
