// Package backoff gates automatic restarts: exponentially increasing delay
// between consecutive attempts, capped, and reset once the process has been
// demonstrably stable.
package backoff

import (
	"time"

	"github.com/wardend/warden/internal/ident"
	"github.com/wardend/warden/internal/record"
)

const (
	// MaxDelay caps the restart delay at two hours.
	MaxDelay = 7200 * time.Second
	// DefaultStabilityWindow is how long a process must stay verified-running
	// before its restart counter resets.
	DefaultStabilityWindow = 60 * time.Second
)

// Policy computes restart delays and stability resets.
type Policy struct {
	// StabilityWindow overrides DefaultStabilityWindow when positive.
	StabilityWindow time.Duration
	// Parser normalizes the textual start time when judging stability.
	Parser ident.StartTimeParser
}

// New returns a policy with the default stability window.
func New() *Policy {
	return &Policy{StabilityWindow: DefaultStabilityWindow, Parser: ident.NewParser()}
}

// DelayFor returns min(2^attempt, 7200) seconds.
func DelayFor(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	// 2^13 already exceeds the cap; avoid overflow for large counters.
	if attempt > 13 {
		return MaxDelay
	}
	d := time.Duration(1<<uint(attempt)) * time.Second
	if d > MaxDelay {
		return MaxDelay
	}
	return d
}

// ShouldAttemptRestart reports whether an unplanned-dead record is eligible
// for another automatic restart at now. Explicitly stopped records are never
// eligible; otherwise the first attempt is immediate and subsequent ones
// wait out the current delay.
func (p *Policy) ShouldAttemptRestart(rec *record.ProcessRecord, now time.Time) bool {
	if rec.ExplicitlyStopped {
		return false
	}
	if rec.LastRestartTime == nil {
		return true
	}
	return now.Sub(*rec.LastRestartTime) >= DelayFor(rec.RestartAttempt)
}

// CheckAndReset zeroes the restart counter once the record has been
// continuously running for the stability window since its current start
// time. LastRestartTime is left as-is. Returns true when a reset happened.
func (p *Policy) CheckAndReset(rec *record.ProcessRecord, now time.Time) bool {
	if rec.RestartAttempt == 0 || rec.StartTime == "" {
		return false
	}
	started, err := p.Parser.Parse(rec.StartTime)
	if err != nil {
		return false
	}
	window := p.StabilityWindow
	if window <= 0 {
		window = DefaultStabilityWindow
	}
	if now.Sub(started) < window {
		return false
	}
	rec.RestartAttempt = 0
	return true
}
