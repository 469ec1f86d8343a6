// Package ident decides whether a recorded (pid, start time) pair still
// refers to the process that was originally launched. PIDs are recycled by
// the kernel, and after a reboot an unrelated process routinely lands on a
// stored PID; comparing the OS-reported start time against the one captured
// at launch is what makes liveness checks trustworthy.
package ident

import (
	"fmt"
	"os/exec"
	"slices"
	"strconv"
	"strings"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// Verifier classifies recorded process identities against the live process
// table. The start-time query and parser are pluggable so tests can simulate
// PID reuse and locale drift.
type Verifier struct {
	// QueryStartTime returns the textual start time the process table
	// currently reports for pid, or an error when no such process exists.
	QueryStartTime func(pid int) (string, error)
	// Alive reports whether a live, non-zombie process exists at pid.
	Alive  func(pid int) bool
	Parser StartTimeParser
}

// New returns a verifier backed by the real process table.
func New() *Verifier {
	return &Verifier{
		QueryStartTime: queryStartTime,
		Alive:          Alive,
		Parser:         NewParser(),
	}
}

// IsOurProcess reports whether pid is alive and its current start time
// matches the stored one at minute granularity (the finest resolution every
// lstart format carries). An absent stored start time, an unparseable value
// on either side, or a dead pid all classify the record as not ours.
func (v *Verifier) IsOurProcess(pid int, storedStart string) bool {
	if pid <= 0 || storedStart == "" {
		return false
	}
	if !v.Alive(pid) {
		return false
	}
	want, err := v.Parser.Parse(storedStart)
	if err != nil {
		return false
	}
	current, err := v.QueryStartTime(pid)
	if err != nil {
		return false
	}
	got, err := v.Parser.Parse(current)
	if err != nil {
		return false
	}
	return want.Truncate(time.Minute).Equal(got.Truncate(time.Minute))
}

// queryStartTime asks ps for the lstart of pid. The output format is
// locale-dependent; callers hand it to the parser rather than interpreting
// it here.
func queryStartTime(pid int) (string, error) {
	out, err := exec.Command("ps", "-p", strconv.Itoa(pid), "-o", "lstart=").Output()
	if err != nil {
		return "", fmt.Errorf("query start time of pid %d: %w", pid, err)
	}
	s := strings.TrimSpace(string(out))
	if s == "" {
		return "", fmt.Errorf("no process with pid %d", pid)
	}
	return s, nil
}

// Alive reports whether pid exists and is not a zombie. A zombie has
// already died; only its exit status lingers.
func Alive(pid int) bool {
	p, err := gopsproc.NewProcess(int32(pid))
	if err != nil {
		return false
	}
	statuses, err := p.Status()
	if err != nil {
		// Process exists but the status is unreadable; treat as alive and
		// let the start-time comparison decide.
		running, err := p.IsRunning()
		return err == nil && running
	}
	return !slices.Contains(statuses, gopsproc.Zombie)
}
