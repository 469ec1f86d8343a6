// Package runner spawns and kills native processes. Each process runs in
// its own process group so that workers forked by the target die with it.
package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/google/shlex"
	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"
)

// shellMeta lists the characters that force a command string through the
// shell instead of direct exec.
const shellMeta = "|&;<>()$`\\\"'*?[]#~{}\n"

// Options specifies how to spawn a process.
type Options struct {
	Name    string
	Command string
	Workdir string
	Env     []string // extra KEY=VALUE entries appended to the parent env
	LogPath string   // stdout+stderr destination, created/truncated
}

// Handle describes a spawned process.
type Handle struct {
	PID       int
	StartedAt time.Time
}

// Runner starts and stops processes. Alive is pluggable for tests.
type Runner struct {
	Alive func(pid int) bool
}

// New returns a runner backed by the real process table.
func New(alive func(pid int) bool) *Runner {
	return &Runner{Alive: alive}
}

// Spawn launches the command in a fresh process group with stdout and
// stderr redirected into the log file. The child is not awaited here; a
// background reap keeps long-lived callers free of zombies.
func (r *Runner) Spawn(opts Options) (*Handle, error) {
	if opts.Command == "" {
		return nil, fmt.Errorf("empty command")
	}
	argv, err := splitCommand(opts.Command)
	if err != nil {
		return nil, fmt.Errorf("parse command for %s: %w", opts.Name, err)
	}
	logFile, err := os.OpenFile(opts.LogPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	cmd := exec.Command(argv[0], argv[1:]...)
	cmd.Env = append(os.Environ(), opts.Env...)
	if opts.Workdir != "" {
		cmd.Dir = opts.Workdir
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start %s: %w", opts.Name, err)
	}
	// Reap the child if it exits while this process is still around.
	go func() { _ = cmd.Wait() }()
	log.Debug().Str("process", opts.Name).Int("pid", cmd.Process.Pid).
		Str("log", opts.LogPath).Msg("spawned")
	return &Handle{PID: cmd.Process.Pid, StartedAt: time.Now()}, nil
}

// splitCommand turns a command string into an argv. Plain commands are
// shlex-split and exec'd directly; anything with shell metacharacters runs
// via sh -c with exec so the group leader is the target command, not a
// lingering shell.
func splitCommand(command string) ([]string, error) {
	if strings.ContainsAny(command, shellMeta) {
		return []string{"/bin/sh", "-c", "exec " + command}, nil
	}
	argv, err := shlex.Split(command)
	if err != nil {
		return nil, err
	}
	if len(argv) == 0 {
		return nil, fmt.Errorf("command resolves to no arguments")
	}
	return argv, nil
}

// Terminate signals the whole process group of pid: SIGTERM, wait up to
// termTimeout, then SIGKILL, wait up to killTimeout. Returns false when the
// group survived both rounds. Both waits honor ctx so a shutting-down
// caller is not stuck in the escalation.
func (r *Runner) Terminate(ctx context.Context, pid int, termTimeout, killTimeout time.Duration) (bool, error) {
	pgid, err := unix.Getpgid(pid)
	if err != nil {
		return false, fmt.Errorf("resolve process group of pid %d: %w", pid, err)
	}
	if err := unix.Kill(-pgid, unix.SIGTERM); err != nil {
		return false, fmt.Errorf("signal process group %d: %w", pgid, err)
	}
	if r.waitForDeath(ctx, pid, termTimeout) {
		return true, nil
	}
	log.Warn().Int("pid", pid).Int("pgid", pgid).
		Dur("waited", termTimeout).Msg("still alive after SIGTERM, escalating")
	if err := unix.Kill(-pgid, unix.SIGKILL); err != nil {
		// The group may have died between the poll and the kill.
		return !r.Alive(pid), nil
	}
	return r.waitForDeath(ctx, pid, killTimeout), nil
}

// waitForDeath polls until pid is gone, the timeout elapses, or ctx is
// canceled.
func (r *Runner) waitForDeath(ctx context.Context, pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()
	for {
		if !r.Alive(pid) {
			return true
		}
		if time.Now().After(deadline) {
			return false
		}
		select {
		case <-ctx.Done():
			return !r.Alive(pid)
		case <-ticker.C:
		}
	}
}
