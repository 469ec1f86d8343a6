// Package engine implements the process supervision primitives: durable
// record mutation, launch with port preflight, and stop with process-group
// signal escalation. Every operation is a read-modify-persist over the
// injected state store; a CLI invocation racing the watch daemon is
// last-writer-wins, a documented limitation of the single JSON state file.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wardend/warden/internal/config"
	"github.com/wardend/warden/internal/ident"
	"github.com/wardend/warden/internal/logpath"
	"github.com/wardend/warden/internal/metrics"
	"github.com/wardend/warden/internal/netprobe"
	"github.com/wardend/warden/internal/record"
	"github.com/wardend/warden/internal/runner"
	"github.com/wardend/warden/internal/store"
)

// Engine owns the supervision primitives. All collaborators are injected so
// tests can swap the process table and spawner.
type Engine struct {
	cfg      config.Config
	store    *store.FileStore
	verifier *ident.Verifier
	runner   *runner.Runner
	logs     *logpath.Dir

	// PortFree is the launch preflight; pluggable for tests.
	PortFree func(port int) bool
	now      func() time.Time
}

// New wires an engine from configuration.
func New(cfg config.Config) *Engine {
	return NewWithCollaborators(cfg, store.New(cfg.StatePath), ident.New())
}

// NewWithCollaborators injects the store and verifier explicitly; tests use
// it to simulate PID reuse and dead process tables.
func NewWithCollaborators(cfg config.Config, st *store.FileStore, v *ident.Verifier) *Engine {
	return &Engine{
		cfg:      cfg,
		store:    st,
		verifier: v,
		runner:   runner.New(v.Alive),
		logs:     logpath.New(cfg.LogDir),
		PortFree: netprobe.IsPortFree,
		now:      time.Now,
	}
}

// Store exposes the backing store (the watch loop reads through it).
func (e *Engine) Store() *store.FileStore { return e.store }

// Verifier exposes the identity verifier.
func (e *Engine) Verifier() *ident.Verifier { return e.verifier }

// Running reports whether rec is verified-running right now.
func (e *Engine) Running(rec *record.ProcessRecord) bool {
	return rec.HasIdentity() && e.verifier.IsOurProcess(rec.PID, rec.StartTime)
}

// Add creates a new process definition. The record starts eligible for
// supervision: not explicitly stopped, zero restart attempts.
func (e *Engine) Add(name, command string, port int, workdir, envFile string) error {
	if workdir == "" {
		if cwd, err := os.Getwd(); err == nil {
			workdir = cwd
		}
	}
	rec := record.New(name, command, port, workdir)
	rec.EnvFile = envFile
	if err := record.ValidateDefinition(rec); err != nil {
		return err
	}
	return e.store.Mutate(func(records map[string]*record.ProcessRecord) error {
		if _, ok := records[name]; ok {
			return fmt.Errorf("%w: %s", ErrExists, name)
		}
		records[name] = rec
		log.Info().Str("process", name).Str("command", command).Msg("added")
		return nil
	})
}

// Update changes the mutable parts of an existing definition. Zero values
// leave a field untouched.
func (e *Engine) Update(name string, port int, workdir, envFile string) error {
	return e.store.Mutate(func(records map[string]*record.ProcessRecord) error {
		rec, ok := records[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		if port != 0 {
			rec.Port = port
		}
		if workdir != "" {
			rec.Workdir = workdir
		}
		if envFile != "" {
			rec.EnvFile = envFile
		}
		return record.ValidateDefinition(rec)
	})
}

// Remove stops the process if it is running and deletes its record.
func (e *Engine) Remove(ctx context.Context, name string) error {
	return e.store.Mutate(func(records map[string]*record.ProcessRecord) error {
		rec, ok := records[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		if err := e.stopRecord(ctx, rec, false); err != nil {
			return err
		}
		delete(records, name)
		metrics.ForgetProcess(name)
		log.Info().Str("process", name).Msg("removed")
		return nil
	})
}

// Start launches the named process. See startRecord for the contract.
func (e *Engine) Start(name string) error {
	return e.store.Mutate(func(records map[string]*record.ProcessRecord) error {
		rec, ok := records[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return e.startRecord(rec)
	})
}

// Stop terminates the named process and marks it explicitly stopped so the
// watch loop never resurrects it.
func (e *Engine) Stop(ctx context.Context, name string) error {
	return e.store.Mutate(func(records map[string]*record.ProcessRecord) error {
		rec, ok := records[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return e.stopRecord(ctx, rec, true)
	})
}

// Restart is stop-then-start without the explicit-stop flag: the intent is
// to relaunch, not to park the process.
func (e *Engine) Restart(ctx context.Context, name string) error {
	return e.store.Mutate(func(records map[string]*record.ProcessRecord) error {
		rec, ok := records[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		if err := e.stopRecord(ctx, rec, false); err != nil {
			return err
		}
		if rec.Port != 0 {
			// Give the old socket a moment to be released.
			netprobe.WaitForPortFree(ctx, rec.Port, 10*time.Second)
		}
		return e.startRecord(rec)
	})
}

// StartAll launches every record that is not verified-running, continuing
// past individual failures.
func (e *Engine) StartAll() error {
	var errs []error
	err := e.store.Mutate(func(records map[string]*record.ProcessRecord) error {
		for _, name := range sortedNames(records) {
			rec := records[name]
			if e.Running(rec) {
				continue
			}
			if err := e.startRecord(rec); err != nil {
				log.Error().Err(err).Str("process", name).Msg("start-all: start failed")
				errs = append(errs, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return errors.Join(errs...)
}

// StopAll terminates every running process WITHOUT marking it explicitly
// stopped, so a later watcher (or reboot) brings them back. Used by the
// watch loop's graceful shutdown.
func (e *Engine) StopAll(ctx context.Context) error {
	var errs []error
	err := e.store.Mutate(func(records map[string]*record.ProcessRecord) error {
		for _, name := range sortedNames(records) {
			if err := e.stopRecord(ctx, records[name], false); err != nil {
				log.Error().Err(err).Str("process", name).Msg("mass stop: stop failed")
				errs = append(errs, err)
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	return errors.Join(errs...)
}

// AutoRestart is the watch loop's restart path. The attempt time is recorded
// whether or not the launch succeeds, so a failing launch (port still held,
// binary missing) is retried only after the current backoff delay; the
// attempt counter grows only on successful launches.
func (e *Engine) AutoRestart(name string) error {
	var launchErr error
	err := e.store.Mutate(func(records map[string]*record.ProcessRecord) error {
		rec, ok := records[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		now := e.now()
		rec.LastRestartTime = &now
		if launchErr = e.startRecord(rec); launchErr == nil {
			rec.RestartAttempt++
		}
		return nil
	})
	if err != nil {
		return err
	}
	return launchErr
}

// ArmBackoff stamps the first observation of an unplanned death so the
// initial automatic restart waits out the base delay instead of firing in
// the same poll cycle.
func (e *Engine) ArmBackoff(name string) error {
	return e.store.Mutate(func(records map[string]*record.ProcessRecord) error {
		rec, ok := records[name]
		if !ok {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		if rec.LastRestartTime == nil {
			now := e.now()
			rec.LastRestartTime = &now
		}
		return nil
	})
}

// startRecord implements the launch contract: refuse when verified-running,
// preflight the configured port, spawn in a new process group with output
// redirected to a fresh log file, then record the new identity. Backoff
// bookkeeping is deliberately left alone; only sustained uptime resets it.
func (e *Engine) startRecord(rec *record.ProcessRecord) error {
	if e.Running(rec) {
		return &AlreadyRunningError{Name: rec.Name, PID: rec.PID}
	}
	if rec.Port != 0 && !e.PortFree(rec.Port) {
		return &PortInUseError{Name: rec.Name, Port: rec.Port}
	}
	logPath, err := e.logs.NewLogPath(rec.Name, e.now())
	if err != nil {
		return fmt.Errorf("prepare log path for %s: %w", rec.Name, err)
	}
	var env []string
	if rec.EnvFile != "" {
		env, err = config.ReadEnvFile(rec.EnvFile)
		if err != nil {
			return fmt.Errorf("env file for %s: %w", rec.Name, err)
		}
	}
	handle, err := e.runner.Spawn(runner.Options{
		Name:    rec.Name,
		Command: rec.Command,
		Workdir: rec.Workdir,
		Env:     env,
		LogPath: logPath,
	})
	if err != nil {
		return err
	}
	startTime, err := e.verifier.QueryStartTime(handle.PID)
	if err != nil {
		// The process may have died before the first query; record the pid
		// with no start time so it is classified stale, never trusted.
		log.Warn().Err(err).Str("process", rec.Name).Int("pid", handle.PID).
			Msg("could not capture start time")
		startTime = ""
	}
	rec.PID = handle.PID
	rec.StartTime = startTime
	rec.ExplicitlyStopped = false
	rec.LogPath = logPath
	log.Info().Str("process", rec.Name).Int("pid", handle.PID).Str("log", logPath).Msg("started")
	return nil
}

// stopRecord implements the stop contract around the runner's escalation.
// One primitive, two semantics: markExplicit is true only for a direct user
// stop; restart and mass shutdown leave the flag untouched so the process
// stays eligible for automatic restart later.
func (e *Engine) stopRecord(ctx context.Context, rec *record.ProcessRecord, markExplicit bool) error {
	if !e.Running(rec) {
		if markExplicit {
			rec.ExplicitlyStopped = true
		}
		return nil
	}
	dead, err := e.runner.Terminate(ctx, rec.PID, e.cfg.StopTimeout, e.cfg.KillTimeout)
	if err != nil {
		return fmt.Errorf("stop %s: %w", rec.Name, err)
	}
	if !dead {
		return &UnkillableProcessError{Name: rec.Name, PID: rec.PID}
	}
	if markExplicit {
		rec.ExplicitlyStopped = true
	}
	log.Info().Str("process", rec.Name).Int("pid", rec.PID).
		Bool("explicit", markExplicit).Msg("stopped")
	rec.ClearIdentity()
	return nil
}

// Status describes one record plus its observed liveness.
type Status struct {
	Record  record.ProcessRecord
	Running bool
}

// List returns every record with its verified liveness, sorted by name.
func (e *Engine) List() ([]Status, error) {
	records, err := e.store.Load()
	if err != nil {
		return nil, err
	}
	out := make([]Status, 0, len(records))
	for _, name := range sortedNames(records) {
		rec := records[name]
		out = append(out, Status{Record: *rec, Running: e.Running(rec)})
	}
	return out, nil
}

// Status returns a single record's status.
func (e *Engine) Status(name string) (Status, error) {
	records, err := e.store.Load()
	if err != nil {
		return Status{}, err
	}
	rec, ok := records[name]
	if !ok {
		return Status{}, fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return Status{Record: *rec, Running: e.Running(rec)}, nil
}

// LatestLogPath resolves the most recent log file for name.
func (e *Engine) LatestLogPath(name string) (string, error) {
	records, err := e.store.Load()
	if err != nil {
		return "", err
	}
	rec, ok := records[name]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return e.logs.LatestLogPath(name, rec.LogPath), nil
}

func sortedNames(records map[string]*record.ProcessRecord) []string {
	names := make([]string, 0, len(records))
	for name := range records {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
