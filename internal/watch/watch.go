// Package watch drives automatic recovery: a single periodic loop that
// reconciles observed process liveness against the desired state and
// relaunches unplanned deaths under exponential backoff.
package watch

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/wardend/warden/internal/backoff"
	"github.com/wardend/warden/internal/engine"
	"github.com/wardend/warden/internal/metrics"
	"github.com/wardend/warden/internal/record"
)

// Loop polls every record at a fixed interval. It is the only long-lived
// control flow in the system; CLI commands run as separate processes and
// share nothing with it but the state file.
type Loop struct {
	Engine   *engine.Engine
	Policy   *backoff.Policy
	Interval time.Duration

	now func() time.Time
}

// New builds a loop over the engine.
func New(eng *engine.Engine, policy *backoff.Policy, interval time.Duration) *Loop {
	return &Loop{Engine: eng, Policy: policy, Interval: interval, now: time.Now}
}

// Run polls until ctx is canceled, then performs a mass stop over all
// managed records without marking them explicitly stopped, so that a later
// watcher start (after reboot, say) brings them back. Cancellation also
// interrupts the inter-cycle sleep and the kill escalation waits, keeping
// shutdown prompt.
func (l *Loop) Run(ctx context.Context) error {
	log.Info().Dur("interval", l.Interval).Msg("watch loop running")
	ticker := time.NewTicker(l.Interval)
	defer ticker.Stop()
	for {
		l.Cycle(ctx)
		select {
		case <-ctx.Done():
			return l.shutdown()
		case <-ticker.C:
		}
	}
}

// Cycle runs one poll pass. Errors are logged and absorbed: a failed
// restart (port still held, broken command) must not take the loop down.
func (l *Loop) Cycle(ctx context.Context) {
	began := l.now()
	defer func() { metrics.ObserveCycle(l.now().Sub(began)) }()

	records, err := l.Engine.Store().Load()
	if err != nil {
		log.Error().Err(err).Msg("cannot load state, skipping cycle")
		return
	}
	for name, rec := range records {
		if ctx.Err() != nil {
			return
		}
		l.reconcile(name, rec)
	}
}

// reconcile classifies one record and acts on it.
func (l *Loop) reconcile(name string, rec *record.ProcessRecord) {
	now := l.now()
	switch {
	case l.Engine.Running(rec):
		metrics.SetProcessUp(name, true)
		metrics.SampleProcess(name, rec.PID)
		if l.Policy.CheckAndReset(rec, now) {
			if err := l.persistReset(name); err != nil {
				log.Error().Err(err).Str("process", name).Msg("persist backoff reset")
			} else {
				log.Info().Str("process", name).Msg("stable for the full window, backoff reset")
			}
		}

	case rec.ExplicitlyStopped:
		// User parked it. Never resurrected here.
		metrics.SetProcessUp(name, false)

	default:
		metrics.SetProcessUp(name, false)
		if rec.LastRestartTime == nil {
			// First sighting of this unplanned death: arm the backoff clock
			// and launch once the base delay has elapsed.
			if err := l.Engine.ArmBackoff(name); err != nil {
				log.Error().Err(err).Str("process", name).Msg("arm backoff")
			}
			return
		}
		if !l.Policy.ShouldAttemptRestart(rec, now) {
			return
		}
		metrics.IncRestarts(name)
		if err := l.Engine.AutoRestart(name); err != nil {
			// Recoverable: the record keeps its backoff stamp, so the next
			// eligible cycle retries after the same delay.
			log.Warn().Err(err).Str("process", name).
				Int("attempt", rec.RestartAttempt).Msg("automatic restart failed")
			return
		}
		log.Info().Str("process", name).
			Dur("backoff", backoff.DelayFor(rec.RestartAttempt)).
			Msg("relaunched after unplanned death")
	}
}

// persistReset re-applies the stability reset under the store's
// read-modify-persist discipline (the cycle works on a point-in-time copy).
func (l *Loop) persistReset(name string) error {
	return l.Engine.Store().Mutate(func(records map[string]*record.ProcessRecord) error {
		if rec, ok := records[name]; ok {
			rec.RestartAttempt = 0
		}
		return nil
	})
}

// shutdown is the graceful path: stop everything without setting the
// explicit-stop flag, so the next watcher run restarts it all.
func (l *Loop) shutdown() error {
	log.Info().Msg("termination signal received, stopping managed processes")
	// The loop context is already canceled; give the escalation its own
	// bounded context so stops still get their full wait windows.
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := l.Engine.StopAll(ctx); err != nil {
		var unkillable *engine.UnkillableProcessError
		if errors.As(err, &unkillable) {
			log.Error().Err(err).Msg("mass stop left an unkillable process behind")
		}
		return err
	}
	log.Info().Msg("watch loop stopped")
	return nil
}
