package watch

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wardend/warden/internal/backoff"
	"github.com/wardend/warden/internal/config"
	"github.com/wardend/warden/internal/engine"
	"github.com/wardend/warden/internal/ident"
	"github.com/wardend/warden/internal/record"
	"github.com/wardend/warden/internal/store"
)

func newTestLoop(t *testing.T) (*Loop, *engine.Engine) {
	t.Helper()
	dir := t.TempDir()
	cfg := config.Config{
		StatePath:       dir + "/state.json",
		LogDir:          dir + "/logs",
		PollInterval:    50 * time.Millisecond,
		StopTimeout:     2 * time.Second,
		KillTimeout:     2 * time.Second,
		StabilityWindow: 60 * time.Second,
	}
	eng := engine.NewWithCollaborators(cfg, store.New(cfg.StatePath), ident.New())
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = eng.StopAll(ctx)
	})
	return New(eng, backoff.New(), cfg.PollInterval), eng
}

func setRecord(t *testing.T, eng *engine.Engine, name string, fn func(*record.ProcessRecord)) {
	t.Helper()
	require.NoError(t, eng.Store().Mutate(func(records map[string]*record.ProcessRecord) error {
		fn(records[name])
		return nil
	}))
}

func getRecord(t *testing.T, eng *engine.Engine, name string) record.ProcessRecord {
	t.Helper()
	s, err := eng.Status(name)
	require.NoError(t, err)
	return s.Record
}

func TestExplicitlyStoppedNeverRestarted(t *testing.T) {
	loop, eng := newTestLoop(t)
	require.NoError(t, eng.Add("parked", "sleep 30", 0, "", ""))
	longAgo := time.Now().Add(-24 * time.Hour)
	setRecord(t, eng, "parked", func(r *record.ProcessRecord) {
		r.ExplicitlyStopped = true
		r.LastRestartTime = &longAgo
	})

	for i := 0; i < 3; i++ {
		loop.Cycle(context.Background())
	}
	s, err := eng.Status("parked")
	require.NoError(t, err)
	assert.False(t, s.Running, "explicit stop is never overridden, no matter the elapsed time")
	assert.Equal(t, 0, s.Record.RestartAttempt)
}

func TestFirstObservedDeathArmsBackoff(t *testing.T) {
	loop, eng := newTestLoop(t)
	require.NoError(t, eng.Add("web", "sleep 30", 0, "", ""))

	loop.Cycle(context.Background())

	rec := getRecord(t, eng, "web")
	assert.Zero(t, rec.PID, "no launch in the arming cycle")
	require.NotNil(t, rec.LastRestartTime, "backoff clock armed on first sighting")
	assert.Equal(t, 0, rec.RestartAttempt)
}

func TestRelaunchAfterBaseDelay(t *testing.T) {
	loop, eng := newTestLoop(t)
	require.NoError(t, eng.Add("web", "sleep 30", 0, "", ""))
	armed := time.Now().Add(-1500 * time.Millisecond)
	setRecord(t, eng, "web", func(r *record.ProcessRecord) { r.LastRestartTime = &armed })

	loop.Cycle(context.Background())

	s, err := eng.Status("web")
	require.NoError(t, err)
	assert.True(t, s.Running)
	assert.Equal(t, 1, s.Record.RestartAttempt)
	require.NotNil(t, s.Record.LastRestartTime)
	assert.WithinDuration(t, time.Now(), *s.Record.LastRestartTime, 5*time.Second)
}

func TestRelaunchWaitsOutDelay(t *testing.T) {
	loop, eng := newTestLoop(t)
	require.NoError(t, eng.Add("web", "sleep 30", 0, "", ""))
	armed := time.Now().Add(-200 * time.Millisecond)
	setRecord(t, eng, "web", func(r *record.ProcessRecord) { r.LastRestartTime = &armed })

	loop.Cycle(context.Background())

	s, err := eng.Status("web")
	require.NoError(t, err)
	assert.False(t, s.Running, "base delay has not elapsed yet")
	assert.Equal(t, 0, s.Record.RestartAttempt)
}

func TestSecondDeathWaitsTwice(t *testing.T) {
	loop, eng := newTestLoop(t)
	require.NoError(t, eng.Add("web", "sleep 30", 0, "", ""))
	// One successful automatic restart already happened.
	elapsed := time.Now().Add(-1500 * time.Millisecond)
	setRecord(t, eng, "web", func(r *record.ProcessRecord) {
		r.RestartAttempt = 1
		r.LastRestartTime = &elapsed
	})

	loop.Cycle(context.Background())
	s, err := eng.Status("web")
	require.NoError(t, err)
	assert.False(t, s.Running, "attempt 1 waits 2s, not 1s")

	older := time.Now().Add(-2500 * time.Millisecond)
	setRecord(t, eng, "web", func(r *record.ProcessRecord) { r.LastRestartTime = &older })
	loop.Cycle(context.Background())
	s, err = eng.Status("web")
	require.NoError(t, err)
	assert.True(t, s.Running)
	assert.Equal(t, 2, s.Record.RestartAttempt)
}

func TestStableProcessResetsBackoff(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Config{
		StatePath:       dir + "/state.json",
		LogDir:          dir + "/logs",
		StopTimeout:     time.Second,
		KillTimeout:     time.Second,
		StabilityWindow: 60 * time.Second,
	}
	started := time.Now().Add(-90 * time.Second).Format("Mon Jan _2 15:04:05 2006")
	// Fake process table: pid 999 is alive and reports the stored start time.
	v := &ident.Verifier{
		QueryStartTime: func(pid int) (string, error) { return started, nil },
		Alive:          func(pid int) bool { return true },
		Parser:         ident.NewParser(),
	}
	eng := engine.NewWithCollaborators(cfg, store.New(cfg.StatePath), v)
	require.NoError(t, eng.Add("web", "sleep 30", 0, "", ""))
	last := time.Now().Add(-5 * time.Minute)
	require.NoError(t, eng.Store().Mutate(func(records map[string]*record.ProcessRecord) error {
		r := records["web"]
		r.PID = 999
		r.StartTime = started
		r.RestartAttempt = 4
		r.LastRestartTime = &last
		return nil
	}))

	loop := New(eng, backoff.New(), 50*time.Millisecond)
	loop.Cycle(context.Background())

	s, err := eng.Status("web")
	require.NoError(t, err)
	assert.True(t, s.Running)
	assert.Equal(t, 0, s.Record.RestartAttempt, "stable for the full window resets backoff")
	assert.NotNil(t, s.Record.LastRestartTime, "reset leaves the timestamp alone")
}

func TestCycleSurvivesRestartFailure(t *testing.T) {
	loop, eng := newTestLoop(t)
	require.NoError(t, eng.Add("web", "sleep 30", 0, "", ""))
	longAgo := time.Now().Add(-time.Hour)
	setRecord(t, eng, "web", func(r *record.ProcessRecord) { r.LastRestartTime = &longAgo })
	// Fail every launch at the port preflight.
	eng.PortFree = func(port int) bool { return false }
	setRecord(t, eng, "web", func(r *record.ProcessRecord) { r.Port = 9 })

	loop.Cycle(context.Background()) // must not panic or kill the loop

	s, err := eng.Status("web")
	require.NoError(t, err)
	assert.False(t, s.Running)
	assert.Equal(t, 0, s.Record.RestartAttempt, "failed launch does not grow the counter")
	require.NotNil(t, s.Record.LastRestartTime)
	assert.WithinDuration(t, time.Now(), *s.Record.LastRestartTime, 5*time.Second,
		"failed attempt stamped so the retry waits out the same backoff")
}

func TestGracefulShutdownStopsAllWithoutParking(t *testing.T) {
	loop, eng := newTestLoop(t)
	require.NoError(t, eng.Add("sleeper", "sleep 30", 0, "", ""))
	require.NoError(t, eng.Start("sleeper"))
	pid := getRecord(t, eng, "sleeper").PID
	require.True(t, ident.Alive(pid))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()
	time.Sleep(150 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(15 * time.Second):
		t.Fatal("loop did not shut down promptly")
	}

	assert.Eventually(t, func() bool { return !ident.Alive(pid) }, 5*time.Second, 50*time.Millisecond)
	rec := getRecord(t, eng, "sleeper")
	assert.False(t, rec.ExplicitlyStopped,
		"mass shutdown keeps the record eligible for restart after the watcher returns")
}
