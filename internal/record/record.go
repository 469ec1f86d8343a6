package record

import (
	"fmt"
	"time"
)

// ProcessRecord is the durable description and runtime state of one managed
// process. Records are keyed by Name, which is immutable after creation.
type ProcessRecord struct {
	Name    string `json:"name"`
	Command string `json:"command"`
	Workdir string `json:"workdir,omitempty"`
	Port    int    `json:"port,omitempty"`
	EnvFile string `json:"env_file,omitempty"`

	// PID and StartTime form the unit of process identity. StartTime holds
	// the textual start time the OS process table reported at launch; a
	// record carrying a PID without a StartTime is stale and must never be
	// trusted as running.
	PID       int    `json:"pid,omitempty"`
	StartTime string `json:"start_time,omitempty"`

	// ExplicitlyStopped is set only by a user-initiated stop and cleared by
	// start/restart/add. The watch loop never sets it.
	ExplicitlyStopped bool `json:"explicitly_stopped"`

	// RestartAttempt counts consecutive unplanned-death restarts since the
	// last stability reset. Incremented only by the watch loop.
	RestartAttempt  int        `json:"restart_attempt"`
	LastRestartTime *time.Time `json:"last_restart_time,omitempty"`

	LogPath string `json:"log_path,omitempty"`
}

// HasIdentity reports whether the record carries a complete pid/start-time
// pair that verification can act on.
func (r *ProcessRecord) HasIdentity() bool {
	return r.PID > 0 && r.StartTime != ""
}

// ClearIdentity drops the recorded pid/start-time pair.
func (r *ProcessRecord) ClearIdentity() {
	r.PID = 0
	r.StartTime = ""
}

// New creates a record for a freshly added process definition.
func New(name, command string, port int, workdir string) *ProcessRecord {
	return &ProcessRecord{
		Name:    name,
		Command: command,
		Port:    port,
		Workdir: workdir,
	}
}

func (r *ProcessRecord) String() string {
	if r.PID > 0 {
		return fmt.Sprintf("%s (pid %d)", r.Name, r.PID)
	}
	return r.Name
}
