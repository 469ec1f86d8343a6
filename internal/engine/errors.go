package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound means no record exists under the requested name.
	ErrNotFound = errors.New("process not found")
	// ErrExists means add was called for a name that is already defined.
	ErrExists = errors.New("process already exists")
)

// PortInUseError is a recoverable launch precondition failure: the record's
// configured port is bound by someone else. The watch loop retries it after
// backoff; user-facing callers surface it with the port.
type PortInUseError struct {
	Name string
	Port int
}

func (e *PortInUseError) Error() string {
	return fmt.Sprintf("cannot start %s: port %d is already in use (try `lsof -i :%d` to see what holds it)", e.Name, e.Port, e.Port)
}

// UnkillableProcessError is fatal: the SIGTERM/SIGKILL escalation exhausted
// both wait windows and the process group is still alive. It is surfaced to
// the caller and never retried automatically.
type UnkillableProcessError struct {
	Name string
	PID  int
}

func (e *UnkillableProcessError) Error() string {
	return fmt.Sprintf("process %s (pid %d) survived SIGTERM and SIGKILL escalation", e.Name, e.PID)
}

// AlreadyRunningError means start was asked for a record that is
// verified-running.
type AlreadyRunningError struct {
	Name string
	PID  int
}

func (e *AlreadyRunningError) Error() string {
	return fmt.Sprintf("process %s is already running with pid %d", e.Name, e.PID)
}
