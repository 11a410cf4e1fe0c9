package daemon

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
)

// RuntimeState is written next to the PID file so `daemon status` can find
// the API without loading the config.
type RuntimeState struct {
	PID        int       `json:"pid"`
	Addr       string    `json:"addr"`
	StartedAt  time.Time `json:"started_at"`
	ConfigPath string    `json:"config_path"`
}

// PIDFile guards against two daemons sharing one cache and port.
type PIDFile struct {
	Path string
}

// StatePath is the runtime state file that accompanies the PID file.
func (p PIDFile) StatePath() string { return p.Path + ".json" }

// Read returns the recorded PID.
func (p PIDFile) Read() (int, error) {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("invalid pid in %s", p.Path)
	}
	return pid, nil
}

// Running returns the recorded PID and whether that process is alive.
func (p PIDFile) Running() (int, bool) {
	pid, err := p.Read()
	if err != nil {
		return 0, false
	}
	return pid, ProcessAlive(pid)
}

// Check fails if another daemon holds the file. A stale file is removed.
func (p PIDFile) Check() error {
	pid, err := p.Read()
	switch {
	case errors.Is(err, os.ErrNotExist):
		return nil
	case err != nil:
		return err
	case ProcessAlive(pid):
		return fmt.Errorf("daemon already running (pid %d)", pid)
	}
	p.Release()
	return nil
}

// Acquire checks for a live daemon, then records st.PID and st.
func (p PIDFile) Acquire(st RuntimeState) error {
	if err := p.Check(); err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(p.Path), 0o750); err != nil {
		return fmt.Errorf("create daemon directory: %w", err)
	}
	if err := os.WriteFile(p.Path, []byte(strconv.Itoa(st.PID)+"\n"), 0o600); err != nil {
		return err
	}
	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(p.StatePath(), append(data, '\n'), 0o600)
}

// State reads the runtime state file.
func (p PIDFile) State() (RuntimeState, error) {
	var st RuntimeState
	data, err := os.ReadFile(p.StatePath())
	if err != nil {
		return st, err
	}
	err = json.Unmarshal(data, &st)
	return st, err
}

// Release removes both files.
func (p PIDFile) Release() {
	_ = os.Remove(p.Path)
	_ = os.Remove(p.StatePath())
}

// Stop sends SIGTERM to the recorded process and waits up to timeout for it
// to exit.
func (p PIDFile) Stop(timeout time.Duration) (int, error) {
	pid, err := p.Read()
	if err != nil {
		return 0, errors.New("daemon is not running")
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return pid, fmt.Errorf("find daemon process: %w", err)
	}
	if err := proc.Signal(syscall.SIGTERM); err != nil {
		return pid, fmt.Errorf("signal daemon process: %w", err)
	}

	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if !ProcessAlive(pid) {
			p.Release()
			return pid, nil
		}
		time.Sleep(150 * time.Millisecond)
	}
	return pid, fmt.Errorf("daemon (pid %d) did not exit in time", pid)
}

// ProcessAlive checks pid with signal 0.
func ProcessAlive(pid int) bool {
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}
