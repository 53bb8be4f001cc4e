package session

import (
	"path/filepath"
	"time"

	ps "github.com/shirou/gopsutil/v4/process"

	"github.com/mvp-joe/xvfb-supervisor/internal/display"
)

// Status is what `xvfbctl status` knows about one display.
type Status struct {
	Display   string    `json:"display"`
	Locked    bool      `json:"locked"`
	OwnerPID  int       `json:"owner_pid,omitempty"`
	Alive     bool      `json:"alive"`
	Command   string    `json:"command,omitempty"`
	StartedAt time.Time `json:"started_at,omitempty"`
	SessionID string    `json:"session_id,omitempty"`
	LogFile   string    `json:"log_file,omitempty"`
}

// Alive reports whether pid names a running process.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	ok, err := ps.PidExists(int32(pid))
	return err == nil && ok
}

// commLen is the kernel's limit on process names, including the NUL.
const commLen = 16

// Owned reports whether the session's server is still the process recorded
// for it. A lock file for the display is authoritative: its owner must be
// the recorded PID. Without one, the recorded PID must be alive and running
// the recorded binary. A recycled PID fails both checks.
func Owned(probe *display.Probe, s Session) bool {
	if s.PID <= 0 {
		return false
	}
	if pid, err := probe.Owner(s.Display); err == nil {
		return pid == s.PID
	}
	if !Alive(s.PID) {
		return false
	}

	proc, err := ps.NewProcess(int32(s.PID))
	if err != nil {
		return false
	}
	name, err := proc.Name()
	if err != nil {
		return false
	}
	return sameProgram(name, s.Binary)
}

// sameProgram compares a process name against a binary path, allowing for
// the kernel truncating long names.
func sameProgram(name, binary string) bool {
	if binary == "" {
		return false
	}
	base := filepath.Base(binary)
	if name == base {
		return true
	}
	return len(base) >= commLen-1 && name == base[:commLen-1]
}

// Inspect merges the registry with the lock files currently in the probe's
// directory. Displays locked by servers xvfbctl did not start are included
// without a session ID.
func Inspect(probe *display.Probe, sessions []Session) ([]Status, error) {
	locked, err := probe.Scan()
	if err != nil {
		return nil, err
	}

	byDisplay := make(map[string]*Status)
	var order []string
	get := func(d string) *Status {
		if st, ok := byDisplay[d]; ok {
			return st
		}
		st := &Status{Display: d}
		byDisplay[d] = st
		order = append(order, d)
		return st
	}

	for _, s := range sessions {
		st := get(s.Display)
		st.OwnerPID = s.PID
		st.StartedAt = s.StartedAt
		st.SessionID = s.ID
		st.LogFile = s.LogFile
	}
	for _, d := range locked {
		st := get(d)
		st.Locked = true
		if pid, err := probe.Owner(d); err == nil {
			st.OwnerPID = pid
		}
	}

	out := make([]Status, 0, len(order))
	for _, d := range order {
		st := byDisplay[d]
		describe(st)
		out = append(out, *st)
	}
	return out, nil
}

// describe fills in liveness details from the process table.
func describe(st *Status) {
	if !Alive(st.OwnerPID) {
		return
	}
	st.Alive = true

	proc, err := ps.NewProcess(int32(st.OwnerPID))
	if err != nil {
		return
	}
	if name, err := proc.Name(); err == nil {
		st.Command = name
	}
	if st.StartedAt.IsZero() {
		if ms, err := proc.CreateTime(); err == nil {
			st.StartedAt = time.UnixMilli(ms).UTC()
		}
	}
}
