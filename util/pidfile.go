package util

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	ps "github.com/mitchellh/go-ps"
)

// PidFile keeps a second evidence worker from starting on the same
// host while the first is still running. Two workers draining the
// same evidence directory would each append their own custody events
// to the same artifacts.
type PidFile struct {
	Path string
}

// NewPidFile returns a PidFile at pathToFile. Nothing is written
// until you call Acquire.
func NewPidFile(pathToFile string) *PidFile {
	return &PidFile{Path: pathToFile}
}

// Pid returns the pid recorded in the file, or zero if the file does
// not exist or cannot be parsed.
func (p *PidFile) Pid() int {
	data, err := os.ReadFile(p.Path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0
	}
	return pid
}

// HeldByOtherProcess returns true if the file names a live process
// other than this one.
func (p *PidFile) HeldByOtherProcess() bool {
	pid := p.Pid()
	return pid != 0 && pid != os.Getpid() && ProcessIsRunning(pid)
}

// Acquire writes this process' pid to the file. It fails if another
// live process already holds it. Stale files left by dead processes
// are overwritten.
func (p *PidFile) Acquire() error {
	if p.HeldByOtherProcess() {
		return fmt.Errorf("Pid file %s is held by running process %d", p.Path, p.Pid())
	}
	return os.WriteFile(p.Path, []byte(strconv.Itoa(os.Getpid())), 0664)
}

// Release deletes the pid file if this process owns it.
func (p *PidFile) Release() error {
	pid := p.Pid()
	if pid != 0 && pid != os.Getpid() {
		return fmt.Errorf("Pid file %s belongs to process %d", p.Path, pid)
	}
	err := os.Remove(p.Path)
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// ProcessIsRunning returns true if the process with pid is running.
// This uses go-ps internally because golang's os.FindProcess always
// returns a process on *nix, even when no process with that pid is
// running.
func ProcessIsRunning(pid int) bool {
	proc, _ := ps.FindProcess(pid)
	return proc != nil
}
