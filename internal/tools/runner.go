package tools

import (
	"bytes"
	"errors"
	"os"
	"os/exec"
	"syscall"
)

// CommandRunner abstracts command execution for the session adapters.
type CommandRunner interface {
	Run(name string, args ...string) ([]byte, []byte, int32, error)
}

// DetachedRunner launches a command in its own session with output appended
// to a log file, without waiting on it.
type DetachedRunner interface {
	StartDetached(logPath string, name string, args ...string) error
}

// ExecRunner executes commands on the local host. A non-nil Env replaces the
// inherited environment of every launched command.
type ExecRunner struct {
	Env []string
}

func (r ExecRunner) Run(name string, args ...string) ([]byte, []byte, int32, error) {
	cmd := exec.Command(name, args...)
	if r.Env != nil {
		cmd.Env = r.Env
	}
	var stdout bytes.Buffer
	var stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if err == nil {
		return stdout.Bytes(), stderr.Bytes(), 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return stdout.Bytes(), stderr.Bytes(), int32(exitErr.ExitCode()), err
	}

	exitCode := int32(1)
	var execErr *exec.Error
	if errors.As(err, &execErr) {
		exitCode = 127
	}
	return stdout.Bytes(), stderr.Bytes(), exitCode, err
}

// StartDetached launches name in a fresh session with stdout and stderr
// appended to logPath. The child is released immediately; callers that need
// the process settled must wait on their own.
func (r ExecRunner) StartDetached(logPath string, name string, args ...string) error {
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer logFile.Close()

	cmd := exec.Command(name, args...)
	if r.Env != nil {
		cmd.Env = r.Env
	}
	cmd.Stdout = logFile
	cmd.Stderr = logFile
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

// Available reports whether an executable resolves on PATH.
func Available(name string) bool {
	_, err := exec.LookPath(name)
	return err == nil
}
