package session

import (
	"bytes"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
	"golang.org/x/sys/unix"

	"kioskctl/internal/tools"
)

// ProcessEnvironProvider finds the owner's desktop session process through
// the process table and reads its environment block out of procfs. Reading
// another account's environ requires root; failures degrade to "not found".
type ProcessEnvironProvider struct {
	Runner  tools.CommandRunner // defaults to tools.ExecRunner{}
	Process string              // defaults to xfce4-session
	Root    string              // defaults to /proc
}

func (p ProcessEnvironProvider) SessionEnviron(owner string) (map[string]string, bool) {
	pid, ok := p.sessionPID(owner)
	if !ok {
		return nil, false
	}

	raw, err := os.ReadFile(filepath.Join(p.root(), strconv.Itoa(pid), "environ"))
	if err != nil {
		log.Warn().Msgf("session.ProcessEnvironProvider environ read failed pid=%d err=%v", pid, err)
		return nil, false
	}
	return parseEnviron(raw), true
}

func (p ProcessEnvironProvider) sessionPID(owner string) (int, bool) {
	stdout, _, _, err := p.runner().Run("pgrep", "-n", "-u", owner, "-x", p.process())
	if err != nil {
		return 0, false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(stdout)))
	if err != nil || pid <= 0 {
		return 0, false
	}
	// Signal 0 probes liveness; EPERM still means the process exists.
	if err := unix.Kill(pid, 0); err != nil && err != unix.EPERM {
		return 0, false
	}
	return pid, true
}

func (p ProcessEnvironProvider) runner() tools.CommandRunner {
	if p.Runner != nil {
		return p.Runner
	}
	return tools.ExecRunner{}
}

func (p ProcessEnvironProvider) process() string {
	if p.Process != "" {
		return p.Process
	}
	return "xfce4-session"
}

func (p ProcessEnvironProvider) root() string {
	if p.Root != "" {
		return p.Root
	}
	return "/proc"
}

func parseEnviron(raw []byte) map[string]string {
	env := make(map[string]string)
	for _, entry := range bytes.Split(raw, []byte{0}) {
		if len(entry) == 0 {
			continue
		}
		key, value, ok := strings.Cut(string(entry), "=")
		if !ok || key == "" {
			continue
		}
		env[key] = value
	}
	return env
}
