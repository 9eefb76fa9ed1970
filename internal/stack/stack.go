package stack

import (
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"kioskctl/internal/config"
	"kioskctl/internal/tools"
)

// Supervisor drives the supervisor-managed desktop stack: the window-manager
// service and an optional distinct desktop service. All operations are
// best-effort; the stack being unreachable never aborts a mode switch.
type Supervisor struct {
	Cfg config.StackConfig

	// Host runs supervisorctl; Owner runs X probes as the session owner.
	Host  tools.CommandRunner
	Owner tools.CommandRunner

	Sleep func(time.Duration)
}

// StatusMap parses `supervisorctl status` into service name -> state,
// tolerating trailing columns (pid, uptime).
func (s Supervisor) StatusMap() map[string]string {
	stdout, _, _, err := s.host().Run(s.ctl(), "status")
	if err != nil {
		// supervisorctl exits nonzero when any service is stopped, but the
		// listing is still usable.
		if len(stdout) == 0 {
			return map[string]string{}
		}
	}
	states := make(map[string]string)
	for _, line := range strings.Split(string(stdout), "\n") {
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		states[fields[0]] = fields[1]
	}
	return states
}

// Running reports whether the stack services are RUNNING. An empty status
// map is treated as running: when supervisorctl gives nothing back, do not
// claim the stack is down.
func (s Supervisor) Running() bool {
	return s.runningIn(s.StatusMap())
}

func (s Supervisor) runningIn(states map[string]string) bool {
	if len(states) == 0 {
		return true
	}
	if states[s.Cfg.WMService] != "RUNNING" {
		return false
	}
	if s.desktopEnabled() && states[s.Cfg.DesktopService] != "RUNNING" {
		return false
	}
	return true
}

func (s Supervisor) Start() {
	for _, svc := range s.startOrder() {
		s.ctlRun("start", svc)
	}
}

func (s Supervisor) Stop() {
	for _, svc := range s.stopOrder() {
		s.ctlRun("stop", svc)
	}
}

func (s Supervisor) Restart() {
	s.Stop()
	s.Start()
}

// Ensure brings the stack up: restart when forced, start when down, then
// wait for supervisor readiness and a responding X display.
func (s Supervisor) Ensure(force bool) bool {
	if force {
		log.Info().Msgf("stack.Supervisor.Ensure restart forced")
		s.Restart()
	} else if !s.Running() {
		log.Info().Msgf("stack.Supervisor.Ensure starting wm=%s", s.Cfg.WMService)
		s.Start()
	} else {
		return s.WaitXReady()
	}

	if !s.WaitReady() {
		log.Warn().Msgf("stack.Supervisor.Ensure stack not ready after %s", s.Cfg.WaitMax)
		return false
	}
	return s.WaitXReady()
}

// WaitReady polls the status map until the stack reports running or the
// wait deadline passes.
func (s Supervisor) WaitReady() bool {
	for attempt := 0; attempt < s.pollAttempts(s.Cfg.WaitMax, s.Cfg.WaitPoll); attempt++ {
		if s.Running() {
			return true
		}
		s.sleep(s.Cfg.WaitPoll)
	}
	return s.Running()
}

// WaitXReady polls until the X display answers. A configured probe command
// wins; otherwise the stock probes run as the session owner. Probes that are
// not installed count as "cannot test", not as failure.
func (s Supervisor) WaitXReady() bool {
	for attempt := 0; attempt < s.pollAttempts(s.Cfg.XReadyMax, s.Cfg.XReadyPoll); attempt++ {
		if s.probeX() {
			return true
		}
		s.sleep(s.Cfg.XReadyPoll)
	}
	ok := s.probeX()
	if !ok {
		log.Warn().Msgf("stack.Supervisor.WaitXReady display not responding after %s", s.Cfg.XReadyMax)
	}
	return ok
}

func (s Supervisor) probeX() bool {
	if cmd := strings.TrimSpace(s.Cfg.XReadyCommand); cmd != "" {
		_, _, _, err := s.owner().Run("sh", "-lc", cmd)
		return err == nil
	}
	probes := [][]string{
		{"xset", "q"},
		{"xdpyinfo"},
	}
	for _, probe := range probes {
		_, _, code, err := s.owner().Run(probe[0], probe[1:]...)
		if err == nil {
			return true
		}
		if code == 127 {
			// Probe not installed; treat as untestable rather than down.
			return true
		}
	}
	return false
}

func (s Supervisor) desktopEnabled() bool {
	ds := strings.TrimSpace(s.Cfg.DesktopService)
	if ds == "" || ds == s.Cfg.WMService {
		return false
	}
	switch strings.ToLower(ds) {
	case "none", "null", "0", "false":
		return false
	}
	return true
}

func (s Supervisor) startOrder() []string {
	if s.desktopEnabled() {
		return []string{s.Cfg.WMService, s.Cfg.DesktopService}
	}
	return []string{s.Cfg.WMService}
}

func (s Supervisor) stopOrder() []string {
	if s.desktopEnabled() {
		return []string{s.Cfg.DesktopService, s.Cfg.WMService}
	}
	return []string{s.Cfg.WMService}
}

func (s Supervisor) ctlRun(action, svc string) {
	if _, stderr, code, err := s.host().Run(s.ctl(), action, svc); err != nil {
		log.Warn().Msgf(
			"stack.Supervisor %s failed service=%s exit=%d stderr=%q",
			action, svc, code, strings.TrimSpace(string(stderr)),
		)
	}
}

func (s Supervisor) pollAttempts(max, poll time.Duration) int {
	if poll <= 0 || max <= 0 {
		return 1
	}
	return int(max / poll)
}

func (s Supervisor) ctl() string {
	if s.Cfg.Supervisorctl != "" {
		return s.Cfg.Supervisorctl
	}
	return "supervisorctl"
}

func (s Supervisor) host() tools.CommandRunner {
	if s.Host != nil {
		return s.Host
	}
	return tools.ExecRunner{}
}

func (s Supervisor) owner() tools.CommandRunner {
	if s.Owner != nil {
		return s.Owner
	}
	return tools.ExecRunner{}
}

func (s Supervisor) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	if s.Sleep != nil {
		s.Sleep(d)
		return
	}
	time.Sleep(d)
}
