package desktop

import (
	"time"

	"github.com/rs/zerolog/log"
)

// Runner covers the process-table operations the panel controller needs,
// executed as the session owner.
type Runner interface {
	Run(name string, args ...string) ([]byte, []byte, int32, error)
	StartDetached(logPath string, name string, args ...string) error
}

// Panel starts and stops the session panel and the desktop-icon manager.
// The only contract with these processes is process-table lookup, signal and
// relaunch; Settle stands in for completion notifications they do not send.
type Panel struct {
	Runner         Runner
	Owner          string
	Command        string // session panel, e.g. xfce4-panel
	DesktopCommand string // desktop-icon manager, e.g. xfdesktop
	LogPath        string
	Settle         time.Duration

	Sleep func(time.Duration)
}

// Running reports whether the owner's panel process exists.
func (p Panel) Running() bool {
	_, _, code, err := p.Runner.Run("pgrep", "-u", p.Owner, "-x", p.Command)
	return err == nil && code == 0
}

// Hide terminates the panel and waits for the settle delay.
func (p Panel) Hide() {
	if _, _, _, err := p.Runner.Run("pkill", "-u", p.Owner, "-x", p.Command); err != nil {
		log.Debug().Msgf("desktop.Panel.Hide pkill err=%v", err)
	}
	p.sleep(p.Settle)
	log.Info().Msgf("desktop.Panel.Hide done cmd=%s", p.Command)
}

// Show launches the panel detached when it is not already running.
func (p Panel) Show() {
	if p.Running() {
		log.Debug().Msgf("desktop.Panel.Show already running cmd=%s", p.Command)
		return
	}
	if err := p.Runner.StartDetached(p.LogPath, p.Command); err != nil {
		log.Warn().Msgf("desktop.Panel.Show launch failed cmd=%s err=%v", p.Command, err)
		return
	}
	p.sleep(p.Settle)
	log.Info().Msgf("desktop.Panel.Show launched cmd=%s log=%s", p.Command, p.LogPath)
}

// ReloadDesktop asks the desktop-icon manager to reload; when the manager
// does not support it (or is gone) it is killed and relaunched detached.
func (p Panel) ReloadDesktop() {
	if _, _, _, err := p.Runner.Run(p.DesktopCommand, "--reload"); err == nil {
		log.Debug().Msgf("desktop.Panel.ReloadDesktop reloaded cmd=%s", p.DesktopCommand)
		return
	}

	log.Warn().Msgf("desktop.Panel.ReloadDesktop reload unsupported, relaunching cmd=%s", p.DesktopCommand)
	if _, _, _, err := p.Runner.Run("pkill", "-u", p.Owner, "-x", p.DesktopCommand); err != nil {
		log.Debug().Msgf("desktop.Panel.ReloadDesktop pkill err=%v", err)
	}
	if err := p.Runner.StartDetached(p.LogPath, p.DesktopCommand); err != nil {
		log.Warn().Msgf("desktop.Panel.ReloadDesktop relaunch failed cmd=%s err=%v", p.DesktopCommand, err)
		return
	}
	p.sleep(p.Settle)
}

func (p Panel) sleep(d time.Duration) {
	if d <= 0 {
		return
	}
	if p.Sleep != nil {
		p.Sleep(d)
		return
	}
	time.Sleep(d)
}
