package config

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// Config carries every tunable of the mode engine. Defaults match the
// containerized XFCE session layout; a TOML file may override any field.
type Config struct {
	// Owner is the account the desktop session runs as. Every property-store
	// and process operation executes under this identity.
	Owner string

	// ConfDir is the persistent configuration root holding the canonical
	// templates and profile backups. It may be mounted read-mostly.
	ConfDir string

	// HomeDir is the session home. Live mutable state (current marker,
	// last-applied shortcuts, state record) lives under <HomeDir>/kiosk so it
	// stays writable regardless of how ConfDir is mounted.
	HomeDir string

	DisplayFallback string

	ShortcutChannel string
	DesktopChannel  string

	PanelCommand   string
	DesktopCommand string

	// SettleDelay follows panel/desktop process changes; CacheRefresh follows
	// a property-store daemon restart. Both stand in for completion
	// notifications the underlying services do not provide.
	SettleDelay  time.Duration
	CacheRefresh time.Duration

	Verify VerifyConfig
	Stack  StackConfig
}

// VerifyConfig bounds the post-apply convergence check. MaxAttempts counts
// corrective passes after the initial read-back.
type VerifyConfig struct {
	MaxAttempts int
	Backoff     time.Duration
}

// StackConfig describes the supervisor-managed desktop stack the session
// runs under. DesktopService names an optional second service; "none"
// disables it.
type StackConfig struct {
	Ensure         bool
	Supervisorctl  string
	WMService      string
	DesktopService string
	WaitMax        time.Duration
	WaitPoll       time.Duration
	XReadyMax      time.Duration
	XReadyPoll     time.Duration
	XReadyCommand  string
}

func Default() Config {
	return Config{
		Owner:           "vnc",
		ConfDir:         "/data/conf/kiosk",
		HomeDir:         "",
		DisplayFallback: ":0",
		ShortcutChannel: "xfce4-keyboard-shortcuts",
		DesktopChannel:  "xfce4-desktop",
		PanelCommand:    "xfce4-panel",
		DesktopCommand:  "xfdesktop",
		SettleDelay:     300 * time.Millisecond,
		CacheRefresh:    500 * time.Millisecond,
		Verify: VerifyConfig{
			MaxAttempts: 1,
			Backoff:     0,
		},
		Stack: StackConfig{
			Ensure:         false,
			Supervisorctl:  "supervisorctl",
			WMService:      "xfce",
			DesktopService: "none",
			WaitMax:        8 * time.Second,
			WaitPoll:       200 * time.Millisecond,
			XReadyMax:      6 * time.Second,
			XReadyPoll:     200 * time.Millisecond,
		},
	}
}

// Normalize fills derivable fields and must run before Validate.
func (c *Config) Normalize() {
	if strings.TrimSpace(c.HomeDir) == "" && strings.TrimSpace(c.Owner) != "" {
		c.HomeDir = filepath.Join("/home", c.Owner)
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.Owner) == "" {
		return fmt.Errorf("config missing owner")
	}
	if strings.TrimSpace(c.ConfDir) == "" {
		return fmt.Errorf("config missing conf_dir")
	}
	if strings.TrimSpace(c.HomeDir) == "" {
		return fmt.Errorf("config missing home_dir")
	}
	if strings.TrimSpace(c.ShortcutChannel) == "" || strings.TrimSpace(c.DesktopChannel) == "" {
		return fmt.Errorf("config missing property-store channel")
	}
	if c.Verify.MaxAttempts < 0 {
		return fmt.Errorf("config verify max_attempts must be >= 0")
	}
	if c.SettleDelay < 0 || c.CacheRefresh < 0 || c.Verify.Backoff < 0 {
		return fmt.Errorf("config delays must be >= 0")
	}
	return nil
}

// Persistent layout under ConfDir.

func (c Config) TemplateOn() string  { return filepath.Join(c.ConfDir, "kioskrc.on") }
func (c Config) TemplateOff() string { return filepath.Join(c.ConfDir, "kioskrc.off") }

func (c Config) NormalShortcuts() string { return filepath.Join(c.ConfDir, "shortcuts.vnc.tsv") }
func (c Config) KioskShortcuts() string  { return filepath.Join(c.ConfDir, "shortcuts.kiosk.tsv") }

// Live mutable state under the session home.

func (c Config) StateDir() string { return filepath.Join(c.HomeDir, "kiosk") }

func (c Config) CurrentMarker() string { return filepath.Join(c.StateDir(), "kioskrc.current") }
func (c Config) ShortcutsMarker() string {
	return filepath.Join(c.StateDir(), "shortcuts.current.tsv")
}
func (c Config) StateFile() string { return filepath.Join(c.StateDir(), "state.json") }
func (c Config) PanelLog() string  { return filepath.Join(c.StateDir(), "panel.log") }
