package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"kioskctl/internal/config"
)

type fileConfig struct {
	Owner           string `toml:"owner"`
	ConfDir         string `toml:"conf_dir"`
	HomeDir         string `toml:"home_dir"`
	DisplayFallback string `toml:"display_fallback"`

	ShortcutChannel string `toml:"shortcut_channel"`
	DesktopChannel  string `toml:"desktop_channel"`

	PanelCommand   string `toml:"panel_command"`
	DesktopCommand string `toml:"desktop_command"`

	SettleDelay  string `toml:"settle_delay"`
	CacheRefresh string `toml:"cache_refresh"`

	VerifyMaxAttempts int    `toml:"verify_max_attempts"`
	VerifyBackoff     string `toml:"verify_backoff"`

	StackEnsure         bool   `toml:"stack_ensure"`
	StackSupervisorctl  string `toml:"stack_supervisorctl"`
	StackWMService      string `toml:"stack_wm_service"`
	StackDesktopService string `toml:"stack_desktop_service"`
	StackWaitMax        string `toml:"stack_wait_max"`
	StackWaitPoll       string `toml:"stack_wait_poll"`
	StackXReadyMax      string `toml:"stack_x_ready_max"`
	StackXReadyPoll     string `toml:"stack_x_ready_poll"`
	StackXReadyCommand  string `toml:"stack_x_ready_command"`
}

// loadConfig overlays a TOML file onto the defaults. Only keys present in the
// file override; absent keys keep their default.
func loadConfig(path string) (config.Config, error) {
	cfg := config.Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return config.Config{}, fmt.Errorf("load kiosk config: %w", err)
	}

	if meta.IsDefined("owner") {
		if v := strings.TrimSpace(raw.Owner); v != "" {
			cfg.Owner = v
		}
	}
	if meta.IsDefined("conf_dir") {
		cfg.ConfDir = strings.TrimSpace(raw.ConfDir)
	}
	if meta.IsDefined("home_dir") {
		cfg.HomeDir = strings.TrimSpace(raw.HomeDir)
	}
	if meta.IsDefined("display_fallback") {
		cfg.DisplayFallback = strings.TrimSpace(raw.DisplayFallback)
	}
	if meta.IsDefined("shortcut_channel") {
		cfg.ShortcutChannel = strings.TrimSpace(raw.ShortcutChannel)
	}
	if meta.IsDefined("desktop_channel") {
		cfg.DesktopChannel = strings.TrimSpace(raw.DesktopChannel)
	}
	if meta.IsDefined("panel_command") {
		cfg.PanelCommand = strings.TrimSpace(raw.PanelCommand)
	}
	if meta.IsDefined("desktop_command") {
		cfg.DesktopCommand = strings.TrimSpace(raw.DesktopCommand)
	}

	if meta.IsDefined("settle_delay") {
		if cfg.SettleDelay, err = parseDelay("settle_delay", raw.SettleDelay); err != nil {
			return config.Config{}, err
		}
	}
	if meta.IsDefined("cache_refresh") {
		if cfg.CacheRefresh, err = parseDelay("cache_refresh", raw.CacheRefresh); err != nil {
			return config.Config{}, err
		}
	}

	if meta.IsDefined("verify_max_attempts") {
		cfg.Verify.MaxAttempts = raw.VerifyMaxAttempts
	}
	if meta.IsDefined("verify_backoff") {
		if cfg.Verify.Backoff, err = parseDelay("verify_backoff", raw.VerifyBackoff); err != nil {
			return config.Config{}, err
		}
	}

	if meta.IsDefined("stack_ensure") {
		cfg.Stack.Ensure = raw.StackEnsure
	}
	if meta.IsDefined("stack_supervisorctl") {
		cfg.Stack.Supervisorctl = strings.TrimSpace(raw.StackSupervisorctl)
	}
	if meta.IsDefined("stack_wm_service") {
		cfg.Stack.WMService = strings.TrimSpace(raw.StackWMService)
	}
	if meta.IsDefined("stack_desktop_service") {
		cfg.Stack.DesktopService = strings.TrimSpace(raw.StackDesktopService)
	}
	if meta.IsDefined("stack_wait_max") {
		if cfg.Stack.WaitMax, err = parseDelay("stack_wait_max", raw.StackWaitMax); err != nil {
			return config.Config{}, err
		}
	}
	if meta.IsDefined("stack_wait_poll") {
		if cfg.Stack.WaitPoll, err = parseDelay("stack_wait_poll", raw.StackWaitPoll); err != nil {
			return config.Config{}, err
		}
	}
	if meta.IsDefined("stack_x_ready_max") {
		if cfg.Stack.XReadyMax, err = parseDelay("stack_x_ready_max", raw.StackXReadyMax); err != nil {
			return config.Config{}, err
		}
	}
	if meta.IsDefined("stack_x_ready_poll") {
		if cfg.Stack.XReadyPoll, err = parseDelay("stack_x_ready_poll", raw.StackXReadyPoll); err != nil {
			return config.Config{}, err
		}
	}
	if meta.IsDefined("stack_x_ready_command") {
		cfg.Stack.XReadyCommand = strings.TrimSpace(raw.StackXReadyCommand)
	}

	return cfg, nil
}

func parseDelay(key, raw string) (time.Duration, error) {
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
