package mode

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"kioskctl/internal/config"
	"kioskctl/internal/desktop"
	"kioskctl/internal/reconcile"
	"kioskctl/internal/session"
	"kioskctl/internal/shortcuts"
	"kioskctl/internal/stack"
	"kioskctl/internal/xfconf"
)

// ErrMissingTemplate aborts a mode switch: canonical templates are
// provisioned externally and never synthesized here.
var ErrMissingTemplate = errors.New("mode: canonical template missing")

// PropertyStore is the full property-store surface the controller hands to
// its collaborators.
type PropertyStore interface {
	Get(channel, path string) (string, error)
	Set(channel, path, typ, value string)
	Reset(channel, path string)
	List(channel, prefix string) ([]string, error)
	ListVerbose(channel string) ([]string, error)
	RestartDaemon()
}

// SessionRunner executes commands in the session owner's context.
type SessionRunner interface {
	Run(name string, args ...string) ([]byte, []byte, int32, error)
	StartDetached(logPath string, name string, args ...string) error
}

// Controller orchestrates status queries and mode switches. Zero-value
// collaborator fields select production wiring; tests inject fakes.
type Controller struct {
	Cfg config.Config

	Resolver  session.Resolver
	NewRunner func(session.Context) SessionRunner
	NewStore  func(SessionRunner) PropertyStore
	NewStack  func(SessionRunner) *stack.Supervisor

	Sleep func(time.Duration)
}

// Result reports the outcome of a mode switch. Converged false means the
// read-back still disagreed after the allowed corrective passes; the switch itself
// still counts as applied.
type Result struct {
	Target    Target
	Converged bool
	Attempts  int
}

// StatusInfo is the answer to a status query, combining the marker-derived
// state with the persisted record.
type StatusInfo struct {
	State     State     `json:"state"`
	Degraded  bool      `json:"degraded"`
	AppliedAt time.Time `json:"applied_at,omitzero"`
}

// Status infers the applied profile from the current marker: hash-identical
// to a canonical template wins, anything else present is custom, absence is
// unknown. The state record contributes the degraded flag and timestamp.
func (c *Controller) Status() StatusInfo {
	info := StatusInfo{State: StateUnknown}

	markerHash, err := hashFile(c.Cfg.CurrentMarker())
	if err == nil {
		onHash, onErr := hashFile(c.Cfg.TemplateOn())
		offHash, offErr := hashFile(c.Cfg.TemplateOff())
		switch {
		case onErr == nil && markerHash == onHash:
			info.State = StateKiosk
		case offErr == nil && markerHash == offHash:
			info.State = StateShow
		default:
			info.State = StateCustom
		}
	}

	if rec, err := readRecord(c.Cfg.StateFile()); err == nil {
		info.Degraded = rec.Degraded
		info.AppliedAt = rec.AppliedAt
	}
	return info
}

// SetMode applies the target profile end to end. Ordering is load-bearing:
// the cache refresh must precede the shortcut/visual writes and every
// read-back, and verification runs last.
func (c *Controller) SetMode(target Target, force bool) (Result, error) {
	cfg := c.Cfg

	if err := os.MkdirAll(cfg.StateDir(), 0o755); err != nil {
		return Result{}, fmt.Errorf("mode: state dir failed: %w", err)
	}

	template, err := c.templatePath(target)
	if err != nil {
		return Result{}, err
	}

	ctx := c.resolve()
	run := c.newRunner(ctx)
	store := c.newStore(run)

	mgr := &shortcuts.Manager{
		Store:      store,
		Channel:    cfg.ShortcutChannel,
		MarkerPath: cfg.ShortcutsMarker(),
	}
	visuals := desktop.Visuals{Store: store, Channel: cfg.DesktopChannel}
	panel := desktop.Panel{
		Runner:         run,
		Owner:          cfg.Owner,
		Command:        cfg.PanelCommand,
		DesktopCommand: cfg.DesktopCommand,
		LogPath:        cfg.PanelLog(),
		Settle:         cfg.SettleDelay,
		Sleep:          c.Sleep,
	}

	if cfg.Stack.Ensure || force {
		c.newStack(run).Ensure(force)
	}

	c.ensureProfiles(mgr)

	templateData, err := os.ReadFile(template)
	if err != nil {
		return Result{}, fmt.Errorf("mode: template read failed: %w", err)
	}
	if err := os.WriteFile(cfg.CurrentMarker(), templateData, 0o644); err != nil {
		return Result{}, fmt.Errorf("mode: marker write failed: %w", err)
	}

	store.RestartDaemon()

	if err := mgr.Apply(c.shortcutSource(target)); err != nil {
		// Shortcut trouble is cosmetic; the switch keeps going.
		log.Warn().Msgf("mode.Controller.SetMode shortcut apply skipped target=%s err=%v", target, err)
	}
	visuals.Apply(target == TargetOn)
	c.applyPanel(target, panel)
	panel.ReloadDesktop()

	verdict := reconcile.Converge(reconcile.Params{
		Read:        func() map[string]string { return c.observe(store, panel) },
		Expected:    expectedFields(target),
		Apply:       func() { c.correct(target, store, mgr, visuals, panel) },
		MaxAttempts: cfg.Verify.MaxAttempts,
		Backoff:     cfg.Verify.Backoff,
		Sleep:       c.Sleep,
	})

	rec := Record{
		Mode:         target,
		TemplateHash: hashBytes(templateData),
		MarkerHash:   hashBytes(templateData),
		Degraded:     !verdict.Converged,
		AppliedAt:    time.Now().UTC(),
	}
	if err := writeRecord(cfg.StateFile(), rec); err != nil {
		log.Warn().Msgf("mode.Controller.SetMode state record not persisted err=%v", err)
	}

	log.Info().Msgf(
		"mode.Controller.SetMode done target=%s converged=%v attempts=%d",
		target, verdict.Converged, verdict.Attempts,
	)
	return Result{Target: target, Converged: verdict.Converged, Attempts: verdict.Attempts}, nil
}

// templatePath checks both canonical templates up front; either one absent
// is fatal at first use.
func (c *Controller) templatePath(target Target) (string, error) {
	paths := map[Target]string{
		TargetOn:  c.Cfg.TemplateOn(),
		TargetOff: c.Cfg.TemplateOff(),
	}
	for name, p := range paths {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("%w: %s (%s)", ErrMissingTemplate, p, name)
		}
	}
	return paths[target], nil
}

// ensureProfiles lazily creates the shortcut backups: the normal profile is
// captured from the live session, the kiosk profile derived from the normal
// one. Both persist indefinitely once written.
func (c *Controller) ensureProfiles(mgr *shortcuts.Manager) {
	normal := c.Cfg.NormalShortcuts()
	if !shortcuts.IsSane(normal) {
		if err := mgr.ExportCurrent(normal); err != nil {
			log.Warn().Msgf("mode.Controller.ensureProfiles capture failed dest=%s err=%v", normal, err)
		}
	}

	kiosk := c.Cfg.KioskShortcuts()
	if _, err := os.Stat(kiosk); err == nil {
		return
	}
	normalProfile, err := shortcuts.Read(normal)
	if err != nil {
		log.Warn().Msgf("mode.Controller.ensureProfiles derivation skipped err=%v", err)
		return
	}
	if err := shortcuts.DeriveKiosk(normalProfile).Write(kiosk); err != nil {
		log.Warn().Msgf("mode.Controller.ensureProfiles derivation write failed dest=%s err=%v", kiosk, err)
		return
	}
	log.Info().Msgf("mode.Controller.ensureProfiles derived kiosk profile dest=%s rows=%d", kiosk, len(normalProfile.Entries))
}

func (c *Controller) shortcutSource(target Target) string {
	if target == TargetOn {
		return c.Cfg.KioskShortcuts()
	}
	return c.Cfg.NormalShortcuts()
}

func (c *Controller) applyPanel(target Target, panel desktop.Panel) {
	if target == TargetOn {
		panel.Hide()
		return
	}
	panel.Show()
}

// observe reads back the verification tuple. A failed read is recorded as
// unavailable, which mismatches every expectation.
func (c *Controller) observe(store PropertyStore, panel desktop.Panel) map[string]string {
	obs := make(map[string]string, 4)
	props := map[string]string{
		"desktop_menu":    desktop.PropDesktopMenu,
		"windowlist_menu": desktop.PropWindowlistMenu,
		"icon_style":      desktop.PropIconStyle,
	}
	for field, prop := range props {
		value, err := store.Get(c.Cfg.DesktopChannel, prop)
		if err != nil {
			obs[field] = "unavailable"
			continue
		}
		obs[field] = value
	}
	if panel.Running() {
		obs["panel"] = "running"
	} else {
		obs["panel"] = "stopped"
	}
	return obs
}

// correct is the single corrective pass: refresh the property-store cache,
// then force everything back to the target.
func (c *Controller) correct(target Target, store PropertyStore, mgr *shortcuts.Manager, visuals desktop.Visuals, panel desktop.Panel) {
	store.RestartDaemon()
	if err := mgr.Reapply(c.shortcutSource(target)); err != nil {
		log.Warn().Msgf("mode.Controller.correct shortcut reapply skipped err=%v", err)
	}
	visuals.Apply(target == TargetOn)
	c.applyPanel(target, panel)
	panel.ReloadDesktop()
}

func expectedFields(target Target) map[string]string {
	if target == TargetOn {
		return map[string]string{
			"desktop_menu":    "false",
			"windowlist_menu": "false",
			"icon_style":      desktop.IconStyleHidden,
			"panel":           "stopped",
		}
	}
	return map[string]string{
		"desktop_menu":    "true",
		"windowlist_menu": "true",
		"icon_style":      desktop.IconStyleNormal,
		"panel":           "running",
	}
}

// Production wiring below; tests override the New* fields.

func (c *Controller) resolve() session.Context {
	r := c.Resolver
	if r.Provider == nil && r.Ambient == nil {
		r.Provider = session.ProcessEnvironProvider{}
	}
	if r.DisplayFallback == "" {
		r.DisplayFallback = c.Cfg.DisplayFallback
	}
	return r.Resolve(c.Cfg.Owner)
}

func (c *Controller) newRunner(ctx session.Context) SessionRunner {
	if c.NewRunner != nil {
		return c.NewRunner(ctx)
	}
	return &session.PrivilegeRunner{Owner: c.Cfg.Owner, Ctx: ctx}
}

func (c *Controller) newStore(run SessionRunner) PropertyStore {
	if c.NewStore != nil {
		return c.NewStore(run)
	}
	return &xfconf.Client{Runner: run, CacheRefresh: c.Cfg.CacheRefresh, Sleep: c.Sleep}
}

func (c *Controller) newStack(run SessionRunner) *stack.Supervisor {
	if c.NewStack != nil {
		return c.NewStack(run)
	}
	return &stack.Supervisor{Cfg: c.Cfg.Stack, Owner: run, Sleep: c.Sleep}
}
