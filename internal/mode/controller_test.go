package mode

import (
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"kioskctl/internal/config"
	"kioskctl/internal/session"
	"kioskctl/internal/shortcuts"
	"kioskctl/internal/stack"
	"kioskctl/internal/testutil/testlog"
)

// fakeStore is an in-memory property store. Sets on channels listed in
// dropChannels are recorded but never land, which simulates persistent drift.
type fakeStore struct {
	props        map[string]string
	sets         []string // channel + " " + path
	restarts     int
	verbose      []string
	dropChannels map[string]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{props: make(map[string]string)}
}

func storeKey(channel, path string) string { return channel + "\x00" + path }

func (s *fakeStore) Get(channel, path string) (string, error) {
	value, ok := s.props[storeKey(channel, path)]
	if !ok {
		return "", errors.New("property missing")
	}
	return value, nil
}

func (s *fakeStore) Set(channel, path, typ, value string) {
	s.sets = append(s.sets, channel+" "+path)
	if s.dropChannels[channel] {
		return
	}
	s.props[storeKey(channel, path)] = value
}

func (s *fakeStore) Reset(channel, path string) {
	delete(s.props, storeKey(channel, path))
}

func (s *fakeStore) List(channel, prefix string) ([]string, error) {
	var paths []string
	for key := range s.props {
		ch, p, _ := strings.Cut(key, "\x00")
		if ch == channel && strings.HasPrefix(p, prefix) {
			paths = append(paths, p)
		}
	}
	return paths, nil
}

func (s *fakeStore) ListVerbose(string) ([]string, error) { return s.verbose, nil }

func (s *fakeStore) RestartDaemon() { s.restarts++ }

func (s *fakeStore) setsOn(channel string) int {
	var n int
	for _, call := range s.sets {
		if strings.HasPrefix(call, channel+" ") {
			n++
		}
	}
	return n
}

// fakeRunner tracks panel/desktop liveness through pgrep, pkill and detached
// launches the way the real process table would.
type fakeRunner struct {
	panelCmd   string
	desktopCmd string
	panelAlive bool
	detached   []string
}

func (r *fakeRunner) Run(name string, args ...string) ([]byte, []byte, int32, error) {
	switch name {
	case "pgrep":
		if args[len(args)-1] == r.panelCmd && r.panelAlive {
			return []byte("41\n"), nil, 0, nil
		}
		return nil, nil, 1, errors.New("exit status 1")
	case "pkill":
		if args[len(args)-1] == r.panelCmd {
			r.panelAlive = false
		}
		return nil, nil, 0, nil
	case r.desktopCmd:
		return nil, nil, 0, nil
	}
	return nil, nil, 0, nil
}

func (r *fakeRunner) StartDetached(_ string, name string, _ ...string) error {
	r.detached = append(r.detached, name)
	if name == r.panelCmd {
		r.panelAlive = true
	}
	return nil
}

type harness struct {
	ctrl   *Controller
	store  *fakeStore
	runner *fakeRunner
}

func newHarness(t *testing.T) *harness {
	t.Helper()

	cfg := config.Default()
	cfg.ConfDir = t.TempDir()
	cfg.HomeDir = t.TempDir()
	cfg.SettleDelay = 0
	cfg.CacheRefresh = 0

	if err := os.WriteFile(cfg.TemplateOn(), []byte("plugin-ids=1\n"), 0o644); err != nil {
		t.Fatalf("seed on template: %v", err)
	}
	if err := os.WriteFile(cfg.TemplateOff(), []byte("plugin-ids=1,2,3\n"), 0o644); err != nil {
		t.Fatalf("seed off template: %v", err)
	}

	store := newFakeStore()
	store.verbose = []string{
		"/commands/custom/<Primary>t          xfce4-terminal",
		"/commands/custom/override            true",
		"/commands/custom/<Alt>F4             close-window",
	}
	runner := &fakeRunner{
		panelCmd:   cfg.PanelCommand,
		desktopCmd: cfg.DesktopCommand,
		panelAlive: true,
	}

	ctrl := &Controller{
		Cfg: cfg,
		Resolver: session.Resolver{
			Ambient:         func(string) string { return "" },
			DisplayFallback: ":9",
		},
		NewRunner: func(session.Context) SessionRunner { return runner },
		NewStore:  func(SessionRunner) PropertyStore { return store },
		Sleep:     func(time.Duration) {},
	}
	return &harness{ctrl: ctrl, store: store, runner: runner}
}

func TestStatusStates(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)

	if got := h.ctrl.Status().State; got != StateUnknown {
		t.Fatalf("no marker must be unknown, got %s", got)
	}

	onData, _ := os.ReadFile(h.ctrl.Cfg.TemplateOn())
	if err := os.MkdirAll(h.ctrl.Cfg.StateDir(), 0o755); err != nil {
		t.Fatalf("state dir: %v", err)
	}
	if err := os.WriteFile(h.ctrl.Cfg.CurrentMarker(), onData, 0o644); err != nil {
		t.Fatalf("marker: %v", err)
	}
	if got := h.ctrl.Status().State; got != StateKiosk {
		t.Fatalf("marker identical to on template must be kiosk, got %s", got)
	}

	offData, _ := os.ReadFile(h.ctrl.Cfg.TemplateOff())
	if err := os.WriteFile(h.ctrl.Cfg.CurrentMarker(), offData, 0o644); err != nil {
		t.Fatalf("marker: %v", err)
	}
	if got := h.ctrl.Status().State; got != StateShow {
		t.Fatalf("marker identical to off template must be show, got %s", got)
	}

	if err := os.WriteFile(h.ctrl.Cfg.CurrentMarker(), []byte("hand edited\n"), 0o644); err != nil {
		t.Fatalf("marker: %v", err)
	}
	if got := h.ctrl.Status().State; got != StateCustom {
		t.Fatalf("unrecognized marker must be custom, got %s", got)
	}
}

func TestSetModeMissingTemplateIsFatal(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)

	if err := os.Remove(h.ctrl.Cfg.TemplateOn()); err != nil {
		t.Fatalf("remove template: %v", err)
	}

	// Both templates are required up front, whichever target is asked for.
	_, err := h.ctrl.SetMode(TargetOff, false)
	if !errors.Is(err, ErrMissingTemplate) {
		t.Fatalf("expected ErrMissingTemplate, got %v", err)
	}
}

func TestSetModeOnConverges(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)

	res, err := h.ctrl.SetMode(TargetOn, false)
	if err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if !res.Converged || res.Attempts != 0 {
		t.Fatalf("expected immediate convergence, got %+v", res)
	}

	marker, err := os.ReadFile(h.ctrl.Cfg.CurrentMarker())
	if err != nil {
		t.Fatalf("marker: %v", err)
	}
	if string(marker) != "plugin-ids=1\n" {
		t.Fatalf("marker must hold the on template, got %q", marker)
	}
	if h.runner.panelAlive {
		t.Fatalf("kiosk mode must stop the panel")
	}
	if h.store.restarts != 1 {
		t.Fatalf("expected one daemon restart, got %d", h.store.restarts)
	}

	normal, err := shortcuts.Read(h.ctrl.Cfg.NormalShortcuts())
	if err != nil {
		t.Fatalf("normal backup: %v", err)
	}
	kiosk, err := shortcuts.Read(h.ctrl.Cfg.KioskShortcuts())
	if err != nil {
		t.Fatalf("kiosk backup: %v", err)
	}
	if len(normal.Entries) != 3 || len(kiosk.Entries) != 3 {
		t.Fatalf("backups must preserve row count, normal=%d kiosk=%d",
			len(normal.Entries), len(kiosk.Entries))
	}

	rec, err := readRecord(h.ctrl.Cfg.StateFile())
	if err != nil {
		t.Fatalf("state record: %v", err)
	}
	if rec.Mode != TargetOn || rec.Degraded {
		t.Fatalf("unexpected record %+v", rec)
	}
	if got := h.ctrl.Status(); got.State != StateKiosk || got.Degraded {
		t.Fatalf("unexpected status %+v", got)
	}
}

func TestSetModeOffRelaunchesPanel(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.runner.panelAlive = false

	res, err := h.ctrl.SetMode(TargetOff, false)
	if err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if !res.Converged {
		t.Fatalf("expected convergence, got %+v", res)
	}
	if !h.runner.panelAlive {
		t.Fatalf("normal mode must relaunch the panel")
	}

	if v, _ := h.store.Get(h.ctrl.Cfg.DesktopChannel, "/desktop-icons/style"); v != "2" {
		t.Fatalf("normal mode must restore the icon style, got %q", v)
	}
	if got := h.ctrl.Status().State; got != StateShow {
		t.Fatalf("status after off must be show, got %s", got)
	}
}

func TestSetModeIsIdempotent(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)

	if _, err := h.ctrl.SetMode(TargetOn, false); err != nil {
		t.Fatalf("first SetMode: %v", err)
	}
	before := h.store.setsOn(h.ctrl.Cfg.ShortcutChannel)
	if before == 0 {
		t.Fatalf("first apply must push shortcut rows")
	}

	if _, err := h.ctrl.SetMode(TargetOn, false); err != nil {
		t.Fatalf("second SetMode: %v", err)
	}
	if after := h.store.setsOn(h.ctrl.Cfg.ShortcutChannel); after != before {
		t.Fatalf("unchanged profile must short-circuit, sets %d -> %d", before, after)
	}
}

func TestSetModeSingleCorrectivePass(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)
	h.store.dropChannels = map[string]bool{h.ctrl.Cfg.DesktopChannel: true}

	res, err := h.ctrl.SetMode(TargetOn, false)
	if err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if res.Converged {
		t.Fatalf("dropped visual writes must not converge")
	}
	if res.Attempts != 1 {
		t.Fatalf("expected exactly one corrective pass, got %d", res.Attempts)
	}
	// Initial switch plus the corrective pass each refresh the daemon.
	if h.store.restarts != 2 {
		t.Fatalf("expected two daemon restarts, got %d", h.store.restarts)
	}

	rec, err := readRecord(h.ctrl.Cfg.StateFile())
	if err != nil {
		t.Fatalf("state record: %v", err)
	}
	if !rec.Degraded {
		t.Fatalf("unconverged switch must be recorded as degraded")
	}
	if got := h.ctrl.Status(); got.State != StateKiosk || !got.Degraded {
		t.Fatalf("degraded switch still lands the marker, got %+v", got)
	}
}

func TestSetModeForceRunsStackEnsure(t *testing.T) {
	testlog.Start(t)
	h := newHarness(t)

	var ensured bool
	h.ctrl.NewStack = func(run SessionRunner) *stack.Supervisor {
		ensured = true
		cfg := h.ctrl.Cfg.Stack
		cfg.WaitMax = 0
		cfg.XReadyMax = 0
		return &stack.Supervisor{Cfg: cfg, Host: stackNoop{}, Owner: stackNoop{}, Sleep: func(time.Duration) {}}
	}

	if _, err := h.ctrl.SetMode(TargetOn, true); err != nil {
		t.Fatalf("SetMode: %v", err)
	}
	if !ensured {
		t.Fatalf("force must bring the stack supervisor in")
	}
}

type stackNoop struct{}

func (stackNoop) Run(string, ...string) ([]byte, []byte, int32, error) {
	return []byte("xfce RUNNING\n"), nil, 0, nil
}
