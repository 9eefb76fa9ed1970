package shortcuts

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"kioskctl/internal/testutil/testlog"
)

// fakeStore records mutations and serves canned listings.
type fakeStore struct {
	sets    [][4]string
	resets  []string
	listing []string
	verbose []string
}

func (s *fakeStore) Set(channel, path, typ, value string) {
	s.sets = append(s.sets, [4]string{channel, path, typ, value})
}

func (s *fakeStore) Reset(channel, path string) {
	s.resets = append(s.resets, path)
}

func (s *fakeStore) List(channel, prefix string) ([]string, error) {
	return s.listing, nil
}

func (s *fakeStore) ListVerbose(channel string) ([]string, error) {
	return s.verbose, nil
}

func newManager(t *testing.T, store *fakeStore) *Manager {
	t.Helper()
	return &Manager{
		Store:      store,
		Channel:    "xfce4-keyboard-shortcuts",
		MarkerPath: filepath.Join(t.TempDir(), "shortcuts.current.tsv"),
	}
}

func writeProfile(t *testing.T, content string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "profile.tsv")
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
	return p
}

func TestApplyShortCircuitsOnUnchangedMarker(t *testing.T) {
	testlog.Start(t)

	store := &fakeStore{}
	m := newManager(t, store)
	source := writeProfile(t, "/commands/custom/<Super>p\tstring\tfirefox\n")

	if err := m.Apply(source); err != nil {
		t.Fatalf("first apply failed: %v", err)
	}
	firstSets := len(store.sets)
	if firstSets != 1 {
		t.Fatalf("expected one set on first apply, got %d", firstSets)
	}

	if err := m.Apply(source); err != nil {
		t.Fatalf("second apply failed: %v", err)
	}
	if len(store.sets) != firstSets {
		t.Fatalf("second apply must short-circuit, sets went %d -> %d", firstSets, len(store.sets))
	}
}

func TestReapplyIgnoresMarker(t *testing.T) {
	testlog.Start(t)

	store := &fakeStore{}
	m := newManager(t, store)
	source := writeProfile(t, "/commands/custom/<Super>p\tstring\tfirefox\n")

	if err := m.Apply(source); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if err := m.Reapply(source); err != nil {
		t.Fatalf("reapply failed: %v", err)
	}
	if len(store.sets) != 2 {
		t.Fatalf("reapply must mutate despite matching marker, got %d sets", len(store.sets))
	}
}

func TestApplyCoercesInvalidBool(t *testing.T) {
	testlog.Start(t)

	store := &fakeStore{}
	m := newManager(t, store)
	source := writeProfile(t, "/commands/custom/<Super>p/override\tbool\tmaybe\n"+
		"/commands/custom/<Super>t/startup-notify\tbool\ttrue\n")

	if err := m.Apply(source); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if store.sets[0][3] != "false" {
		t.Fatalf("invalid bool must be coerced to false, got %q", store.sets[0][3])
	}
	if store.sets[1][3] != "true" {
		t.Fatalf("valid bool must pass through, got %q", store.sets[1][3])
	}
}

func TestApplyEmptyStringValueStillSets(t *testing.T) {
	testlog.Start(t)

	store := &fakeStore{}
	m := newManager(t, store)
	source := writeProfile(t, "/commands/custom/<Super>p\tstring\t\n")

	if err := m.Apply(source); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	want := [4]string{"xfce4-keyboard-shortcuts", "/commands/custom/<Super>p", "string", ""}
	if diff := cmp.Diff([][4]string{want}, store.sets); diff != "" {
		t.Fatalf("empty value must issue a set, not a skip (-want +got):\n%s", diff)
	}
}

func TestApplyClearsNamespaceFirst(t *testing.T) {
	testlog.Start(t)

	store := &fakeStore{listing: []string{"/commands/custom/<Super>old", "/commands/custom/<Super>old/override"}}
	m := newManager(t, store)
	source := writeProfile(t, "/commands/custom/<Super>p\tstring\tfirefox\n")

	if err := m.Apply(source); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	if len(store.resets) != 2 {
		t.Fatalf("expected stale paths reset, got %v", store.resets)
	}
}

func TestApplyPersistsMarker(t *testing.T) {
	testlog.Start(t)

	store := &fakeStore{}
	m := newManager(t, store)
	content := "/commands/custom/<Super>p\tstring\tfirefox\n"
	source := writeProfile(t, content)

	if err := m.Apply(source); err != nil {
		t.Fatalf("apply failed: %v", err)
	}
	marker, err := os.ReadFile(m.MarkerPath)
	if err != nil {
		t.Fatalf("marker not persisted: %v", err)
	}
	if string(marker) != content {
		t.Fatalf("marker must hold the applied bytes, got %q", marker)
	}
}

func TestExportCurrentToleratesAlignment(t *testing.T) {
	testlog.Start(t)

	store := &fakeStore{verbose: []string{
		"/commands/custom/<Super>p            firefox --new-window",
		"/commands/custom/<Super>p/override   true",
		"/general/something                   ignored",
		"/commands/custom/<Super>t	xterm -e top",
	}}
	m := newManager(t, store)
	dest := filepath.Join(t.TempDir(), "export.tsv")

	if err := m.ExportCurrent(dest); err != nil {
		t.Fatalf("export failed: %v", err)
	}
	p, err := Read(dest)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}

	want := Profile{Entries: []Entry{
		{Path: "/commands/custom/<Super>p", Type: TypeString, Value: "firefox --new-window"},
		{Path: "/commands/custom/<Super>p/override", Type: TypeBool, Value: "true"},
		{Path: "/commands/custom/<Super>t", Type: TypeString, Value: "xterm -e top"},
	}}
	if diff := cmp.Diff(want, p); diff != "" {
		t.Fatalf("unexpected export (-want +got):\n%s", diff)
	}
}
