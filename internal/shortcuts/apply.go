package shortcuts

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

// Store is the slice of the property-store client the shortcut manager
// consumes.
type Store interface {
	Set(channel, path, typ, value string)
	Reset(channel, path string)
	List(channel, prefix string) ([]string, error)
	ListVerbose(channel string) ([]string, error)
}

// Manager exports, clears and applies shortcut profiles against one
// property-store channel. MarkerPath holds the bytes of the last-applied
// profile; Apply short-circuits when the source matches it.
type Manager struct {
	Store      Store
	Channel    string
	MarkerPath string
}

// ExportCurrent captures the live custom shortcuts into a TSV profile at
// dest. The verbose dump aligns values with a variable amount of
// whitespace, so the first token is the path and the remaining tokens,
// rejoined, are the value.
func (m *Manager) ExportCurrent(dest string) error {
	lines, err := m.Store.ListVerbose(m.Channel)
	if err != nil {
		return fmt.Errorf("shortcuts: export listing failed: %w", err)
	}

	var profile Profile
	for _, line := range lines {
		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		propertyPath := fields[0]
		if !strings.HasPrefix(propertyPath, NamespacePrefix) {
			continue
		}
		profile.Entries = append(profile.Entries, Entry{
			Path:  propertyPath,
			Type:  TypeForPath(propertyPath),
			Value: strings.Join(fields[1:], " "),
		})
	}

	if err := profile.Write(dest); err != nil {
		return fmt.Errorf("shortcuts: export write failed: %w", err)
	}
	log.Info().Msgf("shortcuts.Manager.ExportCurrent dest=%s rows=%d", dest, len(profile.Entries))
	return nil
}

// ClearCustom removes every property under the custom namespace, using the
// one-column listing to sidestep alignment ambiguity.
func (m *Manager) ClearCustom() {
	paths, err := m.Store.List(m.Channel, NamespacePrefix)
	if err != nil {
		log.Warn().Msgf("shortcuts.Manager.ClearCustom listing unavailable err=%v", err)
		return
	}
	for _, p := range paths {
		m.Store.Reset(m.Channel, p)
	}
	log.Debug().Msgf("shortcuts.Manager.ClearCustom removed=%d", len(paths))
}

// Apply pushes the profile at source into the store, unless source is
// byte-identical to the last-applied marker.
func (m *Manager) Apply(source string) error {
	return m.apply(source, false)
}

// Reapply is Apply without the marker short-circuit, for corrective passes
// where the marker already matches but the live store drifted.
func (m *Manager) Reapply(source string) error {
	return m.apply(source, true)
}

func (m *Manager) apply(source string, force bool) error {
	data, err := os.ReadFile(source)
	if err != nil {
		return fmt.Errorf("shortcuts: apply read failed: %w", err)
	}

	if !force {
		if marker, err := os.ReadFile(m.MarkerPath); err == nil && bytes.Equal(marker, data) {
			log.Info().Msgf("shortcuts.Manager.Apply unchanged source=%s", source)
			return nil
		}
	}

	m.ClearCustom()

	profile := Parse(data)
	for _, e := range profile.Entries {
		value := e.Value
		if e.Type == TypeBool && value != "true" && value != "false" {
			value = "false"
		}
		// An empty string value is a deliberate set: it disables the binding.
		m.Store.Set(m.Channel, e.Path, e.Type, value)
	}

	if err := os.MkdirAll(filepath.Dir(m.MarkerPath), 0o755); err != nil {
		return fmt.Errorf("shortcuts: marker dir failed: %w", err)
	}
	if err := os.WriteFile(m.MarkerPath, data, 0o644); err != nil {
		return fmt.Errorf("shortcuts: marker write failed: %w", err)
	}
	log.Info().Msgf("shortcuts.Manager.Apply source=%s rows=%d force=%v", source, len(profile.Entries), force)
	return nil
}
