package shortcuts

import (
	"bytes"
	"os"
	"path"
	"strings"
)

// NamespacePrefix scopes every custom shortcut binding in the property store.
const NamespacePrefix = "/commands/custom/"

const (
	TypeString = "string"
	TypeBool   = "bool"
)

// The only boolean leaves under the custom-shortcut namespace; every other
// row is a string command binding.
var boolLeaves = map[string]struct{}{
	"override":       {},
	"startup-notify": {},
}

// Entry is one shortcut row: property path, value type, raw value. A string
// entry with an empty value is meaningful: it disables the shortcut.
type Entry struct {
	Path  string
	Type  string
	Value string
}

// Profile is an ordered set of entries keyed by path.
type Profile struct {
	Entries []Entry
}

// TypeForPath classifies a property path: bool only when the final segment
// is one of the fixed flag names.
func TypeForPath(propertyPath string) string {
	if _, ok := boolLeaves[path.Base(propertyPath)]; ok {
		return TypeBool
	}
	return TypeString
}

// Parse decodes TSV rows (path\ttype\tvalue). Rows with fewer than two
// fields are skipped; a missing third field is an empty value.
func Parse(data []byte) Profile {
	var p Profile
	for _, line := range strings.Split(string(data), "\n") {
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) < 2 {
			continue
		}
		entry := Entry{Path: fields[0], Type: fields[1]}
		if len(fields) == 3 {
			entry.Value = fields[2]
		}
		p.Entries = append(p.Entries, entry)
	}
	return p
}

// Encode renders one TSV row per entry. Values are written verbatim; the
// format has no escaping, literal tabs inside a value are unsupported.
func (p Profile) Encode() []byte {
	var buf bytes.Buffer
	for _, e := range p.Entries {
		buf.WriteString(e.Path)
		buf.WriteByte('\t')
		buf.WriteString(e.Type)
		buf.WriteByte('\t')
		buf.WriteString(e.Value)
		buf.WriteByte('\n')
	}
	return buf.Bytes()
}

func Read(filePath string) (Profile, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return Profile{}, err
	}
	return Parse(data), nil
}

func (p Profile) Write(filePath string) error {
	return os.WriteFile(filePath, p.Encode(), 0o644)
}

// DeriveKiosk builds the restricted profile: the exact row set of normal
// with every string value blanked and every bool value preserved.
func DeriveKiosk(normal Profile) Profile {
	derived := Profile{Entries: make([]Entry, 0, len(normal.Entries))}
	for _, e := range normal.Entries {
		if e.Type == TypeBool {
			derived.Entries = append(derived.Entries, e)
			continue
		}
		derived.Entries = append(derived.Entries, Entry{Path: e.Path, Type: e.Type})
	}
	return derived
}

// IsSane reports whether a profile file contains at least one row with two
// or more tab-separated fields whose path sits in the custom-shortcut
// namespace. Other malformed rows do not matter.
func IsSane(filePath string) bool {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return false
	}
	for _, line := range strings.Split(string(data), "\n") {
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) < 2 {
			continue
		}
		if strings.HasPrefix(fields[0], NamespacePrefix) {
			return true
		}
	}
	return false
}
