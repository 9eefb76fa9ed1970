package mode

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Record is the persisted tagged state written after every mode switch. The
// marker file stays authoritative for Status (so out-of-band edits surface
// as custom); the record adds what the marker cannot carry.
type Record struct {
	Mode         Target    `json:"mode"`
	TemplateHash string    `json:"template_hash"`
	MarkerHash   string    `json:"marker_hash"`
	Degraded     bool      `json:"degraded"`
	AppliedAt    time.Time `json:"applied_at"`
}

// writeRecord replaces the state file atomically: a temp file in the same
// directory renamed over the target.
func writeRecord(path string, rec Record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return fmt.Errorf("mode: state encode failed: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("mode: state write failed: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("mode: state rename failed: %w", err)
	}
	return nil
}

func readRecord(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}
	var rec Record
	if err := json.Unmarshal(data, &rec); err != nil {
		return Record{}, fmt.Errorf("mode: state decode failed: %w", err)
	}
	return rec, nil
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func hashFile(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	return hashBytes(data), nil
}
