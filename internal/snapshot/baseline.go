package snapshot

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// baselineFile is the on-disk form of the last-synced snapshot.
type baselineFile struct {
	TakenAt    time.Time           `json:"taken_at"`
	Documents  map[string]Document `json:"documents"`
	Extensions []Extension         `json:"extensions,omitempty"`
}

func baselinePath(stateDir, profile string) string {
	return filepath.Join(stateDir, profile+".baseline.json")
}

// SaveBaseline persists snap as the last-synced state for a profile.
func SaveBaseline(stateDir, profile string, snap Snapshot) error {
	if err := os.MkdirAll(stateDir, 0755); err != nil {
		return fmt.Errorf("creating state dir: %w", err)
	}
	data, err := json.MarshalIndent(baselineFile{
		TakenAt:    snap.TakenAt,
		Documents:  snap.Documents,
		Extensions: snap.Extensions,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding baseline: %w", err)
	}
	return writeFileAtomic(baselinePath(stateDir, profile), append(data, '\n'))
}

// LoadBaseline returns the last-synced snapshot for a profile. A missing
// baseline (never synced) yields an empty snapshot and ok=false.
func LoadBaseline(stateDir, profile string) (Snapshot, bool, error) {
	data, err := os.ReadFile(baselinePath(stateDir, profile))
	if err != nil {
		if os.IsNotExist(err) {
			return Snapshot{Documents: map[string]Document{}}, false, nil
		}
		return Snapshot{}, false, fmt.Errorf("reading baseline: %w", err)
	}
	var bf baselineFile
	if err := json.Unmarshal(data, &bf); err != nil {
		return Snapshot{}, false, &MalformedDocumentError{Path: baselinePath(stateDir, profile), Err: err}
	}
	if bf.Documents == nil {
		bf.Documents = map[string]Document{}
	}
	return Snapshot{TakenAt: bf.TakenAt, Documents: bf.Documents, Extensions: bf.Extensions}, true, nil
}

// RemoveBaseline deletes a profile's baseline. No error if absent.
func RemoveBaseline(stateDir, profile string) error {
	err := os.Remove(baselinePath(stateDir, profile))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("removing baseline: %w", err)
	}
	return nil
}
