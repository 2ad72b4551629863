package override

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"noren/internal/model"
)

// snapshotMaxAge is how old a pre-rendered snapshot may be and still seed
// the store at startup.
const snapshotMaxAge = 5 * time.Minute

// Snapshot is the pre-rendered override document written at deploy time
// and after successful refreshes.
type Snapshot struct {
	Contents  []model.OverrideRecord `json:"contents"`
	FetchedAt time.Time              `json:"fetchedAt"`
}

// Fresh reports whether the snapshot is recent enough to trust.
func (s *Snapshot) Fresh(now time.Time) bool {
	age := now.Sub(s.FetchedAt)
	return age >= 0 && age < snapshotMaxAge
}

// LoadSnapshot reads a snapshot document from disk.
func LoadSnapshot(path string) (*Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("decode snapshot %s: %w", path, err)
	}
	return &snap, nil
}

// WriteSnapshot writes the snapshot atomically (temp file + rename) so a
// concurrent reader never sees a partial document.
func WriteSnapshot(path string, snap Snapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}
