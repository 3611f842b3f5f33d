package cache

import (
	"os"
	"path/filepath"
	"strings"
)

// Sweep removes payload/metadata pairs whose save timestamp is older than the
// retention threshold. The core tolerates entries disappearing between an
// index check and a load, so sweeping is safe to run alongside lookups.
// Returns the number of entries removed.
func (s *Store) Sweep() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entries, err := os.ReadDir(s.cfg.Dir)
	if err != nil {
		return 0, &IOError{Op: "sweep", Path: s.cfg.Dir, Err: err}
	}

	removed := 0
	cutoff := s.now().Add(-s.cfg.Retention)
	for _, entry := range entries {
		name := entry.Name()
		if !strings.HasSuffix(name, ".json") || name == trackingFilename {
			continue
		}
		metaPath := filepath.Join(s.cfg.Dir, name)
		meta, err := readMetadata(metaPath)
		if err != nil {
			// Unreadable sidecar: fall back to file modification time.
			info, statErr := entry.Info()
			if statErr != nil || info.ModTime().After(cutoff) {
				continue
			}
		} else if meta.SavedAt.After(cutoff) {
			continue
		}

		fp := strings.TrimSuffix(name, ".json")
		os.Remove(s.payloadPath(fp))
		os.Remove(metaPath)
		removed++
	}
	return removed, nil
}
