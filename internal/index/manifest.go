package index

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// manifestFile is the on-disk name of the index manifest.
const manifestFile = "manifest.json"

// manifestEntry records what the index knows about one chunk. TextHash
// lets Upsert skip unchanged chunks without re-embedding; Ordinal
// preserves chunk creation order for the retrieval tie-break.
type manifestEntry struct {
	DocumentID string `json:"document_id"`
	Seq        int    `json:"seq"`
	TextHash   string `json:"text_hash"`
	Ordinal    int64  `json:"ordinal"`
}

// manifest is the index's durable bookkeeping, persisted as JSON beside
// the vector data. Its keys are exactly the live chunk IDs; Upsert and
// Reconcile maintain that invariant. Access is guarded by the Index
// mutex, never by the manifest itself.
type manifest struct {
	Entries map[string]manifestEntry `json:"entries"`
	NextOrd int64                    `json:"next_ordinal"`

	path string
}

func loadManifest(dir string) (*manifest, error) {
	m := &manifest{
		Entries: make(map[string]manifestEntry),
		path:    filepath.Join(dir, manifestFile),
	}

	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		return m, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading manifest: %w", err)
	}
	if err := json.Unmarshal(data, m); err != nil {
		return nil, fmt.Errorf("parsing manifest %s: %w", m.path, err)
	}
	if m.Entries == nil {
		m.Entries = make(map[string]manifestEntry)
	}
	return m, nil
}

// save writes the manifest atomically (temp file + rename) so a crash
// mid-write never leaves a truncated manifest next to intact vectors.
func (m *manifest) save() error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}

	tmp := m.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}
	if err := os.Rename(tmp, m.path); err != nil {
		return fmt.Errorf("replacing manifest: %w", err)
	}
	return nil
}

// record adds or refreshes an entry, assigning a creation ordinal to
// chunks the index has not seen before.
func (m *manifest) record(chunkID, documentID string, seq int, textHash string) {
	entry, exists := m.Entries[chunkID]
	if !exists {
		entry.Ordinal = m.NextOrd
		m.NextOrd++
	}
	entry.DocumentID = documentID
	entry.Seq = seq
	entry.TextHash = textHash
	m.Entries[chunkID] = entry
}

// stale returns the chunk IDs present in the manifest but absent from
// the live set.
func (m *manifest) stale(live map[string]bool) []string {
	var ids []string
	for id := range m.Entries {
		if !live[id] {
			ids = append(ids, id)
		}
	}
	return ids
}
