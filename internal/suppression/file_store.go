package suppression

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// historyDocument is the on-disk format: one JSON document keyed by
// "owner:subject:rule_type" with RFC3339 timestamps.
type historyDocument struct {
	Alerts map[string][]string `json:"alerts"`
}

// FileStore keeps suppression history in a single JSON document. Writes go
// through a temp file and rename so a crashed cycle never leaves a
// truncated document behind. The store assumes a single process; the mutex
// covers concurrent cycles within it.
type FileStore struct {
	path string

	mu sync.Mutex
}

// NewFileStore builds a file-backed suppression store.
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// History returns the recorded timestamps for a key. A missing document is
// empty history, not an error.
func (s *FileStore) History(ctx context.Context, key string) ([]time.Time, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return nil, err
	}

	raw := doc.Alerts[key]
	times := make([]time.Time, 0, len(raw))
	for _, entry := range raw {
		ts, parseErr := time.Parse(time.RFC3339, entry)
		if parseErr != nil {
			// Skip unparseable entries rather than poisoning the key.
			continue
		}
		times = append(times, ts)
	}
	return times, nil
}

// Append records one firing and prunes entries past the retention window
// across the whole document.
func (s *FileStore) Append(ctx context.Context, key string, ts time.Time, retention time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	doc, err := s.load()
	if err != nil {
		return err
	}
	if doc.Alerts == nil {
		doc.Alerts = make(map[string][]string)
	}

	doc.Alerts[key] = append(doc.Alerts[key], ts.UTC().Format(time.RFC3339))
	pruneDocument(&doc, ts.Add(-retention))

	return s.save(doc)
}

func (s *FileStore) load() (historyDocument, error) {
	doc := historyDocument{Alerts: map[string][]string{}}

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return doc, fmt.Errorf("read suppression history: %w", err)
	}

	if err := json.Unmarshal(data, &doc); err != nil {
		// A corrupt document resets history; losing suppression state
		// only risks one extra notification.
		return historyDocument{Alerts: map[string][]string{}}, nil
	}
	if doc.Alerts == nil {
		doc.Alerts = map[string][]string{}
	}
	return doc, nil
}

func (s *FileStore) save(doc historyDocument) error {
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal suppression history: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create history dir: %w", err)
		}
	}

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write suppression history: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("replace suppression history: %w", err)
	}
	return nil
}

func pruneDocument(doc *historyDocument, cutoff time.Time) {
	for key, entries := range doc.Alerts {
		fresh := entries[:0]
		for _, entry := range entries {
			ts, err := time.Parse(time.RFC3339, entry)
			if err != nil {
				continue
			}
			if ts.After(cutoff) {
				fresh = append(fresh, entry)
			}
		}
		if len(fresh) == 0 {
			delete(doc.Alerts, key)
			continue
		}
		doc.Alerts[key] = fresh
	}
}

var _ Store = (*FileStore)(nil)
