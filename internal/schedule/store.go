package schedule

import (
	"errors"
	"fmt"
	"time"

	"invbot/internal/storage"
)

// TimeKeyLayout is the snapshot key format for fire times.
const TimeKeyLayout = time.RFC3339

// Record is one fire-time bucket in the pending snapshot: the fan-out
// targets, the rendered message per target and the owning event per target.
type Record struct {
	Targets  []string          `json:"targets"`
	Messages map[string]string `json:"messages"`
	EventIDs map[string]string `json:"event_ids,omitempty"`
}

// PendingStore persists the whole pending set as one JSON document keyed
// by ISO-8601 fire time. Every save overwrites the previous snapshot.
type PendingStore struct {
	path string
}

func NewPendingStore(path string) *PendingStore {
	return &PendingStore{path: path}
}

func (s *PendingStore) Save(snapshot map[string]Record) error {
	if snapshot == nil {
		snapshot = map[string]Record{}
	}
	if err := storage.SaveJSON(s.path, snapshot); err != nil {
		return fmt.Errorf("save pending notifications: %w", err)
	}
	return nil
}

// Load reads the snapshot. A missing file yields an empty set.
func (s *PendingStore) Load() (map[string]Record, error) {
	out := map[string]Record{}
	if err := storage.LoadJSON(s.path, &out); err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return map[string]Record{}, nil
		}
		return nil, fmt.Errorf("load pending notifications: %w", err)
	}
	return out, nil
}
