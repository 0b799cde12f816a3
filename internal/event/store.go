package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"invbot/internal/storage"
	"invbot/pkg/logx"
)

// Store keeps the event list in memory and mirrors every mutation to a
// JSON snapshot on disk. A malformed stored record is skipped with a
// logged error; it never aborts loading the rest.
type Store struct {
	path string
	loc  *time.Location
	log  logx.Logger

	mu     sync.RWMutex
	events []Event
}

func NewStore(path string, loc *time.Location, log logx.Logger) *Store {
	if loc == nil {
		loc = time.Local
	}
	return &Store{path: path, loc: loc, log: log}
}

// Load reads the snapshot. A missing file yields an empty store.
func (s *Store) Load() error {
	var raw []json.RawMessage
	if err := storage.LoadJSON(s.path, &raw); err != nil {
		if errors.Is(err, storage.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("load events: %w", err)
	}

	events := make([]Event, 0, len(raw))
	for i, rec := range raw {
		var ev Event
		if err := json.Unmarshal(rec, &ev); err != nil {
			s.log.Error("skipping malformed event record",
				logx.Int("index", i), logx.Err(err))
			continue
		}
		if err := ev.Validate(s.loc); err != nil {
			s.log.Error("skipping invalid event record",
				logx.Int("index", i), logx.Err(err))
			continue
		}
		events = append(events, ev)
	}

	s.mu.Lock()
	s.events = events
	s.mu.Unlock()
	return nil
}

// All returns a copy of every stored event.
func (s *Store) All() []Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Event, len(s.events))
	copy(out, s.events)
	return out
}

func (s *Store) Get(id string) (Event, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, ev := range s.events {
		if ev.ID == id {
			return ev, true
		}
	}
	return Event{}, false
}

// Put inserts or replaces an event by id and persists the snapshot.
func (s *Store) Put(ev Event) error {
	if err := ev.Validate(s.loc); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	replaced := false
	for i := range s.events {
		if s.events[i].ID == ev.ID {
			s.events[i] = ev
			replaced = true
			break
		}
	}
	if !replaced {
		s.events = append(s.events, ev)
	}
	return s.saveLocked()
}

// Delete removes the event and persists. The removed record is returned
// so callers can cancel its pending notifications.
func (s *Store) Delete(id string) (Event, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i, ev := range s.events {
		if ev.ID == id {
			s.events = append(s.events[:i], s.events[i+1:]...)
			return ev, true, s.saveLocked()
		}
	}
	return Event{}, false, nil
}

// Save persists the current event list. Used by the replan pass after
// batch status updates.
func (s *Store) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked()
}

// Update applies fn to the stored event with the given id and persists.
func (s *Store) Update(id string, fn func(*Event)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.events {
		if s.events[i].ID == id {
			fn(&s.events[i])
			return s.saveLocked()
		}
	}
	return fmt.Errorf("event %s not found", id)
}

func (s *Store) saveLocked() error {
	if err := storage.SaveJSON(s.path, s.events); err != nil {
		return fmt.Errorf("save events: %w", err)
	}
	return nil
}

// Location returns the operational timezone anchors are parsed in.
func (s *Store) Location() *time.Location { return s.loc }
