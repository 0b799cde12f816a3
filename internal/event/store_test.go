package event

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"invbot/internal/recurrence"
	"invbot/pkg/logx"
)

var msk = time.FixedZone("MSK", 3*60*60)

func testStore(t *testing.T) *Store {
	t.Helper()
	return NewStore(filepath.Join(t.TempDir(), "events.json"), msk, logx.Nop())
}

func sample(id string) Event {
	return Event{
		ID:          id,
		Description: "stock delivery",
		Date:        "2025-03-10 09:00",
		ChatIDs:     []string{"branch-center"},
		Notifications: []Offset{
			{Lead: 60, Message: "delivery in an hour"},
		},
		Repeat: recurrence.Rule{Type: recurrence.None},
		Active: true,
	}
}

func TestStorePutGetDelete(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	ev := sample("e1")
	if err := s.Put(ev); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok := s.Get("e1")
	if !ok || got.Description != "stock delivery" {
		t.Fatalf("Get = %+v, %v", got, ok)
	}

	// Put with the same id replaces.
	ev.Description = "updated"
	if err := s.Put(ev); err != nil {
		t.Fatalf("Put replace: %v", err)
	}
	if all := s.All(); len(all) != 1 || all[0].Description != "updated" {
		t.Fatalf("All = %+v", all)
	}

	removed, ok, err := s.Delete("e1")
	if err != nil || !ok || removed.ID != "e1" {
		t.Fatalf("Delete = %+v, %v, %v", removed, ok, err)
	}
	if _, ok, _ := s.Delete("e1"); ok {
		t.Error("second delete should report not found")
	}
}

func TestStoreRejectsUnschedulable(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	bad := sample("e1")
	bad.Date = "not a date"
	if err := s.Put(bad); err == nil {
		t.Error("Put accepted unparsable anchor")
	}
	noTargets := sample("e2")
	noTargets.ChatIDs = nil
	if err := s.Put(noTargets); err == nil {
		t.Error("Put accepted event without targets")
	}
}

func TestStoreLoadSkipsMalformedRecords(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "events.json")
	body := `[
  {"id": "good", "description": "d", "date": "2025-03-10 09:00",
   "chat_ids": ["a"], "notifications": [], "repeat": {"type": "none"}, "active": true},
  {"id": "bad-date", "description": "d", "date": "garbage",
   "chat_ids": ["a"], "notifications": [], "repeat": {"type": "none"}, "active": true},
  {"id": "", "description": "no id", "date": "2025-03-10 09:00",
   "chat_ids": ["a"], "notifications": [], "repeat": {"type": "none"}, "active": true},
  42
]`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatal(err)
	}

	s := NewStore(path, msk, logx.Nop())
	if err := s.Load(); err != nil {
		t.Fatalf("Load: %v", err)
	}
	all := s.All()
	if len(all) != 1 || all[0].ID != "good" {
		t.Fatalf("All = %+v, want only the good record", all)
	}
}

func TestStoreLoadMissingFile(t *testing.T) {
	t.Parallel()

	s := testStore(t)
	if err := s.Load(); err != nil {
		t.Fatalf("Load of missing file: %v", err)
	}
	if len(s.All()) != 0 {
		t.Error("missing file should yield an empty store")
	}
}

func TestStoreUpdatePersists(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "events.json")
	s := NewStore(path, msk, logx.Nop())
	if err := s.Put(sample("e1")); err != nil {
		t.Fatal(err)
	}
	if err := s.Update("e1", func(ev *Event) {
		ev.SetAnchor(time.Date(2025, 4, 10, 9, 0, 0, 0, msk))
		ev.MarkChecked(true, time.Date(2025, 4, 10, 8, 0, 0, 0, msk))
	}); err != nil {
		t.Fatalf("Update: %v", err)
	}

	// A fresh store sees the persisted change.
	s2 := NewStore(path, msk, logx.Nop())
	if err := s2.Load(); err != nil {
		t.Fatal(err)
	}
	got, ok := s2.Get("e1")
	if !ok || got.Date != "2025-04-10 09:00" || !got.Active || got.LastChecked == "" {
		t.Fatalf("reloaded event = %+v", got)
	}
}
