package web

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"invbot/internal/chats"
	"invbot/internal/event"
	"invbot/pkg/logx"
)

var msk = time.FixedZone("MSK", 3*60*60)

type fakeEngine struct {
	scheduled []event.Event
	cancelled []string
}

func (f *fakeEngine) ScheduleEvent(ev event.Event, _ string) error {
	f.scheduled = append(f.scheduled, ev)
	return nil
}

func (f *fakeEngine) CancelEvent(id string) int {
	f.cancelled = append(f.cancelled, id)
	return 2
}

func (f *fakeEngine) PendingCount() int { return 5 }

type fakeAnnouncer struct {
	fails map[string]bool
	sent  []string
}

func (f *fakeAnnouncer) Send(_ context.Context, target, _ string) error {
	if f.fails[target] {
		return errors.New("unreachable")
	}
	f.sent = append(f.sent, target)
	return nil
}

type harness struct {
	srv      *httptest.Server
	events   *event.Store
	engine   *fakeEngine
	announce *fakeAnnouncer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	events := event.NewStore(filepath.Join(dir, "events.json"), msk, logx.Nop())
	registry := chats.NewRegistry(filepath.Join(dir, "chats.json"), logx.Nop())
	if err := registry.RegisterChat("Центр", -1001); err != nil {
		t.Fatal(err)
	}
	if err := registry.RegisterChat("Север", -1002); err != nil {
		t.Fatal(err)
	}

	h := &harness{
		events:   events,
		engine:   &fakeEngine{},
		announce: &fakeAnnouncer{fails: map[string]bool{}},
	}
	s := NewServer(":0", nil, events, h.engine, registry, h.announce, nil, logx.Nop())
	h.srv = httptest.NewServer(s.Router())
	t.Cleanup(h.srv.Close)
	return h
}

func (h *harness) post(t *testing.T, body string) *http.Response {
	t.Helper()
	resp, err := http.Post(h.srv.URL+"/events", "application/json", bytes.NewBufferString(body))
	if err != nil {
		t.Fatalf("POST /events: %v", err)
	}
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	defer resp.Body.Close()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestCreateEvent(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	h.announce.fails["Север"] = true

	resp := h.post(t, `{
		"description": "Поставка",
		"date": "2099-03-10 09:00",
		"chat_ids": ["Центр", "Север"],
		"notifications": [{"time": 60, "message": "через час"}],
		"repeat": {"type": "weekly", "weekdays": [0, 3]}
	}`)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	out := decode[createEventResponse](t, resp)
	if !out.Success {
		t.Error("success = false")
	}
	if len(out.Details.SuccessChats) != 1 || out.Details.SuccessChats[0] != "Центр" {
		t.Errorf("success_chats = %v", out.Details.SuccessChats)
	}
	if len(out.Details.FailedChats) != 1 || out.Details.FailedChats[0] != "Север" {
		t.Errorf("failed_chats = %v", out.Details.FailedChats)
	}
	if out.Details.EventData.ID == "" || !out.Details.EventData.Active {
		t.Errorf("event_data = %+v", out.Details.EventData)
	}

	if len(h.engine.scheduled) != 1 {
		t.Fatalf("engine scheduled %d events", len(h.engine.scheduled))
	}
	if got := h.events.All(); len(got) != 1 || got[0].Description != "Поставка" {
		t.Errorf("stored events = %+v", got)
	}
}

func TestCreateEventValidation(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	cases := []struct {
		name string
		body string
	}{
		{"bad json", `{`},
		{"missing description", `{"date": "2099-01-01 10:00", "chat_ids": ["Центр"]}`},
		{"bad date", `{"description": "x", "date": "tomorrow", "chat_ids": ["Центр"]}`},
		{"past date", `{"description": "x", "date": "2001-01-01 10:00", "chat_ids": ["Центр"]}`},
		{"empty chats", `{"description": "x", "date": "2099-01-01 10:00", "chat_ids": []}`},
		{"unknown chat", `{"description": "x", "date": "2099-01-01 10:00", "chat_ids": ["Юг"]}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := h.post(t, tc.body)
			if resp.StatusCode != http.StatusBadRequest {
				t.Fatalf("status = %d, want 400", resp.StatusCode)
			}
			out := decode[map[string]string](t, resp)
			if out["error"] == "" {
				t.Error("error message missing")
			}
		})
	}
	if len(h.events.All()) != 0 {
		t.Error("rejected requests must not store events")
	}
}

func TestListAndDeleteEvent(t *testing.T) {
	t.Parallel()

	h := newHarness(t)
	resp := h.post(t, `{"description": "x", "date": "2099-01-01 10:00", "chat_ids": ["Центр"]}`)
	created := decode[createEventResponse](t, resp)
	id := created.Details.EventData.ID

	listResp, err := http.Get(h.srv.URL + "/events")
	if err != nil {
		t.Fatal(err)
	}
	list := decode[[]event.Event](t, listResp)
	if len(list) != 1 || list[0].ID != id {
		t.Fatalf("list = %+v", list)
	}

	req, _ := http.NewRequest(http.MethodDelete, h.srv.URL+"/events/"+id, nil)
	delResp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	out := decode[map[string]any](t, delResp)
	if delResp.StatusCode != http.StatusOK || out["success"] != true {
		t.Fatalf("delete status = %d body = %v", delResp.StatusCode, out)
	}
	if len(h.engine.cancelled) != 1 || h.engine.cancelled[0] != id {
		t.Errorf("engine cancellations = %v", h.engine.cancelled)
	}

	// Deleting again is a 404.
	again, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	again.Body.Close()
	if again.StatusCode != http.StatusNotFound {
		t.Errorf("second delete status = %d", again.StatusCode)
	}
}

func TestChatsAndHealth(t *testing.T) {
	t.Parallel()

	h := newHarness(t)

	resp, err := http.Get(h.srv.URL + "/chats")
	if err != nil {
		t.Fatal(err)
	}
	m := decode[map[string]int64](t, resp)
	if m["Центр"] != -1001 || m["Север"] != -1002 {
		t.Errorf("chats = %v", m)
	}

	resp, err = http.Get(h.srv.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	health := decode[map[string]any](t, resp)
	if health["status"] != "ok" {
		t.Errorf("health = %v", health)
	}
	if health["pending"] != float64(5) {
		t.Errorf("pending = %v", health["pending"])
	}
}
