package bot

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"invbot/internal/chats"
	"invbot/internal/event"
	"invbot/internal/inventory"
	"invbot/internal/storage"
	"invbot/internal/transport"
	"invbot/pkg/logx"
)

var msk = time.FixedZone("MSK", 3*60*60)

type sentMessage struct {
	chatID int64
	text   string
	markup any
}

type fakeAdapter struct {
	sent    []sentMessage
	answers []string
}

func (f *fakeAdapter) Start(context.Context, chan<- transport.Update) error { return nil }
func (f *fakeAdapter) Stop(context.Context) error                           { return nil }

func (f *fakeAdapter) SendText(_ context.Context, chatID int64, text string, opt *transport.SendOptions) (transport.MessageRef, error) {
	msg := sentMessage{chatID: chatID, text: text}
	if opt != nil {
		msg.markup = opt.ReplyMarkup
	}
	f.sent = append(f.sent, msg)
	return transport.MessageRef{ChatID: chatID, MessageID: len(f.sent)}, nil
}

func (f *fakeAdapter) EditText(context.Context, transport.MessageRef, string, *transport.SendOptions) error {
	return nil
}

func (f *fakeAdapter) AnswerCallback(_ context.Context, _ string, text string) error {
	f.answers = append(f.answers, text)
	return nil
}

func (f *fakeAdapter) lastText(t *testing.T) string {
	t.Helper()
	if len(f.sent) == 0 {
		t.Fatal("no messages sent")
	}
	return f.sent[len(f.sent)-1].text
}

type fakeEngine struct {
	cancelled []string
}

func (f *fakeEngine) CancelEvent(id string) int {
	f.cancelled = append(f.cancelled, id)
	return 1
}

type fixture struct {
	svc      *Service
	adapter  *fakeAdapter
	registry *chats.Registry
	events   *event.Store
	engine   *fakeEngine
	inv      *inventory.Store
}

const (
	adminID = int64(100)
	staffID = int64(200)
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	dir := t.TempDir()

	registry := chats.NewRegistry(filepath.Join(dir, "chats.json"), logx.Nop())
	if err := registry.RegisterChat("Центр", -1001); err != nil {
		t.Fatal(err)
	}
	if err := registry.RegisterChat("Север", -1002); err != nil {
		t.Fatal(err)
	}
	if err := registry.AddAdmin(adminID); err != nil {
		t.Fatal(err)
	}
	if err := registry.AssignUser(staffID, "Центр"); err != nil {
		t.Fatal(err)
	}

	db, err := storage.OpenSQLite(":memory:", time.Second)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	inv, err := inventory.NewStore(db, logx.Nop())
	if err != nil {
		t.Fatal(err)
	}
	tmpl := []inventory.TemplateCategory{
		{Name: "Мясо", Items: []inventory.TemplateItem{{Name: "Курица", Unit: "кг"}}},
	}
	if err := inv.Seed(context.Background(), tmpl); err != nil {
		t.Fatal(err)
	}

	events := event.NewStore(filepath.Join(dir, "events.json"), msk, logx.Nop())
	adapter := &fakeAdapter{}
	engine := &fakeEngine{}
	svc := New(adapter, registry, events, engine, inv, "s3cret", logx.Nop())

	return &fixture{
		svc:      svc,
		adapter:  adapter,
		registry: registry,
		events:   events,
		engine:   engine,
		inv:      inv,
	}
}

func message(from int64, text string) transport.Update {
	return transport.Update{
		Kind:    transport.UpdateMessage,
		Message: &transport.Message{ChatID: from, FromID: from, Text: text},
	}
}

func callback(from int64, data string) transport.Update {
	return transport.Update{
		Kind:     transport.UpdateCallback,
		Callback: &transport.Callback{ID: "cb", ChatID: from, FromID: from, Data: data},
	}
}

func TestPasswordPromotion(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()
	stranger := int64(999)

	f.svc.handleUpdate(ctx, message(stranger, "/start"))
	if got := f.adapter.lastText(t); !strings.Contains(got, "пароль") {
		t.Fatalf("expected password prompt, got %q", got)
	}

	f.svc.handleUpdate(ctx, message(stranger, "wrong"))
	if f.registry.IsAdmin(stranger) {
		t.Fatal("wrong password must not promote")
	}

	f.svc.handleUpdate(ctx, message(stranger, "s3cret"))
	if !f.registry.IsAdmin(stranger) {
		t.Fatal("correct password must promote to admin")
	}
	if got := f.adapter.lastText(t); got != "Главное меню" {
		t.Errorf("expected main menu after promotion, got %q", got)
	}
}

func TestInventoryCountingFlow(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	cats, err := f.inv.Categories(ctx)
	if err != nil || len(cats) != 1 {
		t.Fatalf("categories: %v %v", cats, err)
	}
	items, err := f.inv.Items(ctx, cats[0].ID)
	if err != nil || len(items) != 1 {
		t.Fatalf("items: %v %v", items, err)
	}

	// Staff has exactly one branch, so the branch choice is skipped and
	// the category menu comes straight away.
	f.svc.handleUpdate(ctx, callback(staffID, "menu:inv"))
	if got := f.adapter.lastText(t); !strings.Contains(got, "Центр") {
		t.Fatalf("expected category menu for Центр, got %q", got)
	}

	f.svc.handleUpdate(ctx, callback(staffID, "inv:cat:"+strconv.FormatInt(cats[0].ID, 10)))
	f.svc.handleUpdate(ctx, callback(staffID, "inv:item:"+strconv.FormatInt(items[0].ID, 10)))
	if got := f.adapter.lastText(t); !strings.Contains(got, "Курица") {
		t.Fatalf("expected kind prompt for item, got %q", got)
	}

	f.svc.handleUpdate(ctx, callback(staffID, "inv:kind:raw"))
	f.svc.handleUpdate(ctx, message(staffID, "12,5"))

	counts, err := f.inv.Counts(ctx, "Центр")
	if err != nil || len(counts) != 1 {
		t.Fatalf("counts: %v %v", counts, err)
	}
	if counts[0].Raw == nil || *counts[0].Raw != 12.5 {
		t.Errorf("raw = %v, want 12.5", counts[0].Raw)
	}
	if counts[0].Semi != nil {
		t.Errorf("semi = %v, want unset", counts[0].Semi)
	}
}

func TestQuantityRejectsGarbage(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	items, err := f.inv.Items(ctx, 1)
	if err != nil || len(items) != 1 {
		t.Fatalf("items: %v %v", items, err)
	}
	f.svc.setState(staffID, &userState{
		stage: stageQuantity, branch: "Центр", itemID: items[0].ID, kind: inventory.KindRaw,
	})

	f.svc.handleUpdate(ctx, message(staffID, "много"))
	if got := f.adapter.lastText(t); !strings.Contains(got, "число") {
		t.Fatalf("expected retry prompt, got %q", got)
	}
	f.svc.handleUpdate(ctx, message(staffID, "-3"))
	counts, err := f.inv.Counts(ctx, "Центр")
	if err != nil {
		t.Fatal(err)
	}
	if counts[0].Raw != nil {
		t.Error("rejected input must not be stored")
	}
}

func TestEventDeleteCallback(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	ev := event.Event{
		ID:          "ev-1",
		Description: "Поставка",
		Date:        "2099-03-10 09:00",
		ChatIDs:     []string{"Центр"},
		Active:      true,
	}
	if err := f.events.Put(ev); err != nil {
		t.Fatal(err)
	}

	// Staff may not touch events.
	f.svc.handleUpdate(ctx, callback(staffID, "ev:del:ev-1"))
	if _, ok := f.events.Get("ev-1"); !ok {
		t.Fatal("non-admin must not delete events")
	}

	f.svc.handleUpdate(ctx, callback(adminID, "ev:del:ev-1"))
	if _, ok := f.events.Get("ev-1"); ok {
		t.Fatal("event should be deleted")
	}
	if len(f.engine.cancelled) != 1 || f.engine.cancelled[0] != "ev-1" {
		t.Errorf("cancelled = %v", f.engine.cancelled)
	}
}

func TestGroupJoinRegistration(t *testing.T) {
	t.Parallel()
	f := newFixture(t)
	ctx := context.Background()

	join := func(title string, addedBy int64) transport.Update {
		return transport.Update{
			Kind:   transport.UpdateJoined,
			Joined: &transport.GroupJoin{ChatID: -1003, ChatTitle: title, AddedBy: addedBy},
		}
	}

	f.svc.handleUpdate(ctx, join("Юг", staffID))
	if f.registry.IsKnown("Юг") {
		t.Fatal("non-admin join must not register the chat")
	}

	f.svc.handleUpdate(ctx, join("Юг", adminID))
	id, ok := f.registry.Resolve("Юг")
	if !ok || id != -1003 {
		t.Fatalf("Resolve(Юг) = %d, %v", id, ok)
	}
	if got := f.adapter.lastText(t); !strings.Contains(got, "Юг") {
		t.Errorf("expected welcome mentioning the branch, got %q", got)
	}
}

func TestCallbackAccessDenied(t *testing.T) {
	t.Parallel()
	f := newFixture(t)

	f.svc.handleUpdate(context.Background(), callback(999, "menu:inv"))
	if len(f.adapter.sent) != 0 {
		t.Errorf("unexpected messages: %v", f.adapter.sent)
	}
	if len(f.adapter.answers) != 1 || f.adapter.answers[0] != "Нет доступа" {
		t.Errorf("answers = %v", f.adapter.answers)
	}
}
