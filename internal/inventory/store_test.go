package inventory

import (
	"context"
	"strings"
	"testing"

	"invbot/internal/storage"
	"invbot/pkg/logx"
)

func newStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.OpenSQLite(":memory:", 0)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	s, err := NewStore(db, logx.Nop())
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return s
}

var testTemplate = []TemplateCategory{
	{Name: "Мясо", Items: []TemplateItem{
		{Name: "Курица", Unit: "кг"},
		{Name: "Говядина", Unit: "кг"},
	}},
	{Name: "Соусы", Items: []TemplateItem{
		{Name: "Острый", Unit: "л"},
	}},
}

func TestSeedIsIdempotent(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	if err := s.Seed(ctx, testTemplate); err != nil {
		t.Fatalf("Seed: %v", err)
	}
	// Second seed must not duplicate the catalog.
	if err := s.Seed(ctx, testTemplate); err != nil {
		t.Fatalf("second Seed: %v", err)
	}

	cats, err := s.Categories(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(cats) != 2 || cats[0].Name != "Мясо" {
		t.Fatalf("Categories = %+v", cats)
	}
	items, err := s.Items(ctx, cats[0].ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 2 {
		t.Fatalf("Items = %+v", items)
	}
}

func TestSetCountAndCompletion(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	if err := s.Seed(ctx, testTemplate); err != nil {
		t.Fatal(err)
	}
	cats, _ := s.Categories(ctx)
	items, _ := s.Items(ctx, cats[0].ID)

	if err := s.SetCount(ctx, "Центр", items[0].ID, KindRaw, 5); err != nil {
		t.Fatalf("SetCount raw: %v", err)
	}
	done, total, err := s.Completion(ctx, "Центр")
	if err != nil {
		t.Fatal(err)
	}
	if done != 0 || total != 3 {
		t.Errorf("done/total = %d/%d, want 0/3 (semi missing)", done, total)
	}

	if err := s.SetCount(ctx, "Центр", items[0].ID, KindSemi, 2.5); err != nil {
		t.Fatalf("SetCount semi: %v", err)
	}
	done, _, _ = s.Completion(ctx, "Центр")
	if done != 1 {
		t.Errorf("done = %d, want 1", done)
	}

	// The other quantity survives a later update.
	if err := s.SetCount(ctx, "Центр", items[0].ID, KindRaw, 7); err != nil {
		t.Fatal(err)
	}
	counts, err := s.Counts(ctx, "Центр")
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, c := range counts {
		if c.Item.ID == items[0].ID {
			found = true
			if c.Raw == nil || *c.Raw != 7 || c.Semi == nil || *c.Semi != 2.5 {
				t.Errorf("count = %+v", c)
			}
		}
	}
	if !found {
		t.Fatal("counted item missing from Counts")
	}

	// Branches are isolated.
	if done, _, _ := s.Completion(ctx, "Север"); done != 0 {
		t.Errorf("other branch done = %d", done)
	}

	if err := s.SetCount(ctx, "Центр", items[0].ID, "bogus", 1); err == nil {
		t.Error("SetCount accepted unknown kind")
	}
}

func TestClearKeepsCatalog(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	if err := s.Seed(ctx, testTemplate); err != nil {
		t.Fatal(err)
	}
	cats, _ := s.Categories(ctx)
	items, _ := s.Items(ctx, cats[0].ID)
	if err := s.SetCount(ctx, "Центр", items[0].ID, KindRaw, 1); err != nil {
		t.Fatal(err)
	}

	if err := s.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	counts, _ := s.Counts(ctx, "Центр")
	for _, c := range counts {
		if c.Raw != nil || c.Semi != nil {
			t.Errorf("count survived clear: %+v", c)
		}
	}
	if cats, _ := s.Categories(ctx); len(cats) != 2 {
		t.Error("catalog should survive a clear")
	}
}

func TestReport(t *testing.T) {
	t.Parallel()

	s := newStore(t)
	ctx := context.Background()
	if err := s.Seed(ctx, testTemplate); err != nil {
		t.Fatal(err)
	}
	cats, _ := s.Categories(ctx)
	items, _ := s.Items(ctx, cats[0].ID)
	if err := s.SetCount(ctx, "Центр", items[1].ID, KindRaw, 3.5); err != nil {
		t.Fatal(err)
	}

	report, err := s.Report(ctx, "Центр")
	if err != nil {
		t.Fatalf("Report: %v", err)
	}
	for _, want := range []string{"Центр", "0 из 3", "Мясо", "Соусы", "3.5", "—"} {
		if !strings.Contains(report, want) {
			t.Errorf("report missing %q:\n%s", want, report)
		}
	}
}
