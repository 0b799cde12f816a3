package bot

import (
	"context"
	"fmt"
	"strings"

	"invbot/internal/transport"
	"invbot/pkg/logx"
	"invbot/pkg/tgui"
)

func (s *Service) sendMainMenu(ctx context.Context, chatID, userID int64) {
	kb := tgui.NewInline().
		Row(tgui.Btn("📦 Инвентаризация", tgui.Data("menu", "inv", ""))).
		Row(tgui.Btn("📊 Отчёт", tgui.Data("menu", "report", "")))
	if s.registry.IsAdmin(userID) {
		kb.Row(tgui.Btn("📅 События", tgui.Data("menu", "events", "")))
	}
	s.replyMarkup(ctx, chatID, "Главное меню", kb.Markup())
}

func (s *Service) handleCallback(ctx context.Context, cb *transport.Callback) {
	if !s.hasAccess(cb.FromID) {
		s.answer(ctx, cb, "Нет доступа")
		return
	}
	scope, action, payload := tgui.Split(cb.Data)
	switch scope {
	case "menu":
		s.handleMenuCallback(ctx, cb, action)
	case "ev":
		s.handleEventCallback(ctx, cb, action, payload)
	case "inv":
		s.handleInventoryCallback(ctx, cb, action, payload)
	case "rep":
		s.handleReportCallback(ctx, cb, payload)
	default:
		s.answer(ctx, cb, "")
	}
}

func (s *Service) handleMenuCallback(ctx context.Context, cb *transport.Callback, action string) {
	switch action {
	case "inv":
		s.answer(ctx, cb, "")
		s.promptBranch(ctx, cb.ChatID, cb.FromID, "inv")
	case "report":
		s.answer(ctx, cb, "")
		s.promptBranch(ctx, cb.ChatID, cb.FromID, "rep")
	case "events":
		if !s.registry.IsAdmin(cb.FromID) {
			s.answer(ctx, cb, "Только для администраторов")
			return
		}
		s.answer(ctx, cb, "")
		s.sendEventList(ctx, cb.ChatID)
	default:
		s.answer(ctx, cb, "")
	}
}

// promptBranch shows the branches the user may work with. With exactly
// one branch the choice is skipped.
func (s *Service) promptBranch(ctx context.Context, chatID, userID int64, scope string) {
	names := s.registry.UserChats(userID)
	if len(names) == 0 {
		s.reply(ctx, chatID, "За вами не закреплён ни один филиал.")
		return
	}
	if len(names) == 1 {
		s.branchChosen(ctx, chatID, userID, scope, names[0])
		return
	}
	kb := tgui.NewInline()
	for _, name := range names {
		kb.Row(tgui.Btn(name, tgui.Data(scope, "chat", name)))
	}
	s.replyMarkup(ctx, chatID, "Выберите филиал:", kb.Markup())
}

func (s *Service) branchChosen(ctx context.Context, chatID, userID int64, scope, branch string) {
	switch scope {
	case "inv":
		s.setState(userID, &userState{branch: branch})
		s.promptCategory(ctx, chatID, branch)
	case "rep":
		s.sendReport(ctx, chatID, branch)
	}
}

func (s *Service) handleReportCallback(ctx context.Context, cb *transport.Callback, branch string) {
	s.answer(ctx, cb, "")
	s.sendReport(ctx, cb.ChatID, branch)
}

func (s *Service) sendReport(ctx context.Context, chatID int64, branch string) {
	text, err := s.inv.Report(ctx, branch)
	if err != nil {
		s.log.Error("inventory report failed",
			logx.String("branch", branch), logx.Err(err))
		s.reply(ctx, chatID, "⚠️ Не удалось построить отчёт.")
		return
	}
	s.reply(ctx, chatID, text)
}

func (s *Service) sendEventList(ctx context.Context, chatID int64) {
	all := s.events.All()
	if len(all) == 0 {
		s.reply(ctx, chatID, "Событий нет.")
		return
	}
	kb := tgui.NewInline()
	for _, ev := range all {
		mark := "▫️"
		if ev.Active {
			mark = "🔔"
		}
		label := fmt.Sprintf("%s %s — %s", mark, ev.Date, ev.Description)
		kb.Row(tgui.Btn(label, tgui.Data("ev", "view", ev.ID)))
	}
	s.replyMarkup(ctx, chatID, "События:", kb.Markup())
}

func (s *Service) handleEventCallback(ctx context.Context, cb *transport.Callback, action, id string) {
	if !s.registry.IsAdmin(cb.FromID) {
		s.answer(ctx, cb, "Только для администраторов")
		return
	}
	switch action {
	case "view":
		ev, ok := s.events.Get(id)
		if !ok {
			s.answer(ctx, cb, "Событие не найдено")
			return
		}
		s.answer(ctx, cb, "")
		var b strings.Builder
		fmt.Fprintf(&b, "📅 %s\n🗓 %s\n", ev.Description, ev.Date)
		fmt.Fprintf(&b, "Филиалы: %s\n", strings.Join(ev.ChatIDs, ", "))
		if ev.Repeat.Type != "" && ev.Repeat.Type != "none" {
			fmt.Fprintf(&b, "Повтор: %s\n", ev.Repeat.Type)
		}
		for _, off := range ev.Notifications {
			fmt.Fprintf(&b, "⏰ за %d мин: %s\n", off.Lead, off.Message)
		}
		kb := tgui.NewInline().
			Row(tgui.Btn("🗑 Удалить", tgui.Data("ev", "del", ev.ID))).
			Row(tgui.Btn("← Назад", tgui.Data("menu", "events", "")))
		s.replyMarkup(ctx, cb.ChatID, b.String(), kb.Markup())
	case "del":
		removed, ok, err := s.events.Delete(id)
		if err != nil {
			s.log.Error("event delete failed", logx.String("event_id", id), logx.Err(err))
			s.answer(ctx, cb, "Ошибка удаления")
			return
		}
		if !ok {
			s.answer(ctx, cb, "Событие не найдено")
			return
		}
		n := s.engine.CancelEvent(removed.ID)
		s.log.Info("event deleted via bot",
			logx.String("event_id", id), logx.Int("cancelled", n))
		s.answer(ctx, cb, "Удалено")
		s.sendEventList(ctx, cb.ChatID)
	default:
		s.answer(ctx, cb, "")
	}
}
