package bot

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"invbot/internal/inventory"
	"invbot/internal/transport"
	"invbot/pkg/logx"
	"invbot/pkg/tgui"
)

func (s *Service) handleInventoryCallback(ctx context.Context, cb *transport.Callback, action, payload string) {
	switch action {
	case "chat":
		if !s.userHasBranch(cb.FromID, payload) {
			s.answer(ctx, cb, "Филиал не закреплён за вами")
			return
		}
		s.answer(ctx, cb, "")
		s.branchChosen(ctx, cb.ChatID, cb.FromID, "inv", payload)
	case "cat":
		s.answer(ctx, cb, "")
		s.promptItems(ctx, cb, payload)
	case "item":
		s.answer(ctx, cb, "")
		s.promptKind(ctx, cb, payload)
	case "kind":
		s.promptQuantity(ctx, cb, payload)
	case "back":
		st := s.state(cb.FromID)
		if st == nil {
			s.answer(ctx, cb, "")
			s.sendMainMenu(ctx, cb.ChatID, cb.FromID)
			return
		}
		s.answer(ctx, cb, "")
		s.promptCategory(ctx, cb.ChatID, st.branch)
	default:
		s.answer(ctx, cb, "")
	}
}

func (s *Service) userHasBranch(userID int64, branch string) bool {
	for _, name := range s.registry.UserChats(userID) {
		if name == branch {
			return true
		}
	}
	return false
}

func (s *Service) promptCategory(ctx context.Context, chatID int64, branch string) {
	cats, err := s.inv.Categories(ctx)
	if err != nil {
		s.log.Error("category listing failed", logx.Err(err))
		s.reply(ctx, chatID, "⚠️ Не удалось загрузить категории.")
		return
	}
	if len(cats) == 0 {
		s.reply(ctx, chatID, "Справочник пуст.")
		return
	}

	done, total, err := s.inv.Completion(ctx, branch)
	header := fmt.Sprintf("📦 %s\nВыберите категорию:", branch)
	if err == nil {
		header = fmt.Sprintf("📦 %s\nЗаполнено: %d из %d\nВыберите категорию:", branch, done, total)
	}

	kb := tgui.NewInline()
	for _, c := range cats {
		kb.Row(tgui.Btn(c.Name, tgui.Data("inv", "cat", strconv.FormatInt(c.ID, 10))))
	}
	s.replyMarkup(ctx, chatID, header, kb.Markup())
}

func (s *Service) promptItems(ctx context.Context, cb *transport.Callback, payload string) {
	catID, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		s.reply(ctx, cb.ChatID, "⚠️ Некорректная категория.")
		return
	}
	items, err := s.inv.Items(ctx, catID)
	if err != nil {
		s.log.Error("item listing failed",
			logx.Int64("category_id", catID), logx.Err(err))
		s.reply(ctx, cb.ChatID, "⚠️ Не удалось загрузить позиции.")
		return
	}
	if len(items) == 0 {
		s.reply(ctx, cb.ChatID, "В категории нет позиций.")
		return
	}

	kb := tgui.NewInline()
	for _, it := range items {
		kb.Row(tgui.Btn(it.Name, tgui.Data("inv", "item", strconv.FormatInt(it.ID, 10))))
	}
	kb.Row(tgui.Btn("← Назад", tgui.Data("inv", "back", "")))
	s.replyMarkup(ctx, cb.ChatID, "Выберите позицию:", kb.Markup())
}

func (s *Service) promptKind(ctx context.Context, cb *transport.Callback, payload string) {
	itemID, err := strconv.ParseInt(payload, 10, 64)
	if err != nil {
		s.reply(ctx, cb.ChatID, "⚠️ Некорректная позиция.")
		return
	}
	st := s.state(cb.FromID)
	if st == nil || st.branch == "" {
		s.reply(ctx, cb.ChatID, "Сессия сброшена, начните заново: /start")
		return
	}
	st.itemID = itemID
	st.stage = stageIdle
	s.setState(cb.FromID, st)

	item, err := s.inv.Item(ctx, itemID)
	if err != nil {
		s.log.Error("item lookup failed", logx.Int64("item_id", itemID), logx.Err(err))
		s.reply(ctx, cb.ChatID, "⚠️ Позиция не найдена.")
		return
	}
	kb := tgui.NewInline().
		Row(
			tgui.Btn("Сырьё", tgui.Data("inv", "kind", inventory.KindRaw)),
			tgui.Btn("Полуфабрикат", tgui.Data("inv", "kind", inventory.KindSemi)),
		).
		Row(tgui.Btn("← Назад", tgui.Data("inv", "back", "")))
	s.replyMarkup(ctx, cb.ChatID,
		fmt.Sprintf("%s (%s)\nЧто считаем?", item.Name, item.Unit), kb.Markup())
}

func (s *Service) promptQuantity(ctx context.Context, cb *transport.Callback, kind string) {
	if kind != inventory.KindRaw && kind != inventory.KindSemi {
		s.answer(ctx, cb, "Неизвестный тип")
		return
	}
	st := s.state(cb.FromID)
	if st == nil || st.branch == "" || st.itemID == 0 {
		s.answer(ctx, cb, "Сессия сброшена")
		s.reply(ctx, cb.ChatID, "Начните заново: /start")
		return
	}
	st.kind = kind
	st.stage = stageQuantity
	s.setState(cb.FromID, st)
	s.answer(ctx, cb, "")
	s.reply(ctx, cb.ChatID, "Введите количество числом, например 12 или 3.5:")
}

func (s *Service) handleQuantityInput(ctx context.Context, m *transport.Message, st *userState, text string) {
	qty, err := strconv.ParseFloat(strings.ReplaceAll(text, ",", "."), 64)
	if err != nil || qty < 0 {
		s.reply(ctx, m.ChatID, "Нужно неотрицательное число, например 12 или 3.5. Попробуйте ещё раз:")
		return
	}
	if err := s.inv.SetCount(ctx, st.branch, st.itemID, st.kind, qty); err != nil {
		s.log.Error("count save failed",
			logx.String("branch", st.branch),
			logx.Int64("item_id", st.itemID), logx.Err(err))
		s.reply(ctx, m.ChatID, "⚠️ Не удалось сохранить, попробуйте ещё раз.")
		return
	}

	st.stage = stageIdle
	st.kind = ""
	s.setState(m.FromID, st)

	done, total, err := s.inv.Completion(ctx, st.branch)
	if err == nil && done == total && total > 0 {
		s.reply(ctx, m.ChatID, "✅ Сохранено. Инвентаризация заполнена полностью!")
		s.sendReport(ctx, m.ChatID, st.branch)
		s.clearState(m.FromID)
		return
	}
	s.reply(ctx, m.ChatID, "✅ Сохранено.")
	s.promptCategory(ctx, m.ChatID, st.branch)
}
