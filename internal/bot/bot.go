// Package bot implements the Telegram conversation surface: access
// control, the main menu, the events browser and the inventory counting
// flow.
package bot

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"invbot/internal/chats"
	"invbot/internal/event"
	"invbot/internal/inventory"
	"invbot/internal/transport"
	"invbot/pkg/logx"
)

// Engine is the slice of the scheduling engine the bot needs.
type Engine interface {
	CancelEvent(eventID string) int
}

type Service struct {
	adapter  transport.Adapter
	registry *chats.Registry
	events   *event.Store
	engine   Engine
	inv      *inventory.Store
	log      logx.Logger
	password string

	mu     sync.Mutex
	states map[int64]*userState
}

func New(adapter transport.Adapter, registry *chats.Registry, events *event.Store, engine Engine, inv *inventory.Store, password string, log logx.Logger) *Service {
	return &Service{
		adapter:  adapter,
		registry: registry,
		events:   events,
		engine:   engine,
		inv:      inv,
		password: password,
		log:      log,
		states:   map[int64]*userState{},
	}
}

// Run consumes adapter updates until ctx is canceled.
func (s *Service) Run(ctx context.Context) error {
	updates := make(chan transport.Update, 64)
	if err := s.adapter.Start(ctx, updates); err != nil {
		return fmt.Errorf("start adapter: %w", err)
	}
	defer func() {
		sctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = s.adapter.Stop(sctx)
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case up := <-updates:
			s.handleUpdate(ctx, up)
		}
	}
}

func (s *Service) handleUpdate(ctx context.Context, up transport.Update) {
	switch up.Kind {
	case transport.UpdateMessage:
		if up.Message != nil && !up.Message.IsGroup {
			s.handleMessage(ctx, up.Message)
		}
	case transport.UpdateCallback:
		if up.Callback != nil {
			s.handleCallback(ctx, up.Callback)
		}
	case transport.UpdateJoined:
		if up.Joined != nil {
			s.handleJoined(ctx, up.Joined)
		}
	}
}

func (s *Service) handleMessage(ctx context.Context, m *transport.Message) {
	text := strings.TrimSpace(m.Text)

	if text == "/start" {
		s.clearState(m.FromID)
		if s.hasAccess(m.FromID) {
			s.sendMainMenu(ctx, m.ChatID, m.FromID)
			return
		}
		s.reply(ctx, m.ChatID, "🔐 Введите пароль для доступа.")
		return
	}

	// A pending quantity prompt takes priority over everything else.
	if st := s.state(m.FromID); st != nil && st.stage == stageQuantity {
		s.handleQuantityInput(ctx, m, st, text)
		return
	}

	if !s.hasAccess(m.FromID) {
		if s.password != "" && text == s.password {
			if err := s.registry.AddAdmin(m.FromID); err != nil {
				s.log.Error("admin promotion failed",
					logx.Int64("user_id", m.FromID), logx.Err(err))
				s.reply(ctx, m.ChatID, "⚠️ Не удалось сохранить доступ, попробуйте позже.")
				return
			}
			s.log.Info("admin promoted", logx.Int64("user_id", m.FromID))
			s.reply(ctx, m.ChatID, "✅ Доступ выдан.")
			s.sendMainMenu(ctx, m.ChatID, m.FromID)
			return
		}
		s.reply(ctx, m.ChatID, "⛔ Нет доступа. Введите пароль или обратитесь к администратору.")
		return
	}

	s.reply(ctx, m.ChatID, "Не понимаю. Откройте меню: /start")
}

// handleJoined registers a group when the bot is added by an admin.
func (s *Service) handleJoined(ctx context.Context, j *transport.GroupJoin) {
	if !s.registry.IsAdmin(j.AddedBy) {
		s.log.Warn("bot added to group by non-admin",
			logx.Int64("chat_id", j.ChatID), logx.Int64("added_by", j.AddedBy))
		s.reply(ctx, j.ChatID, "⛔ Добавлять бота в группы может только администратор.")
		return
	}
	name := strings.TrimSpace(j.ChatTitle)
	if name == "" {
		name = fmt.Sprintf("chat-%d", j.ChatID)
	}
	if err := s.registry.RegisterChat(name, j.ChatID); err != nil {
		s.log.Error("group registration failed",
			logx.String("name", name), logx.Err(err))
		return
	}
	s.log.Info("group registered",
		logx.String("name", name), logx.Int64("chat_id", j.ChatID))
	s.reply(ctx, j.ChatID, fmt.Sprintf("👋 Филиал «%s» подключён к напоминаниям.", name))
}

func (s *Service) hasAccess(userID int64) bool {
	return s.registry.IsAdmin(userID) || len(s.registry.UserChats(userID)) > 0
}

func (s *Service) reply(ctx context.Context, chatID int64, text string) {
	if _, err := s.adapter.SendText(ctx, chatID, text, nil); err != nil {
		s.log.Warn("reply failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}

func (s *Service) replyMarkup(ctx context.Context, chatID int64, text string, markup any) {
	opt := &transport.SendOptions{ReplyMarkup: markup}
	if _, err := s.adapter.SendText(ctx, chatID, text, opt); err != nil {
		s.log.Warn("reply failed", logx.Int64("chat_id", chatID), logx.Err(err))
	}
}

func (s *Service) answer(ctx context.Context, cb *transport.Callback, text string) {
	if err := s.adapter.AnswerCallback(ctx, cb.ID, text); err != nil {
		s.log.Debug("callback answer failed", logx.Err(err))
	}
}
