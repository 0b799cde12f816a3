package web

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"invbot/internal/event"
	"invbot/internal/recurrence"
	"invbot/pkg/logx"
)

type createEventRequest struct {
	Description   string          `json:"description"`
	Date          string          `json:"date"`
	ChatIDs       []string        `json:"chat_ids"`
	Notifications []event.Offset  `json:"notifications"`
	Repeat        recurrence.Rule `json:"repeat"`
}

type createEventDetails struct {
	SuccessChats []string    `json:"success_chats"`
	FailedChats  []string    `json:"failed_chats"`
	EventData    event.Event `json:"event_data"`
}

type createEventResponse struct {
	Success bool               `json:"success"`
	Message string             `json:"message"`
	Details createEventDetails `json:"details"`
}

func (s *Server) handleListEvents(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.events.All())
}

func (s *Server) handleCreateEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if strings.TrimSpace(req.Description) == "" {
		writeError(w, http.StatusBadRequest, "description is required")
		return
	}
	anchor, err := time.ParseInLocation(event.AnchorLayout, strings.TrimSpace(req.Date), s.loc)
	if err != nil {
		writeError(w, http.StatusBadRequest,
			fmt.Sprintf("invalid date %q: want %s", req.Date, event.AnchorLayout))
		return
	}
	if !anchor.After(time.Now().In(s.loc)) {
		writeError(w, http.StatusBadRequest, "date must be in the future")
		return
	}
	if len(req.ChatIDs) == 0 {
		writeError(w, http.StatusBadRequest, "chat_ids must not be empty")
		return
	}
	for _, target := range req.ChatIDs {
		if !s.registry.IsKnown(target) {
			writeError(w, http.StatusBadRequest, fmt.Sprintf("unknown chat %q", target))
			return
		}
	}
	if req.Repeat.Type == "" {
		req.Repeat.Type = recurrence.None
	}

	ev := event.Event{
		ID:            uuid.NewString(),
		Description:   req.Description,
		Date:          anchor.Format(event.AnchorLayout),
		ChatIDs:       req.ChatIDs,
		Notifications: req.Notifications,
		Repeat:        req.Repeat,
		Active:        true,
	}
	if err := s.events.Put(ev); err != nil {
		s.log.Error("event create failed", logx.Err(err))
		writeError(w, http.StatusInternalServerError, "could not store event")
		return
	}
	if err := s.engine.ScheduleEvent(ev, ""); err != nil {
		s.log.Error("event scheduling failed",
			logx.String("event_id", ev.ID), logx.Err(err))
	}

	// Announce the new event to each target chat; a failed announcement
	// does not fail the request.
	notice := fmt.Sprintf("📅 Новое событие: %s\n🗓 %s", ev.Description, ev.Date)
	details := createEventDetails{
		SuccessChats: []string{},
		FailedChats:  []string{},
		EventData:    ev,
	}
	for _, target := range ev.ChatIDs {
		if err := s.notify.Send(r.Context(), target, notice); err != nil {
			s.log.Warn("event announcement failed",
				logx.String("target", target), logx.Err(err))
			details.FailedChats = append(details.FailedChats, target)
			continue
		}
		details.SuccessChats = append(details.SuccessChats, target)
	}

	writeJSON(w, http.StatusCreated, createEventResponse{
		Success: true,
		Message: "event created",
		Details: details,
	})
}

func (s *Server) handleDeleteEvent(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	removed, ok, err := s.events.Delete(id)
	if err != nil {
		s.log.Error("event delete failed", logx.String("event_id", id), logx.Err(err))
		writeError(w, http.StatusInternalServerError, "could not delete event")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "event not found")
		return
	}

	cancelled := s.engine.CancelEvent(removed.ID)
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"cancelled": cancelled,
	})
}

func (s *Server) handleChats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Chats())
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	body := map[string]any{
		"status":  "ok",
		"pending": s.engine.PendingCount(),
	}
	if s.stats != nil {
		body["dispatch"] = s.stats.Snapshot()
	}
	writeJSON(w, http.StatusOK, body)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, map[string]string{"error": msg})
}
