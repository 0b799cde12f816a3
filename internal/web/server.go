// Package web is the HTTP backend the event-creation frontend talks to.
package web

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"invbot/internal/chats"
	"invbot/internal/event"
	"invbot/pkg/logx"
)

// Engine is the slice of the scheduling engine the handlers need.
type Engine interface {
	ScheduleEvent(ev event.Event, prefix string) error
	CancelEvent(eventID string) int
	PendingCount() int
}

// Announcer posts the "new event" notice to each target chat.
type Announcer interface {
	Send(ctx context.Context, target, text string) error
}

// DispatchStats surfaces reminder delivery counters on /health.
type DispatchStats interface {
	Snapshot() map[string]uint64
}

type Server struct {
	events   *event.Store
	engine   Engine
	registry *chats.Registry
	notify   Announcer
	stats    DispatchStats
	log      logx.Logger
	loc      *time.Location

	addr    string
	origins []string
}

func NewServer(addr string, origins []string, events *event.Store, engine Engine, registry *chats.Registry, notify Announcer, stats DispatchStats, log logx.Logger) *Server {
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return &Server{
		events:   events,
		engine:   engine,
		registry: registry,
		notify:   notify,
		stats:    stats,
		log:      log,
		loc:      events.Location(),
		addr:     addr,
		origins:  origins,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.origins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Route("/events", func(r chi.Router) {
		r.Get("/", s.handleListEvents)
		r.Post("/", s.handleCreateEvent)
		r.Delete("/{id}", s.handleDeleteEvent)
	})
	r.Get("/chats", s.handleChats)
	return r
}

// Serve runs the HTTP server until ctx is canceled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	s.log.Info("web server listening", logx.String("addr", s.addr))

	select {
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(sctx)
		return nil
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
