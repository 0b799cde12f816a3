// Package schedule owns the pending-notification set: computing fire
// times from events, persisting the set across restarts, the dispatch
// loop and cancellation/replanning.
package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"invbot/internal/event"
	"invbot/internal/eventbus"
	"invbot/internal/recurrence"
	"invbot/pkg/logx"
)

// Sender delivers one message to one target. Failures are logged by the
// engine and never retried.
type Sender interface {
	Send(ctx context.Context, target, text string) error
}

// CancelGranularity is the precision at which cancellation matches fire
// times: seconds are deliberately ignored so a caller reconstructing a
// fire time from a minute-resolution anchor still hits the entry.
const CancelGranularity = time.Minute

// tickBackoff is slept after a failed dispatch tick before resuming.
const tickBackoff = 5 * time.Second

// RepeatPrefix marks messages rescheduled by the replan pass.
const RepeatPrefix = "\U0001F504 " // 🔄

type entry struct {
	message string
	eventID string
}

type pendingKey struct {
	at     int64 // unix seconds in the operational timezone
	target string
}

type Engine struct {
	store  *PendingStore
	events *event.Store
	sender Sender
	bus    eventbus.Bus
	log    logx.Logger
	loc    *time.Location
	tick   time.Duration

	now func() time.Time

	mu      sync.Mutex
	pending map[int64]map[string]entry
	byEvent map[string]map[pendingKey]struct{}
}

type Option func(*Engine)

// WithClock fixes "now" for tests.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithTick(d time.Duration) Option {
	return func(e *Engine) {
		if d > 0 {
			e.tick = d
		}
	}
}

func NewEngine(store *PendingStore, events *event.Store, sender Sender, bus eventbus.Bus, log logx.Logger, opts ...Option) *Engine {
	loc := events.Location()
	e := &Engine{
		store:   store,
		events:  events,
		sender:  sender,
		bus:     bus,
		log:     log,
		loc:     loc,
		tick:    time.Second,
		now:     func() time.Time { return time.Now().In(loc) },
		pending: map[int64]map[string]entry{},
		byEvent: map[string]map[pendingKey]struct{}{},
	}
	for _, o := range opts {
		o(e)
	}
	return e
}

// Load restores the pending set from the snapshot. Entries whose fire
// time has already passed are dropped silently: a long-offline process
// must not flood chats with backlog.
func (e *Engine) Load() error {
	snap, err := e.store.Load()
	if err != nil {
		return err
	}
	now := e.now()

	e.mu.Lock()
	defer e.mu.Unlock()
	e.pending = map[int64]map[string]entry{}
	e.byEvent = map[string]map[pendingKey]struct{}{}

	for k, rec := range snap {
		fireAt, err := time.Parse(TimeKeyLayout, k)
		if err != nil {
			e.log.Error("skipping pending bucket with bad time key",
				logx.String("key", k), logx.Err(err))
			continue
		}
		if !fireAt.After(now) {
			continue
		}
		for _, target := range rec.Targets {
			e.insertLocked(fireAt, target, entry{
				message: rec.Messages[target],
				eventID: rec.EventIDs[target],
			})
		}
	}
	e.log.Info("pending notifications loaded", logx.Int("buckets", len(e.pending)))
	return nil
}

// Schedule inserts one pending notification per target at fireAt.
// Scheduling the same (fireAt, target) again overwrites the message: last
// write wins. A snapshot save failure is logged, the in-memory insertion
// stands.
func (e *Engine) Schedule(fireAt time.Time, targets []string, message, eventID string) {
	if len(targets) == 0 {
		return
	}
	fireAt = e.normalize(fireAt)

	e.mu.Lock()
	for _, target := range targets {
		e.insertLocked(fireAt, target, entry{message: message, eventID: eventID})
	}
	e.saveLocked()
	e.mu.Unlock()

	e.publish(eventbus.TypeReminderScheduled, map[string]any{
		"fire_at":  fireAt.Format(TimeKeyLayout),
		"targets":  len(targets),
		"event_id": eventID,
	})
}

// Cancel removes the pending notification matching fireAt (compared at
// CancelGranularity) and target. Cancelling an entry that is absent,
// already fired or already past is a no-op success: the caller cannot
// distinguish "was cancelled" from "was already gone".
func (e *Engine) Cancel(fireAt time.Time, target string) {
	want := e.normalize(fireAt).Truncate(CancelGranularity)

	e.mu.Lock()
	removed := false
	for at, bucket := range e.pending {
		if time.Unix(at, 0).In(e.loc).Truncate(CancelGranularity).Equal(want) {
			if _, ok := bucket[target]; ok {
				e.removeLocked(at, target)
				removed = true
			}
		}
	}
	if removed {
		e.saveLocked()
	}
	e.mu.Unlock()

	if removed {
		e.publish(eventbus.TypeReminderCanceled, map[string]any{
			"fire_at": want.Format(TimeKeyLayout),
			"target":  target,
		})
	}
}

// CancelEvent removes every pending notification owned by the event and
// reports how many entries were dropped.
func (e *Engine) CancelEvent(eventID string) int {
	e.mu.Lock()
	keys := e.byEvent[eventID]
	n := len(keys)
	for k := range keys {
		e.removeLocked(k.at, k.target)
	}
	if n > 0 {
		e.saveLocked()
	}
	e.mu.Unlock()

	if n > 0 {
		e.publish(eventbus.TypeReminderCanceled, map[string]any{
			"event_id": eventID,
			"count":    n,
		})
	}
	return n
}

// PendingCount reports the number of pending entries across all buckets.
func (e *Engine) PendingCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	n := 0
	for _, bucket := range e.pending {
		n += len(bucket)
	}
	return n
}

// ScheduleEvent derives and schedules every notification offset of the
// event against its current anchor. Fire times already in the past are
// skipped. The prefix is prepended to each message ("" for a fresh
// event, RepeatPrefix when replanning).
func (e *Engine) ScheduleEvent(ev event.Event, prefix string) error {
	anchor, err := ev.Anchor(e.loc)
	if err != nil {
		return err
	}
	now := e.now()
	for _, off := range ev.Notifications {
		fireAt := anchor.Add(-time.Duration(off.Lead) * time.Minute)
		if fireAt.Before(now) {
			continue
		}
		e.Schedule(fireAt, ev.ChatIDs, prefix+renderMessage(ev, off), ev.ID)
	}
	return nil
}

func renderMessage(ev event.Event, off event.Offset) string {
	if off.Message != "" {
		return off.Message
	}
	return fmt.Sprintf("⏰ %s (%s)", ev.Description, ev.Date)
}

// IsEventActive reports whether the event still has a future occurrence
// at now. Any computation failure means inactive: fail safe, not crash.
func (e *Engine) IsEventActive(ev event.Event, now time.Time) bool {
	anchor, err := ev.Anchor(e.loc)
	if err != nil {
		return false
	}
	if ev.Repeat.Type == recurrence.None || ev.Repeat.Type == "" {
		return anchor.After(now)
	}
	_, ok := recurrence.FirstAfter(ev.Repeat, anchor, now)
	return ok
}

// ReplanRepeatingEvents reconciles every event's activity status and
// advances lapsed recurring anchors to their next occurrence,
// rescheduling the event's notification offsets against the new anchor.
func (e *Engine) ReplanRepeatingEvents() {
	now := e.now()
	for _, ev := range e.events.All() {
		active := e.IsEventActive(ev, now)
		recurring := ev.Repeat.Type != recurrence.None && ev.Repeat.Type != ""

		advanced := false
		if recurring && active {
			anchor, err := ev.Anchor(e.loc)
			if err == nil && !anchor.After(now) {
				next, ok := recurrence.FirstAfter(ev.Repeat, anchor, now)
				if ok {
					ev.SetAnchor(next)
					advanced = true
				}
			}
		}

		if !advanced && ev.Active == active {
			continue
		}

		ev.MarkChecked(active, now)
		id, date := ev.ID, ev.Date
		if err := e.events.Update(id, func(stored *event.Event) {
			stored.Date = date
			stored.Active = active
			stored.LastChecked = ev.LastChecked
		}); err != nil {
			e.log.Error("replan: event update failed",
				logx.String("event_id", id), logx.Err(err))
			continue
		}
		if advanced {
			if err := e.ScheduleEvent(ev, RepeatPrefix); err != nil {
				e.log.Error("replan: reschedule failed",
					logx.String("event_id", id), logx.Err(err))
				continue
			}
			e.log.Info("recurring event replanned",
				logx.String("event_id", id), logx.String("anchor", date))
		}
	}
}

// Run is the dispatch loop. Once per tick every entry with a fire time at
// or before now is sent and removed. A panicking tick is recovered,
// logged and followed by a backoff sleep; the loop exits only when the
// context is canceled.
func (e *Engine) Run(ctx context.Context) error {
	ticker := time.NewTicker(e.tick)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			if err := e.safeTick(ctx); err != nil {
				e.log.Error("dispatch tick failed", logx.Err(err))
				select {
				case <-ctx.Done():
					return ctx.Err()
				case <-time.After(tickBackoff):
				}
			}
		}
	}
}

func (e *Engine) safeTick(ctx context.Context) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panicked: %v", r)
		}
	}()
	e.DispatchDue(ctx)
	return nil
}

// DispatchDue fires everything due at now. Entries are removed from the
// pending set and persisted before sending: delivery is at-most-once,
// a send failure is logged per target and never blocks sibling sends.
func (e *Engine) DispatchDue(ctx context.Context) {
	now := e.now()

	type due struct {
		at     time.Time
		target string
		entry  entry
	}

	e.mu.Lock()
	var batch []due
	for at, bucket := range e.pending {
		if at > now.Unix() {
			continue
		}
		fireAt := time.Unix(at, 0).In(e.loc)
		for target, ent := range bucket {
			batch = append(batch, due{at: fireAt, target: target, entry: ent})
		}
		for target := range bucket {
			e.removeLocked(at, target)
		}
	}
	if len(batch) > 0 {
		e.saveLocked()
	}
	e.mu.Unlock()

	for _, d := range batch {
		if err := e.sender.Send(ctx, d.target, d.entry.message); err != nil {
			e.log.Error("notification send failed",
				logx.String("target", d.target),
				logx.Time("fire_at", d.at),
				logx.Err(err))
			e.publish(eventbus.TypeReminderFailed, map[string]any{
				"target":   d.target,
				"event_id": d.entry.eventID,
			})
			continue
		}
		e.log.Info("notification sent",
			logx.String("target", d.target),
			logx.Time("fire_at", d.at))
		e.publish(eventbus.TypeReminderSent, map[string]any{
			"target":   d.target,
			"event_id": d.entry.eventID,
		})
	}
}

func (e *Engine) normalize(t time.Time) time.Time {
	return t.In(e.loc).Truncate(time.Second)
}

func (e *Engine) insertLocked(fireAt time.Time, target string, ent entry) {
	at := fireAt.Unix()
	bucket := e.pending[at]
	if bucket == nil {
		bucket = map[string]entry{}
		e.pending[at] = bucket
	}
	// Replacing an entry re-homes it under the new owning event.
	if old, ok := bucket[target]; ok && old.eventID != ent.eventID {
		e.dropIndexLocked(old.eventID, pendingKey{at: at, target: target})
	}
	bucket[target] = ent
	if ent.eventID != "" {
		idx := e.byEvent[ent.eventID]
		if idx == nil {
			idx = map[pendingKey]struct{}{}
			e.byEvent[ent.eventID] = idx
		}
		idx[pendingKey{at: at, target: target}] = struct{}{}
	}
}

func (e *Engine) removeLocked(at int64, target string) {
	bucket, ok := e.pending[at]
	if !ok {
		return
	}
	ent, ok := bucket[target]
	if !ok {
		return
	}
	delete(bucket, target)
	if len(bucket) == 0 {
		delete(e.pending, at)
	}
	e.dropIndexLocked(ent.eventID, pendingKey{at: at, target: target})
}

func (e *Engine) dropIndexLocked(eventID string, k pendingKey) {
	if eventID == "" {
		return
	}
	idx := e.byEvent[eventID]
	if idx == nil {
		return
	}
	delete(idx, k)
	if len(idx) == 0 {
		delete(e.byEvent, eventID)
	}
}

// saveLocked snapshots the pending set. I/O failure is logged and the
// in-memory state is kept; disk catches up on the next successful save.
func (e *Engine) saveLocked() {
	snap := make(map[string]Record, len(e.pending))
	for at, bucket := range e.pending {
		key := time.Unix(at, 0).In(e.loc).Format(TimeKeyLayout)
		rec := Record{
			Messages: make(map[string]string, len(bucket)),
			EventIDs: map[string]string{},
		}
		for target, ent := range bucket {
			rec.Targets = append(rec.Targets, target)
			rec.Messages[target] = ent.message
			if ent.eventID != "" {
				rec.EventIDs[target] = ent.eventID
			}
		}
		snap[key] = rec
	}
	if err := e.store.Save(snap); err != nil {
		e.log.Error("pending snapshot save failed", logx.Err(err))
	}
}

func (e *Engine) publish(typ string, data any) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(eventbus.Event{Type: typ, Data: data})
}
