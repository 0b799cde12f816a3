// Package event holds the reminder event model and its JSON store.
package event

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"invbot/internal/recurrence"
)

// AnchorLayout is the wire format for event anchor datetimes. Anchors are
// local to the operational timezone; the layout carries no zone on purpose.
const AnchorLayout = "2006-01-02 15:04"

const checkedLayout = "2006-01-02 15:04:05"

// Offset is one notification rule of an event: fire Lead minutes before
// the anchor with the given message.
type Offset struct {
	Lead    int    `json:"time"`
	Message string `json:"message"`
}

type Event struct {
	ID            string          `json:"id"`
	Description   string          `json:"description"`
	Date          string          `json:"date"` // AnchorLayout
	ChatIDs       []string        `json:"chat_ids"`
	Notifications []Offset        `json:"notifications"`
	Repeat        recurrence.Rule `json:"repeat"`
	Active        bool            `json:"active"`
	LastChecked   string          `json:"last_checked,omitempty"`
}

// Anchor parses the event date in the operational timezone.
func (e *Event) Anchor(loc *time.Location) (time.Time, error) {
	t, err := time.ParseInLocation(AnchorLayout, strings.TrimSpace(e.Date), loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("event %s: bad anchor %q: %w", e.ID, e.Date, err)
	}
	return t, nil
}

// SetAnchor rewrites the stored date, used when replanning advances a
// recurring event to its next occurrence.
func (e *Event) SetAnchor(t time.Time) {
	e.Date = t.Format(AnchorLayout)
}

// MarkChecked records a reconciliation pass result.
func (e *Event) MarkChecked(active bool, now time.Time) {
	e.Active = active
	e.LastChecked = now.Format(checkedLayout)
}

// Validate rejects records that cannot be scheduled at all.
func (e *Event) Validate(loc *time.Location) error {
	if strings.TrimSpace(e.ID) == "" {
		return errors.New("event id is empty")
	}
	if len(e.ChatIDs) == 0 {
		return fmt.Errorf("event %s: no target chats", e.ID)
	}
	if _, err := e.Anchor(loc); err != nil {
		return err
	}
	return nil
}
