// Package reconcile translates heterogeneous inbound signals into thread
// store mutations: new-message events, edit/delete confirmations, reaction
// set updates, optimistic local echoes, and system notices. Delivery is
// assumed at-least-once with no ordering guarantee; every path is idempotent
// by construction because the store merges on identity.
package reconcile

import (
	"encoding/json"

	"chatsync/pkg/models"
)

// Type tags an inbound transport event.
type Type string

const (
	EventMessageNew       Type = "message:new"
	EventMessageEdited    Type = "message:edited"
	EventMessageDeleted   Type = "message:deleted"
	EventMessageReactions Type = "message:reactions"
	EventSystemNotice     Type = "system:notice"
)

// Event is the wire shape the delivery contract hands the engine. Fields
// beyond type, thread and one usable identity are optional per type.
type Event struct {
	Type     Type   `json:"type"`
	ThreadID string `json:"threadId"`

	MessageID string           `json:"messageId,omitempty"`
	LocalID   string           `json:"localId,omitempty"`
	UserID    string           `json:"userId,omitempty"`
	Username  string           `json:"username,omitempty"`
	Timestamp models.Timestamp `json:"timestamp,omitempty"`

	Text    string                `json:"text,omitempty"`
	Kind    models.Kind           `json:"kind,omitempty"`
	Media   *models.Media         `json:"media,omitempty"`
	Audio   *models.Audio         `json:"audio,omitempty"`
	ReplyTo *models.ReplySnapshot `json:"replyTo,omitempty"`

	Reactions map[string]models.Reaction `json:"reactions,omitempty"`

	// NewText carries the replacement text for message:edited.
	NewText      string `json:"newText,omitempty"`
	LastEditedAt int64  `json:"lastEditedAt,omitempty"`
	DeletedAt    int64  `json:"deletedAt,omitempty"`
}

// Identity extracts the event's addressing identity.
func (ev *Event) Identity() models.Identity {
	return models.Identity{
		MessageID: ev.MessageID,
		LocalID:   ev.LocalID,
		Username:  ev.Username,
		Timestamp: ev.Timestamp,
	}
}

// validate reports whether the event carries enough to act on. Malformed
// events are dropped silently at this boundary; the reason is only for
// diagnostics.
func (ev *Event) validate() (ok bool, reason string) {
	switch ev.Type {
	case EventMessageNew, EventMessageEdited, EventMessageDeleted, EventMessageReactions, EventSystemNotice:
	default:
		return false, "unknown_type"
	}
	if ev.ThreadID == "" {
		return false, "missing_thread"
	}
	if ev.Type == EventSystemNotice {
		// notices need only text; identity is synthesized on append
		if ev.Text == "" {
			return false, "missing_text"
		}
		return true, ""
	}
	if !ev.Identity().Valid() {
		return false, "missing_identity"
	}
	return true, ""
}

// ParseEvent decodes a raw payload into an Event.
func ParseEvent(raw []byte) (Event, error) {
	var ev Event
	err := json.Unmarshal(raw, &ev)
	return ev, err
}
