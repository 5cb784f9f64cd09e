package models

// Kind classifies a message payload.
type Kind string

const (
	KindText   Kind = "text"
	KindGif    Kind = "gif"
	KindMedia  Kind = "media"
	KindAudio  Kind = "audio"
	KindSystem Kind = "system"
)

// Media describes an image/gif/video attachment.
type Media struct {
	URL     string `json:"url,omitempty"`
	Type    string `json:"type,omitempty"`
	Width   int    `json:"width,omitempty"`
	Height  int    `json:"height,omitempty"`
	Preview string `json:"preview,omitempty"`
}

// Audio describes a voice-note attachment. DurationMs is patched in once the
// clip has been decoded client-side.
type Audio struct {
	URL        string `json:"url,omitempty"`
	DurationMs int64  `json:"durationMs,omitempty"`
}

// Reaction is one user's reaction to a message. Reactions are keyed by the
// reacting user's id in Message.Reactions; one entry per user, latest emoji
// wins, and the server is authoritative for the full set.
type Reaction struct {
	Emoji    string `json:"emoji"`
	At       int64  `json:"at"`
	UserID   string `json:"userId"`
	Username string `json:"username,omitempty"`
}

// Edit records one prior revision of a message's text.
type Edit struct {
	PreviousText string `json:"previousText"`
	EditedAt     int64  `json:"editedAt"`
}

// ReplySnapshot is a copy of a referenced message's display fields captured
// at reply-creation time, so the preview survives the original being edited
// or pruned out of the retention window. The one controlled mutation allowed
// afterwards is marking it deleted when the original is deleted.
type ReplySnapshot struct {
	MessageID string    `json:"messageId,omitempty"`
	Username  string    `json:"username,omitempty"`
	Text      string    `json:"text"`
	Timestamp Timestamp `json:"timestamp,omitempty"`
	Kind      Kind      `json:"kind,omitempty"`
	Media     *Media    `json:"media,omitempty"`
	Audio     *Audio    `json:"audio,omitempty"`
	Deleted   bool      `json:"deleted,omitempty"`
	DeletedAt int64     `json:"deletedAt,omitempty"`
}

// Message is the atomic unit of a thread. Before server acknowledgment a
// message carries only LocalID (or username+timestamp); MessageID is
// server-assigned and immutable once set.
type Message struct {
	MessageID string              `json:"messageId,omitempty"`
	LocalID   string              `json:"localId,omitempty"`
	ThreadID  string              `json:"threadId,omitempty"`
	UserID    string              `json:"userId,omitempty"`
	Username  string              `json:"username"`
	Timestamp Timestamp           `json:"timestamp"`
	Text      string              `json:"text"`
	Kind      Kind                `json:"kind,omitempty"`
	Media     *Media              `json:"media,omitempty"`
	Audio     *Audio              `json:"audio,omitempty"`
	ReplyTo   *ReplySnapshot      `json:"replyTo,omitempty"`
	Reactions map[string]Reaction `json:"reactions,omitempty"`

	Edited       bool   `json:"edited,omitempty"`
	LastEditedAt int64  `json:"lastEditedAt,omitempty"`
	Edits        []Edit `json:"edits,omitempty"`

	Deleted   bool  `json:"deleted,omitempty"`
	DeletedAt int64 `json:"deletedAt,omitempty"`
}

// Confirmed reports whether the message carries a server identity.
func (m *Message) Confirmed() bool { return m.MessageID != "" }

// IsSystem reports whether the message is a system notice.
func (m *Message) IsSystem() bool { return m.Kind == KindSystem }

// Tombstone clears the payload while keeping identity fields, so reply
// snapshots and reaction history remain attributable.
func (m *Message) Tombstone(atMs int64) {
	m.Text = ""
	m.Media = nil
	m.Audio = nil
	m.Deleted = true
	m.DeletedAt = atMs
}

// Clone returns a deep copy; readers get copies so no observer can mutate
// store-owned data.
func (m *Message) Clone() Message {
	out := *m
	if m.Media != nil {
		mc := *m.Media
		out.Media = &mc
	}
	if m.Audio != nil {
		ac := *m.Audio
		out.Audio = &ac
	}
	if m.ReplyTo != nil {
		rc := *m.ReplyTo
		if m.ReplyTo.Media != nil {
			mm := *m.ReplyTo.Media
			rc.Media = &mm
		}
		if m.ReplyTo.Audio != nil {
			aa := *m.ReplyTo.Audio
			rc.Audio = &aa
		}
		out.ReplyTo = &rc
	}
	if m.Reactions != nil {
		out.Reactions = make(map[string]Reaction, len(m.Reactions))
		for k, v := range m.Reactions {
			out.Reactions[k] = v
		}
	}
	if m.Edits != nil {
		out.Edits = append([]Edit(nil), m.Edits...)
	}
	return out
}
