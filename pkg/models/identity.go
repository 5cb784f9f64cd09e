package models

import (
	"encoding/json"
	"strconv"
	"strings"
)

// Timestamp is a millisecond unix timestamp. Wire encodings are loose: some
// producers send numbers, some send numeric strings. All identity
// comparisons go through this one type so the coercion lives in a single
// place.
type Timestamp int64

func (t *Timestamp) UnmarshalJSON(b []byte) error {
	s := strings.TrimSpace(string(b))
	if s == "null" || s == `""` {
		*t = 0
		return nil
	}
	s = strings.Trim(s, `"`)
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		*t = Timestamp(n)
		return nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		*t = Timestamp(int64(f))
		return nil
	}
	// unparseable timestamps degrade to zero rather than failing the event
	*t = 0
	return nil
}

func (t Timestamp) MarshalJSON() ([]byte, error) {
	return json.Marshal(int64(t))
}

// Ms returns the timestamp in milliseconds.
func (t Timestamp) Ms() int64 { return int64(t) }

// Identity resolves a message by whichever identity the caller has: server
// id, local id, or the (username, timestamp) pair used before a server id
// exists.
type Identity struct {
	MessageID string    `json:"messageId,omitempty"`
	LocalID   string    `json:"localId,omitempty"`
	Username  string    `json:"username,omitempty"`
	Timestamp Timestamp `json:"timestamp,omitempty"`
}

// ByID builds an Identity from a server-assigned message id.
func ByID(messageID string) Identity { return Identity{MessageID: messageID} }

// ByUserTimestamp builds the legacy (username, timestamp) identity.
func ByUserTimestamp(username string, ts Timestamp) Identity {
	return Identity{Username: username, Timestamp: ts}
}

// IdentityOf extracts the strongest identity a message carries.
func IdentityOf(m *Message) Identity {
	return Identity{
		MessageID: m.MessageID,
		LocalID:   m.LocalID,
		Username:  m.Username,
		Timestamp: m.Timestamp,
	}
}

// Valid reports whether the identity can resolve anything at all.
func (id Identity) Valid() bool {
	return id.MessageID != "" || id.LocalID != "" || (id.Username != "" && id.Timestamp != 0)
}

// Matches reports whether m is the message this identity refers to. Server
// id wins when both sides carry one; the local id and the
// (username, timestamp) pair are fallbacks for unconfirmed entries.
func (id Identity) Matches(m *Message) bool {
	if id.MessageID != "" && m.MessageID != "" {
		return id.MessageID == m.MessageID
	}
	if id.LocalID != "" && m.LocalID != "" && id.LocalID == m.LocalID {
		return true
	}
	if id.Username != "" && id.Timestamp != 0 {
		return strings.EqualFold(id.Username, m.Username) && id.Timestamp == m.Timestamp
	}
	return false
}

// MatchesSnapshot reports whether a reply snapshot refers to the same
// message as this identity.
func (id Identity) MatchesSnapshot(r *ReplySnapshot) bool {
	if r == nil {
		return false
	}
	if id.MessageID != "" && r.MessageID != "" {
		return id.MessageID == r.MessageID
	}
	if id.Username != "" && id.Timestamp != 0 {
		return strings.EqualFold(id.Username, r.Username) && id.Timestamp == r.Timestamp
	}
	return false
}
