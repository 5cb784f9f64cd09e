package reconcile

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"chatsync/pkg/logger"
	"chatsync/pkg/models"
	"chatsync/pkg/telemetry"
)

// Sender is the fire-and-forget send contract. Submission does not block on
// round-trip confirmation; the confirmed echo arrives later through the
// delivery contract, correlated by localId.
type Sender interface {
	Send(ev Event) error
}

// Optimistic actions move through a small state machine: pending until the
// confirmed echo arrives, rolled back on explicit failure or timeout. No
// other transitions exist.
type actionState int

const (
	statePending actionState = iota
	stateConfirmed
	stateRolledBack
)

type action struct {
	localID   string
	threadID  string
	username  string
	timestamp models.Timestamp
	state     actionState
	timer     *time.Timer
}

type pendingSet struct {
	mu      sync.Mutex
	byLocal map[string]*action
	engine  *Engine
	timeout time.Duration
}

func newPendingSet(e *Engine, timeoutMs int) *pendingSet {
	if timeoutMs <= 0 {
		timeoutMs = 10_000
	}
	return &pendingSet{
		byLocal: make(map[string]*action),
		engine:  e,
		timeout: time.Duration(timeoutMs) * time.Millisecond,
	}
}

// Send appends an optimistic entry for the local user and submits the event
// fire-and-forget. Returns the localId used for echo correlation. An
// immediate sender error counts as an explicit failure and rolls the entry
// back right away.
func (e *Engine) Send(threadID string, m models.Message) (string, bool) {
	localID := uuid.NewString()
	m.LocalID = localID
	m.MessageID = ""
	m.ThreadID = threadID
	if m.Timestamp == 0 {
		m.Timestamp = models.Timestamp(time.Now().UnixMilli())
	}
	if m.Kind == "" {
		m.Kind = models.KindText
	}
	if m.ReplyTo != nil {
		m.ReplyTo = e.resolveReply(threadID, m.ReplyTo)
	}
	e.store.AddMessage(threadID, m)
	telemetry.MutationsApplied.WithLabelValues("send_optimistic").Inc()
	e.pending.track(threadID, localID, m.Username, m.Timestamp)

	if e.sender != nil {
		ev := Event{
			Type:      EventMessageNew,
			ThreadID:  threadID,
			LocalID:   localID,
			UserID:    m.UserID,
			Username:  m.Username,
			Timestamp: m.Timestamp,
			Text:      m.Text,
			Kind:      m.Kind,
			Media:     m.Media,
			Audio:     m.Audio,
			ReplyTo:   m.ReplyTo,
		}
		if err := e.sender.Send(ev); err != nil {
			logger.Warn("send_submit_failed", "thread", threadID, "local_id", localID, "err", err)
			e.Fail(localID)
			return localID, false
		}
	}
	return localID, true
}

// Fail rolls back an optimistic send after an explicit failure.
func (e *Engine) Fail(localID string) {
	e.pending.rollback(localID, "send failed")
}

func (p *pendingSet) track(threadID, localID, username string, ts models.Timestamp) {
	a := &action{localID: localID, threadID: threadID, username: username, timestamp: ts, state: statePending}
	a.timer = time.AfterFunc(p.timeout, func() {
		p.rollback(localID, "send not confirmed")
	})
	p.mu.Lock()
	p.byLocal[localID] = a
	p.mu.Unlock()
}

// confirm settles the pending action matching a confirmed echo's identity.
// The store merge has already collapsed the row; this only stops the
// rollback timer.
func (p *pendingSet) confirm(ident models.Identity) {
	p.mu.Lock()
	var match *action
	if ident.LocalID != "" {
		match = p.byLocal[ident.LocalID]
	}
	if match == nil && ident.Username != "" && ident.Timestamp != 0 {
		for _, a := range p.byLocal {
			if strings.EqualFold(a.username, ident.Username) && a.timestamp == ident.Timestamp {
				match = a
				break
			}
		}
	}
	if match == nil || match.state != statePending {
		p.mu.Unlock()
		return
	}
	match.state = stateConfirmed
	match.timer.Stop()
	delete(p.byLocal, match.localID)
	p.mu.Unlock()
}

// rollback removes the optimistic entry and surfaces the one class of error
// users ever see.
func (p *pendingSet) rollback(localID, why string) {
	p.mu.Lock()
	a := p.byLocal[localID]
	if a == nil || a.state != statePending {
		p.mu.Unlock()
		return
	}
	a.state = stateRolledBack
	a.timer.Stop()
	delete(p.byLocal, localID)
	p.mu.Unlock()

	p.engine.store.RemoveMessage(a.threadID, models.Identity{LocalID: localID})
	telemetry.Rollbacks.Inc()
	logger.Info("optimistic_rollback", "thread", a.threadID, "local_id", localID, "reason", why)
	if p.engine.notify != nil {
		p.engine.notify(Notice{ThreadID: a.threadID, LocalID: localID, Text: "message could not be sent"})
	}
}

// PendingCount reports optimistic sends still awaiting confirmation.
func (e *Engine) PendingCount() int {
	e.pending.mu.Lock()
	defer e.pending.mu.Unlock()
	return len(e.pending.byLocal)
}
