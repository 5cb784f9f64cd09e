package reconcile

import (
	"fmt"
	"hash/fnv"

	"chatsync/pkg/logger"
	"chatsync/pkg/models"
	"chatsync/pkg/telemetry"
	"chatsync/pkg/threadstore"
)

// Notice is a user-visible notification. The only error class surfaced to
// the end user is an optimistic action that failed or never confirmed.
type Notice struct {
	ThreadID string
	LocalID  string
	Text     string
}

// Options configures an Engine.
type Options struct {
	// QueueCapacity bounds the inbound payload queue.
	QueueCapacity int
	// SendTimeoutMs rolls back optimistic sends that never confirm.
	SendTimeoutMs int
	// Notify receives rollback notices; nil disables them.
	Notify func(Notice)
	// Sender submits outbound sends fire-and-forget; nil means local-only
	// (confirmation still arrives via the delivery contract).
	Sender Sender
}

// Engine maps inbound transport events onto thread store mutations.
type Engine struct {
	store   *threadstore.Store
	queue   *Queue
	pending *pendingSet
	notify  func(Notice)
	sender  Sender
}

// New creates an Engine bound to a store.
func New(store *threadstore.Store, opts Options) *Engine {
	e := &Engine{
		store:  store,
		queue:  NewQueue(opts.QueueCapacity),
		notify: opts.Notify,
		sender: opts.Sender,
	}
	e.pending = newPendingSet(e, opts.SendTimeoutMs)
	return e
}

// Queue exposes the inbound payload queue for transport adapters.
func (e *Engine) Queue() *Queue { return e.queue }

// SetSender binds the outbound sender after construction. Transport
// adapters need the engine's queue first, so binding is two-phase.
func (e *Engine) SetSender(s Sender) { e.sender = s }

// Start runs the apply worker until stop fires.
func (e *Engine) Start(stop <-chan struct{}) {
	go e.queue.RunWorker(stop, e.ApplyRaw)
}

// ApplyRaw parses a raw payload and applies it. Unparseable payloads are
// dropped silently with only a diagnostic counter.
func (e *Engine) ApplyRaw(raw []byte) {
	ev, err := ParseEvent(raw)
	if err != nil {
		telemetry.EventsDropped.WithLabelValues("bad_json").Inc()
		logger.Debug("event_unparseable", "err", err)
		return
	}
	e.Apply(ev)
}

// Apply dispatches one event. Returns true when a store mutation was
// applied. Re-delivery of an already-applied event is a no-op change because
// every store path merges on identity.
func (e *Engine) Apply(ev Event) bool {
	if ok, reason := ev.validate(); !ok {
		telemetry.EventsDropped.WithLabelValues(reason).Inc()
		logger.Debug("event_dropped", "type", string(ev.Type), "reason", reason)
		return false
	}
	telemetry.EventsReceived.WithLabelValues(string(ev.Type)).Inc()

	switch ev.Type {
	case EventMessageNew:
		return e.applyNew(ev)
	case EventMessageEdited:
		return e.applyEdited(ev)
	case EventMessageDeleted:
		return e.applyDeleted(ev)
	case EventMessageReactions:
		return e.applyReactions(ev)
	case EventSystemNotice:
		return e.applyNotice(ev)
	}
	return false
}

func (e *Engine) applyNew(ev Event) bool {
	m := models.Message{
		MessageID: ev.MessageID,
		LocalID:   ev.LocalID,
		ThreadID:  ev.ThreadID,
		UserID:    ev.UserID,
		Username:  ev.Username,
		Timestamp: ev.Timestamp,
		Text:      ev.Text,
		Kind:      ev.Kind,
		Media:     ev.Media,
		Audio:     ev.Audio,
	}
	if m.Kind == "" {
		m.Kind = models.KindText
	}
	if ev.ReplyTo != nil {
		m.ReplyTo = e.resolveReply(ev.ThreadID, ev.ReplyTo)
	}
	changed := e.store.AddMessage(ev.ThreadID, m)
	telemetry.MutationsApplied.WithLabelValues("add").Inc()
	// a confirmed echo settles the matching optimistic action
	if ev.MessageID != "" {
		e.pending.confirm(ev.Identity())
	}
	return changed
}

func (e *Engine) applyEdited(ev Event) bool {
	newText := ev.NewText
	if newText == "" {
		newText = ev.Text
	}
	var changed bool
	if ev.MessageID != "" {
		changed = e.store.EditMessageByID(ev.ThreadID, ev.MessageID, newText, ev.LastEditedAt)
	} else {
		changed = e.store.EditMessageLegacy(ev.ThreadID, ev.Timestamp, ev.Username, newText, ev.LastEditedAt)
	}
	if changed {
		telemetry.MutationsApplied.WithLabelValues("edit").Inc()
	}
	return changed
}

func (e *Engine) applyDeleted(ev Event) bool {
	var changed bool
	if ev.MessageID != "" {
		changed = e.store.MarkDeletedByID(ev.ThreadID, ev.MessageID, ev.DeletedAt)
	} else {
		changed = e.store.MarkDeletedLegacy(ev.ThreadID, ev.Timestamp, ev.Username, ev.DeletedAt)
	}
	if changed {
		telemetry.MutationsApplied.WithLabelValues("delete").Inc()
	}
	return changed
}

func (e *Engine) applyReactions(ev Event) bool {
	var changed bool
	if ev.MessageID != "" {
		changed = e.store.UpdateReactionsByID(ev.ThreadID, ev.MessageID, ev.Reactions)
	} else {
		changed = e.store.UpdateReactionsLegacy(ev.ThreadID, ev.Timestamp, ev.Username, ev.Reactions)
	}
	if changed {
		telemetry.MutationsApplied.WithLabelValues("reactions").Inc()
	}
	return changed
}

func (e *Engine) applyNotice(ev Event) bool {
	m := models.Message{
		MessageID: ev.MessageID,
		LocalID:   ev.LocalID,
		ThreadID:  ev.ThreadID,
		Username:  ev.Username,
		Timestamp: ev.Timestamp,
		Text:      ev.Text,
		Kind:      models.KindSystem,
	}
	// notices often arrive without any identity; derive a stable one from
	// content so a redelivery merges onto the existing row instead of
	// inserting a second one
	if m.MessageID == "" && m.LocalID == "" {
		m.LocalID = noticeKey(ev.ThreadID, ev.Text, ev.Timestamp)
	}
	changed := e.store.AddMessage(ev.ThreadID, m)
	telemetry.MutationsApplied.WithLabelValues("notice").Inc()
	return changed
}

// noticeKey derives a stable synthetic local id for an identity-less system
// notice from its content.
func noticeKey(threadID, text string, ts models.Timestamp) string {
	h := fnv.New64a()
	fmt.Fprintf(h, "%s|%d|%s", threadID, ts.Ms(), text)
	return fmt.Sprintf("sys-%016x", h.Sum64())
}

// resolveReply builds the display snapshot for a reply reference at append
// time, against the thread's current contents. When the target has been
// pruned out of the window the reply still renders with whatever fields the
// event itself carried.
func (e *Engine) resolveReply(threadID string, ref *models.ReplySnapshot) *models.ReplySnapshot {
	out := *ref
	if out.Text == "" {
		ident := models.Identity{MessageID: ref.MessageID, Username: ref.Username, Timestamp: ref.Timestamp}
		if ident.Valid() {
			for _, m := range e.store.Snapshot(threadID) {
				if !ident.Matches(&m) {
					continue
				}
				if out.MessageID == "" {
					out.MessageID = m.MessageID
				}
				if out.Username == "" {
					out.Username = m.Username
				}
				if out.Timestamp == 0 {
					out.Timestamp = m.Timestamp
				}
				if out.Kind == "" {
					out.Kind = m.Kind
				}
				if m.Deleted {
					out.Deleted = true
					out.DeletedAt = m.DeletedAt
				} else {
					out.Text = m.Text
					if out.Media == nil && m.Media != nil {
						mc := *m.Media
						out.Media = &mc
					}
					if out.Audio == nil && m.Audio != nil {
						ac := *m.Audio
						out.Audio = &ac
					}
				}
				break
			}
		}
	}
	return &out
}
