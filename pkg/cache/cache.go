// Package cache persists thread windows and previews to a local Pebble
// database so a restart can render instantly before the transport catches
// up. The cache is strictly an accelerator: every failure is swallowed and
// counted, never surfaced, and the in-memory store never waits on it.
package cache

import (
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"
	"golang.org/x/time/rate"

	"chatsync/pkg/logger"
	"chatsync/pkg/models"
	"chatsync/pkg/telemetry"
)

const (
	windowKeyPrefix  = "window:"
	previewKeyPrefix = "preview:"
)

// writes per second allowed through immediately; bursts beyond this are
// coalesced into the dirty set and picked up by the flusher
const flushRatePerSec = 4

// Bridge mirrors store state into Pebble. It satisfies threadstore.Mirror
// and must never call back into the store.
type Bridge struct {
	mu      sync.Mutex
	db      *pebble.DB
	limiter *rate.Limiter

	dirtyWindows  map[string][]models.Message
	dirtyPreviews map[string]models.Preview

	stop     chan struct{}
	stopOnce sync.Once
}

// Open opens (or creates) the cache database at path.
func Open(path string) (*Bridge, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Error("cache_open_failed", "path", path, "err", err)
		return nil, err
	}
	logger.Info("cache_opened", "path", path)
	b := &Bridge{
		db:            db,
		limiter:       rate.NewLimiter(rate.Limit(flushRatePerSec), flushRatePerSec),
		dirtyWindows:  make(map[string][]models.Message),
		dirtyPreviews: make(map[string]models.Preview),
		stop:          make(chan struct{}),
	}
	go b.flushLoop()
	return b, nil
}

// Close flushes dirty state and closes the database.
func (b *Bridge) Close() error {
	b.stopOnce.Do(func() { close(b.stop) })
	b.FlushDirty()
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil
	}
	err := b.db.Close()
	b.db = nil
	logger.Info("cache_closed")
	return err
}

// SaveWindow mirrors a thread's retained window. Writes beyond the rate
// limit are coalesced; only the latest snapshot per thread survives.
func (b *Bridge) SaveWindow(threadID string, msgs []models.Message) {
	b.mu.Lock()
	if b.db == nil {
		b.mu.Unlock()
		return
	}
	if !b.limiter.Allow() {
		b.dirtyWindows[threadID] = msgs
		b.mu.Unlock()
		return
	}
	b.writeWindowLocked(threadID, msgs)
	b.mu.Unlock()
}

// SavePreview mirrors a thread's conversation-list preview.
func (b *Bridge) SavePreview(p models.Preview) {
	b.mu.Lock()
	if b.db == nil {
		b.mu.Unlock()
		return
	}
	if !b.limiter.Allow() {
		b.dirtyPreviews[p.ThreadID] = p
		b.mu.Unlock()
		return
	}
	b.writePreviewLocked(p)
	b.mu.Unlock()
}

// LoadWindow reads a thread's cached window. Missing or corrupt entries
// return nil; the caller renders empty and waits for the transport.
func (b *Bridge) LoadWindow(threadID string) []models.Message {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil
	}
	val, closer, err := b.db.Get([]byte(windowKeyPrefix + threadID))
	if err != nil {
		if err != pebble.ErrNotFound {
			telemetry.CacheFailures.WithLabelValues("load_window").Inc()
		}
		return nil
	}
	defer closer.Close()
	var msgs []models.Message
	if err := json.Unmarshal(val, &msgs); err != nil {
		telemetry.CacheFailures.WithLabelValues("load_window").Inc()
		logger.Warn("cache_window_corrupt", "thread", threadID, "err", err)
		return nil
	}
	return msgs
}

// ListPreviews reads all cached previews.
func (b *Bridge) ListPreviews() []models.Preview {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return nil
	}
	iter, err := b.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(previewKeyPrefix),
		UpperBound: []byte(previewKeyPrefix + "\xff"),
	})
	if err != nil {
		telemetry.CacheFailures.WithLabelValues("list_previews").Inc()
		return nil
	}
	defer iter.Close()
	var out []models.Preview
	for iter.First(); iter.Valid(); iter.Next() {
		var p models.Preview
		if err := json.Unmarshal(iter.Value(), &p); err != nil {
			telemetry.CacheFailures.WithLabelValues("list_previews").Inc()
			continue
		}
		out = append(out, p)
	}
	return out
}

// FlushDirty writes every coalesced window and preview. Returns the number
// of entries flushed.
func (b *Bridge) FlushDirty() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.db == nil {
		return 0
	}
	n := 0
	for threadID, msgs := range b.dirtyWindows {
		b.writeWindowLocked(threadID, msgs)
		delete(b.dirtyWindows, threadID)
		n++
	}
	for threadID, p := range b.dirtyPreviews {
		b.writePreviewLocked(p)
		delete(b.dirtyPreviews, threadID)
		n++
	}
	return n
}

func (b *Bridge) writeWindowLocked(threadID string, msgs []models.Message) {
	data, err := json.Marshal(msgs)
	if err != nil {
		telemetry.CacheFailures.WithLabelValues("save_window").Inc()
		return
	}
	if err := b.db.Set([]byte(windowKeyPrefix+threadID), data, pebble.NoSync); err != nil {
		telemetry.CacheFailures.WithLabelValues("save_window").Inc()
		logger.Warn("cache_window_write_failed", "thread", threadID, "err", err)
	}
}

func (b *Bridge) writePreviewLocked(p models.Preview) {
	data, err := json.Marshal(p)
	if err != nil {
		telemetry.CacheFailures.WithLabelValues("save_preview").Inc()
		return
	}
	if err := b.db.Set([]byte(previewKeyPrefix+p.ThreadID), data, pebble.NoSync); err != nil {
		telemetry.CacheFailures.WithLabelValues("save_preview").Inc()
		logger.Warn("cache_preview_write_failed", "thread", p.ThreadID, "err", err)
	}
}

func (b *Bridge) flushLoop() {
	t := time.NewTicker(2 * time.Second)
	defer t.Stop()
	for {
		select {
		case <-t.C:
			b.FlushDirty()
		case <-b.stop:
			return
		}
	}
}

// Stats summarizes cache state for diagnostics.
func (b *Bridge) Stats() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return fmt.Sprintf("dirty_windows=%d dirty_previews=%d", len(b.dirtyWindows), len(b.dirtyPreviews))
}
