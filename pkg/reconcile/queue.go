package reconcile

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/valyala/bytebufferpool"

	"chatsync/pkg/telemetry"
)

const fallbackQueueCapacity = 1024

// maxPooledBuffer controls the largest payload buffer returned to the pool;
// bigger ones are dropped so resident memory stays bounded.
const maxPooledBuffer = 256 * 1024

// ErrQueueFull is returned by TryEnqueue when the queue is at capacity.
var ErrQueueFull = errors.New("event queue full")

// ErrQueueClosed is returned after Close.
var ErrQueueClosed = errors.New("event queue closed")

// item wraps a pooled raw payload plus a monotonic sequence for
// deterministic ordering diagnostics.
type item struct {
	raw  []byte
	seq  uint64
	buf  *bytebufferpool.ByteBuffer
	once sync.Once
	q    *Queue
}

func (it *item) done() {
	it.once.Do(func() {
		if it.q != nil {
			atomic.AddInt64(&it.q.inFlight, -1)
			telemetry.QueueDepth.Dec()
			it.q = nil
		}
		if it.buf != nil {
			if cap(it.buf.B) <= maxPooledBuffer {
				bytebufferpool.Put(it.buf)
			}
			it.buf = nil
		}
		it.raw = nil
	})
}

// Queue is a threadsafe, fixed-size in-memory queue of raw event payloads.
// Transport adapters enqueue bytes; the engine worker parses and applies.
type Queue struct {
	ch       chan *item
	capacity int
	dropped  uint64
	closed   int32
	seq      uint64
	inFlight int64
	enqWg    sync.WaitGroup
	closeOne sync.Once
}

// NewQueue creates a bounded Queue of given capacity (>0).
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = fallbackQueueCapacity
	}
	return &Queue{ch: make(chan *item, capacity), capacity: capacity}
}

func (q *Queue) makeItem(raw []byte) *item {
	bb := bytebufferpool.Get()
	bb.B = append(bb.B[:0], raw...)
	return &item{raw: bb.B[:len(raw)], buf: bb, seq: atomic.AddUint64(&q.seq, 1), q: q}
}

// TryEnqueue enqueues a payload without blocking; ErrQueueFull when full.
func (q *Queue) TryEnqueue(raw []byte) error {
	if atomic.LoadInt32(&q.closed) == 1 {
		return ErrQueueClosed
	}
	q.enqWg.Add(1)
	defer q.enqWg.Done()
	if atomic.LoadInt32(&q.closed) == 1 {
		return ErrQueueClosed
	}
	it := q.makeItem(raw)
	select {
	case q.ch <- it:
		atomic.AddInt64(&q.inFlight, 1)
		telemetry.QueueDepth.Inc()
		return nil
	default:
		it.q = nil
		it.done()
		atomic.AddUint64(&q.dropped, 1)
		telemetry.EventsDropped.WithLabelValues("queue_full").Inc()
		return ErrQueueFull
	}
}

// Enqueue blocks until the payload is enqueued or ctx is cancelled.
func (q *Queue) Enqueue(ctx context.Context, raw []byte) error {
	if atomic.LoadInt32(&q.closed) == 1 {
		return ErrQueueClosed
	}
	q.enqWg.Add(1)
	defer q.enqWg.Done()
	if atomic.LoadInt32(&q.closed) == 1 {
		return ErrQueueClosed
	}
	it := q.makeItem(raw)
	select {
	case q.ch <- it:
		atomic.AddInt64(&q.inFlight, 1)
		telemetry.QueueDepth.Inc()
		return nil
	case <-ctx.Done():
		it.q = nil
		it.done()
		atomic.AddUint64(&q.dropped, 1)
		return ctx.Err()
	}
}

// RunWorker dequeues payloads and calls handler for each. Exits when stop
// fires or the queue closes.
func (q *Queue) RunWorker(stop <-chan struct{}, handler func(raw []byte)) {
	for {
		select {
		case it, ok := <-q.ch:
			if !ok {
				return
			}
			func(it *item) {
				defer it.done()
				handler(it.raw)
			}(it)
		case <-stop:
			return
		}
	}
}

// Close marks the queue closed, waits for pending enqueues, and closes the
// channel so workers drain and exit.
func (q *Queue) Close() {
	q.closeOne.Do(func() {
		atomic.StoreInt32(&q.closed, 1)
		q.enqWg.Wait()
		close(q.ch)
	})
}

// Dropped reports how many payloads were rejected at capacity.
func (q *Queue) Dropped() uint64 { return atomic.LoadUint64(&q.dropped) }

// Depth reports payloads currently buffered.
func (q *Queue) Depth() int64 { return atomic.LoadInt64(&q.inFlight) }
