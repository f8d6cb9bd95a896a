package monaco

import (
	"log/slog"
	"sync"
	"time"
)

const (
	batchDebounce = 10 * time.Millisecond
	batchLimit    = 50
)

// Handler processes one stream message. Errors are logged, never propagated,
// so one failing message cannot take down its batch.
type Handler func(msg StreamMessage) error

// Batcher absorbs websocket messages and flushes them in debounced batches.
// A flush drains at most batchLimit messages, partitions them by message type
// and runs the partitions concurrently; messages inside a partition keep their
// arrival order. The queue is unbounded, backpressure is the flush cadence.
type Batcher struct {
	log      *slog.Logger
	handlers map[string]Handler

	mu      sync.Mutex
	queue   []StreamMessage
	timer   *time.Timer
	stopped bool

	flushWG sync.WaitGroup
}

func NewBatcher(log *slog.Logger, handlers map[string]Handler) *Batcher {
	return &Batcher{log: log, handlers: handlers}
}

// Enqueue adds a message and arms the debounce timer if idle. Messages with no
// registered handler are dropped here, before they occupy queue space.
func (b *Batcher) Enqueue(msg StreamMessage) {
	if _, ok := b.handlers[msg.Type]; !ok {
		b.log.Debug("dropping unhandled stream message", "type", msg.Type)
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.stopped {
		return
	}
	b.queue = append(b.queue, msg)
	if b.timer == nil {
		b.timer = time.AfterFunc(batchDebounce, b.flush)
	}
}

func (b *Batcher) flush() {
	b.mu.Lock()
	n := len(b.queue)
	if n > batchLimit {
		n = batchLimit
	}
	batch := make([]StreamMessage, n)
	copy(batch, b.queue[:n])
	b.queue = b.queue[n:]

	if len(b.queue) > 0 {
		b.timer = time.AfterFunc(batchDebounce, b.flush)
	} else {
		b.timer = nil
	}
	b.flushWG.Add(1)
	b.mu.Unlock()

	defer b.flushWG.Done()
	b.dispatch(batch)
}

func (b *Batcher) dispatch(batch []StreamMessage) {
	partitions := make(map[string][]StreamMessage)
	for _, msg := range batch {
		partitions[msg.Type] = append(partitions[msg.Type], msg)
	}

	var wg sync.WaitGroup
	for kind, msgs := range partitions {
		handler := b.handlers[kind]
		wg.Add(1)
		go func(kind string, msgs []StreamMessage) {
			defer wg.Done()
			for _, msg := range msgs {
				if err := handler(msg); err != nil {
					b.log.Error("stream message handler failed",
						"type", kind, "marketId", msg.MarketID, "error", err)
				}
			}
		}(kind, msgs)
	}
	wg.Wait()
}

// Stop drains the queue synchronously and waits for in-flight flushes. No
// messages are accepted afterwards.
func (b *Batcher) Stop() {
	b.mu.Lock()
	b.stopped = true
	if b.timer != nil {
		b.timer.Stop()
		b.timer = nil
	}
	rest := b.queue
	b.queue = nil
	b.mu.Unlock()

	for len(rest) > 0 {
		n := len(rest)
		if n > batchLimit {
			n = batchLimit
		}
		b.dispatch(rest[:n])
		rest = rest[n:]
	}
	b.flushWG.Wait()
}
