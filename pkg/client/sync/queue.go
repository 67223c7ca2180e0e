package sync

import (
	"encoding/json"
	"errors"
	"fmt"
	gosync "sync"

	"github.com/valyala/bytebufferpool"
)

// ErrQueueFull is returned by TryEnqueue when the queue is at capacity.
var ErrQueueFull = errors.New("sync queue full")

// Command is the serialized message passed into the worker. The worker
// owns all replica writes; producers only hand it commands.
type Command struct {
	Op         string `json:"op"` // "sync"
	Collection string `json:"collection"`
}

// Item wraps a serialized command backed by a pooled buffer. Consumers
// must call Done() exactly once after decoding.
type Item struct {
	buf  *bytebufferpool.ByteBuffer
	once gosync.Once
}

// Decode unmarshals the command carried by the item.
func (it *Item) Decode() (Command, error) {
	var cmd Command
	if err := json.Unmarshal(it.buf.B, &cmd); err != nil {
		return cmd, fmt.Errorf("decode command: %w", err)
	}
	return cmd, nil
}

// Done returns the pooled buffer.
func (it *Item) Done() {
	it.once.Do(func() {
		if it.buf != nil {
			bytebufferpool.Put(it.buf)
			it.buf = nil
		}
	})
}

// Queue is a bounded in-memory command queue feeding the sync worker. It
// is safe for concurrent producers; the single worker ranges over Out().
type Queue struct {
	ch chan *Item
}

// NewQueue creates a bounded queue. Capacity must be > 0.
func NewQueue(capacity int) *Queue {
	if capacity <= 0 {
		capacity = 256
	}
	return &Queue{ch: make(chan *Item, capacity)}
}

// Out returns the consumer side of the queue.
func (q *Queue) Out() <-chan *Item { return q.ch }

// TryEnqueue serializes cmd into a pooled buffer and enqueues it. When
// the queue is full the command is dropped with ErrQueueFull; sync
// commands are idempotent so a dropped nudge is recovered by the next
// scheduled tick.
func (q *Queue) TryEnqueue(cmd Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return err
	}
	bb := bytebufferpool.Get()
	bb.B = append(bb.B[:0], data...)
	it := &Item{buf: bb}
	select {
	case q.ch <- it:
		return nil
	default:
		bytebufferpool.Put(bb)
		it.buf = nil
		return ErrQueueFull
	}
}

// Close closes the queue channel. Only the producer side may call it,
// after all producers have stopped.
func (q *Queue) Close() {
	close(q.ch)
}
