package bus

import (
	"context"
	"sync"
	"sync/atomic"
)

const memoryBuffer = 256

// Memory is an in-process Bus. Every subscriber, including one in the
// publishing instance, receives every message. It backs single-node runs
// without Redis.
type Memory struct {
	mu        sync.Mutex
	subs      map[chan []byte]struct{}
	published atomic.Uint64
}

// NewMemory returns an empty in-process bus.
func NewMemory() *Memory {
	return &Memory{subs: make(map[chan []byte]struct{})}
}

// Publish queues payload for every current subscriber. A subscriber whose
// queue is full misses the message.
func (m *Memory) Publish(ctx context.Context, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	msg := append([]byte(nil), payload...)
	m.published.Add(1)

	m.mu.Lock()
	defer m.mu.Unlock()
	for ch := range m.subs {
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe delivers messages to h until ctx is cancelled.
func (m *Memory) Subscribe(ctx context.Context, h Handler) error {
	ch := make(chan []byte, memoryBuffer)
	m.mu.Lock()
	m.subs[ch] = struct{}{}
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		delete(m.subs, ch)
		m.mu.Unlock()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case msg := <-ch:
			h(ctx, msg)
		}
	}
}

// Published returns how many messages have been published so far.
func (m *Memory) Published() uint64 { return m.published.Load() }

// Subscribers returns the number of active subscriptions.
func (m *Memory) Subscribers() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.subs)
}
