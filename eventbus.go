package agentcore

import (
	"encoding/json"
	"sync"
)

// ToolStartEvent is published before a tool handler runs.
type ToolStartEvent struct {
	Tool  string          `json:"tool"`
	Args  json.RawMessage `json:"args,omitempty"`
	Label string          `json:"label"`
}

// ToolEndEvent is published after a tool handler returns.
type ToolEndEvent struct {
	Tool          string `json:"tool"`
	DurationMs    int64  `json:"duration_ms"`
	Success       bool   `json:"success"`
	OutputPreview string `json:"output_preview"`
}

// EventBus fans tool:start/tool:end events out to any number of
// subscribers (e.g. the HTTP front-end's SSE endpoint). Publish never
// blocks on a slow subscriber: each subscriber has its own bounded
// channel, and events are dropped for a subscriber whose channel is full.
type EventBus struct {
	mu   sync.Mutex
	subs map[int]chan any
	next int
}

// NewEventBus creates an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subs: make(map[int]chan any)}
}

// Subscribe registers a new listener and returns its channel plus an
// unsubscribe function. The channel is closed by Unsubscribe, never by
// the bus spontaneously.
func (b *EventBus) Subscribe() (<-chan any, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.next
	b.next++
	ch := make(chan any, 64)
	b.subs[id] = ch
	unsubscribe := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if existing, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(existing)
		}
	}
	return ch, unsubscribe
}

// Publish sends event to every current subscriber, dropping it for any
// subscriber whose channel is currently full.
func (b *EventBus) Publish(event any) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- event:
		default:
		}
	}
}
