package events

import (
	"context"
	"sync"
)

// MemoryBus is an in-process Publisher and Subscriber with the same
// semantics as the redis one: handlers run until their context is done.
type MemoryBus struct {
	mu   sync.Mutex
	subs map[string][]*memorySub
}

type memorySub struct {
	ctx     context.Context
	handler func(Event)
}

func NewMemoryBus() *MemoryBus {
	return &MemoryBus{subs: make(map[string][]*memorySub)}
}

func (b *MemoryBus) Publish(ctx context.Context, stream string, event Event) error {
	b.mu.Lock()
	live := b.subs[stream][:0]
	for _, s := range b.subs[stream] {
		if s.ctx.Err() == nil {
			live = append(live, s)
		}
	}
	b.subs[stream] = live
	handlers := make([]func(Event), 0, len(live))
	for _, s := range live {
		handlers = append(handlers, s.handler)
	}
	b.mu.Unlock()

	for _, h := range handlers {
		h(event)
	}
	return nil
}

func (b *MemoryBus) Subscribe(ctx context.Context, stream string, handler func(Event)) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[stream] = append(b.subs[stream], &memorySub{ctx: ctx, handler: handler})
	return nil
}
