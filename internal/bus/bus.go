package bus

import (
	"context"
	"sync"
)

// MessageBus decouples the extension bridge from the engine. Inbound carries
// extension frames toward the gateway loop; Outbound carries commands back.
type MessageBus struct {
	Inbound  chan InboundEvent
	Outbound chan Command

	mu   sync.RWMutex
	subs map[string]func(Command)
}

func NewMessageBus(buf int) *MessageBus {
	return &MessageBus{
		Inbound:  make(chan InboundEvent, buf),
		Outbound: make(chan Command, buf),
		subs:     make(map[string]func(Command)),
	}
}

// SubscribeOutbound registers a named consumer for outbound commands.
// Registering the same name again replaces the previous subscriber.
func (b *MessageBus) SubscribeOutbound(name string, fn func(Command)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[name] = fn
}

// DispatchOutbound delivers outbound commands to every subscriber until the
// context is cancelled. Run it in its own goroutine.
func (b *MessageBus) DispatchOutbound(ctx context.Context) {
	for {
		select {
		case cmd := <-b.Outbound:
			b.mu.RLock()
			subs := make([]func(Command), 0, len(b.subs))
			for _, fn := range b.subs {
				subs = append(subs, fn)
			}
			b.mu.RUnlock()
			for _, fn := range subs {
				fn(cmd)
			}
		case <-ctx.Done():
			return
		}
	}
}
