package bus

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

const defaultBufferSize = 100

// ErrNoOutboundHandler is returned when no transport can deliver a message.
var ErrNoOutboundHandler = errors.New("no outbound handler registered")

// MessageBus decouples transports from the dispatcher. Transports publish
// inbound events and register outbound handlers; the dispatcher consumes
// inbound events one at a time.
type MessageBus struct {
	inbound  chan InboundEvent
	outbound chan OutboundMessage
	handlers map[string]OutboundHandler
	primary  string

	eventSubscribers      map[uint64]eventSubscriber
	nextEventSubscriberID uint64

	done      chan struct{}
	closeOnce sync.Once

	mu sync.RWMutex
}

func NewMessageBus() *MessageBus {
	return NewMessageBusWithBuffer(defaultBufferSize)
}

func NewMessageBusWithBuffer(size int) *MessageBus {
	if size <= 0 {
		size = defaultBufferSize
	}

	return &MessageBus{
		inbound:          make(chan InboundEvent, size),
		outbound:         make(chan OutboundMessage, size),
		handlers:         make(map[string]OutboundHandler),
		eventSubscribers: make(map[uint64]eventSubscriber),
		done:             make(chan struct{}),
	}
}

func (mb *MessageBus) PublishInbound(ctx context.Context, event InboundEvent) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	case mb.inbound <- event:
		return true
	}
}

func (mb *MessageBus) ConsumeInbound(ctx context.Context) (InboundEvent, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return InboundEvent{}, false
	case <-mb.done:
		return InboundEvent{}, false
	case event := <-mb.inbound:
		return event, true
	}
}

func (mb *MessageBus) PublishOutbound(ctx context.Context, msg OutboundMessage) bool {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	case mb.outbound <- msg:
		return true
	}
}

func (mb *MessageBus) SubscribeOutbound(ctx context.Context) (OutboundMessage, bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	select {
	case <-ctx.Done():
		return OutboundMessage{}, false
	case <-mb.done:
		return OutboundMessage{}, false
	case msg := <-mb.outbound:
		return msg, true
	}
}

// RegisterHandler binds a transport's outbound delivery. The first source
// registered becomes the primary transport for messages without a source.
func (mb *MessageBus) RegisterHandler(source string, handler OutboundHandler) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	if mb.primary == "" {
		mb.primary = source
	}
	mb.handlers[source] = handler
}

// UnregisterHandler drops a transport's outbound delivery, for example after disconnect.
func (mb *MessageBus) UnregisterHandler(source string) {
	mb.mu.Lock()
	defer mb.mu.Unlock()
	delete(mb.handlers, source)
	if mb.primary == source {
		mb.primary = ""
		for name := range mb.handlers {
			mb.primary = name
			break
		}
	}
}

func (mb *MessageBus) GetHandler(source string) (OutboundHandler, bool) {
	mb.mu.RLock()
	defer mb.mu.RUnlock()
	if source == "" {
		source = mb.primary
	}
	handler, ok := mb.handlers[source]
	return handler, ok
}

// Deliver hands one outbound message to its transport.
func (mb *MessageBus) Deliver(ctx context.Context, msg OutboundMessage) error {
	handler, ok := mb.GetHandler(msg.Source)
	if !ok {
		return fmt.Errorf("deliver to %q: %w", msg.Source, ErrNoOutboundHandler)
	}

	return handler(ctx, msg)
}

func (mb *MessageBus) Close() {
	mb.closeOnce.Do(func() {
		close(mb.done)

		mb.mu.Lock()
		for id, sub := range mb.eventSubscribers {
			close(sub.ch)
			delete(mb.eventSubscribers, id)
		}
		mb.mu.Unlock()
	})
}
