package bus

import (
	"context"
	"sync"
	"time"
)

type EventType string

const (
	EventCommandMatched EventType = "command_matched"
	EventHandlerFailed  EventType = "handler_failed"
	EventWebhookServed  EventType = "webhook_served"
)

// Event is an observation emitted by the dispatcher and the webhook router.
type Event struct {
	Type      EventType `json:"type"`
	At        time.Time `json:"at"`
	Source    string    `json:"source,omitempty"`
	Channel   string    `json:"channel,omitempty"`
	User      string    `json:"user,omitempty"`
	Handler   string    `json:"handler,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Status    int       `json:"status,omitempty"`
	Error     string    `json:"error,omitempty"`
}

type eventSubscriber struct {
	ch    chan Event
	types map[EventType]struct{}
}

func (s eventSubscriber) wants(t EventType) bool {
	if len(s.types) == 0 {
		return true
	}
	_, ok := s.types[t]
	return ok
}

// PublishEvent fans an observation out to subscribers without blocking.
// Subscribers that are not keeping up miss events.
func (mb *MessageBus) PublishEvent(ctx context.Context, event Event) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	if event.At.IsZero() {
		event.At = time.Now().UTC()
	}

	select {
	case <-ctx.Done():
		return false
	case <-mb.done:
		return false
	default:
	}

	mb.mu.RLock()
	defer mb.mu.RUnlock()

	for _, sub := range mb.eventSubscribers {
		if !sub.wants(event.Type) {
			continue
		}
		select {
		case sub.ch <- event:
		default:
		}
	}

	return true
}

// SubscribeEvents returns a channel of observations limited to the given
// types (all types when none are given) and a function to unsubscribe.
func (mb *MessageBus) SubscribeEvents(ctx context.Context, buffer int, types ...EventType) (<-chan Event, func()) {
	if ctx == nil {
		ctx = context.Background()
	}
	if buffer <= 0 {
		buffer = defaultBufferSize
	}

	sub := eventSubscriber{ch: make(chan Event, buffer)}
	if len(types) > 0 {
		sub.types = make(map[EventType]struct{}, len(types))
		for _, t := range types {
			sub.types[t] = struct{}{}
		}
	}

	mb.mu.Lock()
	select {
	case <-mb.done:
		mb.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	default:
	}

	id := mb.nextEventSubscriberID
	mb.nextEventSubscriberID++
	mb.eventSubscribers[id] = sub
	mb.mu.Unlock()

	var once sync.Once
	unsubscribe := func() {
		once.Do(func() {
			mb.mu.Lock()
			if existing, ok := mb.eventSubscribers[id]; ok {
				delete(mb.eventSubscribers, id)
				close(existing.ch)
			}
			mb.mu.Unlock()
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			unsubscribe()
		case <-mb.done:
			unsubscribe()
		}
	}()

	return sub.ch, unsubscribe
}
