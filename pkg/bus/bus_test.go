package bus

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestInboundRoundTrip(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	in := NewInboundEvent("rtm", map[string]any{"type": "message", "channel": "C1", "user": "U1", "text": "ping"})
	if ok := mb.PublishInbound(context.Background(), in); !ok {
		t.Fatal("expected inbound publish to succeed")
	}

	out, ok := mb.ConsumeInbound(context.Background())
	if !ok {
		t.Fatal("expected inbound consume to succeed")
	}
	if out.Text() != "ping" || out.Channel() != "C1" || out.User() != "U1" {
		t.Fatalf("event = %+v, want text/channel/user preserved", out.Data)
	}
	if out.Source != "rtm" {
		t.Fatalf("source = %q, want %q", out.Source, "rtm")
	}
}

func TestInboundEventAccessorsIgnoreNonStrings(t *testing.T) {
	event := NewInboundEvent("rtm", map[string]any{"text": 42, "channel": nil})
	if got := event.Text(); got != "" {
		t.Fatalf("Text() = %q, want empty", got)
	}
	if got := event.Channel(); got != "" {
		t.Fatalf("Channel() = %q, want empty", got)
	}
}

func TestInboundEventCloneIsIndependent(t *testing.T) {
	event := NewInboundEvent("rtm", map[string]any{"text": "ping"})
	clone := event.Clone()
	clone.Data["text"] = "changed"

	if got := event.Text(); got != "ping" {
		t.Fatalf("original text = %q, want %q", got, "ping")
	}
}

func TestOutboundRoundTrip(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	in := OutboundMessage{Channel: "C1", User: "U1", Text: "Pong"}
	if ok := mb.PublishOutbound(context.Background(), in); !ok {
		t.Fatal("expected outbound publish to succeed")
	}

	out, ok := mb.SubscribeOutbound(context.Background())
	if !ok {
		t.Fatal("expected outbound subscribe to succeed")
	}
	if out != in {
		t.Fatalf("outbound = %+v, want %+v", out, in)
	}
}

func TestCloseStopsBusOperations(t *testing.T) {
	mb := NewMessageBus()
	mb.Close()

	if ok := mb.PublishInbound(context.Background(), InboundEvent{}); ok {
		t.Fatal("expected inbound publish to fail after close")
	}
	if ok := mb.PublishOutbound(context.Background(), OutboundMessage{Text: "hello"}); ok {
		t.Fatal("expected outbound publish to fail after close")
	}
	if _, ok := mb.ConsumeInbound(context.Background()); ok {
		t.Fatal("expected inbound consume to stop after close")
	}
	if _, ok := mb.SubscribeOutbound(context.Background()); ok {
		t.Fatal("expected outbound subscribe to stop after close")
	}
}

func TestContextCancellation(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if ok := mb.PublishInbound(ctx, InboundEvent{}); ok {
		t.Fatal("expected publish to fail on canceled context")
	}
	if _, ok := mb.ConsumeInbound(ctx); ok {
		t.Fatal("expected consume to fail on canceled context")
	}
}

func TestDeliverRoutesBySource(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	var got []string
	mb.RegisterHandler("rtm", func(_ context.Context, msg OutboundMessage) error {
		got = append(got, "rtm:"+msg.Text)
		return nil
	})
	mb.RegisterHandler("telegram", func(_ context.Context, msg OutboundMessage) error {
		got = append(got, "telegram:"+msg.Text)
		return nil
	})

	ctx := context.Background()
	if err := mb.Deliver(ctx, OutboundMessage{Source: "telegram", Text: "a"}); err != nil {
		t.Fatalf("Deliver error: %v", err)
	}
	if err := mb.Deliver(ctx, OutboundMessage{Text: "b"}); err != nil {
		t.Fatalf("Deliver error: %v", err)
	}

	if len(got) != 2 || got[0] != "telegram:a" || got[1] != "rtm:b" {
		t.Fatalf("deliveries = %v, want [telegram:a rtm:b]", got)
	}
}

func TestDeliverWithoutHandler(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	err := mb.Deliver(context.Background(), OutboundMessage{Source: "rtm", Text: "x"})
	if !errors.Is(err, ErrNoOutboundHandler) {
		t.Fatalf("error = %v, want ErrNoOutboundHandler", err)
	}
}

func TestUnregisterPrimaryFallsBack(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	noop := func(context.Context, OutboundMessage) error { return nil }
	mb.RegisterHandler("rtm", noop)
	mb.RegisterHandler("telegram", noop)
	mb.UnregisterHandler("rtm")

	if _, ok := mb.GetHandler(""); !ok {
		t.Fatal("expected remaining transport to become primary")
	}
	if _, ok := mb.GetHandler("rtm"); ok {
		t.Fatal("expected rtm handler to be removed")
	}
}

func TestConsumeUnblocksOnClose(t *testing.T) {
	mb := NewMessageBus()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, _ = mb.ConsumeInbound(context.Background())
	}()

	mb.Close()

	select {
	case <-done:
	case <-time.After(500 * time.Millisecond):
		t.Fatal("consume did not unblock after close")
	}
}

func TestEventFanout(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	ctx := context.Background()
	eventsA, unsubA := mb.SubscribeEvents(ctx, 1)
	defer unsubA()
	eventsB, unsubB := mb.SubscribeEvents(ctx, 1)
	defer unsubB()

	if ok := mb.PublishEvent(ctx, Event{Type: EventCommandMatched, Handler: "ping"}); !ok {
		t.Fatal("expected event publish to succeed")
	}

	for name, events := range map[string]<-chan Event{"A": eventsA, "B": eventsB} {
		select {
		case got := <-events:
			if got.Type != EventCommandMatched {
				t.Fatalf("subscriber %s event type = %q, want %q", name, got.Type, EventCommandMatched)
			}
			if got.At.IsZero() {
				t.Fatalf("subscriber %s event has zero timestamp", name)
			}
		case <-time.After(500 * time.Millisecond):
			t.Fatalf("subscriber %s did not receive event", name)
		}
	}
}

func TestEventSubscriptionFiltersTypes(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	ctx := context.Background()
	events, unsubscribe := mb.SubscribeEvents(ctx, 4, EventHandlerFailed)
	defer unsubscribe()

	mb.PublishEvent(ctx, Event{Type: EventCommandMatched})
	mb.PublishEvent(ctx, Event{Type: EventHandlerFailed, Handler: "boom"})

	select {
	case got := <-events:
		if got.Type != EventHandlerFailed || got.Handler != "boom" {
			t.Fatalf("event = %+v, want handler_failed from boom", got)
		}
	case <-time.After(500 * time.Millisecond):
		t.Fatal("filtered subscriber did not receive event")
	}

	select {
	case got := <-events:
		t.Fatalf("unexpected extra event %+v", got)
	default:
	}
}

func TestSlowSubscriberDoesNotBlockPublishEvent(t *testing.T) {
	mb := NewMessageBus()
	t.Cleanup(mb.Close)

	ctx := context.Background()
	_, unsubscribe := mb.SubscribeEvents(ctx, 1)
	defer unsubscribe()

	mb.PublishEvent(ctx, Event{Type: EventCommandMatched})

	start := time.Now()
	if ok := mb.PublishEvent(ctx, Event{Type: EventWebhookServed}); !ok {
		t.Fatal("expected second event publish to succeed")
	}
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("publish event blocked on slow subscriber")
	}
}
