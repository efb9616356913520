package bus

import (
	"context"
	"maps"
)

// InboundEvent is one decoded gateway frame. It lives for a single dispatch cycle.
type InboundEvent struct {
	Source string         `json:"source"`
	Data   map[string]any `json:"data"`
}

// NewInboundEvent wraps a decoded frame for the named transport.
func NewInboundEvent(source string, data map[string]any) InboundEvent {
	if data == nil {
		data = map[string]any{}
	}
	return InboundEvent{Source: source, Data: data}
}

func (e InboundEvent) Type() string    { return e.String("type") }
func (e InboundEvent) Channel() string { return e.String("channel") }
func (e InboundEvent) User() string    { return e.String("user") }
func (e InboundEvent) Text() string    { return e.String("text") }

// String returns the named field when it holds a string, and "" otherwise.
func (e InboundEvent) String(key string) string {
	value, ok := e.Data[key].(string)
	if !ok {
		return ""
	}
	return value
}

// Clone copies the top-level fields so handlers cannot mutate the frame seen by others.
func (e InboundEvent) Clone() InboundEvent {
	return InboundEvent{Source: e.Source, Data: maps.Clone(e.Data)}
}

// OutboundMessage is text to deliver back through a transport.
// An empty Source selects the primary transport.
type OutboundMessage struct {
	Source  string `json:"source,omitempty"`
	Channel string `json:"channel"`
	User    string `json:"user,omitempty"`
	Text    string `json:"text"`
}

// OutboundHandler delivers one outbound message on a transport.
type OutboundHandler func(context.Context, OutboundMessage) error
