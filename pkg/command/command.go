// Package command holds the named and catch-all command handlers and the
// resolver that picks one for an inbound event.
package command

import (
	"context"
	"errors"

	"rtmbot/pkg/bus"
	"rtmbot/pkg/session"
)

// Handler is the capability every command must provide.
type Handler interface {
	Name() string
	Execute(ctx context.Context, req *Request) error
}

// Sender delivers outbound text for a handler.
type Sender interface {
	Send(ctx context.Context, msg bus.OutboundMessage) error
}

// SenderFunc adapts a function to Sender.
type SenderFunc func(ctx context.Context, msg bus.OutboundMessage) error

func (f SenderFunc) Send(ctx context.Context, msg bus.OutboundMessage) error { return f(ctx, msg) }

// ErrNoSender is returned by Request.Send when the request has no way to reply.
var ErrNoSender = errors.New("no sender attached to request")

// Request is the per-call state handed to a handler. Channel and User are
// only set for named commands; catch-all handlers read the event instead.
type Request struct {
	Event   bus.InboundEvent
	Channel string
	User    string
	Session *session.Context

	sender Sender
}

// NewRequest builds a request that replies through sender.
func NewRequest(event bus.InboundEvent, sc *session.Context, sender Sender) *Request {
	return &Request{Event: event, Session: sc, sender: sender}
}

// Send delivers text to channel, addressed to user when user is not empty.
// Replies go back through the transport the event arrived on.
func (r *Request) Send(ctx context.Context, channel, user, text string) error {
	if r.sender == nil {
		return ErrNoSender
	}
	return r.sender.Send(ctx, bus.OutboundMessage{
		Source:  r.Event.Source,
		Channel: channel,
		User:    user,
		Text:    text,
	})
}

// Reply answers the current channel and user.
func (r *Request) Reply(ctx context.Context, text string) error {
	return r.Send(ctx, r.Channel, r.User, text)
}

// Args returns the event text after the command name, with the leading
// self-mention removed.
func (r *Request) Args(name string) string {
	text := StripMention(r.Event.Text(), r.Session.SelfID())
	if len(text) < len(name) {
		return ""
	}
	return trimSpaces(text[len(name):])
}

type funcHandler struct {
	name string
	fn   func(context.Context, *Request) error
}

// Func wraps fn as a Handler named name.
func Func(name string, fn func(context.Context, *Request) error) Handler {
	return &funcHandler{name: name, fn: fn}
}

func (f *funcHandler) Name() string { return f.name }

func (f *funcHandler) Execute(ctx context.Context, req *Request) error {
	if f.fn == nil {
		return nil
	}
	return f.fn(ctx, req)
}
