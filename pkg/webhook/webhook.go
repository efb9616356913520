// Package webhook routes inbound HTTP calls to named webhook handlers.
package webhook

import (
	"context"
	"errors"
	"maps"

	"rtmbot/pkg/bus"
	"rtmbot/pkg/command"
	"rtmbot/pkg/session"
)

const (
	// FieldWebhook names the handler to invoke.
	FieldWebhook = "webhook"
	// FieldAuth carries the shared secret when one is configured.
	FieldAuth = "webserver_auth"
	// FieldPayload is the JSON-encoded form field of form-encoded requests.
	FieldPayload = "payload"
)

// Payload is a decoded webhook request body.
type Payload map[string]any

// String returns the named field when it holds a string.
func (p Payload) String(key string) string {
	value, _ := p[key].(string)
	return value
}

// Handler is the capability every webhook must provide.
type Handler interface {
	Name() string
	Execute(ctx context.Context, req *Request) (any, error)
}

// Request is the per-call state handed to a webhook handler.
type Request struct {
	ID      string
	Payload Payload
	Session *session.Context

	sender command.Sender
}

// NewRequest builds a webhook request whose output goes through sender.
func NewRequest(id string, payload Payload, sc *session.Context, sender command.Sender) *Request {
	return &Request{ID: id, Payload: maps.Clone(payload), Session: sc, sender: sender}
}

// Send posts text to a channel on the primary transport.
func (r *Request) Send(ctx context.Context, channel, text string) error {
	if r.sender == nil {
		return command.ErrNoSender
	}
	return r.sender.Send(ctx, bus.OutboundMessage{Channel: channel, Text: text})
}

type funcHandler struct {
	name string
	fn   func(context.Context, *Request) (any, error)
}

// Func wraps fn as a Handler named name.
func Func(name string, fn func(context.Context, *Request) (any, error)) Handler {
	return &funcHandler{name: name, fn: fn}
}

func (f *funcHandler) Name() string { return f.name }

func (f *funcHandler) Execute(ctx context.Context, req *Request) (any, error) {
	if f.fn == nil {
		return nil, errors.New("webhook has no implementation")
	}
	return f.fn(ctx, req)
}
