// Package builtin provides the webhooks loaded by default.
package builtin

import (
	"context"
	"strings"

	"rtmbot/pkg/webhook"
)

// Defaults returns the built-in webhooks.
func Defaults() []webhook.Handler {
	return []webhook.Handler{Output{}}
}

// Output posts the payload's text to the payload's channel. A channel given
// as "#name" is resolved through the channels listed in the session payload.
type Output struct{}

func (Output) Name() string { return "output" }

func (Output) Execute(ctx context.Context, req *webhook.Request) (any, error) {
	channel := strings.TrimSpace(req.Payload.String("channel"))
	text := req.Payload.String("text")
	if channel == "" || text == "" {
		return nil, webhook.BadRequest("output webhook requires channel and text")
	}

	if name, ok := strings.CutPrefix(channel, "#"); ok {
		id, found := channelID(req, name)
		if !found {
			return nil, webhook.BadRequest("unknown channel %q", channel)
		}
		channel = id
	}

	if err := req.Send(ctx, channel, text); err != nil {
		return nil, err
	}

	return map[string]any{"channel": channel, "text": text}, nil
}

func channelID(req *webhook.Request, name string) (string, bool) {
	raw, ok := req.Session.Lookup("channels")
	if !ok {
		return "", false
	}
	channels, ok := raw.([]any)
	if !ok {
		return "", false
	}
	for _, item := range channels {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		if entry["name"] == name {
			id, ok := entry["id"].(string)
			return id, ok
		}
	}
	return "", false
}
