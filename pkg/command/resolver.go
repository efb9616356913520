package command

import (
	"strings"

	"rtmbot/pkg/bus"
)

// StripMention removes one leading "<@selfID>" and the spaces after it.
// Mentions anywhere else in the text are kept.
func StripMention(text, selfID string) string {
	mention := "<@" + selfID + ">"
	if !strings.HasPrefix(text, mention) {
		return text
	}
	return trimSpaces(text[len(mention):])
}

// Resolve returns the first command, in registration order, whose name is a
// literal prefix of the event text. There is no word-boundary check: with
// "ping" registered first, "pingpong" resolves to "ping".
func Resolve(reg *Registry, selfID string, event bus.InboundEvent) (Handler, bool) {
	if reg == nil {
		return nil, false
	}

	text := event.Text()
	if text == "" {
		return nil, false
	}

	text = StripMention(text, selfID)
	if text == "" {
		return nil, false
	}

	for _, name := range reg.order {
		if strings.HasPrefix(text, name) {
			return reg.byName[name], true
		}
	}

	return nil, false
}

func trimSpaces(s string) string {
	return strings.TrimLeft(s, " ")
}
