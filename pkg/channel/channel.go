package channel

import (
	"context"

	"rtmbot/pkg/bus"
)

// Adapter bridges one external chat transport into the bot. Run publishes
// decoded inbound events on the bus, registers the transport's outbound
// handler for the duration of the connection, and returns when the
// connection ends or ctx is done. Reconnecting is left to the caller.
type Adapter interface {
	Name() string
	Run(context.Context, *bus.MessageBus) error
}
