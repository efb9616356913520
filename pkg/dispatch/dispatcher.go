// Package dispatch runs catch-all handlers and at most one named command for
// every inbound gateway event.
package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"rtmbot/pkg/bus"
	"rtmbot/pkg/command"
	"rtmbot/pkg/metrics"
	"rtmbot/pkg/session"
)

// HandlerError is a command or catch-all failure contained by the dispatcher.
type HandlerError struct {
	Handler  string
	CatchAll bool
	Panic    any
	Err      error
}

func (e *HandlerError) Error() string {
	kind := "command"
	if e.CatchAll {
		kind = "catch-all handler"
	}
	if e.Panic != nil {
		return fmt.Sprintf("%s %q panicked: %v", kind, e.Handler, e.Panic)
	}
	return fmt.Sprintf("%s %q failed: %v", kind, e.Handler, e.Err)
}

func (e *HandlerError) Unwrap() error { return e.Err }

// Outcome describes what one dispatch cycle did.
type Outcome struct {
	EventID  string
	CatchAll int
	Command  string
	Errors   []error
}

// Matched reports whether a named command ran.
func (o Outcome) Matched() bool { return o.Command != "" }

// Dispatcher routes events from the bus to the command registry. Events are
// processed one at a time under the execution lock; a handler that never
// returns blocks every later event and any webhook sharing the lock.
type Dispatcher struct {
	registry *command.Registry
	session  *session.Context
	bus      *bus.MessageBus
	sender   command.Sender
	metrics  *metrics.Collector
	log      *slog.Logger
	exec     *sync.Mutex
}

// Option customises a Dispatcher.
type Option func(*Dispatcher)

func WithMetrics(c *metrics.Collector) Option {
	return func(d *Dispatcher) { d.metrics = c }
}

func WithLogger(log *slog.Logger) Option {
	return func(d *Dispatcher) {
		if log != nil {
			d.log = log.With("component", "dispatch")
		}
	}
}

// WithExecLock makes every dispatch cycle hold lock, so handlers never run
// alongside other work guarded by the same lock.
func WithExecLock(lock *sync.Mutex) Option {
	return func(d *Dispatcher) {
		if lock != nil {
			d.exec = lock
		}
	}
}

// WithSender overrides how handler replies are delivered. By default replies
// are published on the bus outbound queue.
func WithSender(s command.Sender) Option {
	return func(d *Dispatcher) { d.sender = s }
}

func New(registry *command.Registry, sc *session.Context, mb *bus.MessageBus, opts ...Option) (*Dispatcher, error) {
	if registry == nil {
		return nil, errors.New("command registry is required")
	}
	if mb == nil {
		return nil, errors.New("message bus is required")
	}

	d := &Dispatcher{
		registry: registry,
		session:  sc,
		bus:      mb,
		log:      slog.Default().With("component", "dispatch"),
		exec:     &sync.Mutex{},
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.sender == nil {
		d.sender = BusSender(mb)
	}

	return d, nil
}

// BusSender publishes replies on the outbound queue of mb.
func BusSender(mb *bus.MessageBus) command.Sender {
	return command.SenderFunc(func(ctx context.Context, msg bus.OutboundMessage) error {
		if !mb.PublishOutbound(ctx, msg) {
			return errors.New("outbound queue closed")
		}
		return nil
	})
}

// Run consumes inbound events until ctx is done or the bus closes.
func (d *Dispatcher) Run(ctx context.Context) error {
	d.registry.Freeze()
	d.log.Info("Dispatcher started", "commands", d.registry.Len(), "catch_all", len(d.registry.CatchAll()))

	for {
		event, ok := d.bus.ConsumeInbound(ctx)
		if !ok {
			if err := ctx.Err(); err != nil {
				return err
			}
			return nil
		}
		d.Dispatch(ctx, event)
	}
}

// Dispatch runs every catch-all handler in registration order, then the
// first matching named command. Handler failures are logged and reported in
// the outcome; they never stop later handlers.
func (d *Dispatcher) Dispatch(ctx context.Context, event bus.InboundEvent) Outcome {
	d.exec.Lock()
	defer d.exec.Unlock()

	started := time.Now()
	outcome := Outcome{EventID: uuid.NewString()}
	log := d.log.With("event_id", outcome.EventID, "source", event.Source)
	log.Debug("Got message", "type", event.Type(), "channel", event.Channel(), "user", event.User())

	for _, h := range d.registry.CatchAll() {
		req := command.NewRequest(event.Clone(), d.session, d.sender)
		outcome.CatchAll++
		if err := d.invoke(ctx, h, req, true); err != nil {
			outcome.Errors = append(outcome.Errors, err)
			d.report(ctx, log, event, err)
		}
	}

	if h, ok := command.Resolve(d.registry, d.session.SelfID(), event); ok {
		req := command.NewRequest(event.Clone(), d.session, d.sender)
		req.Channel = event.Channel()
		req.User = event.User()
		outcome.Command = h.Name()

		d.metrics.ObserveCommand(h.Name())
		d.bus.PublishEvent(ctx, bus.Event{
			Type:      bus.EventCommandMatched,
			Source:    event.Source,
			Channel:   req.Channel,
			User:      req.User,
			Handler:   h.Name(),
			RequestID: outcome.EventID,
		})
		log.Info("Running command", "command", h.Name(), "channel", req.Channel, "user", req.User)

		if err := d.invoke(ctx, h, req, false); err != nil {
			outcome.Errors = append(outcome.Errors, err)
			d.report(ctx, log, event, err)
		}
	}

	d.metrics.ObserveEvent(time.Since(started))
	return outcome
}

func (d *Dispatcher) invoke(ctx context.Context, h command.Handler, req *command.Request, catchAll bool) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = &HandlerError{Handler: h.Name(), CatchAll: catchAll, Panic: r, Err: fmt.Errorf("panic: %v", r)}
		}
	}()

	if execErr := h.Execute(ctx, req); execErr != nil {
		return &HandlerError{Handler: h.Name(), CatchAll: catchAll, Err: execErr}
	}
	return nil
}

func (d *Dispatcher) report(ctx context.Context, log *slog.Logger, event bus.InboundEvent, err error) {
	var handlerErr *HandlerError
	if !errors.As(err, &handlerErr) {
		log.Error("Handler failed", "error", err)
		return
	}

	kind := "error"
	if handlerErr.Panic != nil {
		kind = "panic"
	}
	d.metrics.ObserveHandlerError(handlerErr.Handler, kind)
	d.bus.PublishEvent(ctx, bus.Event{
		Type:    bus.EventHandlerFailed,
		Source:  event.Source,
		Channel: event.Channel(),
		User:    event.User(),
		Handler: handlerErr.Handler,
		Error:   handlerErr.Error(),
	})
	log.Error("Handler failed", "handler", handlerErr.Handler, "catch_all", handlerErr.CatchAll, "kind", kind, "error", handlerErr)
}
