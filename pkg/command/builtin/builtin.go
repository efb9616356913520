// Package builtin provides the commands loaded by default.
package builtin

import (
	"context"
	"strconv"
	"sync"
	"time"

	"rtmbot/pkg/command"
)

// DateLayout is the reply format of the date command.
const DateLayout = "Mon Jan 2 15:04:05 MST 2006"

// Defaults returns the built-in commands in load order.
func Defaults() []command.Handler {
	return []command.Handler{
		Ping{},
		NewCount(),
		NewDate(nil),
		NewPokerPlanning(),
	}
}

// Ping answers "ping" with "Pong".
type Ping struct{}

func (Ping) Name() string { return "ping" }

func (Ping) Execute(ctx context.Context, req *command.Request) error {
	return req.Reply(ctx, "Pong")
}

// Count replies with how many times it has been called since startup.
type Count struct {
	mu    sync.Mutex
	count int
}

func NewCount() *Count { return &Count{} }

func (*Count) Name() string { return "count" }

func (c *Count) Execute(ctx context.Context, req *command.Request) error {
	c.mu.Lock()
	c.count++
	current := c.count
	c.mu.Unlock()

	return req.Reply(ctx, strconv.Itoa(current))
}

// Date replies with the current time.
type Date struct {
	now func() time.Time
}

// NewDate builds the date command. A nil clock uses time.Now.
func NewDate(now func() time.Time) *Date {
	if now == nil {
		now = time.Now
	}
	return &Date{now: now}
}

func (*Date) Name() string { return "date" }

func (d *Date) Execute(ctx context.Context, req *command.Request) error {
	return req.Reply(ctx, d.now().Format(DateLayout))
}
