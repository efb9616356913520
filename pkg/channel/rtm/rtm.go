// Package rtm reads the gateway's real-time event stream over a WebSocket.
package rtm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"

	"github.com/coder/websocket"

	"rtmbot/pkg/bus"
)

const (
	channelName    = "rtm"
	maxFrameSize   = 4 << 20
	framePreviewAt = 240
)

// Adapter streams gateway frames into the bus and writes replies back as
// message frames.
type Adapter struct {
	url    string
	log    *slog.Logger
	nextID atomic.Int64
}

// NewAdapter builds an adapter for the stream URL handed out at session start.
func NewAdapter(url string, log *slog.Logger) (*Adapter, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("gateway stream url is required")
	}
	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		url: url,
		log: log.With("component", "channel.rtm"),
	}, nil
}

func (a *Adapter) Name() string {
	return channelName
}

// Run dials the stream and forwards every decodable text frame as an event.
func (a *Adapter) Run(ctx context.Context, mb *bus.MessageBus) error {
	if mb == nil {
		return errors.New("message bus is required")
	}

	conn, _, err := websocket.Dial(ctx, a.url, nil)
	if err != nil {
		return fmt.Errorf("dialing gateway: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "bot shutting down")
	conn.SetReadLimit(maxFrameSize)

	mb.RegisterHandler(channelName, func(ctx context.Context, msg bus.OutboundMessage) error {
		return a.write(ctx, conn, msg)
	})
	defer mb.UnregisterHandler(channelName)

	a.log.Info("Connected to gateway")

	for {
		typ, data, err := conn.Read(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			if websocket.CloseStatus(err) == websocket.StatusNormalClosure {
				return errors.New("gateway closed the connection")
			}
			return fmt.Errorf("read: %w", err)
		}
		if typ != websocket.MessageText {
			continue
		}

		var frame map[string]any
		if err := json.Unmarshal(data, &frame); err != nil || frame == nil {
			a.log.Warn("Skipping undecodable frame", "frame", preview(data), "error", err)
			continue
		}
		a.log.Debug("Got message", "frame", preview(data))

		if !mb.PublishInbound(ctx, bus.NewInboundEvent(channelName, frame)) {
			return nil
		}
	}
}

// messageFrame is the outbound wire shape. A reply to a user is prefixed
// with their mention.
type messageFrame struct {
	ID      int64  `json:"id"`
	Type    string `json:"type"`
	Channel string `json:"channel"`
	Text    string `json:"text"`
}

func (a *Adapter) frame(msg bus.OutboundMessage) messageFrame {
	text := msg.Text
	if msg.User != "" {
		text = "<@" + msg.User + "> " + text
	}
	return messageFrame{
		ID:      a.nextID.Add(1),
		Type:    "message",
		Channel: msg.Channel,
		Text:    text,
	}
}

func (a *Adapter) write(ctx context.Context, conn *websocket.Conn, msg bus.OutboundMessage) error {
	data, err := json.Marshal(a.frame(msg))
	if err != nil {
		return err
	}
	return conn.Write(ctx, websocket.MessageText, data)
}

func preview(data []byte) string {
	text := strings.TrimSpace(string(data))
	if len(text) <= framePreviewAt {
		return text
	}
	cut := 0
	for i := range text {
		if i > framePreviewAt {
			break
		}
		cut = i
	}
	return text[:cut] + "..."
}
