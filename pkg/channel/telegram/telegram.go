package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"rtmbot/pkg/bus"
	"rtmbot/pkg/config"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
)

const channelName = "telegram"
const messagePreviewLimit = 240

// Adapter feeds Telegram text messages into the dispatcher as gateway-style
// events: the chat id is the channel and the sender id is the user.
type Adapter struct {
	cfg       config.TelegramConfig
	allowFrom map[string]struct{}
	log       *slog.Logger
}

// NewAdapter validates Telegram configuration and constructs an adapter instance.
func NewAdapter(cfg config.TelegramConfig, log *slog.Logger) (*Adapter, error) {
	token := strings.TrimSpace(cfg.Token)
	if token == "" {
		return nil, errors.New("channels.telegram.token is required")
	}

	if log == nil {
		log = slog.Default()
	}

	return &Adapter{
		cfg:       cfg,
		allowFrom: allowFromSet(cfg.AllowFrom),
		log:       log.With("component", "channel.telegram"),
	}, nil
}

func (a *Adapter) Name() string {
	return channelName
}

// Run starts long polling, publishes messages as inbound events and delivers
// outbound messages addressed to this transport.
func (a *Adapter) Run(ctx context.Context, mb *bus.MessageBus) error {
	if mb == nil {
		return errors.New("message bus is required")
	}

	bot, err := telego.NewBot(strings.TrimSpace(a.cfg.Token))
	if err != nil {
		return fmt.Errorf("initialize telegram bot: %w", err)
	}

	updates, err := bot.UpdatesViaLongPolling(ctx, nil)
	if err != nil {
		return fmt.Errorf("start long polling: %w", err)
	}

	mb.RegisterHandler(channelName, func(ctx context.Context, msg bus.OutboundMessage) error {
		return a.send(ctx, bot, msg)
	})
	defer mb.UnregisterHandler(channelName)

	a.log.Info("Telegram channel started")

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				if err := ctx.Err(); err != nil {
					return nil
				}
				return errors.New("telegram updates channel closed")
			}

			event, ok := a.toEvent(update)
			if !ok {
				continue
			}
			a.log.Info("Received message", "channel", event.Channel(), "user", event.User(), "text", previewText(event.Text()))

			if !mb.PublishInbound(ctx, event) {
				return nil
			}
		}
	}
}

// toEvent maps a Telegram update to an inbound event. Non-text updates and
// senders outside allow_from are dropped.
func (a *Adapter) toEvent(update telego.Update) (bus.InboundEvent, bool) {
	message := update.Message
	if message == nil {
		return bus.InboundEvent{}, false
	}

	text := strings.TrimSpace(message.Text)
	if text == "" {
		return bus.InboundEvent{}, false
	}
	if message.From == nil {
		a.log.Debug("Ignoring message without sender")
		return bus.InboundEvent{}, false
	}

	senderID := strconv.FormatInt(message.From.ID, 10)
	if !a.senderAllowed(senderID) {
		a.log.Debug("Ignoring message from unauthorized sender", "sender_id", senderID)
		return bus.InboundEvent{}, false
	}

	return bus.NewInboundEvent(channelName, map[string]any{
		"type":      "message",
		"channel":   strconv.FormatInt(message.Chat.ID, 10),
		"user":      senderID,
		"text":      text,
		"update_id": update.UpdateID,
	}), true
}

func (a *Adapter) send(ctx context.Context, bot *telego.Bot, msg bus.OutboundMessage) error {
	chatID, err := strconv.ParseInt(strings.TrimSpace(msg.Channel), 10, 64)
	if err != nil {
		return fmt.Errorf("telegram chat id %q: %w", msg.Channel, err)
	}

	text := strings.TrimSpace(msg.Text)
	if text == "" {
		return nil
	}
	a.log.Info("Sending message", "channel", msg.Channel, "text", previewText(text))

	if _, err := bot.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		return fmt.Errorf("send telegram message: %w", err)
	}
	return nil
}

// senderAllowed checks whether a sender is permitted by allow_from config.
//
// When no allow list is configured, all senders are accepted.
func (a *Adapter) senderAllowed(senderID string) bool {
	if len(a.allowFrom) == 0 {
		return true
	}

	_, ok := a.allowFrom[strings.TrimSpace(senderID)]
	return ok
}

// allowFromSet normalizes allow_from values into a lookup set.
func allowFromSet(allowFrom []string) map[string]struct{} {
	if len(allowFrom) == 0 {
		return nil
	}

	allowed := make(map[string]struct{}, len(allowFrom))
	for _, value := range allowFrom {
		trimmed := strings.TrimSpace(value)
		if trimmed == "" {
			continue
		}
		allowed[trimmed] = struct{}{}
	}

	if len(allowed) == 0 {
		return nil
	}

	return allowed
}

// previewText returns a bounded log-safe preview of message text.
func previewText(text string) string {
	trimmed := strings.TrimSpace(text)
	if len(trimmed) <= messagePreviewLimit {
		return trimmed
	}

	cut := 0
	for i := range trimmed {
		if i > messagePreviewLimit {
			break
		}
		cut = i
	}
	return trimmed[:cut] + "..."
}
