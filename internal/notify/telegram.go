// Package notify pushes status-change events to managers over Telegram.
package notify

import (
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/rs/zerolog"

	"noren/internal/events"
)

// Notifier sends a short message to each configured chat whenever the
// displayed status changes. Errors are logged and dropped; notification is
// fire-and-forget.
type Notifier struct {
	bot     *tgbotapi.BotAPI
	chatIDs []int64
	logger  *zerolog.Logger
}

// New creates a notifier from a bot token and manager chat ids.
func New(token string, chatIDs []int64, logger *zerolog.Logger) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create telegram bot: %w", err)
	}
	return &Notifier{bot: bot, chatIDs: chatIDs, logger: logger}, nil
}

// Attach subscribes the notifier to the event bus.
func (n *Notifier) Attach(bus *events.Bus) {
	bus.Subscribe(n.handle)
}

func (n *Notifier) handle(ev events.StatusChange) {
	text := formatChange(ev)
	for _, chatID := range n.chatIDs {
		msg := tgbotapi.NewMessage(chatID, text)
		if _, err := n.bot.Send(msg); err != nil {
			n.logger.Warn().Err(err).Int64("chat_id", chatID).Msg("status notification failed")
		}
	}
}

func formatChange(ev events.StatusChange) string {
	origin := "schedule"
	if ev.Manual {
		origin = "manual override"
	}
	text := fmt.Sprintf("Status changed to %s (%s) via %s", ev.Status.Type, ev.Status.Message, origin)
	if ev.Status.Detail != "" {
		text += "\n" + ev.Status.Detail
	}
	if ev.Status.EndTime != nil {
		text += "\nuntil " + ev.Status.EndTime.Format("2006-01-02 15:04")
	}
	return text
}
