// Package telegram sends one-way operator announcements about publishes
// and failures to a single chat. It never reads updates.
package telegram

import (
	"fmt"
	"log/slog"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

const maxTelegramMessage = 4096

// Notifier delivers announcements to one Telegram chat.
type Notifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

// New creates a Notifier for the given bot token and chat.
func New(token string, chatID int64) (*Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("create bot: %w", err)
	}
	return &Notifier{bot: bot, chatID: chatID}, nil
}

// Announce sends the text to the operator chat. Delivery is best-effort;
// failures are logged and never propagate into the publish path.
func (n *Notifier) Announce(text string) {
	for _, part := range splitMessage(text) {
		msg := tgbotapi.NewMessage(n.chatID, part)
		if _, err := n.bot.Send(msg); err != nil {
			slog.Warn("telegram announcement failed", "error", err)
			return
		}
	}
}

// AnnounceError reports a listener failure streak to the operator.
func (n *Notifier) AnnounceError(listener string, streak int, err error) {
	n.Announce(fmt.Sprintf("Listener %s failing (%d in a row): %v", listener, streak, err))
}

func splitMessage(text string) []string {
	if len(text) <= maxTelegramMessage {
		return []string{text}
	}
	var parts []string
	for len(text) > 0 {
		end := maxTelegramMessage
		if end > len(text) {
			end = len(text)
		}
		parts = append(parts, text[:end])
		text = text[end:]
	}
	return parts
}
