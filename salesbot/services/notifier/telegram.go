package notifier

import (
	"context"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
)

// TelegramNotifier sends every post to one chat. Telegram has no per-message
// display name, so the name is prefixed to the text. Channel is ignored.
type TelegramNotifier struct {
	bot    *tgbotapi.BotAPI
	chatID int64
}

func NewTelegramNotifier(token string, chatID int64) (*TelegramNotifier, error) {
	return newTelegramNotifier(token, tgbotapi.APIEndpoint, chatID)
}

func newTelegramNotifier(token, endpoint string, chatID int64) (*TelegramNotifier, error) {
	bot, err := tgbotapi.NewBotAPIWithAPIEndpoint(token, endpoint)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &TelegramNotifier{bot: bot, chatID: chatID}, nil
}

func (n *TelegramNotifier) Post(ctx context.Context, p Post) error {
	text := p.Text
	if p.Username != "" {
		text = p.Username + ": " + p.Text
	}
	_, err := n.bot.Send(tgbotapi.NewMessage(n.chatID, text))
	return err
}
