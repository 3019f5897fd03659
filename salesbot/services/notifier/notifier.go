package notifier

import (
	"context"
	"fmt"

	"salesbot/salesbot/config"
	"salesbot/salesbot/utils/logging"

	"go.uber.org/zap"
)

// NewNotifier builds the notifier selected by cfg.Notifier.
func NewNotifier(cfg config.Config) (Notifier, error) {
	switch cfg.Notifier {
	case config.NotifierSlack:
		return NewSlackNotifier(cfg.SlackBotToken), nil
	case config.NotifierTelegram:
		return NewTelegramNotifier(cfg.TelegramBotToken, cfg.TelegramChatID)
	case config.NotifierLog:
		return LogNotifier{}, nil
	}
	return nil, fmt.Errorf("unknown notifier %q", cfg.Notifier)
}

// LogNotifier writes posts to the app log instead of a chat platform.
type LogNotifier struct{}

func (LogNotifier) Post(ctx context.Context, p Post) error {
	logging.AppLogger.Info("bot reply",
		zap.String("channel", p.Channel),
		zap.String("username", p.Username),
		zap.String("text", p.Text),
	)
	return nil
}

// Discard drops every post. Used where the caller shows replies itself.
type Discard struct{}

func (Discard) Post(ctx context.Context, p Post) error { return nil }
