package notifier

import (
	"context"

	"github.com/slack-go/slack"
)

type SlackNotifier struct {
	api *slack.Client
}

func NewSlackNotifier(token string, opts ...slack.Option) *SlackNotifier {
	return &SlackNotifier{api: slack.New(token, opts...)}
}

func (n *SlackNotifier) Post(ctx context.Context, p Post) error {
	_, _, err := n.api.PostMessageContext(ctx, p.Channel,
		slack.MsgOptionText(p.Text, false),
		slack.MsgOptionUsername(p.Username),
	)
	return err
}
