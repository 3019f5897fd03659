package notifier

import "context"

// Post is one outbound chat message.
type Post struct {
	Channel  string
	Text     string
	Username string
}

type Notifier interface {
	// Post delivers the message. The platform's response body is ignored.
	Post(ctx context.Context, p Post) error
}
