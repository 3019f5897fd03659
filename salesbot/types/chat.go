// salesbot/types/chat.go
package types

import (
	"net/url"
	"strings"
	"time"
)

// SlashCommand is the subset of a Slack slash-command payload the bot reads.
type SlashCommand struct {
	UserName string
	Text     string
}

// SlashCommandFromForm trims the user name, which is the session key.
func SlashCommandFromForm(form url.Values) SlashCommand {
	return SlashCommand{
		UserName: strings.TrimSpace(form.Get("user_name")),
		Text:     form.Get("text"),
	}
}

type HistoryEntry struct {
	Seq       int64     `json:"seq"`
	Text      string    `json:"text"`
	CreatedAt time.Time `json:"created_at"`
}

type HistoryResponse struct {
	SessionID string         `json:"session_id"`
	Username  string         `json:"username"`
	Level     string         `json:"level"`
	Messages  []HistoryEntry `json:"messages"`
}
