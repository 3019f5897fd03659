// salesbot/controllers/chat.go
package controllers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"salesbot/salesbot/services/llm"
	"salesbot/salesbot/services/notifier"
	"salesbot/salesbot/services/persona"
	"salesbot/salesbot/sources/psql/dao"
	"salesbot/salesbot/sources/psql/models"
	"salesbot/salesbot/sources/storage"
	"salesbot/salesbot/types"
	"salesbot/salesbot/utils/logging"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

var (
	ErrInvalidDifficulty = errors.New("invalid difficulty")
	ErrInvalidUsername   = errors.New("invalid username")
	ErrNoActiveSession   = errors.New("no chat session found")
	ErrInvalidSessionID  = errors.New("invalid session id")
	ErrArchiveDisabled   = errors.New("transcript archive is not configured")
)

// minHistory is the number of stored messages needed before history is
// replayed to the model. A lone first message is never used as seed.
const minHistory = 2

type TranscriptArchiver interface {
	ArchiveTranscript(ctx context.Context, session models.Session, msgs []models.Message) (string, error)
	GetTranscript(ctx context.Context, username, sessionID string) (*storage.Transcript, error)
}

type ChatOptions struct {
	Model       string
	Channel     string
	DisplayName string
}

type ChatController struct {
	chatDAO  *dao.ChatDAO
	llm      llm.Client
	notifier notifier.Notifier
	personas *persona.Catalog
	archiver TranscriptArchiver
	opts     ChatOptions
}

// NewChatController wires the workflow. archiver may be nil.
func NewChatController(
	chatDAO *dao.ChatDAO,
	llmClient llm.Client,
	n notifier.Notifier,
	personas *persona.Catalog,
	archiver TranscriptArchiver,
	opts ChatOptions,
) *ChatController {
	return &ChatController{
		chatDAO:  chatDAO,
		llm:      llmClient,
		notifier: n,
		personas: personas,
		archiver: archiver,
		opts:     opts,
	}
}

// NormalizeText turns the form encoding's space marker back into a space.
func NormalizeText(s string) string {
	return strings.ReplaceAll(s, "+", " ")
}

// canonicalUsername is the session key form used by every operation.
func canonicalUsername(username string) (string, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return "", ErrInvalidUsername
	}
	return username, nil
}

// CreateSession replaces the user's session with a new one at the given level.
func (c *ChatController) CreateSession(ctx context.Context, username, difficulty string) (string, error) {
	defer logging.LogDuration(ctx, "create_session")()

	username, err := canonicalUsername(username)
	if err != nil {
		return "", err
	}
	level, ok := persona.Parse(difficulty)
	if !ok {
		return "", fmt.Errorf("%w: %q", ErrInvalidDifficulty, difficulty)
	}

	c.archivePrevious(ctx, username)

	session, err := c.chatDAO.ReplaceSession(ctx, username, string(level))
	if err != nil {
		return "", fmt.Errorf("replace session: %w", err)
	}
	logging.AppLogger.Info("session created",
		zap.String("username", username),
		zap.String("session_id", session.ID.String()),
		zap.String("level", session.Level),
	)
	return fmt.Sprintf("Bot created with level %s", level), nil
}

// archivePrevious uploads the transcript being replaced. Failures are logged only.
func (c *ChatController) archivePrevious(ctx context.Context, username string) {
	if c.archiver == nil {
		return
	}
	prev, err := c.chatDAO.GetSessionByUsername(ctx, username)
	if err != nil || prev == nil {
		if err != nil {
			logging.ErrorLogger.Error("archive lookup failed", zap.String("username", username), zap.Error(err))
		}
		return
	}
	msgs, err := c.chatDAO.ListMessages(ctx, prev.ID)
	if err != nil {
		logging.ErrorLogger.Error("archive history failed", zap.String("session_id", prev.ID.String()), zap.Error(err))
		return
	}
	if len(msgs) == 0 {
		return
	}
	key, err := c.archiver.ArchiveTranscript(ctx, *prev, msgs)
	if err != nil {
		logging.ErrorLogger.Error("archive upload failed", zap.String("session_id", prev.ID.String()), zap.Error(err))
		return
	}
	logging.AppLogger.Info("transcript archived", zap.String("key", key), zap.Int("messages", len(msgs)))
}

// ChatBot stores the inbound message, asks the model for a reply with the
// session history as context, stores the reply and relays it.
func (c *ChatController) ChatBot(ctx context.Context, username, message string) (string, error) {
	defer logging.LogDuration(ctx, "chat_bot")()

	username, err := canonicalUsername(username)
	if err != nil {
		return "", err
	}
	session, err := c.chatDAO.GetSessionByUsername(ctx, username)
	if err != nil {
		return "", fmt.Errorf("lookup session: %w", err)
	}
	if session == nil {
		return "", fmt.Errorf("%w for username: %s", ErrNoActiveSession, username)
	}

	// committed before the model runs so the user's turn survives a model failure
	if _, err := c.chatDAO.AppendMessage(ctx, session.ID, message); err != nil {
		return "", fmt.Errorf("save inbound message: %w", err)
	}

	stored, err := c.chatDAO.GetHistory(ctx, session.ID)
	if err != nil {
		return "", fmt.Errorf("load history: %w", err)
	}
	turn := llm.Turn{Role: llm.RoleUser, Parts: buildHistory(stored, message)}

	preamble, err := c.personas.Prompt(persona.Difficulty(session.Level))
	if err != nil {
		return "", err
	}
	turn.Parts = append([]string{preamble}, turn.Parts...)

	answer, err := c.llm.Run(ctx, llm.ChatRequest{
		Model:   c.opts.Model,
		Prompt:  message,
		History: []llm.Turn{turn},
	})
	if err != nil {
		return "", fmt.Errorf("generate reply: %w", err)
	}

	if _, err := c.chatDAO.AppendMessage(ctx, session.ID, answer); err != nil {
		return "", fmt.Errorf("save reply: %w", err)
	}

	err = c.notifier.Post(ctx, notifier.Post{
		Channel:  c.opts.Channel,
		Text:     answer,
		Username: c.opts.DisplayName,
	})
	if err != nil {
		return answer, fmt.Errorf("post reply: %w", err)
	}

	logging.AppLogger.Info("reply delivered",
		zap.String("username", username),
		zap.String("session_id", session.ID.String()),
		zap.Int("history_parts", len(turn.Parts)),
	)
	return answer, nil
}

// buildHistory replays stored messages only once there are at least two,
// then appends the inbound message.
func buildHistory(stored []string, inbound string) []string {
	history := []string{}
	if len(stored) >= minHistory {
		history = append(history, stored...)
	}
	return append(history, NormalizeText(inbound))
}

// History returns the user's active session with its ordered messages.
func (c *ChatController) History(ctx context.Context, username string) (*types.HistoryResponse, error) {
	username, err := canonicalUsername(username)
	if err != nil {
		return nil, err
	}
	session, err := c.chatDAO.GetSessionByUsername(ctx, username)
	if err != nil {
		return nil, err
	}
	if session == nil {
		return nil, fmt.Errorf("%w for username: %s", ErrNoActiveSession, username)
	}
	msgs, err := c.chatDAO.ListMessages(ctx, session.ID)
	if err != nil {
		return nil, err
	}
	resp := &types.HistoryResponse{
		SessionID: session.ID.String(),
		Username:  session.Username,
		Level:     session.Level,
		Messages:  make([]types.HistoryEntry, 0, len(msgs)),
	}
	for _, m := range msgs {
		resp.Messages = append(resp.Messages, types.HistoryEntry{Seq: m.Seq, Text: m.Message, CreatedAt: m.CreatedAt})
	}
	return resp, nil
}

// Transcript returns a replaced session from the archive.
func (c *ChatController) Transcript(ctx context.Context, username, sessionID string) (*storage.Transcript, error) {
	username, err := canonicalUsername(username)
	if err != nil {
		return nil, err
	}
	id, err := uuid.Parse(sessionID)
	if err != nil {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSessionID, sessionID)
	}
	if c.archiver == nil {
		return nil, ErrArchiveDisabled
	}
	return c.archiver.GetTranscript(ctx, username, id.String())
}
