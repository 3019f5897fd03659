package dao

import (
	"context"
	"errors"

	"salesbot/salesbot/sources/psql/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type ChatDAO struct {
	DB *gorm.DB
}

func NewChatDAO(db *gorm.DB) *ChatDAO {
	return &ChatDAO{DB: db}
}

// GetSessionByUsername returns nil, nil when the user has no session.
func (dao *ChatDAO) GetSessionByUsername(ctx context.Context, username string) (*models.Session, error) {
	var session models.Session
	err := dao.DB.WithContext(ctx).
		Where("username = ?", username).
		Order("created_at DESC").
		First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// ReplaceSession deletes every session the user owns, together with their
// messages, and inserts a fresh one. All of it commits or none of it does.
func (dao *ChatDAO) ReplaceSession(ctx context.Context, username, level string) (*models.Session, error) {
	var created models.Session
	err := dao.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var ids []uuid.UUID
		if err := tx.Model(&models.Session{}).Where("username = ?", username).Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) > 0 {
			if err := tx.Where("chat_id IN ?", ids).Delete(&models.Message{}).Error; err != nil {
				return err
			}
			if err := tx.Where("id IN ?", ids).Delete(&models.Session{}).Error; err != nil {
				return err
			}
		}
		created = models.Session{Level: level, Username: username}
		return tx.Create(&created).Error
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// AppendMessage stores text as the next turn of the session.
func (dao *ChatDAO) AppendMessage(ctx context.Context, chatID uuid.UUID, text string) (*models.Message, error) {
	var msg models.Message
	err := dao.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var last int64
		err := tx.Model(&models.Message{}).
			Where("chat_id = ?", chatID).
			Select("COALESCE(MAX(seq), 0)").
			Scan(&last).Error
		if err != nil {
			return err
		}
		msg = models.Message{ChatID: chatID, Seq: last + 1, Message: text}
		return tx.Create(&msg).Error
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

// ListMessages returns the session's turns in the order they were written.
func (dao *ChatDAO) ListMessages(ctx context.Context, chatID uuid.UUID) ([]models.Message, error) {
	var msgs []models.Message
	err := dao.DB.WithContext(ctx).
		Where("chat_id = ?", chatID).
		Order("seq ASC").
		Find(&msgs).Error
	if err != nil {
		return nil, err
	}
	return msgs, nil
}

// GetHistory is ListMessages reduced to the message text.
func (dao *ChatDAO) GetHistory(ctx context.Context, chatID uuid.UUID) ([]string, error) {
	var history []string
	err := dao.DB.WithContext(ctx).
		Model(&models.Message{}).
		Where("chat_id = ?", chatID).
		Order("seq ASC").
		Pluck("message", &history).Error
	if err != nil {
		return nil, err
	}
	return history, nil
}
