// salesbot/sources/psql/models/message.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Message is one append-only turn. Seq orders a session's history.
type Message struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	ChatID    uuid.UUID `json:"chat_id" gorm:"type:uuid;not null;uniqueIndex:idx_messages_chat_seq,priority:1"`
	Seq       int64     `json:"seq" gorm:"not null;uniqueIndex:idx_messages_chat_seq,priority:2"`
	Message   string    `json:"message" gorm:"type:text;not null"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Message) TableName() string {
	return "messages"
}

func (m *Message) BeforeCreate(tx *gorm.DB) (err error) {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
