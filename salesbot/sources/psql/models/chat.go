// salesbot/sources/psql/models/chat.go
package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Session is one user's active conversation. At most one row per username.
type Session struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Level     string    `json:"level" gorm:"type:varchar(32);not null"`
	Username  string    `json:"username" gorm:"type:varchar(255);not null;index"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (Session) TableName() string {
	return "chat"
}

func (s *Session) BeforeCreate(tx *gorm.DB) (err error) {
	if s.ID == uuid.Nil {
		s.ID = uuid.New()
	}
	return nil
}
