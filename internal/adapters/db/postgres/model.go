package postgres

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SendModel is the persistence model for the send journal.
type SendModel struct {
	ID           uuid.UUID  `gorm:"type:uuid;primaryKey"`
	Token        string     `gorm:"size:64;not null;uniqueIndex"`
	PhoneNumber  string     `gorm:"size:32;not null"`
	SimCardID    *int       `gorm:"index"`
	Status       string     `gorm:"size:16;not null;index"`
	ErrorCode    string     `gorm:"size:64"`
	ErrorMessage string     `gorm:"type:text"`
	CreatedAt    time.Time  `gorm:"not null;index"`
	CompletedAt  *time.Time
}

func (SendModel) TableName() string {
	return "sms_sends"
}

func (m *SendModel) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}
