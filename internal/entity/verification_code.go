package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// VerificationCode is a one-shot 6-digit OTP keyed by email, not by user:
// a code may be created before the account exists and outlives its deletion.
type VerificationCode struct {
	ID    uuid.UUID `gorm:"type:uuid;primaryKey"`
	Email string    `gorm:"type:varchar(255);not null;index:idx_verification_codes_email_code"`
	Code  string    `gorm:"type:varchar(6);not null;index:idx_verification_codes_email_code"`

	CreatedAt time.Time
	ExpiresAt time.Time `gorm:"not null"`
	Used      bool      `gorm:"not null;default:false"`
}

func (c *VerificationCode) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

func (c *VerificationCode) Valid(now time.Time) bool {
	return !c.Used && c.ExpiresAt.After(now)
}
