package entity

import (
	"time"

	"github.com/google/uuid"
)

// AuthToken is an opaque session token. The random key itself is the primary
// identifier: the cookie carries it verbatim and logout deletes by it.
type AuthToken struct {
	Key    string    `gorm:"type:varchar(64);primaryKey"`
	UserID uuid.UUID `gorm:"type:uuid;not null;index"`
	User   User      `gorm:"constraint:OnDelete:CASCADE"`

	CreatedAt time.Time
	ExpiresAt time.Time `gorm:"not null"`
}

// Valid reports whether the token is still usable. An expired token must be
// treated the same as an absent one.
func (t *AuthToken) Valid(now time.Time) bool {
	return t.ExpiresAt.After(now)
}
