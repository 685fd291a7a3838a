package service

import (
	"context"
	"time"

	"golang.org/x/crypto/bcrypt"
)

type AuthConfig struct {
	// TokenTTL bounds the lifetime of issued session tokens. Defaults to
	// seven days.
	TokenTTL time.Duration
	// CodeTTL bounds the lifetime of verification codes. Defaults to ten
	// minutes.
	CodeTTL time.Duration
}

func (c AuthConfig) tokenTTL() time.Duration {
	if c.TokenTTL > 0 {
		return c.TokenTTL
	}
	return 7 * 24 * time.Hour
}

func (c AuthConfig) codeTTL() time.Duration {
	if c.CodeTTL > 0 {
		return c.CodeTTL
	}
	return 10 * time.Minute
}

// EmailSender delivers the OTP out of band. Sends are best-effort: the caller
// logs failures but never fails the request over them.
type EmailSender interface {
	SendOTPEmail(ctx context.Context, email string, code string) error
}

type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(hash string, password string) bool
}

type Clock interface {
	Now() time.Time
}

type RealClock struct{}

func (RealClock) Now() time.Time {
	return time.Now()
}

type BcryptPasswordHasher struct {
	Cost int
}

func (h BcryptPasswordHasher) Hash(password string) (string, error) {
	cost := h.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	bytes, err := bcrypt.GenerateFromPassword([]byte(password), cost)
	if err != nil {
		return "", err
	}
	return string(bytes), nil
}

func (h BcryptPasswordHasher) Verify(hash string, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}
