package repository

import (
	"context"

	"gorm.io/gorm"
)

// Manager hands out the repositories and runs multi-step sequences inside a
// single transaction. Register (create user + create code) and code
// consumption (mark used + mutate user) must not be able to half-apply.
type Manager interface {
	Users() UserRepository
	Tokens() AuthTokenRepository
	Codes() VerificationCodeRepository
	SecurityLogs() SecurityLogRepository

	// Atomic runs fn against a Manager whose repositories share one
	// transaction, committing when fn returns nil.
	Atomic(ctx context.Context, fn func(m Manager) error) error
}

type gormManager struct {
	db *gorm.DB
}

func NewManager(db *gorm.DB) Manager {
	return &gormManager{db: db}
}

func (m *gormManager) Users() UserRepository               { return NewUserRepository(m.db) }
func (m *gormManager) Tokens() AuthTokenRepository         { return NewAuthTokenRepository(m.db) }
func (m *gormManager) Codes() VerificationCodeRepository   { return NewVerificationCodeRepository(m.db) }
func (m *gormManager) SecurityLogs() SecurityLogRepository { return NewSecurityLogRepository(m.db) }

func (m *gormManager) Atomic(ctx context.Context, fn func(tx Manager) error) error {
	return m.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&gormManager{db: tx})
	})
}
