package repository

import (
	"context"
	"errors"
	"time"

	"authgate/internal/entity"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type VerificationCodeRepository interface {
	Create(ctx context.Context, code *entity.VerificationCode) error
	FindLatest(ctx context.Context, email string, code string) (*entity.VerificationCode, error)
	MarkUsed(ctx context.Context, id uuid.UUID) error
	DeleteExpired(ctx context.Context, now time.Time) error
}

type verificationCodeRepository struct {
	db *gorm.DB
}

func NewVerificationCodeRepository(db *gorm.DB) VerificationCodeRepository {
	return &verificationCodeRepository{db: db}
}

// Create always inserts a new row; repeated requests for the same email pile
// up and only the most recent one is consulted at consumption time.
func (r *verificationCodeRepository) Create(ctx context.Context, c *entity.VerificationCode) error {
	return r.db.WithContext(ctx).Create(c).Error
}

// FindLatest returns the most recently created row matching (email, code),
// without filtering on validity. The caller checks Valid separately so that
// "no such code" and "code expired or used" stay distinguishable.
func (r *verificationCodeRepository) FindLatest(
	ctx context.Context,
	email string,
	code string,
) (*entity.VerificationCode, error) {

	var row entity.VerificationCode
	err := r.db.WithContext(ctx).
		Where("email = ? AND code = ?", email, code).
		Order("created_at DESC").
		First(&row).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// MarkUsed flips only the used flag. Marking an already-used row again has no
// further effect.
func (r *verificationCodeRepository) MarkUsed(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&entity.VerificationCode{}).
		Where("id = ?", id).
		Update("used", true).
		Error
}

func (r *verificationCodeRepository) DeleteExpired(ctx context.Context, now time.Time) error {
	return r.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&entity.VerificationCode{}).
		Error
}
