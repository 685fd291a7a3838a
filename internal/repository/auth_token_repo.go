package repository

import (
	"context"
	"errors"
	"time"

	"authgate/internal/entity"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type AuthTokenRepository interface {
	Create(ctx context.Context, token *entity.AuthToken) error
	FindByKey(ctx context.Context, key string) (*entity.AuthToken, error)
	DeleteByKey(ctx context.Context, key string) error
	DeleteAllByUser(ctx context.Context, userID uuid.UUID) error
	DeleteExpired(ctx context.Context, now time.Time) error
}

type authTokenRepository struct {
	db *gorm.DB
}

func NewAuthTokenRepository(db *gorm.DB) AuthTokenRepository {
	return &authTokenRepository{db: db}
}

func (r *authTokenRepository) Create(ctx context.Context, token *entity.AuthToken) error {
	return r.db.WithContext(ctx).Create(token).Error
}

// FindByKey resolves a token regardless of expiry; callers decide how to
// surface an expired match.
func (r *authTokenRepository) FindByKey(ctx context.Context, key string) (*entity.AuthToken, error) {
	var token entity.AuthToken
	err := r.db.WithContext(ctx).
		Preload("User").
		Where("key = ?", key).
		First(&token).Error

	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &token, nil
}

// DeleteByKey is a no-op when the key is already gone; logout must never fail
// because the token was revoked earlier.
func (r *authTokenRepository) DeleteByKey(ctx context.Context, key string) error {
	return r.db.WithContext(ctx).
		Where("key = ?", key).
		Delete(&entity.AuthToken{}).
		Error
}

func (r *authTokenRepository) DeleteAllByUser(ctx context.Context, userID uuid.UUID) error {
	return r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Delete(&entity.AuthToken{}).
		Error
}

func (r *authTokenRepository) DeleteExpired(ctx context.Context, now time.Time) error {
	return r.db.WithContext(ctx).
		Where("expires_at <= ?", now).
		Delete(&entity.AuthToken{}).
		Error
}
