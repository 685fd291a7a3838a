package service

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"authgate/internal/entity"
	"authgate/internal/repository"
	"authgate/internal/utils"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const tokenKeyBytes = 32

// AuthService drives the account state machine: an email goes from
// unregistered to pending verification at Register, and to active only when
// a valid unconsumed code is presented.
type AuthService struct {
	repos       repository.Manager
	credentials CredentialManager
	emailSender EmailSender
	clock       Clock
	logger      logrus.FieldLogger
	config      AuthConfig
}

func NewAuthService(
	repos repository.Manager,
	credentials CredentialManager,
	emailSender EmailSender,
	clock Clock,
	logger logrus.FieldLogger,
	config AuthConfig,
) *AuthService {
	return &AuthService{
		repos:       repos,
		credentials: credentials,
		emailSender: emailSender,
		clock:       clock,
		logger:      logger,
		config:      config,
	}
}

// Register creates an inactive account and issues its first verification
// code. The user row and the code row commit together.
func (s *AuthService) Register(ctx context.Context, email string, pw string) error {
	if strings.TrimSpace(email) == "" || pw == "" {
		return ErrInvalidInput
	}
	email = utils.NormalizeEmail(email)

	if err := s.credentials.ValidateNew(pw, email); err != nil {
		return err
	}

	existing, err := s.repos.Users().FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if existing != nil {
		return ErrEmailAlreadyRegistered
	}

	hash, err := s.credentials.HashPassword(pw)
	if err != nil {
		return err
	}
	code, err := GenerateOTP()
	if err != nil {
		return err
	}

	user := &entity.User{
		Email:        email,
		PasswordHash: hash,
		IsActive:     false,
	}
	err = s.repos.Atomic(ctx, func(tx repository.Manager) error {
		if err := tx.Users().Create(ctx, user); err != nil {
			return err
		}
		return tx.Codes().Create(ctx, s.newVerificationCode(email, code))
	})
	if err != nil {
		// Two concurrent registrations race past the application-level
		// check; the unique index on email decides the winner.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrEmailAlreadyRegistered
		}
		return err
	}

	s.sendOTP(ctx, email, code)
	s.logSecurity(ctx, &user.ID, nil, entity.Registered, nil)
	return nil
}

// VerifyRegistration consumes the most recent matching code and activates
// the account. Consumption and activation commit together; a consumed code
// stays consumed even if the caller retries.
func (s *AuthService) VerifyRegistration(ctx context.Context, email string, code string) error {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(code) == "" {
		return ErrInvalidInput
	}
	email = utils.NormalizeEmail(email)

	user, err := s.repos.Users().FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	row, err := s.findValidCode(ctx, email, code)
	if err != nil {
		return err
	}

	err = s.repos.Atomic(ctx, func(tx repository.Manager) error {
		if err := tx.Codes().MarkUsed(ctx, row.ID); err != nil {
			return err
		}
		return tx.Users().Activate(ctx, user.ID)
	})
	if err != nil {
		return err
	}

	s.logSecurity(ctx, &user.ID, nil, entity.EmailVerified, nil)
	return nil
}

// Login verifies credentials and issues a fresh session token. A user may
// hold any number of concurrent tokens.
func (s *AuthService) Login(ctx context.Context, email string, pw string, ipAddress *string) (*entity.AuthToken, error) {
	if strings.TrimSpace(email) == "" || pw == "" {
		return nil, ErrInvalidInput
	}
	email = utils.NormalizeEmail(email)

	user, err := s.repos.Users().FindByEmail(ctx, email)
	if err != nil {
		return nil, err
	}
	if err := s.credentials.Authenticate(user, pw); err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			s.logSecurity(ctx, nil, ipAddress, entity.LoginFailed, map[string]any{"email": email})
		}
		return nil, err
	}

	key, err := utils.GenerateRandomToken(tokenKeyBytes)
	if err != nil {
		return nil, err
	}
	now := s.now()
	token := &entity.AuthToken{
		Key:       key,
		UserID:    user.ID,
		ExpiresAt: now.Add(s.config.tokenTTL()),
	}
	if err := s.repos.Tokens().Create(ctx, token); err != nil {
		return nil, err
	}

	s.logSecurity(ctx, &user.ID, ipAddress, entity.LoginSuccess, nil)
	return token, nil
}

// Logout revokes the presented token. A missing or already-revoked token is
// not an error; logout always succeeds from the caller's point of view.
func (s *AuthService) Logout(ctx context.Context, key string, userID *uuid.UUID, ipAddress *string) error {
	if key == "" {
		return nil
	}
	if err := s.repos.Tokens().DeleteByKey(ctx, key); err != nil {
		return err
	}
	s.logSecurity(ctx, userID, ipAddress, entity.Logout, nil)
	return nil
}

// RequestPasswordReset issues a reset code for an existing account. Unknown
// emails are reported to the caller as not found.
func (s *AuthService) RequestPasswordReset(ctx context.Context, email string) error {
	if strings.TrimSpace(email) == "" {
		return ErrInvalidInput
	}
	email = utils.NormalizeEmail(email)

	user, err := s.repos.Users().FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	code, err := GenerateOTP()
	if err != nil {
		return err
	}
	if err := s.repos.Codes().Create(ctx, s.newVerificationCode(email, code)); err != nil {
		return err
	}

	s.sendOTP(ctx, email, code)
	s.logSecurity(ctx, &user.ID, nil, entity.PasswordReset, map[string]any{"stage": "requested"})
	return nil
}

// ConfirmPasswordReset consumes a reset code and replaces the password. All
// of the user's session tokens are revoked afterwards so stolen sessions do
// not survive a reset.
func (s *AuthService) ConfirmPasswordReset(ctx context.Context, email string, code string, newPassword string) error {
	if strings.TrimSpace(email) == "" || strings.TrimSpace(code) == "" || newPassword == "" {
		return ErrInvalidInput
	}
	email = utils.NormalizeEmail(email)

	user, err := s.repos.Users().FindByEmail(ctx, email)
	if err != nil {
		return err
	}
	if user == nil {
		return ErrUserNotFound
	}

	if err := s.credentials.ValidateNew(newPassword, email); err != nil {
		return err
	}

	row, err := s.findValidCode(ctx, email, code)
	if err != nil {
		return err
	}

	hash, err := s.credentials.HashPassword(newPassword)
	if err != nil {
		return err
	}
	err = s.repos.Atomic(ctx, func(tx repository.Manager) error {
		if err := tx.Codes().MarkUsed(ctx, row.ID); err != nil {
			return err
		}
		return tx.Users().UpdatePassword(ctx, user.ID, hash)
	})
	if err != nil {
		return err
	}

	if err := s.repos.Tokens().DeleteAllByUser(ctx, user.ID); err != nil {
		s.logger.WithError(err).Warn("failed to revoke sessions after password reset")
	}
	s.logSecurity(ctx, &user.ID, nil, entity.PasswordReset, map[string]any{"stage": "confirmed"})
	return nil
}

func (s *AuthService) CurrentUser(ctx context.Context, userID uuid.UUID) (*entity.User, error) {
	return s.repos.Users().FindByID(ctx, userID)
}

// findValidCode selects the latest (email, code) row and checks validity.
// "No such code" and "expired or already used" are distinct failures, but
// neither reveals more than that to the caller.
func (s *AuthService) findValidCode(ctx context.Context, email string, code string) (*entity.VerificationCode, error) {
	row, err := s.repos.Codes().FindLatest(ctx, email, code)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, ErrInvalidCode
	}
	if !row.Valid(s.now()) {
		return nil, ErrCodeExpired
	}
	return row, nil
}

func (s *AuthService) newVerificationCode(email string, code string) *entity.VerificationCode {
	return &entity.VerificationCode{
		Email:     email,
		Code:      code,
		ExpiresAt: s.now().Add(s.config.codeTTL()),
	}
}

// sendOTP is fire-and-forget: delivery failure must not fail the request or
// roll back the created code.
func (s *AuthService) sendOTP(ctx context.Context, email string, code string) {
	if s.emailSender == nil {
		return
	}
	if err := s.emailSender.SendOTPEmail(ctx, email, code); err != nil {
		s.logger.WithError(err).Warn("failed to send otp email")
	}
}

func (s *AuthService) logSecurity(
	ctx context.Context,
	userID *uuid.UUID,
	ipAddress *string,
	action entity.SecurityAction,
	metadata map[string]any,
) {
	logs := s.repos.SecurityLogs()
	if logs == nil {
		return
	}
	var payload datatypes.JSON
	if metadata != nil {
		bytes, err := json.Marshal(metadata)
		if err != nil {
			s.logger.WithError(err).Warn("failed to encode security log metadata")
			return
		}
		payload = datatypes.JSON(bytes)
	}
	log := &entity.SecurityLog{
		UserID:    userID,
		IPAddress: ipAddress,
		Action:    action,
		Metadata:  payload,
	}
	if err := logs.Log(ctx, log); err != nil {
		s.logger.WithError(err).Warn("failed to write security log")
	}
}

func (s *AuthService) now() time.Time {
	if s.clock == nil {
		return time.Now()
	}
	return s.clock.Now()
}
