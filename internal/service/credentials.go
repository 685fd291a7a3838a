package service

import (
	"authgate/internal/entity"
	"authgate/internal/password"
)

// Burned when the email does not resolve to a user so that unknown-email and
// wrong-password attempts cost the same.
const dummyPasswordHash = "$2a$10$CwTycUXWue0Thq9StjUM0uJ8yQbWc1x9uxw2sQ2sXUNx5x9xJ9F2S"

// CredentialManager owns password acceptance and verification. It is
// deliberately storage-free; the flow controller does the lookups.
type CredentialManager struct {
	Hasher PasswordHasher
	Policy password.Policy
}

func NewCredentialManager(hasher PasswordHasher, policy password.Policy) CredentialManager {
	return CredentialManager{Hasher: hasher, Policy: policy}
}

// ValidateNew applies the strength policy to a candidate password.
func (m CredentialManager) ValidateNew(pw string, email string) error {
	if m.Policy == nil {
		return nil
	}
	return m.Policy.Validate(pw, email)
}

func (m CredentialManager) HashPassword(pw string) (string, error) {
	return m.Hasher.Hash(pw)
}

// Authenticate checks a password against a looked-up user. The user may be
// nil (unknown email); the error is the same generic ErrInvalidCredentials
// either way. An unverified account is surfaced distinctly: the caller is
// allowed to know the account exists but is not yet activated.
func (m CredentialManager) Authenticate(user *entity.User, pw string) error {
	if user == nil {
		m.Hasher.Verify(dummyPasswordHash, pw)
		return ErrInvalidCredentials
	}
	if !m.Hasher.Verify(user.PasswordHash, pw) {
		return ErrInvalidCredentials
	}
	if !user.IsActive {
		return ErrNotVerified
	}
	return nil
}
