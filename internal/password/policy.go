// Package password contains the password strength policy applied at
// registration and password reset.
package password

import (
	"errors"
	"strings"
	"unicode"
)

var (
	ErrEmpty           = errors.New("no password provided")
	ErrTooShort        = errors.New("password must be at least 8 characters long")
	ErrTooLong         = errors.New("password is too long")
	ErrEntirelyNumeric = errors.New("password cannot be entirely numeric")
	ErrTooCommon       = errors.New("password is too common")
	ErrSimilarToEmail  = errors.New("password is too similar to the email address")
)

// IsPolicyViolation reports whether err is one of the policy's rejections,
// as opposed to an infrastructure failure.
func IsPolicyViolation(err error) bool {
	for _, policyErr := range []error{
		ErrEmpty, ErrTooShort, ErrTooLong, ErrEntirelyNumeric, ErrTooCommon, ErrSimilarToEmail,
	} {
		if errors.Is(err, policyErr) {
			return true
		}
	}
	return false
}

// Policy validates a candidate password for a given account email.
type Policy interface {
	Validate(password, email string) error
}

// DefaultPolicy mirrors the usual stack of strength checks: minimum length,
// not entirely numeric, not a known-common password, not similar to the
// account's own email.
type DefaultPolicy struct {
	MinLength int
}

func NewDefaultPolicy() DefaultPolicy {
	return DefaultPolicy{MinLength: 8}
}

func (p DefaultPolicy) Validate(pw, email string) error {
	if pw == "" {
		return ErrEmpty
	}
	minLength := p.MinLength
	if minLength == 0 {
		minLength = 8
	}
	if len(pw) < minLength {
		return ErrTooShort
	}
	if len(pw) > 255 {
		return ErrTooLong
	}
	if entirelyNumeric(pw) {
		return ErrEntirelyNumeric
	}
	if commonPasswords[strings.ToLower(pw)] {
		return ErrTooCommon
	}
	if similarToEmail(pw, email) {
		return ErrSimilarToEmail
	}
	return nil
}

func entirelyNumeric(pw string) bool {
	for _, r := range pw {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return true
}

// similarToEmail rejects passwords that contain, or are contained in, the
// email address or its local part.
func similarToEmail(pw, email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	if email == "" {
		return false
	}
	lowered := strings.ToLower(pw)
	candidates := []string{email}
	if at := strings.IndexByte(email, '@'); at > 0 {
		candidates = append(candidates, email[:at])
	}
	for _, candidate := range candidates {
		if len(candidate) < 4 {
			continue
		}
		if strings.Contains(lowered, candidate) || strings.Contains(candidate, lowered) {
			return true
		}
	}
	return false
}

var commonPasswords = map[string]bool{
	"password":    true,
	"password1":   true,
	"password123": true,
	"12345678":    true,
	"123456789":   true,
	"1234567890":  true,
	"qwertyuiop":  true,
	"qwerty123":   true,
	"letmein1":    true,
	"iloveyou":    true,
	"sunshine":    true,
	"football":    true,
	"baseball":    true,
	"superman":    true,
	"trustno1":    true,
	"welcome1":    true,
	"admin123":    true,
	"passw0rd":    true,
	"aa123456":    true,
	"abc12345":    true,
}
