package service

import "errors"

var (
	ErrInvalidInput           = errors.New("invalid input")
	ErrEmailAlreadyRegistered = errors.New("email is already registered")
	ErrInvalidCredentials     = errors.New("invalid credentials")
	ErrNotVerified            = errors.New("account not verified yet")
	ErrUserNotFound           = errors.New("user not found")
	ErrInvalidCode            = errors.New("invalid code")
	ErrCodeExpired            = errors.New("code expired or already used")
)
