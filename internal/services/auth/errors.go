package auth

import "errors"

// Service errors
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrEmailTaken         = errors.New("email already registered")
	ErrWeakPassword       = errors.New("password must be at least 8 characters and contain a special character")
	ErrInvalidToken       = errors.New("invalid token")
)
