package service

import "errors"

// Authentication failures carry one generic message per category so a caller
// can never tell which sub-check failed.
var (
	ErrInvalidCredentials  = errors.New("invalid email or password")
	ErrInvalidRefreshToken = errors.New("invalid or expired refresh token")
	ErrRefreshExpired      = errors.New("refresh token has expired")
)

// Validation failures concern data the caller supplied, so they are specific.
var (
	ErrEmailTaken     = errors.New("email already registered")
	ErrInvalidEmail   = errors.New("invalid email format")
	ErrWeakPassword   = errors.New("password must be at least 6 characters")
	ErrInvalidRole    = errors.New("invalid role")
	ErrSchoolRequired = errors.New("school_id is required for this role")
	ErrSchoolNotFound = errors.New("school not found")
)

var ErrUserNotFound = errors.New("user not found")
