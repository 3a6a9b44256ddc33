// Package common defines shared constants, sentinel errors and small helpers
// used across the vault, sharing, link and breach layers of keepershare.
// Callers should use errors.Is to match the error values.
package common

import "errors"

var (
	// Repository-level errors.
	ErrorNotFound      = errors.New("not found")
	ErrVersionConflict = errors.New("version conflict")

	// Service-level errors.
	ErrorInternal     = errors.New("internal error")
	ErrorUnauthorized = errors.New("unauthorized")

	// Validation errors. Concrete failures wrap ErrValidationFailed with the field name.
	ErrValidationFailed = errors.New("validation failed")
	ErrInvalidIndex     = errors.New("invalid version index")

	// Sharing errors.
	ErrAlreadyShared = errors.New("item already shared with this recipient")

	// One-time link lifecycle errors.
	ErrExpired   = errors.New("link expired")
	ErrExhausted = errors.New("link exhausted")

	// Breach endpoint errors. Never returned from a vault mutation.
	ErrRemoteUnavailable = errors.New("remote unavailable")

	// Auth errors (invalid or malformed token).
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token expired")
)
