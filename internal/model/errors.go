package model

import "errors"

// Sentinel errors shared by all repository implementations so engines
// can branch without importing a concrete storage package.
var (
	ErrPrincipalNotFound = errors.New("principal not found")
	ErrChallengeNotFound = errors.New("otp challenge not found")
	ErrSessionNotFound   = errors.New("refresh session not found")
)
