// Package apperrors holds the sentinel errors shared by the storage, service and
// transport layers. Callers wrap them with fmt.Errorf("...: %w") and match with errors.Is.
package apperrors

import "errors"

var (
	// ErrNotFound indicates the referenced user, pokemon or rating does not exist.
	ErrNotFound = errors.New("not found")
	// ErrValidation indicates malformed input such as a rating outside [0, 5].
	ErrValidation = errors.New("validation failed")
	// ErrConflict indicates concurrent writers collided and retries were exhausted.
	ErrConflict = errors.New("concurrency conflict")
	// ErrUnauthorized indicates the caller identity is missing or invalid.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates the caller is not the subject of the operation.
	ErrForbidden = errors.New("forbidden")
)
