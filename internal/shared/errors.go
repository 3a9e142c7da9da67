package shared

import "errors"

var (
	// ErrUnauthorized indicates a missing, invalid or expired credential,
	// or a disabled principal. Detail beyond that is never exposed.
	ErrUnauthorized = errors.New("unauthorized")
	// ErrForbidden indicates a valid principal lacking a required role,
	// or the preview-mode write lock.
	ErrForbidden = errors.New("forbidden")
	// ErrNotFound indicates the referenced record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict indicates a duplicate unique code or name.
	ErrConflict = errors.New("already exists")
	// ErrInvalidInput indicates a malformed request payload.
	ErrInvalidInput = errors.New("invalid input")
	// ErrInvalidCredentials indicates login failure.
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// UserSafeMessage maps internal errors to messages safe to show callers.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized), errors.Is(err, ErrInvalidCredentials):
		return "unauthorized"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrNotFound):
		return "resource not found"
	case errors.Is(err, ErrConflict):
		return "resource already exists"
	case errors.Is(err, ErrInvalidInput):
		return "invalid input"
	default:
		return "internal error"
	}
}
