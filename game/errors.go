package game

import (
	"errors"
	"fmt"
)

// 呼び出し側は errors.Is で種類を判定します。
var (
	ErrValidation = errors.New("validation error")
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrForbidden  = errors.New("forbidden")
	ErrFull       = errors.New("room full")

	// ErrInvalidTransition is a Forbidden error raised when an intent is not
	// legal in the room's current status.
	ErrInvalidTransition = fmt.Errorf("%w: invalid transition", ErrForbidden)
)

// Kind returns a short machine-readable name for err's category.
func Kind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrValidation):
		return "validation"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrFull):
		return "full"
	case errors.Is(err, ErrConflict):
		return "conflict"
	case errors.Is(err, ErrInvalidTransition):
		return "invalid_transition"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	default:
		return "internal"
	}
}
