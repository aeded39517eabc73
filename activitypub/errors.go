package activitypub

import (
	"context"
	"errors"
	"fmt"

	"github.com/deemkeen/inboxd/domain"
)

// Validation
var ErrInvalidActivity = errors.New("invalid activity")

// Verification
var (
	ErrDomainMismatch    = errors.New("domain mismatch")
	ErrSignatureInvalid  = errors.New("signature invalid")
	ErrActorUnresolvable = errors.New("actor unresolvable")
	ErrInstanceBlocked   = errors.New("instance blocked")
	ErrPermissionDenied  = errors.New("permission denied")
)

// Resolution
var (
	ErrRecursionLimitExceeded = errors.New("recursion limit exceeded")
	ErrFetchFailed            = errors.New("fetch failed")
	ErrInvalidRemoteObject    = errors.New("invalid remote object")
	ErrTypeMismatch           = errors.New("type mismatch")
)

var (
	ErrUnsupported = errors.New("unsupported activity")
	ErrNotFound    = domain.ErrNotFound
)

// ErrorClass groups pipeline errors by how the sending peer should be told
// about them.
type ErrorClass string

const (
	ClassNone         ErrorClass = "ok"
	ClassValidation   ErrorClass = "validation"
	ClassVerification ErrorClass = "verification"
	ClassResolution   ErrorClass = "resolution"
	ClassUnsupported  ErrorClass = "unsupported"
	ClassNotFound     ErrorClass = "not_found"
	ClassInternal     ErrorClass = "internal"
)

func Classify(err error) ErrorClass {
	switch {
	case err == nil:
		return ClassNone
	case errors.Is(err, ErrInvalidActivity):
		return ClassValidation
	case errors.Is(err, ErrDomainMismatch),
		errors.Is(err, ErrSignatureInvalid),
		errors.Is(err, ErrActorUnresolvable),
		errors.Is(err, ErrInstanceBlocked),
		errors.Is(err, ErrPermissionDenied):
		return ClassVerification
	case errors.Is(err, ErrRecursionLimitExceeded),
		errors.Is(err, ErrFetchFailed),
		errors.Is(err, ErrInvalidRemoteObject),
		errors.Is(err, ErrTypeMismatch):
		return ClassResolution
	case errors.Is(err, ErrUnsupported):
		return ClassUnsupported
	case errors.Is(err, ErrNotFound):
		return ClassNotFound
	default:
		return ClassInternal
	}
}

// fail wraps a sentinel with a formatted detail message.
func fail(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%w: %s", sentinel, fmt.Sprintf(format, args...))
}

func isCanceled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}
