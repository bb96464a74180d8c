package capture

import (
	"errors"
	"fmt"
)

// Validation errors.
var (
	// ErrUnsupportedCourt is returned when the court is not in the directory.
	ErrUnsupportedCourt = errors.New("court is not supported for OAB capture")
	// ErrMissingBarNumber is returned when no OAB was given or found on the lawyer profile.
	ErrMissingBarNumber = errors.New("OAB number is required")
	// ErrEmptyCaptchaText is returned when a CAPTCHA answer is blank.
	ErrEmptyCaptchaText = errors.New("captcha text is required")
	// ErrMissingCaseNumber is returned by the reconciler for a case without a number.
	ErrMissingCaseNumber = errors.New("case number is required")
)

// Conflict errors. They travel inside a *ConflictError together with the
// current state.
var (
	// ErrSyncInProgress is returned when the caller already has a queued or running sync.
	ErrSyncInProgress = errors.New("a sync is already in progress")
	// ErrAwaitingCaptcha is returned when the caller's sync is paused on a CAPTCHA.
	ErrAwaitingCaptcha = errors.New("sync is waiting for a captcha answer")
	// ErrNotWaitingForCaptcha is returned when a CAPTCHA answer arrives outside WAITING_CAPTCHA.
	ErrNotWaitingForCaptcha = errors.New("sync is not waiting for a captcha")
	// ErrCaptchaMismatch is returned when the answer targets a different challenge.
	ErrCaptchaMismatch = errors.New("captcha id does not match the pending challenge")
)

// Authorization errors.
var (
	// ErrUnauthenticated is returned when the caller has no tenant or user.
	ErrUnauthenticated = errors.New("not authenticated")
	// ErrForbidden covers both "not yours" and "does not exist".
	ErrForbidden = errors.New("not authorized")
)

// ConflictError carries the state the caller should resume from.
type ConflictError struct {
	Err   error
	State SyncState
}

func (e *ConflictError) Error() string {
	return e.Err.Error()
}

func (e *ConflictError) Unwrap() error {
	return e.Err
}

// NewConflict wraps a conflict sentinel with the current state.
func NewConflict(err error, state SyncState) *ConflictError {
	return &ConflictError{Err: err, State: state.Clone()}
}

// UnknownStatusError is returned when a stored status cannot be decoded.
type UnknownStatusError struct {
	Status string
}

func (e *UnknownStatusError) Error() string {
	return fmt.Sprintf("unknown sync status %q", e.Status)
}

// Kind classifies errors for transport mapping and logging.
type Kind int

const (
	// KindSystem covers store, queue and other infrastructure failures.
	KindSystem Kind = iota
	// KindValidation covers bad or missing input.
	KindValidation
	// KindConflict covers requests that clash with the current state.
	KindConflict
	// KindForbidden covers ownership and role failures.
	KindForbidden
	// KindUnauthenticated covers calls without a principal.
	KindUnauthenticated
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindConflict:
		return "conflict"
	case KindForbidden:
		return "forbidden"
	case KindUnauthenticated:
		return "unauthenticated"
	default:
		return "system"
	}
}

// KindOf returns the class of err. Unknown errors are system errors.
func KindOf(err error) Kind {
	var conflict *ConflictError
	switch {
	case err == nil:
		return KindSystem
	case errors.As(err, &conflict):
		return KindConflict
	case errors.Is(err, ErrUnsupportedCourt),
		errors.Is(err, ErrMissingBarNumber),
		errors.Is(err, ErrEmptyCaptchaText),
		errors.Is(err, ErrMissingCaseNumber):
		return KindValidation
	case errors.Is(err, ErrSyncInProgress),
		errors.Is(err, ErrAwaitingCaptcha),
		errors.Is(err, ErrNotWaitingForCaptcha),
		errors.Is(err, ErrCaptchaMismatch):
		return KindConflict
	case errors.Is(err, ErrForbidden):
		return KindForbidden
	case errors.Is(err, ErrUnauthenticated):
		return KindUnauthenticated
	default:
		return KindSystem
	}
}
