// Package apierror provides the typed error taxonomy shared by the store,
// the launch compiler and the services. Every write-time or compile-time
// failure is surfaced as an *Error carrying a stable code, the offending
// path where one exists, and the underlying OS error.
package apierror

import (
	"fmt"
	"net/http"
)

// Error is a single typed error.
type Error struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"` // not serialized into responses
	RawError   error  `json:"-"` // underlying cause, for logs only
}

// Error implements the error interface.
func (e *Error) Error() string {
	str := fmt.Sprintf("[%s] %s", e.Code, e.Message)
	if e.RawError != nil {
		str += fmt.Sprintf(": %v", e.RawError)
	}
	return str
}

// Is reports whether target is an *Error with the same code, so callers
// can match against the predefined errors with errors.Is.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || e == nil || t == nil {
		return false
	}
	return e.Code == t.Code
}

// Unwrap returns the underlying cause, if any.
func (e *Error) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.RawError
}

var _ interface {
	Error() string
	Is(target error) bool
	Unwrap() error
} = (*Error)(nil)

// New creates an error with the given code and message.
func New(code, message string, httpStatus int) *Error {
	return &Error{
		Code:       code,
		Message:    message,
		HTTPStatus: httpStatus,
	}
}

// Wrap derives an error from a predefined one, keeping its code and HTTP
// status but replacing the message and attaching the underlying cause.
func Wrap(base *Error, message string, rawError error) *Error {
	return &Error{
		Code:       base.Code,
		Message:    message,
		HTTPStatus: base.HTTPStatus,
		RawError:   rawError,
	}
}

// Wrapf is Wrap with a formatted message.
func Wrapf(base *Error, rawError error, format string, args ...any) *Error {
	return Wrap(base, fmt.Sprintf(format, args...), rawError)
}

// Predefined errors. Codes are stable API; messages are defaults that
// Wrap usually replaces with path-carrying detail.
var (
	// ErrNotFound covers missing resources: a VM record, a disk image,
	// an ISO file.
	ErrNotFound = New("NotFound", "The requested resource was not found.", http.StatusNotFound)

	// ErrHypervisorNotFound is returned when the hypervisor binary is not
	// on the executable search path.
	ErrHypervisorNotFound = New("HypervisorNotFound", "The hypervisor executable was not found on PATH.", http.StatusFailedDependency)

	// ErrFirmwareFilesMissing is returned when UEFI firmware files are not
	// in place. For secure boot both the code and the vars volume must
	// exist; the compiler never emits one pflash drive without the other.
	ErrFirmwareFilesMissing = New("FirmwareFilesMissing", "Required firmware files are missing.", http.StatusFailedDependency)

	// ErrInvalidDisplayMode guards the exhaustive display switch. It is
	// unreachable for records that passed validation.
	ErrInvalidDisplayMode = New("InvalidDisplayMode", "The display mode is not recognized.", http.StatusBadRequest)

	// ErrRenameConflict is returned when the rename target already exists.
	ErrRenameConflict = New("RenameConflict", "A file with the target name already exists.", http.StatusConflict)

	// ErrIOFailure wraps arbitrary filesystem errors. The wrapped message
	// always names the offending path.
	ErrIOFailure = New("IOFailure", "A filesystem operation failed.", http.StatusInternalServerError)

	// ErrValidationFailure covers illegal names, unknown enum values and
	// host-capacity violations.
	ErrValidationFailure = New("ValidationFailure", "The request failed validation.", http.StatusBadRequest)

	// ErrParseFailure covers unparsable config files.
	ErrParseFailure = New("ParseFailure", "The configuration file could not be parsed.", http.StatusInternalServerError)

	// ErrPreconditionFailed is returned when the pre-flight gate finds
	// unmet launch preconditions.
	ErrPreconditionFailed = New("PreconditionFailed", "Launch preconditions are not satisfied.", http.StatusConflict)

	// ErrInternal is the fallback for unexpected failures.
	ErrInternal = New("InternalError", "An internal error has occurred.", http.StatusInternalServerError)
)
