package errors

import (
	stderrors "errors"
	"fmt"
)

type AppError struct {
	Code    int    // Protocol error code
	Message string // User-facing message
	Err     error  // Underlying error (optional)
}

const (
	// Protocol
	ErrBadMessageFormat   = 1000
	ErrUnknownMessageType = 1001
	ErrRateLimited        = 1002

	// Authorization
	ErrUnauthenticated    = 1100
	ErrForbidden          = 1101
	ErrInvalidCredentials = 1102

	// Policy
	ErrNotFound        = 1200
	ErrBidTooLow       = 1201
	ErrAuctionClosed   = 1202
	ErrSelfBid         = 1203
	ErrItemEncumbered  = 1204
	ErrAlreadyExists   = 1205
	ErrInvalidState    = 1206
	ErrInvalidArgument = 1207

	ErrInternalServer = 500
)

// Storage sentinels, matched with errors.Is across layers.
var (
	ErrRecordNotFound = stderrors.New("not found")
	ErrDuplicate      = stderrors.New("already exists")
	// ErrConflict means a conditional write matched no row.
	ErrConflict = stderrors.New("conflict")
)

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error { return e.Err }

// Wrapping utility
func Wrap(err error, message string) *AppError {
	return &AppError{Code: ErrInternalServer, Message: message, Err: err}
}

// Error creation utility
func New(code int, message string) *AppError {
	return &AppError{Code: code, Message: message}
}

// Internal hides err behind a generic message; err stays available for logging.
func Internal(err error) *AppError {
	return &AppError{Code: ErrInternalServer, Message: "Internal server error", Err: err}
}

// CodeOf extracts the AppError code from err, ErrInternalServer otherwise.
func CodeOf(err error) int {
	var app *AppError
	if stderrors.As(err, &app) {
		return app.Code
	}
	return ErrInternalServer
}

// IsPolicy reports whether err is an expected business-rule rejection.
func IsPolicy(err error) bool {
	code := CodeOf(err)
	return code >= ErrNotFound && code < 1300
}

// MessageOf returns the user-facing message of err.
func MessageOf(err error) string {
	var app *AppError
	if stderrors.As(err, &app) {
		return app.Message
	}
	return "Internal server error"
}

// Is is re-exported so callers importing this package need not alias the standard library.
func Is(err, target error) bool { return stderrors.Is(err, target) }

// As is re-exported so callers importing this package need not alias the standard library.
func As(err error, target any) bool { return stderrors.As(err, target) }
