package errors

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	ErrDocumentNotFound  = errors.New("document not found")
	ErrDuplicateContent  = errors.New("document with identical content already exists")
	ErrInvalidInput      = errors.New("invalid input")
	ErrReprocessInFlight = errors.New("document is already being processed")
	ErrUnauthorized      = errors.New("unauthorized")
	ErrForbidden         = errors.New("forbidden")
	ErrExtractionFailed  = errors.New("text extraction failed")
	ErrSyncFailed        = errors.New("vector index synchronization failed")
	ErrIndexUnavailable  = errors.New("vector index unavailable")
	ErrInternal          = errors.New("internal error")
	ErrTimeout           = errors.New("operation timed out")
)

type AppError struct {
	Err        error
	Message    string
	StatusCode int
}

func (e *AppError) Error() string {
	return fmt.Sprintf("%s: %s", e.Err.Error(), e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func New(sentinel error, statusCode int, message string) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    message,
		StatusCode: statusCode,
	}
}

func Newf(sentinel error, statusCode int, format string, args ...any) *AppError {
	return &AppError{
		Err:        sentinel,
		Message:    fmt.Sprintf(format, args...),
		StatusCode: statusCode,
	}
}

// DuplicateError reports an upload whose content fingerprint matches an
// existing document. It carries enough of the existing record for a client
// to locate it.
type DuplicateError struct {
	ExistingID      string
	ExistingOwnerID string
	ExistingName    string
}

func (e *DuplicateError) Error() string {
	return fmt.Sprintf("%s: %s (%s)", ErrDuplicateContent.Error(), e.ExistingName, e.ExistingID)
}

func (e *DuplicateError) Unwrap() error {
	return ErrDuplicateContent
}

func HTTPStatusCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.StatusCode
	}

	switch {
	case errors.Is(err, ErrDocumentNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrDuplicateContent), errors.Is(err, ErrReprocessInFlight):
		return http.StatusConflict
	case errors.Is(err, ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, ErrExtractionFailed):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrIndexUnavailable), errors.Is(err, ErrSyncFailed):
		return http.StatusBadGateway
	case errors.Is(err, ErrTimeout):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
