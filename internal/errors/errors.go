package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	InvalidInput            ErrorCode = "invalid_input"
	InvalidFile             ErrorCode = "invalid_file"
	FileTooLarge            ErrorCode = "file_too_large"
	InvalidReprocessRequest ErrorCode = "invalid_reprocess_request"
	InvalidStatus           ErrorCode = "invalid_status"
	TransactionNotFound     ErrorCode = "transaction_not_found"
	DuplicateTransaction    ErrorCode = "duplicate_transaction"
	InternalError           ErrorCode = "internal_error"
)

type AppError struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

func (e AppError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func NewAppError(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func NewAppErrorf(code ErrorCode, format string, args ...interface{}) *AppError {
	return &AppError{
		Code:    code,
		Message: fmt.Sprintf(format, args...),
	}
}

// WithDetails returns a copy so the predefined errors below stay untouched.
func (e *AppError) WithDetails(details string) *AppError {
	cp := *e
	cp.Details = details
	return &cp
}

// HTTPStatus maps the error code to a response status.
func (e *AppError) HTTPStatus() int {
	switch e.Code {
	case InvalidInput, InvalidFile, InvalidReprocessRequest, InvalidStatus:
		return http.StatusBadRequest
	case FileTooLarge:
		return http.StatusRequestEntityTooLarge
	case TransactionNotFound:
		return http.StatusNotFound
	case DuplicateTransaction:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// AsAppError unwraps err to an *AppError, falling back to an internal error.
func AsAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return NewAppError(InternalError, "an unexpected error occurred").WithDetails(err.Error())
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr) && appErr.Code == code
}

// Predefined errors for common cases
var (
	ErrTransactionNotFound  = NewAppError(TransactionNotFound, "transaction not found")
	ErrDuplicateTransaction = NewAppError(DuplicateTransaction, "duplicate transaction reference number")
	ErrNoFileUploaded       = NewAppError(InvalidFile, "no file uploaded")
	ErrInvalidFile          = NewAppError(InvalidFile, "invalid NACH file")
	ErrFileTooLarge         = NewAppError(FileTooLarge, "file size exceeds maximum limit")
	ErrInvalidReprocess     = NewAppError(InvalidReprocessRequest, "invalid reprocess request")
	ErrInvalidStatus        = NewAppError(InvalidStatus, "invalid transaction status")
	ErrCannotBeginTx        = NewAppError(InternalError, "cannot begin transaction on this executor")
)
