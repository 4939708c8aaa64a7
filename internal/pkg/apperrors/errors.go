package apperrors

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorType string

const (
	ErrNotInitialized        ErrorType = "NOT_INITIALIZED"
	ErrUnsupportedMarket     ErrorType = "UNSUPPORTED_MARKET"
	ErrInvalidInput          ErrorType = "INVALID_INPUT"
	ErrQuoteExpired          ErrorType = "QUOTE_EXPIRED"
	ErrSigningFailed         ErrorType = "SIGNING_FAILED"
	ErrSettlementRejected    ErrorType = "SETTLEMENT_REJECTED"
	ErrSubmissionFailed      ErrorType = "SUBMISSION_FAILED"
	ErrAllowanceInsufficient ErrorType = "ALLOWANCE_INSUFFICIENT"
	ErrInvalidTransactionID  ErrorType = "INVALID_TRANSACTION_ID"
	ErrUnsupportedNetwork    ErrorType = "UNSUPPORTED_NETWORK"
	ErrUnauthorized          ErrorType = "UNAUTHORIZED"
	ErrIncompatibleDealer    ErrorType = "INCOMPATIBLE_DEALER"
	ErrDuplicateSubmission   ErrorType = "DUPLICATE_SUBMISSION"
	ErrUpstream              ErrorType = "UPSTREAM_ERROR"
	ErrNotFound              ErrorType = "NOT_FOUND"
	ErrReadOnly              ErrorType = "READ_ONLY"
	ErrInternal              ErrorType = "INTERNAL_ERROR"
)

// AppError is the standard error struct for the application
type AppError struct {
	Type       ErrorType `json:"code"`
	Message    string    `json:"message"`
	Suggestion string    `json:"suggestion,omitempty"`
	HTTPStatus int       `json:"-"`
	Cause      error     `json:"-"`
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

func New(errType ErrorType, msg string, cause error) *AppError {
	return &AppError{
		Type:       errType,
		Message:    msg,
		Cause:      cause,
		HTTPStatus: mapTypeToStatus(errType),
		Suggestion: mapTypeToSuggestion(errType),
	}
}

// Newf is New without a cause and with a formatted message.
func Newf(errType ErrorType, format string, args ...any) *AppError {
	return New(errType, fmt.Sprintf(format, args...), nil)
}

func NewInvalidInput(msg string) *AppError {
	return New(ErrInvalidInput, msg, nil)
}

func Wrap(err error) *AppError {
	if err == nil {
		return nil
	}
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr
	}
	return New(ErrInternal, err.Error(), err)
}

// TypeOf returns the type of the outermost AppError in err's chain, or "" if none.
func TypeOf(err error) ErrorType {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Type
	}
	return ""
}

// Is reports whether err carries an AppError of the given type.
func Is(err error, errType ErrorType) bool {
	return TypeOf(err) == errType
}

func mapTypeToStatus(t ErrorType) int {
	switch t {
	case ErrInvalidInput, ErrInvalidTransactionID, ErrUnsupportedMarket:
		return http.StatusBadRequest
	case ErrUnauthorized, ErrReadOnly:
		return http.StatusForbidden
	case ErrQuoteExpired:
		return http.StatusGone
	case ErrDuplicateSubmission:
		return http.StatusConflict
	case ErrSettlementRejected, ErrAllowanceInsufficient, ErrSigningFailed:
		return http.StatusUnprocessableEntity
	case ErrNotInitialized, ErrUnsupportedNetwork, ErrIncompatibleDealer:
		return http.StatusServiceUnavailable
	case ErrNotFound:
		return http.StatusNotFound
	case ErrUpstream, ErrSubmissionFailed:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func mapTypeToSuggestion(t ErrorType) string {
	switch t {
	case ErrQuoteExpired, ErrSettlementRejected:
		return "Request a fresh quote."
	case ErrSubmissionFailed:
		return "Retry with the same signed payload while the quote is still valid."
	case ErrAllowanceInsufficient:
		return "Set an allowance for the taker asset first."
	case ErrUnsupportedMarket:
		return "List supported markets with GET /v1/markets."
	case ErrIncompatibleDealer:
		return "Upgrade the client to the dealer API version."
	case ErrSigningFailed:
		return "Check the signing provider and retry with a fresh quote."
	case ErrReadOnly:
		return "Disable server.read_only to trade through this gateway."
	default:
		return ""
	}
}
