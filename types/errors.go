package types

import "errors"

// PaymentError is the single error type surfaced by the payment engine.
type PaymentError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func (e *PaymentError) Error() string {
	return e.Message
}

// Is matches on Code so callers can write errors.Is(err, types.ErrNotConnected).
func (e *PaymentError) Is(target error) bool {
	t, ok := target.(*PaymentError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

func NewError(code, message string) *PaymentError {
	return &PaymentError{Code: code, Message: message}
}

// Error codes
const (
	// input
	CodeMalformedPayload    = "MALFORMED_PAYLOAD"
	CodeUnknownKind         = "UNKNOWN_KIND"
	CodeUnexpectedField     = "UNEXPECTED_FIELD"
	CodeMissingField        = "MISSING_FIELD"
	CodeUnsupportedCurrency = "UNSUPPORTED_CURRENCY"
	CodeInvalidAmount       = "INVALID_AMOUNT"
	CodeAmountOutOfRange    = "AMOUNT_OUT_OF_RANGE"
	CodeAmountRequired      = "AMOUNT_REQUIRED"
	CodeInvalidAddress      = "INVALID_ADDRESS"
	CodeInvalidTransaction  = "INVALID_TRANSACTION"
	CodeUnknownMerchant     = "UNKNOWN_MERCHANT"

	// availability
	CodeRPCUnavailable    = "RPC_UNAVAILABLE"
	CodeRateUnavailable   = "RATE_UNAVAILABLE"
	CodeNotConnected      = "NOT_CONNECTED"
	CodeSessionBusy       = "SESSION_BUSY"
	CodePaymentInProgress = "PAYMENT_IN_PROGRESS"
	CodeStaleSession      = "STALE_SESSION"
	CodeWrongNetwork      = "WRONG_NETWORK"

	// funds
	CodeInsufficientFunds = "INSUFFICIENT_FUNDS"

	// submission
	CodeUserRejected     = "USER_REJECTED"
	CodeInsufficientGas  = "INSUFFICIENT_GAS"
	CodeSubmissionFailed = "SUBMISSION_FAILED"

	// state
	CodeInvalidTransition = "INVALID_TRANSITION"
	CodeAlreadySubmitted  = "ALREADY_SUBMITTED"
	CodeConfigError       = "CONFIG_ERROR"
)

// Sentinels for errors.Is comparisons.
var (
	ErrMalformedPayload    = NewError(CodeMalformedPayload, "malformed payload")
	ErrUnknownKind         = NewError(CodeUnknownKind, "unknown payment kind")
	ErrUnexpectedField     = NewError(CodeUnexpectedField, "unexpected field")
	ErrMissingField        = NewError(CodeMissingField, "missing field")
	ErrUnsupportedCurrency = NewError(CodeUnsupportedCurrency, "unsupported currency")
	ErrInvalidAmount       = NewError(CodeInvalidAmount, "invalid amount")
	ErrAmountOutOfRange    = NewError(CodeAmountOutOfRange, "amount out of range")
	ErrAmountRequired      = NewError(CodeAmountRequired, "amount required")
	ErrInvalidAddress      = NewError(CodeInvalidAddress, "invalid address")
	ErrInvalidTransaction  = NewError(CodeInvalidTransaction, "invalid transaction id")
	ErrUnknownMerchant     = NewError(CodeUnknownMerchant, "unknown merchant")

	ErrRPCUnavailable    = NewError(CodeRPCUnavailable, "rpc unavailable")
	ErrRateUnavailable   = NewError(CodeRateUnavailable, "rate unavailable")
	ErrNotConnected      = NewError(CodeNotConnected, "wallet not connected")
	ErrSessionBusy       = NewError(CodeSessionBusy, "wallet session busy")
	ErrPaymentInProgress = NewError(CodePaymentInProgress, "payment already in progress")
	ErrStaleSession      = NewError(CodeStaleSession, "wallet session changed during submission")
	ErrWrongNetwork      = NewError(CodeWrongNetwork, "wallet is on a different network than the token")

	ErrInsufficientFunds = NewError(CodeInsufficientFunds, "insufficient funds")

	ErrUserRejected     = NewError(CodeUserRejected, "transaction rejected by user")
	ErrInsufficientGas  = NewError(CodeInsufficientGas, "insufficient funds for gas")
	ErrSubmissionFailed = NewError(CodeSubmissionFailed, "transaction failed")

	ErrInvalidTransition = NewError(CodeInvalidTransition, "invalid state transition")
	ErrAlreadySubmitted  = NewError(CodeAlreadySubmitted, "attempt already submitted")
	ErrConfig            = NewError(CodeConfigError, "invalid configuration")
)

// ErrorCategory groups codes by how callers should react.
type ErrorCategory string

const (
	CategoryInput        ErrorCategory = "input"
	CategoryAvailability ErrorCategory = "availability"
	CategoryFunds        ErrorCategory = "funds"
	CategorySubmission   ErrorCategory = "submission"
	CategoryInternal     ErrorCategory = "internal"
)

var codeCategories = map[string]ErrorCategory{
	CodeMalformedPayload:    CategoryInput,
	CodeUnknownKind:         CategoryInput,
	CodeUnexpectedField:     CategoryInput,
	CodeMissingField:        CategoryInput,
	CodeUnsupportedCurrency: CategoryInput,
	CodeInvalidAmount:       CategoryInput,
	CodeAmountOutOfRange:    CategoryInput,
	CodeAmountRequired:      CategoryInput,
	CodeInvalidAddress:      CategoryInput,
	CodeInvalidTransaction:  CategoryInput,
	CodeUnknownMerchant:     CategoryInput,

	CodeRPCUnavailable:    CategoryAvailability,
	CodeRateUnavailable:   CategoryAvailability,
	CodeNotConnected:      CategoryAvailability,
	CodeSessionBusy:       CategoryAvailability,
	CodePaymentInProgress: CategoryAvailability,
	CodeStaleSession:      CategoryAvailability,
	CodeWrongNetwork:      CategoryAvailability,

	CodeInsufficientFunds: CategoryFunds,

	CodeUserRejected:     CategorySubmission,
	CodeInsufficientGas:  CategorySubmission,
	CodeSubmissionFailed: CategorySubmission,
}

// CategoryOf classifies err. Errors that are not PaymentErrors are internal.
func CategoryOf(err error) ErrorCategory {
	var pe *PaymentError
	if !errors.As(err, &pe) {
		return CategoryInternal
	}
	if c, ok := codeCategories[pe.Code]; ok {
		return c
	}
	return CategoryInternal
}

// Retryable reports whether the caller may try the same action again unchanged.
func Retryable(err error) bool {
	return CategoryOf(err) == CategoryAvailability
}

// CodeOf returns the error code of err, or "" if err is not a PaymentError.
func CodeOf(err error) string {
	var pe *PaymentError
	if errors.As(err, &pe) {
		return pe.Code
	}
	return ""
}
