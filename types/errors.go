package types

import (
	"errors"
	"fmt"
)

// X402Error is the structured error returned by every stage of a payment
// attempt. Code identifies the failure kind, Message is safe to show to a user.
type X402Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`

	// Status is the HTTP status for SERVER_ERROR, zero otherwise.
	Status int `json:"status,omitempty"`

	Cause error `json:"-"`
}

func (e *X402Error) Error() string {
	if e.Cause != nil && e.Cause.Error() != e.Message {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *X402Error) Unwrap() error {
	return e.Cause
}

// Common error codes
const (
	ErrWalletUnavailable  = "WALLET_UNAVAILABLE"
	ErrUserDeclined       = "USER_DECLINED"
	ErrSwitchRejected     = "SWITCH_REJECTED"
	ErrSwitchUnsupported  = "SWITCH_UNSUPPORTED"
	ErrSubmission         = "SUBMISSION_ERROR"
	ErrTransactionFailed  = "TRANSACTION_FAILED"
	ErrNetworkError       = "NETWORK_ERROR"
	ErrServerError        = "SERVER_ERROR"
	ErrUnsupportedNetwork = "UNSUPPORTED_NETWORK"
	ErrInvalidPayload     = "INVALID_PAYLOAD"
	ErrConfigError        = "CONFIG_ERROR"
)

// MsgTransactionFailed is shown for both a reverted transfer and one that was
// never observed on chain within the polling budget.
const MsgTransactionFailed = "transaction failed or timed out"

// ErrRecordFinalized is returned when a terminal TransactionRecord is asked to
// change state again.
var ErrRecordFinalized = errors.New("transaction record already finalized")

// NewError creates a new X402Error.
func NewError(code, message string, cause error) *X402Error {
	return &X402Error{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

// ErrorCode extracts the code of the first X402Error in err's chain.
func ErrorCode(err error) string {
	var xe *X402Error
	if errors.As(err, &xe) {
		return xe.Code
	}
	return ""
}

// IsCode reports whether err carries the given X402Error code.
func IsCode(err error, code string) bool {
	return err != nil && ErrorCode(err) == code
}
