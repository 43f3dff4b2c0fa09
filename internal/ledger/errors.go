package ledger

import "errors"

// Business-rule errors. Expected, surfaced verbatim to the caller, never
// retried automatically. A trade rejected with any of these leaves the
// portfolio unchanged.
var (
	ErrAlreadyJoined           = errors.New("ledger: participant already joined")
	ErrNotEnrolling            = errors.New("ledger: tournament is not accepting enrollment")
	ErrCapacityExceeded        = errors.New("ledger: tournament is full")
	ErrInsufficientFee         = errors.New("ledger: insufficient balance for entry fee")
	ErrTradingClosed           = errors.New("ledger: trading is closed")
	ErrInsufficientFunds       = errors.New("ledger: insufficient funds")
	ErrInsufficientShares      = errors.New("ledger: insufficient shares")
	ErrPositionLimitExceeded   = errors.New("ledger: position size limit exceeded")
	ErrDailyTradeLimitExceeded = errors.New("ledger: daily trade limit exceeded")
	ErrRiskLimitExceeded       = errors.New("ledger: drawdown risk limit exceeded")
	ErrInstrumentNotAllowed    = errors.New("ledger: instrument not allowed")
)

// Validation errors. Bad input shape, rejected before any state change.
var (
	ErrInvalidShares = errors.New("ledger: shares must be positive")
	ErrInvalidSide   = errors.New("ledger: side must be buy or sell")
)

// IsBusinessError reports whether err is an expected rule rejection rather
// than an infrastructure failure, so callers can distinguish "this trade is
// invalid" from "try again".
func IsBusinessError(err error) bool {
	for _, sentinel := range []error{
		ErrAlreadyJoined, ErrNotEnrolling, ErrCapacityExceeded, ErrInsufficientFee,
		ErrTradingClosed, ErrInsufficientFunds, ErrInsufficientShares,
		ErrPositionLimitExceeded, ErrDailyTradeLimitExceeded, ErrRiskLimitExceeded,
		ErrInstrumentNotAllowed,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// IsValidationError reports whether err is a bad-input rejection.
func IsValidationError(err error) bool {
	return errors.Is(err, ErrInvalidShares) || errors.Is(err, ErrInvalidSide)
}
