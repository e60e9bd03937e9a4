package domain

import "errors"

// Every mutating operation either fully applies or fully rejects with one of
// these errors; none are retried internally.
var (
	ErrInvalidPrice      = errors.New("price must be greater than zero")
	ErrAlreadyForSale    = errors.New("property is already listed for sale")
	ErrNotOwner          = errors.New("caller is not the property owner")
	ErrNotListed         = errors.New("property is not listed for sale")
	ErrSellerIsBuyer     = errors.New("buyer is the current owner")
	ErrIncorrectPayment  = errors.New("payment does not match the listed price")
	ErrUnauthorized      = errors.New("caller is not the operator")
	ErrFeeTooHigh        = errors.New("fee rate exceeds the maximum")
	ErrNoFeesAvailable   = errors.New("no fees available for withdrawal")
	ErrInsufficientFunds = errors.New("insufficient settlement balance")

	ErrNotRegistered = errors.New("property is not registered")
	ErrInvalidHash   = errors.New("invalid property hash")
	ErrInvalidAmount = errors.New("amount must be greater than zero")

	// ErrSettlementPending marks an operation whose state change committed
	// but whose outbound credit failed: the payout is owed, not lost, and the
	// returned events are authoritative.
	ErrSettlementPending = errors.New("operation committed, settlement credit pending")
)
