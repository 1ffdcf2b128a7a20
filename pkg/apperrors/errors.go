package apperrors

import "errors"

// Sentinel errors for the settlement subsystem. Handlers map these to HTTP
// status codes; everything else is treated as an internal error.
var (
	ErrNotFound          = errors.New("not found")
	ErrForbidden         = errors.New("forbidden")
	ErrValidation        = errors.New("invalid input")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrAlreadyRedeemed   = errors.New("gift box already redeemed")
	ErrInvalidSignature  = errors.New("invalid webhook signature")
	ErrGateway           = errors.New("payment gateway error")
	ErrConflict          = errors.New("conflicting concurrent update")
)
