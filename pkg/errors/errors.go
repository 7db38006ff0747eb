package apperrors

import "errors"

// Standardized Venue Errors
var (
	ErrMarketClosed      = errors.New("market closed")
	ErrOrderRejected     = errors.New("order rejected")
	ErrOrderNotFound     = errors.New("order not found")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrRateLimitExceeded = errors.New("rate limit exceeded")
	ErrNetwork           = errors.New("network error")
	ErrInvalidSymbol     = errors.New("invalid symbol")
	ErrDuplicateOrder    = errors.New("duplicate order")
	ErrNoQuote           = errors.New("no quote available")
)
