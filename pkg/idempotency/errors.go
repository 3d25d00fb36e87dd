package idempotency

import "errors"

var (
	ErrKeyRequired = errors.New("idempotency key is required for this operation")
	ErrKeyInvalid  = errors.New("invalid idempotency key format")
	ErrKeyTooLong  = errors.New("idempotency key exceeds maximum length")
)
