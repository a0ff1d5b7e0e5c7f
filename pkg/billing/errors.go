package billing

import "errors"

var (
	ErrVerificationFailed = errors.New("billing: webhook verification failed")
	ErrMalformedPayload   = errors.New("billing: malformed webhook payload")
	ErrUnresolvedUser     = errors.New("billing: could not resolve user for event")
	ErrUserNotFound       = errors.New("billing: user not found")
	ErrInvalidOrderRef    = errors.New("billing: invalid merchant order reference")
	ErrInvalidConfig      = errors.New("billing: invalid adapter configuration")
)
