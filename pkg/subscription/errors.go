package subscription

import "errors"

var (
	ErrNotFound     = errors.New("subscription: not found")
	ErrInvalidEvent = errors.New("subscription: invalid event")
	ErrInvalidUser  = errors.New("subscription: user id required")
	ErrPlanUnmapped = errors.New("subscription: external plan reference has no mapping")
)
