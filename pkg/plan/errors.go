package plan

import "errors"

var (
	ErrPlanNotFound         = errors.New("plan: plan not found")
	ErrNoMapping            = errors.New("plan: no mapping for external plan reference")
	ErrNoFreePlan           = errors.New("plan: registry has no free plan")
	ErrInvalidConfiguration = errors.New("plan: invalid plan configuration")
	ErrFailedToLoadPlans    = errors.New("plan: failed to load plans")
)
