package usage

import (
	"time"

	"github.com/google/uuid"
)

// Record is a per-user counter for one billing period.
type Record struct {
	UserID      uuid.UUID
	PeriodStart time.Time
	PeriodEnd   time.Time
	Used        int64
	LastUsedAt  time.Time
}

// Usage is the current consumption snapshot for a user, compared to the
// quota of their effective plan.
type Usage struct {
	Used         int64
	Quota        int64
	PeriodStart  time.Time
	PeriodEnd    time.Time
	LimitReached bool
}

// Remaining returns how many actions are left in the period. Unlimited
// plans report -1.
func (u Usage) Remaining() int64 {
	if u.Quota < 0 {
		return -1
	}
	if u.Used >= u.Quota {
		return 0
	}
	return u.Quota - u.Used
}
