package plan

// Unlimited indicates no quota for a plan (-1 chosen for SQL compatibility).
const Unlimited int64 = -1

// FreePlanID is the fallback plan for users without a subscription row.
const FreePlanID = "free"

// Feature represents a plan-specific capability that can be enabled/disabled.
type Feature string

const (
	FeatureAPIAccess       Feature = "api_access"
	FeatureBulkGeneration  Feature = "bulk_generation"
	FeatureAnalytics       Feature = "analytics"
	FeaturePrioritySupport Feature = "priority_support"
)

// Plan describes a subscription plan and its metered quota.
type Plan struct {
	ID           string    `yaml:"id"`
	Name         string    `yaml:"name"`
	MonthlyQuota int64     `yaml:"monthly_quota"` // -1 represents unlimited
	Features     []Feature `yaml:"features"`
	Priority     int       `yaml:"priority"` // ordering for upgrade/downgrade comparisons
}

// IsUnlimited reports whether the plan has no metered quota.
func (p Plan) IsUnlimited() bool {
	return p.MonthlyQuota == Unlimited
}

// HasFeature reports whether the plan enables the given feature.
func (p Plan) HasFeature(f Feature) bool {
	for _, have := range p.Features {
		if have == f {
			return true
		}
	}
	return false
}

// IsUpgradeFrom reports whether moving from other to p is an upgrade.
func (p Plan) IsUpgradeFrom(other Plan) bool {
	return p.Priority > other.Priority
}
