package plan

import (
	"context"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// StaticSource serves a fixed catalog from memory. Useful for tests and as
// the built-in default when no plans file is configured.
type StaticSource struct {
	catalog Catalog
}

// NewStaticSource creates a source that always returns the given catalog.
func NewStaticSource(catalog Catalog) *StaticSource {
	return &StaticSource{catalog: catalog}
}

// Load implements Source.
func (s *StaticSource) Load(_ context.Context) (Catalog, error) {
	return s.catalog, nil
}

// DefaultSource returns the built-in plan table for the product.
func DefaultSource() *StaticSource {
	return NewStaticSource(Catalog{
		Plans: []Plan{
			{
				ID:           FreePlanID,
				Name:         "Free",
				MonthlyQuota: 10,
				Priority:     0,
			},
			{
				ID:           "starter",
				Name:         "Starter",
				MonthlyQuota: 100,
				Features:     []Feature{FeatureAnalytics},
				Priority:     10,
			},
			{
				ID:           "pro",
				Name:         "Pro",
				MonthlyQuota: 1000,
				Features:     []Feature{FeatureAnalytics, FeatureAPIAccess, FeatureBulkGeneration},
				Priority:     20,
			},
			{
				ID:           "unlimited",
				Name:         "Unlimited",
				MonthlyQuota: Unlimited,
				Features:     []Feature{FeatureAnalytics, FeatureAPIAccess, FeatureBulkGeneration, FeaturePrioritySupport},
				Priority:     30,
			},
		},
		Mappings: map[string]map[string]string{
			"stripe": {
				"price_starter_monthly":   "starter",
				"price_pro_monthly":       "pro",
				"price_unlimited_monthly": "unlimited",
			},
			"paypal": {
				"P-STARTER-MONTHLY":   "starter",
				"P-PRO-MONTHLY":       "pro",
				"P-UNLIMITED-MONTHLY": "unlimited",
			},
			"paytr": {
				"starter_monthly":   "starter",
				"pro_monthly":       "pro",
				"unlimited_monthly": "unlimited",
			},
		},
	})
}

// YAMLSource loads the catalog from a YAML file so plan changes do not
// require a rebuild.
type YAMLSource struct {
	path string
}

// NewYAMLSource creates a source reading the catalog from the given path.
func NewYAMLSource(path string) *YAMLSource {
	return &YAMLSource{path: path}
}

// Load implements Source.
func (s *YAMLSource) Load(_ context.Context) (Catalog, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return Catalog{}, errors.Join(ErrFailedToLoadPlans, err)
	}

	var catalog Catalog
	if err := yaml.Unmarshal(data, &catalog); err != nil {
		return Catalog{}, fmt.Errorf("%w: %s: %v", ErrFailedToLoadPlans, s.path, err)
	}
	return catalog, nil
}
