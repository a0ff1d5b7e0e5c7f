package plan

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"slices"
)

// Source loads the plan table and provider mappings at startup.
type Source interface {
	Load(ctx context.Context) (Catalog, error)
}

// Catalog is the raw data a Source produces: the plan table plus one
// external-reference mapping table per payment provider.
type Catalog struct {
	Plans []Plan `yaml:"plans"`
	// Mappings: provider name -> external price/plan reference -> internal plan ID.
	Mappings map[string]map[string]string `yaml:"mappings"`
}

// Registry resolves plan IDs and external provider references. It is
// immutable after construction and safe for concurrent use.
type Registry struct {
	plans    map[string]Plan
	mappings map[string]map[string]string
}

// NewRegistry builds a registry from the given source.
// The catalog must contain the free plan: it is the fallback for every user
// without a subscription row, so a registry without it cannot serve requests.
func NewRegistry(ctx context.Context, src Source) (*Registry, error) {
	if src == nil {
		panic("plan: Source is required")
	}

	catalog, err := src.Load(ctx)
	if err != nil {
		return nil, errors.Join(ErrFailedToLoadPlans, err)
	}

	plans := make(map[string]Plan, len(catalog.Plans))
	for _, p := range catalog.Plans {
		if p.ID == "" {
			return nil, fmt.Errorf("%w: plan with empty ID", ErrInvalidConfiguration)
		}
		if p.MonthlyQuota < Unlimited {
			return nil, fmt.Errorf("%w: plan %q has invalid quota %d", ErrInvalidConfiguration, p.ID, p.MonthlyQuota)
		}
		if _, dup := plans[p.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate plan %q", ErrInvalidConfiguration, p.ID)
		}
		plans[p.ID] = p
	}

	if _, ok := plans[FreePlanID]; !ok {
		return nil, ErrNoFreePlan
	}

	for provider, refs := range catalog.Mappings {
		for ref, planID := range refs {
			if _, ok := plans[planID]; !ok {
				return nil, fmt.Errorf("%w: mapping %s/%s points at unknown plan %q",
					ErrInvalidConfiguration, provider, ref, planID)
			}
		}
	}

	return &Registry{plans: plans, mappings: catalog.Mappings}, nil
}

// Get returns the plan with the given internal ID.
func (r *Registry) Get(id string) (Plan, bool) {
	p, ok := r.plans[id]
	return p, ok
}

// GetOrFree returns the plan with the given ID, falling back to the free
// plan for empty or unknown IDs.
func (r *Registry) GetOrFree(id string) Plan {
	if p, ok := r.plans[id]; ok {
		return p
	}
	return r.plans[FreePlanID]
}

// Free returns the fallback free plan.
func (r *Registry) Free() Plan {
	return r.plans[FreePlanID]
}

// List returns every plan ordered by priority, cheapest first.
func (r *Registry) List() []Plan {
	out := make([]Plan, 0, len(r.plans))
	for _, p := range r.plans {
		out = append(out, p)
	}
	slices.SortFunc(out, func(a, b Plan) int { return cmp.Compare(a.Priority, b.Priority) })
	return out
}

// ExternalRef returns the provider's external price/plan reference for an
// internal plan. Used at checkout time to tell the provider which price
// the user picked.
func (r *Registry) ExternalRef(provider, planID string) (string, error) {
	refs, ok := r.mappings[provider]
	if !ok {
		return "", fmt.Errorf("%w: provider %q", ErrNoMapping, provider)
	}
	for ref, id := range refs {
		if id == planID {
			return ref, nil
		}
	}
	return "", fmt.Errorf("%w: no %s reference for plan %q", ErrNoMapping, provider, planID)
}

// Resolve maps a provider's external price/plan reference to an internal
// plan ID. An absent mapping is an error: the caller must reject or log,
// never guess a plan.
func (r *Registry) Resolve(provider, externalRef string) (string, error) {
	refs, ok := r.mappings[provider]
	if !ok {
		return "", fmt.Errorf("%w: provider %q", ErrNoMapping, provider)
	}
	planID, ok := refs[externalRef]
	if !ok {
		return "", fmt.Errorf("%w: %s/%s", ErrNoMapping, provider, externalRef)
	}
	return planID, nil
}
