package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/mfromawe/hyperhash/pkg/billing"
	"github.com/mfromawe/hyperhash/pkg/logger"
	"github.com/mfromawe/hyperhash/pkg/plan"
	"github.com/mfromawe/hyperhash/pkg/subscription"
	"github.com/mfromawe/hyperhash/pkg/token"
)

type subscriptionResponse struct {
	PlanID            string    `json:"planId"`
	PlanName          string    `json:"planName"`
	MonthlyQuota      int64     `json:"monthlyQuota"`
	Features          []string  `json:"features"`
	AvailableUpgrades []string  `json:"availableUpgrades,omitempty"`
	Status            string    `json:"status,omitempty"`
	Provider          string    `json:"provider,omitempty"`
	PeriodEnd         time.Time `json:"periodEnd,omitzero"`
	CancelAtPeriodEnd bool      `json:"cancelAtPeriodEnd,omitempty"`
}

func (a *API) handleSubscription(w http.ResponseWriter, r *http.Request) {
	claims, _ := token.ClaimsFromContext(r.Context())

	resp := subscriptionResponse{}
	sub, err := a.subs.Get(r.Context(), claims.UserID)
	switch {
	case err == nil:
		resp.Status = string(sub.Status)
		resp.Provider = string(sub.Provider)
		resp.PeriodEnd = sub.PeriodEnd
		resp.CancelAtPeriodEnd = sub.CancelAtPeriodEnd
	case errors.Is(err, subscription.ErrNotFound):
		// Free tier without a subscription row.
	default:
		a.log.ErrorContext(r.Context(), "failed to read subscription", logger.UserID(claims.UserID), logger.Error(err))
		respondInternalError(w)
		return
	}

	p := a.plans.GetOrFree(a.effectivePlanID(r.Context(), claims.UserID))
	resp.PlanID = p.ID
	resp.PlanName = p.Name
	resp.MonthlyQuota = p.MonthlyQuota
	resp.Features = featureNames(p)
	resp.AvailableUpgrades = upgradeIDs(a.plans, p)

	respondJSON(w, http.StatusOK, resp)
}

type checkoutRequest struct {
	PlanID   string `json:"planId"`
	Provider string `json:"provider"`
}

type checkoutResponse struct {
	PlanID string `json:"planId"`
	// OrderRef is the merchant order reference for redirect checkout
	// flows. The client passes it to the provider's payment page; the
	// provider echoes it back in the completion callback.
	OrderRef string `json:"orderRef,omitempty"`
}

// handleCheckout starts a plan change. Switching to the free plan takes
// effect immediately. Paid checkout records the chosen plan on an
// incomplete subscription row so the provider's completion callback can
// recover it even when the callback carries no plan reference.
func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	claims, _ := token.ClaimsFromContext(r.Context())

	var req checkoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, "Invalid JSON body")
		return
	}

	chosen, ok := a.plans.Get(req.PlanID)
	if !ok {
		respondValidationError(w, map[string]string{"planId": "unknown plan"})
		return
	}

	if chosen.ID == plan.FreePlanID {
		err := a.recon.Update(r.Context(), claims.UserID, func(sub *subscription.Subscription) error {
			sub.PlanID = plan.FreePlanID
			sub.Status = subscription.StatusActive
			sub.CancelAtPeriodEnd = false
			return nil
		})
		if err != nil {
			a.log.ErrorContext(r.Context(), "failed to switch to free plan", logger.UserID(claims.UserID), logger.Error(err))
			respondInternalError(w)
			return
		}
		a.log.InfoContext(r.Context(), "plan changed", logger.UserID(claims.UserID), logger.Plan(plan.FreePlanID))
		respondJSON(w, http.StatusOK, checkoutResponse{PlanID: plan.FreePlanID})
		return
	}

	provider := billing.Provider(req.Provider)
	if _, ok := a.adapters[provider]; !ok {
		respondValidationError(w, map[string]string{"provider": "unknown or unconfigured provider"})
		return
	}

	externalRef, err := a.plans.ExternalRef(string(provider), chosen.ID)
	if err != nil {
		respondValidationError(w, map[string]string{"planId": "not available for this provider"})
		return
	}

	resp := checkoutResponse{PlanID: chosen.ID}

	if provider == billing.ProviderPayTR {
		// PayTR's callback only echoes the merchant order reference, so
		// the chosen plan is parked on the subscription row until then.
		// The row keeps its current plan, status and period: starting or
		// abandoning a checkout must not touch the live entitlement.
		resp.OrderRef = billing.MintOrderRef(claims.UserID, a.now().UTC())
		err := a.recon.Update(r.Context(), claims.UserID, func(sub *subscription.Subscription) error {
			if sub.Status == "" {
				sub.PlanID = plan.FreePlanID
				sub.Status = subscription.StatusIncomplete
			}
			sub.Provider = provider
			sub.ProviderSubscriptionID = resp.OrderRef
			sub.ProviderPriceID = externalRef
			return nil
		})
		if err != nil {
			a.log.ErrorContext(r.Context(), "failed to record pending checkout", logger.UserID(claims.UserID), logger.Error(err))
			respondInternalError(w)
			return
		}
	}

	a.log.InfoContext(r.Context(), "checkout started",
		logger.UserID(claims.UserID),
		logger.Plan(chosen.ID),
		logger.Provider(string(provider)))
	respondJSON(w, http.StatusOK, resp)
}

func featureNames(p plan.Plan) []string {
	names := make([]string, 0, len(p.Features))
	for _, f := range p.Features {
		names = append(names, string(f))
	}
	return names
}

func upgradeIDs(reg *plan.Registry, current plan.Plan) []string {
	var ids []string
	for _, p := range reg.List() {
		if p.IsUpgradeFrom(current) {
			ids = append(ids, p.ID)
		}
	}
	return ids
}
