package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"

	"github.com/mfromawe/hyperhash/pkg/logger"
	"github.com/mfromawe/hyperhash/pkg/plan"
	"github.com/mfromawe/hyperhash/pkg/token"
)

const (
	defaultHashtagCount = 10
	maxHashtagCount     = 30
)

type generateRequest struct {
	Keyword string `json:"keyword"`
	Count   int    `json:"count"`
}

type generateResponse struct {
	Hashtags []string `json:"hashtags"`
}

// handleGenerate is the metered endpoint. The order matters: quota is
// checked before generation and consumed only after generation succeeded,
// so a failed generation never burns quota.
func (a *API) handleGenerate(w http.ResponseWriter, r *http.Request) {
	claims, _ := token.ClaimsFromContext(r.Context())

	var req generateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, "Invalid JSON body")
		return
	}

	req.Keyword = strings.TrimSpace(req.Keyword)
	if req.Keyword == "" {
		respondValidationError(w, map[string]string{"keyword": "is required"})
		return
	}
	if req.Count <= 0 {
		req.Count = defaultHashtagCount
	}
	if req.Count > maxHashtagCount {
		req.Count = maxHashtagCount
	}
	if req.Count > defaultHashtagCount {
		// Batches above the default are a paid capability; plans without
		// it get the standard batch, not an error.
		p := a.plans.GetOrFree(a.effectivePlanID(r.Context(), claims.UserID))
		if !p.HasFeature(plan.FeatureBulkGeneration) {
			req.Count = defaultHashtagCount
		}
	}

	current, err := a.usage.GetUsage(r.Context(), claims.UserID)
	if err != nil {
		a.log.ErrorContext(r.Context(), "failed to read usage", logger.UserID(claims.UserID), logger.Error(err))
		respondInternalError(w)
		return
	}
	if current.LimitReached {
		respondUpgradeRequired(w, "Monthly generation limit reached")
		return
	}

	hashtags, err := a.gen.Generate(r.Context(), req.Keyword, req.Count)
	if err != nil {
		a.log.ErrorContext(r.Context(), "hashtag generation failed", logger.UserID(claims.UserID), logger.Error(err))
		respondInternalError(w)
		return
	}

	if err := a.usage.Track(r.Context(), claims.UserID, 1); err != nil {
		// The user already got their hashtags; losing one increment is
		// preferable to failing the request after the fact.
		a.log.ErrorContext(r.Context(), "failed to track usage", logger.UserID(claims.UserID), logger.Error(err))
	}

	// Remaining was read before this call's increment; unlimited plans
	// report -1 and get no header.
	if remaining := current.Remaining(); remaining > 0 {
		w.Header().Set("X-Usage-Remaining", strconv.FormatInt(remaining-1, 10))
	}

	respondJSON(w, http.StatusOK, generateResponse{Hashtags: hashtags})
}

type usageReport struct {
	HashtagsGenerated int64 `json:"hashtagsGenerated"`
	APICallsThisMonth int64 `json:"apiCallsThisMonth"`
	MonthlyLimit      int64 `json:"monthlyLimit"`
	IsLimitReached    bool  `json:"isLimitReached"`
}

func (a *API) handleUsage(w http.ResponseWriter, r *http.Request) {
	claims, _ := token.ClaimsFromContext(r.Context())

	current, err := a.usage.GetUsage(r.Context(), claims.UserID)
	if err != nil {
		a.log.ErrorContext(r.Context(), "failed to read usage", logger.UserID(claims.UserID), logger.Error(err))
		respondInternalError(w)
		return
	}

	respondJSON(w, http.StatusOK, usageReport{
		HashtagsGenerated: current.Used,
		APICallsThisMonth: current.Used,
		MonthlyLimit:      current.Quota,
		IsLimitReached:    current.LimitReached,
	})
}
