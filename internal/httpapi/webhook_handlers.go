package httpapi

import (
	"errors"
	"io"
	"net/http"

	"github.com/mfromawe/hyperhash/pkg/billing"
	"github.com/mfromawe/hyperhash/pkg/logger"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// handleWebhook builds the endpoint for one provider. The acknowledgment
// rules are strict: once the payload's authenticity is verified the
// provider always gets its success response, even when internal
// processing fails, because anything else triggers provider-side retries
// of an event we already consumed. Failures after verification are
// logged for manual reconciliation. Payloads are never logged.
func (a *API) handleWebhook(provider billing.Provider) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		adapter, ok := a.adapters[provider]
		if !ok {
			http.NotFound(w, r)
			return
		}

		payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
		if err != nil {
			respondBadRequest(w, "Failed to read request body")
			return
		}

		events, err := adapter.Parse(r.Context(), payload, r.Header)
		if err != nil {
			switch {
			case errors.Is(err, billing.ErrInvalidOrderRef),
				errors.Is(err, billing.ErrUnresolvedUser),
				errors.Is(err, billing.ErrUserNotFound):
				// Authentic but unattributable. Acknowledge and discard,
				// or the provider retries a payload that can never apply.
				a.log.WarnContext(r.Context(), "webhook discarded",
					logger.Provider(string(provider)), logger.Error(err))
				a.acknowledge(w, provider)
			default:
				a.log.WarnContext(r.Context(), "webhook rejected",
					logger.Provider(string(provider)), logger.Error(err))
				respondBadRequest(w, "Webhook verification failed")
			}
			return
		}

		for _, ev := range events {
			if err := a.recon.Apply(r.Context(), ev); err != nil {
				a.log.ErrorContext(r.Context(), "failed to apply webhook event",
					logger.Provider(string(provider)),
					logger.EventType(string(ev.Kind)),
					logger.UserID(ev.UserID),
					logger.Error(err))
			}
		}

		a.acknowledge(w, provider)
	}
}

func (a *API) acknowledge(w http.ResponseWriter, provider billing.Provider) {
	if provider == billing.ProviderPayTR {
		// PayTR accepts nothing but the literal OK.
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
		return
	}
	respondJSON(w, http.StatusOK, map[string]bool{"received": true})
}
