package httpapi

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/mfromawe/hyperhash/pkg/billing"
	"github.com/mfromawe/hyperhash/pkg/ratelimit"
	"github.com/mfromawe/hyperhash/pkg/token"
)

// Router assembles the HTTP routes. The anonymous limiter keys on client
// IP and covers the whole API namespace except webhooks and health; the
// generate limiter keys on user id and guards the metered endpoint.
func (a *API) Router(health http.HandlerFunc, anonLimiter, generateLimiter ratelimit.Limiter) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(EntryGate(a.tokens))

	if anonLimiter != nil {
		r.Use(ratelimit.Middleware(anonLimiter, ratelimit.ByIP,
			ratelimit.WithSkipFunc(func(r *http.Request) bool {
				// Providers burst their webhook deliveries; never throttle
				// them, their authenticity check is the signature.
				return r.URL.Path == "/health" || strings.HasPrefix(r.URL.Path, "/api/webhooks/")
			}),
			ratelimit.WithOnLimitReached(rateLimitedResponse),
		))
	}

	if health != nil {
		r.Get("/health", health)
	}

	r.Route("/api", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", a.handleRegister)
			r.Post("/login", a.handleLogin)
			r.Post("/logout", a.handleLogout)
			r.Get("/verify-email", a.handleVerifyEmail)

			r.Group(func(r chi.Router) {
				r.Use(RequireAuth)
				r.Get("/me", a.handleMe)
			})
		})

		r.Group(func(r chi.Router) {
			r.Use(RequireAuth)

			r.Group(func(r chi.Router) {
				if generateLimiter != nil {
					// Scoping the key separates these counters from the
					// per-IP ones when both limiters share a store.
					key := ratelimit.Composite(scopeKey("generate"), userKey)
					r.Use(ratelimit.Middleware(generateLimiter, key,
						ratelimit.WithOnLimitReached(rateLimitedResponse)))
				}
				r.Post("/generate", a.handleGenerate)
			})

			r.Get("/usage", a.handleUsage)
			r.Get("/subscription", a.handleSubscription)
			r.Post("/subscription/checkout", a.handleCheckout)
		})

		r.Route("/webhooks", func(r chi.Router) {
			r.Post("/stripe", a.handleWebhook(billing.ProviderStripe))
			r.Post("/paypal", a.handleWebhook(billing.ProviderPayPal))
			r.Post("/paytr", a.handleWebhook(billing.ProviderPayTR))
		})
	})

	return r
}

// userKey keys rate limiting on the authenticated user. Anonymous
// requests never reach it: RequireAuth runs ahead of the limiter.
func userKey(r *http.Request) string {
	claims, ok := token.ClaimsFromContext(r.Context())
	if !ok {
		return ""
	}
	return claims.UserID.String()
}

func scopeKey(name string) ratelimit.KeyFunc {
	return func(*http.Request) string { return name }
}

func rateLimitedResponse(w http.ResponseWriter, _ *http.Request, _ *ratelimit.Result) {
	respondJSON(w, http.StatusTooManyRequests, errorResponse{Error: "Too many requests"})
}
