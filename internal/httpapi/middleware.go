package httpapi

import (
	"net/http"

	"github.com/mfromawe/hyperhash/pkg/token"
)

// EntryGate is the single place tokens are parsed. It reads the session
// cookie, verifies it and injects the identity into the request context
// and into headers for downstream consumers. Requests without a valid
// token pass through anonymous; protected routes reject them later via
// RequireAuth.
func EntryGate(tokens *token.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// Identity headers are owned by the gate; whatever the client
			// sent in them is discarded before the token is even read.
			r.Header.Del("X-User-ID")
			r.Header.Del("X-User-Email")
			r.Header.Del("X-User-Plan")

			cookie, err := r.Cookie(token.CookieName)
			if err != nil || cookie.Value == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims := tokens.Verify(cookie.Value)
			if claims == nil {
				next.ServeHTTP(w, r)
				return
			}

			r.Header.Set("X-User-ID", claims.UserID.String())
			r.Header.Set("X-User-Email", claims.Email)
			r.Header.Set("X-User-Plan", claims.PlanID)

			next.ServeHTTP(w, r.WithContext(token.WithClaims(r.Context(), claims)))
		})
	}
}

// RequireAuth rejects requests that did not pass the entry gate with a
// valid token.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := token.ClaimsFromContext(r.Context()); !ok {
			respondUnauthorized(w)
			return
		}
		next.ServeHTTP(w, r)
	})
}
