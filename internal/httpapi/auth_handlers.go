package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/mail"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/mfromawe/hyperhash/internal/storage"
	"github.com/mfromawe/hyperhash/pkg/logger"
	"github.com/mfromawe/hyperhash/pkg/plan"
	"github.com/mfromawe/hyperhash/pkg/subscription"
	"github.com/mfromawe/hyperhash/pkg/token"
)

const minPasswordLength = 8

type credentialsRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type userResponse struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	PlanID        string `json:"planId"`
	EmailVerified bool   `json:"emailVerified"`
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, "Invalid JSON body")
		return
	}

	fields := map[string]string{}
	if _, err := mail.ParseAddress(req.Email); err != nil {
		fields["email"] = "must be a valid email address"
	}
	if len(req.Password) < minPasswordLength {
		fields["password"] = "must be at least 8 characters"
	}
	if len(fields) > 0 {
		respondValidationError(w, fields)
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		a.log.ErrorContext(r.Context(), "failed to hash password", logger.Error(err))
		respondInternalError(w)
		return
	}

	user := &storage.User{
		ID:           uuid.New(),
		Email:        req.Email,
		PasswordHash: string(hash),
	}
	if err := a.users.Create(r.Context(), user); err != nil {
		if errors.Is(err, storage.ErrEmailTaken) {
			respondValidationError(w, map[string]string{"email": "already registered"})
			return
		}
		a.log.ErrorContext(r.Context(), "failed to create user", logger.Error(err))
		respondInternalError(w)
		return
	}

	sessionToken, err := a.tokens.Issue(user.ID, user.Email, plan.FreePlanID)
	if err != nil {
		a.log.ErrorContext(r.Context(), "failed to issue token", logger.Error(err))
		respondInternalError(w)
		return
	}
	a.setSessionCookie(w, sessionToken)

	a.sendVerificationEmail(r.Context(), user)

	respondJSON(w, http.StatusCreated, userResponse{
		ID:     user.ID.String(),
		Email:  user.Email,
		PlanID: plan.FreePlanID,
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondBadRequest(w, "Invalid JSON body")
		return
	}

	user, err := a.users.GetByEmail(r.Context(), req.Email)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			respondUnauthorized(w)
			return
		}
		a.log.ErrorContext(r.Context(), "failed to look up user", logger.Error(err))
		respondInternalError(w)
		return
	}

	if bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(req.Password)) != nil {
		respondUnauthorized(w)
		return
	}

	planID := a.effectivePlanID(r.Context(), user.ID)
	sessionToken, err := a.tokens.Issue(user.ID, user.Email, planID)
	if err != nil {
		a.log.ErrorContext(r.Context(), "failed to issue token", logger.Error(err))
		respondInternalError(w)
		return
	}
	a.setSessionCookie(w, sessionToken)

	respondJSON(w, http.StatusOK, userResponse{
		ID:            user.ID.String(),
		Email:         user.Email,
		PlanID:        planID,
		EmailVerified: user.EmailVerified,
	})
}

func (a *API) handleLogout(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:     token.CookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   a.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
	respondJSON(w, http.StatusOK, map[string]bool{"loggedOut": true})
}

func (a *API) handleMe(w http.ResponseWriter, r *http.Request) {
	claims, _ := token.ClaimsFromContext(r.Context())

	user, err := a.users.GetByID(r.Context(), claims.UserID)
	if err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			respondUnauthorized(w)
			return
		}
		a.log.ErrorContext(r.Context(), "failed to look up user", logger.Error(err))
		respondInternalError(w)
		return
	}

	respondJSON(w, http.StatusOK, userResponse{
		ID:            user.ID.String(),
		Email:         user.Email,
		PlanID:        a.effectivePlanID(r.Context(), user.ID),
		EmailVerified: user.EmailVerified,
	})
}

func (a *API) handleVerifyEmail(w http.ResponseWriter, r *http.Request) {
	verifyToken := r.URL.Query().Get("token")
	if verifyToken == "" {
		respondValidationError(w, map[string]string{"token": "is required"})
		return
	}

	claims := a.tokens.Verify(verifyToken)
	if claims == nil {
		respondUnauthorized(w)
		return
	}

	if err := a.users.SetEmailVerified(r.Context(), claims.UserID); err != nil {
		if errors.Is(err, storage.ErrUserNotFound) {
			respondUnauthorized(w)
			return
		}
		a.log.ErrorContext(r.Context(), "failed to mark email verified", logger.Error(err))
		respondInternalError(w)
		return
	}

	respondJSON(w, http.StatusOK, map[string]bool{"verified": true})
}

func (a *API) setSessionCookie(w http.ResponseWriter, value string) {
	http.SetCookie(w, &http.Cookie{
		Name:     token.CookieName,
		Value:    value,
		Path:     "/",
		MaxAge:   int(a.tokens.TTL().Seconds()),
		HttpOnly: true,
		Secure:   a.cfg.SecureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

// effectivePlanID resolves the plan the user is entitled to right now,
// defaulting to the free plan.
func (a *API) effectivePlanID(ctx context.Context, userID uuid.UUID) string {
	sub, err := a.subs.Get(ctx, userID)
	if err != nil {
		if !errors.Is(err, subscription.ErrNotFound) {
			a.log.WarnContext(ctx, "subscription lookup failed", logger.UserID(userID), logger.Error(err))
		}
		return plan.FreePlanID
	}
	if id := sub.EffectivePlanID(a.now().UTC()); id != "" {
		return id
	}
	return plan.FreePlanID
}

// sendVerificationEmail delivers the confirmation link without blocking
// the signup response. Delivery failures are logged, never surfaced.
func (a *API) sendVerificationEmail(ctx context.Context, user *storage.User) {
	if a.mail == nil {
		return
	}

	verifyToken, err := a.tokens.Issue(user.ID, user.Email, plan.FreePlanID)
	if err != nil {
		a.log.ErrorContext(ctx, "failed to issue verification token", logger.Error(err))
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
		defer cancel()
		if err := a.mail.SendVerification(ctx, user.Email, verifyToken); err != nil {
			a.log.ErrorContext(ctx, "failed to send verification email",
				logger.UserID(user.ID), logger.Error(err))
		}
	}()
}
