// Package httpapi exposes the HTTP surface: authentication, hashtag
// generation, usage reporting, subscription management and the payment
// provider webhooks.
package httpapi

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/mfromawe/hyperhash/internal/storage"
	"github.com/mfromawe/hyperhash/pkg/billing"
	"github.com/mfromawe/hyperhash/pkg/logger"
	"github.com/mfromawe/hyperhash/pkg/plan"
	"github.com/mfromawe/hyperhash/pkg/subscription"
	"github.com/mfromawe/hyperhash/pkg/token"
	"github.com/mfromawe/hyperhash/pkg/usage"
)

// UserStore is the slice of the persistence layer the API needs for
// account management.
type UserStore interface {
	Create(ctx context.Context, user *storage.User) error
	GetByID(ctx context.Context, id uuid.UUID) (*storage.User, error)
	GetByEmail(ctx context.Context, email string) (*storage.User, error)
	SetEmailVerified(ctx context.Context, id uuid.UUID) error
}

// UsageService meters generation calls against plan quotas.
type UsageService interface {
	GetUsage(ctx context.Context, userID uuid.UUID) (usage.Usage, error)
	Track(ctx context.Context, userID uuid.UUID, delta int64) error
}

// Reconciler is the single writer for subscription state: webhook events
// go through Apply, locally initiated plan changes through Update, both
// serialized per user.
type Reconciler interface {
	Apply(ctx context.Context, ev billing.Event) error
	Update(ctx context.Context, userID uuid.UUID, fn func(*subscription.Subscription) error) error
}

// VerificationMailer sends the email confirmation message after signup.
type VerificationMailer interface {
	SendVerification(ctx context.Context, to, verifyToken string) error
}

// Generator produces hashtags for a keyword. The generation backend is
// interchangeable; the API only meters and transports its output.
type Generator interface {
	Generate(ctx context.Context, keyword string, count int) ([]string, error)
}

// Config holds API behavior settings loaded from the environment.
type Config struct {
	SecureCookies bool `env:"SECURE_COOKIES" envDefault:"false"`

	// AnonymousRateLimit caps unauthenticated requests per IP per minute.
	AnonymousRateLimit int `env:"RATE_LIMIT_ANONYMOUS" envDefault:"60"`
	// GenerateRateLimit caps metered generation calls per user per minute.
	GenerateRateLimit int `env:"RATE_LIMIT_GENERATE" envDefault:"20"`
}

// API bundles the handlers and their collaborators.
type API struct {
	cfg      Config
	log      *slog.Logger
	tokens   *token.Service
	users    UserStore
	subs     subscription.Store
	plans    *plan.Registry
	usage    UsageService
	recon    Reconciler
	adapters map[billing.Provider]billing.Adapter
	mail     VerificationMailer
	gen      Generator
	now      func() time.Time
}

// New creates the API. Adapters may be empty when a provider is not
// configured; its webhook route then answers 404.
func New(
	cfg Config,
	log *slog.Logger,
	tokens *token.Service,
	users UserStore,
	subs subscription.Store,
	plans *plan.Registry,
	usageSvc UsageService,
	recon Reconciler,
	adapters []billing.Adapter,
	mail VerificationMailer,
	gen Generator,
) *API {
	byProvider := make(map[billing.Provider]billing.Adapter, len(adapters))
	for _, a := range adapters {
		if a != nil {
			byProvider[a.Provider()] = a
		}
	}
	return &API{
		cfg:      cfg,
		log:      log.With(logger.Component("httpapi")),
		tokens:   tokens,
		users:    users,
		subs:     subs,
		plans:    plans,
		usage:    usageSvc,
		recon:    recon,
		adapters: byProvider,
		mail:     mail,
		gen:      gen,
		now:      time.Now,
	}
}
