package billing

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeConfig holds the card-processor webhook configuration.
type StripeConfig struct {
	WebhookSecret string `env:"STRIPE_WEBHOOK_SECRET,required"`
}

// StripeAdapter normalizes Stripe webhooks. Only customer.subscription.* and
// invoice.payment_* object kinds are meaningful; everything else verifies
// and translates to nothing.
type StripeAdapter struct {
	secret    string
	directory Directory
	log       *slog.Logger
}

// NewStripeAdapter creates the Stripe webhook adapter.
func NewStripeAdapter(cfg StripeConfig, directory Directory, log *slog.Logger) (*StripeAdapter, error) {
	if cfg.WebhookSecret == "" {
		return nil, errors.Join(ErrInvalidConfig, errors.New("stripe webhook secret is required"))
	}
	if directory == nil {
		panic("billing: Directory is required")
	}
	if log == nil {
		log = slog.Default()
	}
	return &StripeAdapter{secret: cfg.WebhookSecret, directory: directory, log: log}, nil
}

func (a *StripeAdapter) Provider() Provider { return ProviderStripe }

// Parse verifies the Stripe-Signature header and translates the event.
func (a *StripeAdapter) Parse(ctx context.Context, payload []byte, headers http.Header) ([]Event, error) {
	event, err := webhook.ConstructEvent(payload, headers.Get("Stripe-Signature"), a.secret)
	if err != nil {
		return nil, errors.Join(ErrVerificationFailed, err)
	}

	switch {
	case strings.HasPrefix(string(event.Type), "customer.subscription."):
		return a.translateSubscription(ctx, event)
	case strings.HasPrefix(string(event.Type), "invoice.payment_"):
		return a.translateInvoice(ctx, event)
	default:
		a.log.DebugContext(ctx, "ignoring stripe event",
			slog.String("provider", string(ProviderStripe)),
			slog.String("event_type", string(event.Type)))
		return nil, nil
	}
}

func (a *StripeAdapter) translateSubscription(ctx context.Context, event stripe.Event) ([]Event, error) {
	var sub stripe.Subscription
	if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}

	customerID := ""
	if sub.Customer != nil {
		customerID = sub.Customer.ID
	}

	userID, err := a.resolveUser(ctx, sub.Metadata, customerID)
	if err != nil {
		return nil, err
	}

	var kind EventKind
	switch event.Type {
	case "customer.subscription.created":
		kind = EventActivated
	case "customer.subscription.deleted":
		kind = EventCanceled
	case "customer.subscription.updated":
		kind = EventUpdated
		if sub.Status == stripe.SubscriptionStatusCanceled {
			kind = EventCanceled
		}
	default:
		a.log.DebugContext(ctx, "ignoring stripe subscription event",
			slog.String("provider", string(ProviderStripe)),
			slog.String("event_type", string(event.Type)))
		return nil, nil
	}

	priceID := ""
	if sub.Items != nil && len(sub.Items.Data) > 0 && sub.Items.Data[0].Price != nil {
		priceID = sub.Items.Data[0].Price.ID
	}

	return []Event{{
		Provider:               ProviderStripe,
		ExternalEventID:        event.ID,
		UserID:                 userID,
		Kind:                   kind,
		ExternalPlanRef:        priceID,
		ProviderCustomerID:     customerID,
		ProviderSubscriptionID: sub.ID,
		OccurredAt:             time.Unix(event.Created, 0).UTC(),
		PeriodStart:            time.Unix(sub.CurrentPeriodStart, 0).UTC(),
		PeriodEnd:              time.Unix(sub.CurrentPeriodEnd, 0).UTC(),
	}}, nil
}

func (a *StripeAdapter) translateInvoice(ctx context.Context, event stripe.Event) ([]Event, error) {
	var inv stripe.Invoice
	if err := json.Unmarshal(event.Data.Raw, &inv); err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}

	var metadata map[string]string
	if inv.SubscriptionDetails != nil {
		metadata = inv.SubscriptionDetails.Metadata
	}
	customerID := ""
	if inv.Customer != nil {
		customerID = inv.Customer.ID
	}

	userID, err := a.resolveUser(ctx, metadata, customerID)
	if err != nil {
		return nil, err
	}

	var kind EventKind
	var amount int64
	switch event.Type {
	case "invoice.payment_succeeded":
		kind = EventPaymentSucceeded
		amount = inv.AmountPaid
	case "invoice.payment_failed":
		kind = EventPaymentFailed
		amount = inv.AmountDue
	default:
		a.log.DebugContext(ctx, "ignoring stripe invoice event",
			slog.String("provider", string(ProviderStripe)),
			slog.String("event_type", string(event.Type)))
		return nil, nil
	}

	subID := ""
	if inv.Subscription != nil {
		subID = inv.Subscription.ID
	}

	return []Event{{
		Provider:               ProviderStripe,
		ExternalEventID:        event.ID,
		UserID:                 userID,
		Kind:                   kind,
		ProviderCustomerID:     customerID,
		ProviderSubscriptionID: subID,
		OccurredAt:             time.Unix(event.Created, 0).UTC(),
		Amount:                 amount,
	}}, nil
}

// resolveUser prefers the user id attached to checkout metadata. The stored
// customer id lookup is the only fallback: email is never used for Stripe
// because billing emails are unreliable across locales.
func (a *StripeAdapter) resolveUser(ctx context.Context, metadata map[string]string, customerID string) (uuid.UUID, error) {
	if raw, ok := metadata["user_id"]; ok && raw != "" {
		userID, err := uuid.Parse(raw)
		if err != nil {
			return uuid.Nil, errors.Join(ErrUnresolvedUser, err)
		}
		return userID, nil
	}

	if customerID == "" {
		return uuid.Nil, ErrUnresolvedUser
	}

	userID, err := a.directory.ByProviderCustomerID(ctx, ProviderStripe, customerID)
	if err != nil {
		return uuid.Nil, errors.Join(ErrUnresolvedUser, err)
	}
	return userID, nil
}
