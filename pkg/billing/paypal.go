package billing

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
)

// PayPalConfig holds the wallet-provider webhook configuration.
type PayPalConfig struct {
	WebhookID string `env:"PAYPAL_WEBHOOK_ID,required"`
	ClientID  string `env:"PAYPAL_CLIENT_ID,required"`
	Secret    string `env:"PAYPAL_SECRET,required"`
	// VerifyURL is overridable for the sandbox environment and tests.
	VerifyURL string `env:"PAYPAL_VERIFY_URL" envDefault:"https://api-m.paypal.com/v1/notifications/verify-webhook-signature"`
	// VerifyTimeout bounds the server-to-server confirmation call.
	VerifyTimeout time.Duration `env:"PAYPAL_VERIFY_TIMEOUT" envDefault:"10s"`
}

// PayPalAdapter normalizes PayPal subscription webhooks. Authenticity is
// proven by echoing the payload back to PayPal's verification endpoint:
// the transmission headers cannot be forged without PayPal countersigning
// the exact payload bytes.
type PayPalAdapter struct {
	cfg       PayPalConfig
	client    *http.Client
	directory Directory
	log       *slog.Logger
}

// NewPayPalAdapter creates the PayPal webhook adapter.
func NewPayPalAdapter(cfg PayPalConfig, directory Directory, log *slog.Logger) (*PayPalAdapter, error) {
	if cfg.WebhookID == "" || cfg.ClientID == "" || cfg.Secret == "" {
		return nil, errors.Join(ErrInvalidConfig, errors.New("paypal webhook id, client id and secret are required"))
	}
	if directory == nil {
		panic("billing: Directory is required")
	}
	if cfg.VerifyTimeout <= 0 {
		cfg.VerifyTimeout = 10 * time.Second
	}
	if log == nil {
		log = slog.Default()
	}
	return &PayPalAdapter{
		cfg:       cfg,
		client:    &http.Client{Timeout: cfg.VerifyTimeout},
		directory: directory,
		log:       log,
	}, nil
}

func (a *PayPalAdapter) Provider() Provider { return ProviderPayPal }

type paypalEvent struct {
	ID           string `json:"id"`
	EventType    string `json:"event_type"`
	CreateTime   string `json:"create_time"`
	ResourceType string `json:"resource_type"`
	Resource     struct {
		ID                 string `json:"id"`      // subscription id (I-...) for billing events
		PlanID             string `json:"plan_id"` // provider plan id (P-...)
		Status             string `json:"status"`
		BillingAgreementID string `json:"billing_agreement_id"` // subscription id on sale events
		Subscriber         struct {
			EmailAddress string `json:"email_address"`
			PayerID      string `json:"payer_id"`
		} `json:"subscriber"`
		BillingInfo struct {
			NextBillingTime string `json:"next_billing_time"`
			LastPayment     struct {
				Time   string `json:"time"`
				Amount struct {
					Value string `json:"value"`
				} `json:"amount"`
			} `json:"last_payment"`
		} `json:"billing_info"`
	} `json:"resource"`
}

type paypalVerifyRequest struct {
	AuthAlgo         string          `json:"auth_algo"`
	CertURL          string          `json:"cert_url"`
	TransmissionID   string          `json:"transmission_id"`
	TransmissionSig  string          `json:"transmission_sig"`
	TransmissionTime string          `json:"transmission_time"`
	WebhookID        string          `json:"webhook_id"`
	WebhookEvent     json.RawMessage `json:"webhook_event"`
}

type paypalVerifyResponse struct {
	VerificationStatus string `json:"verification_status"`
}

// Parse confirms the payload with PayPal and translates the event.
func (a *PayPalAdapter) Parse(ctx context.Context, payload []byte, headers http.Header) ([]Event, error) {
	if err := a.verify(ctx, payload, headers); err != nil {
		return nil, err
	}

	var event paypalEvent
	if err := json.Unmarshal(payload, &event); err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}

	var kind EventKind
	subscriptionID := event.Resource.ID
	switch event.EventType {
	case "BILLING.SUBSCRIPTION.ACTIVATED":
		kind = EventActivated
	case "BILLING.SUBSCRIPTION.UPDATED":
		kind = EventUpdated
	case "BILLING.SUBSCRIPTION.CANCELLED", "BILLING.SUBSCRIPTION.EXPIRED":
		kind = EventCanceled
	case "BILLING.SUBSCRIPTION.SUSPENDED", "PAYMENT.SALE.DENIED":
		kind = EventPaymentFailed
	case "PAYMENT.SALE.COMPLETED":
		kind = EventPaymentSucceeded
	default:
		a.log.DebugContext(ctx, "ignoring paypal event",
			slog.String("provider", string(ProviderPayPal)),
			slog.String("event_type", event.EventType))
		return nil, nil
	}

	// Sale events reference the subscription via the billing agreement.
	if event.Resource.BillingAgreementID != "" {
		subscriptionID = event.Resource.BillingAgreementID
	}

	userID, err := a.resolveUser(ctx, subscriptionID, event.Resource.Subscriber.EmailAddress)
	if err != nil {
		return nil, err
	}

	occurredAt := time.Now().UTC()
	if ts, err := time.Parse(time.RFC3339, event.CreateTime); err == nil {
		occurredAt = ts.UTC()
	}

	ev := Event{
		Provider:               ProviderPayPal,
		ExternalEventID:        event.ID,
		UserID:                 userID,
		Kind:                   kind,
		ExternalPlanRef:        event.Resource.PlanID,
		ProviderCustomerID:     event.Resource.Subscriber.PayerID,
		ProviderSubscriptionID: subscriptionID,
		OccurredAt:             occurredAt,
	}

	// Billing period: last payment opens the period, next billing closes it.
	if ts, err := time.Parse(time.RFC3339, event.Resource.BillingInfo.LastPayment.Time); err == nil {
		ev.PeriodStart = ts.UTC()
	}
	if ts, err := time.Parse(time.RFC3339, event.Resource.BillingInfo.NextBillingTime); err == nil {
		ev.PeriodEnd = ts.UTC()
	}

	return []Event{ev}, nil
}

// verify echoes the payload back to PayPal for confirmation. The call is
// bounded by the configured timeout and any failure rejects the payload.
func (a *PayPalAdapter) verify(ctx context.Context, payload []byte, headers http.Header) error {
	verifyReq := paypalVerifyRequest{
		AuthAlgo:         headers.Get("Paypal-Auth-Algo"),
		CertURL:          headers.Get("Paypal-Cert-Url"),
		TransmissionID:   headers.Get("Paypal-Transmission-Id"),
		TransmissionSig:  headers.Get("Paypal-Transmission-Sig"),
		TransmissionTime: headers.Get("Paypal-Transmission-Time"),
		WebhookID:        a.cfg.WebhookID,
		WebhookEvent:     json.RawMessage(payload),
	}

	body, err := json.Marshal(verifyReq)
	if err != nil {
		return errors.Join(ErrVerificationFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.VerifyTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.VerifyURL, bytes.NewReader(body))
	if err != nil {
		return errors.Join(ErrVerificationFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(a.cfg.ClientID, a.cfg.Secret)

	resp, err := a.client.Do(req)
	if err != nil {
		return errors.Join(ErrVerificationFailed, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: paypal verify returned status %d", ErrVerificationFailed, resp.StatusCode)
	}

	var result paypalVerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return errors.Join(ErrVerificationFailed, err)
	}
	if result.VerificationStatus != "SUCCESS" {
		return fmt.Errorf("%w: paypal verification status %q", ErrVerificationFailed, result.VerificationStatus)
	}
	return nil
}

// resolveUser looks up the stored subscription id first. The email fallback
// is explicitly weaker and logged as such: PayPal account emails are not
// guaranteed to match the account email on our side.
func (a *PayPalAdapter) resolveUser(ctx context.Context, subscriptionID, email string) (uuid.UUID, error) {
	if subscriptionID != "" {
		userID, err := a.directory.ByProviderSubscriptionID(ctx, ProviderPayPal, subscriptionID)
		if err == nil {
			return userID, nil
		}
		if !errors.Is(err, ErrUserNotFound) {
			return uuid.Nil, errors.Join(ErrUnresolvedUser, err)
		}
	}

	if email == "" {
		return uuid.Nil, ErrUnresolvedUser
	}

	userID, err := a.directory.ByEmail(ctx, email)
	if err != nil {
		return uuid.Nil, errors.Join(ErrUnresolvedUser, err)
	}

	a.log.WarnContext(ctx, "resolved paypal event by email fallback",
		slog.String("provider", string(ProviderPayPal)),
		slog.String("subscription_id", subscriptionID))
	return userID, nil
}
