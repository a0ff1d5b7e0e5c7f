package billing

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// PayTRConfig holds the regional redirect-processor configuration.
type PayTRConfig struct {
	MerchantID   string `env:"PAYTR_MERCHANT_ID,required"`
	MerchantKey  string `env:"PAYTR_MERCHANT_KEY,required"`
	MerchantSalt string `env:"PAYTR_MERCHANT_SALT,required"`
}

// PayTRAdapter normalizes PayTR payment callbacks. PayTR posts
// form-urlencoded data and proves authenticity with an HMAC over a
// canonical string of selected fields:
//
//	hash = base64(HMAC-SHA256(merchant_oid + salt + status + total_amount, key))
//
// The user is resolved from the merchant order reference minted at checkout
// time ({userId}_{unixTimestamp}); PayTR never carries our user id anywhere
// else.
type PayTRAdapter struct {
	cfg PayTRConfig
	log *slog.Logger
}

// NewPayTRAdapter creates the PayTR callback adapter.
func NewPayTRAdapter(cfg PayTRConfig, log *slog.Logger) (*PayTRAdapter, error) {
	if cfg.MerchantID == "" || cfg.MerchantKey == "" || cfg.MerchantSalt == "" {
		return nil, errors.Join(ErrInvalidConfig, errors.New("paytr merchant id, key and salt are required"))
	}
	if log == nil {
		log = slog.Default()
	}
	return &PayTRAdapter{cfg: cfg, log: log}, nil
}

func (a *PayTRAdapter) Provider() Provider { return ProviderPayTR }

// Parse verifies the callback hash and translates it.
func (a *PayTRAdapter) Parse(ctx context.Context, payload []byte, _ http.Header) ([]Event, error) {
	form, err := url.ParseQuery(string(payload))
	if err != nil {
		return nil, errors.Join(ErrMalformedPayload, err)
	}

	merchantOID := form.Get("merchant_oid")
	status := form.Get("status")
	totalAmount := form.Get("total_amount")
	providedHash := form.Get("hash")

	if merchantOID == "" || status == "" || providedHash == "" {
		return nil, fmt.Errorf("%w: missing required callback fields", ErrMalformedPayload)
	}

	expected := a.sign(merchantOID, status, totalAmount)
	if !hmac.Equal([]byte(expected), []byte(providedHash)) {
		return nil, fmt.Errorf("%w: paytr hash mismatch", ErrVerificationFailed)
	}

	userID, mintedAt, err := ParseOrderRef(merchantOID)
	if err != nil {
		// The payload is authentic but cannot be attributed. The caller must
		// still acknowledge with "OK" or PayTR retries forever.
		return nil, err
	}

	var kind EventKind
	switch status {
	case "success":
		kind = EventActivated
	case "failed":
		kind = EventPaymentFailed
	default:
		a.log.WarnContext(ctx, "ignoring paytr callback with unknown status",
			slog.String("provider", string(ProviderPayTR)),
			slog.String("status", status))
		return nil, nil
	}

	amount, _ := strconv.ParseInt(totalAmount, 10, 64)

	return []Event{{
		Provider:               ProviderPayTR,
		ExternalEventID:        merchantOID,
		UserID:                 userID,
		Kind:                   kind,
		ProviderSubscriptionID: merchantOID,
		OccurredAt:             mintedAt,
		Amount:                 amount,
	}}, nil
}

func (a *PayTRAdapter) sign(merchantOID, status, totalAmount string) string {
	h := hmac.New(sha256.New, []byte(a.cfg.MerchantKey))
	h.Write([]byte(merchantOID + a.cfg.MerchantSalt + status + totalAmount))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

// MintOrderRef builds the merchant order reference embedded at checkout
// time. PayTR only accepts alphanumeric references, so the UUID is encoded
// without hyphens.
func MintOrderRef(userID uuid.UUID, now time.Time) string {
	return strings.ReplaceAll(userID.String(), "-", "") + "_" + strconv.FormatInt(now.Unix(), 10)
}

// ParseOrderRef recovers the user id from a merchant order reference.
func ParseOrderRef(ref string) (uuid.UUID, time.Time, error) {
	parts := strings.SplitN(ref, "_", 2)
	if len(parts) != 2 {
		return uuid.Nil, time.Time{}, fmt.Errorf("%w: %q", ErrInvalidOrderRef, ref)
	}

	userID, err := uuid.Parse(parts[0])
	if err != nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("%w: %q: %v", ErrInvalidOrderRef, ref, err)
	}

	ts, err := strconv.ParseInt(parts[1], 10, 64)
	if err != nil {
		return uuid.Nil, time.Time{}, fmt.Errorf("%w: %q: %v", ErrInvalidOrderRef, ref, err)
	}

	return userID, time.Unix(ts, 0).UTC(), nil
}
