package billing_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mfromawe/hyperhash/pkg/billing"
)

func paypalVerifyServer(t *testing.T, status string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "wh-test", req["webhook_id"])
		assert.NotEmpty(t, req["webhook_event"])

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]string{"verification_status": status})
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newPayPalAdapter(t *testing.T, verifyURL string, dir billing.Directory) *billing.PayPalAdapter {
	t.Helper()
	adapter, err := billing.NewPayPalAdapter(billing.PayPalConfig{
		WebhookID:     "wh-test",
		ClientID:      "client-id",
		Secret:        "client-secret",
		VerifyURL:     verifyURL,
		VerifyTimeout: 2 * time.Second,
	}, dir, testLogger(t))
	require.NoError(t, err)
	return adapter
}

func paypalPayload(t *testing.T, eventType, subID, planID string) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"id":          "WH-EVENT-1",
		"event_type":  eventType,
		"create_time": "2026-03-01T12:00:00Z",
		"resource": map[string]any{
			"id":      subID,
			"plan_id": planID,
			"status":  "ACTIVE",
			"subscriber": map[string]any{
				"email_address": "buyer@example.com",
				"payer_id":      "PAYER123",
			},
			"billing_info": map[string]any{
				"next_billing_time": "2026-04-01T12:00:00Z",
				"last_payment": map[string]any{
					"time":   "2026-03-01T12:00:00Z",
					"amount": map[string]any{"value": "9.99"},
				},
			},
		},
	})
	require.NoError(t, err)
	return payload
}

func TestPayPalAdapter_Parse(t *testing.T) {
	t.Parallel()

	userID := uuid.New()

	t.Run("activated resolves by stored subscription id", func(t *testing.T) {
		t.Parallel()
		dir := newFakeDirectory()
		dir.bySub["I-SUB1"] = userID
		adapter := newPayPalAdapter(t, paypalVerifyServer(t, "SUCCESS").URL, dir)

		events, err := adapter.Parse(context.Background(),
			paypalPayload(t, "BILLING.SUBSCRIPTION.ACTIVATED", "I-SUB1", "P-PRO-MONTHLY"), http.Header{})
		require.NoError(t, err)
		require.Len(t, events, 1)

		ev := events[0]
		assert.Equal(t, billing.ProviderPayPal, ev.Provider)
		assert.Equal(t, billing.EventActivated, ev.Kind)
		assert.Equal(t, userID, ev.UserID)
		assert.Equal(t, "P-PRO-MONTHLY", ev.ExternalPlanRef)
		assert.Equal(t, "I-SUB1", ev.ProviderSubscriptionID)
		assert.Equal(t, time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC), ev.PeriodStart)
		assert.Equal(t, time.Date(2026, 4, 1, 12, 0, 0, 0, time.UTC), ev.PeriodEnd)
	})

	t.Run("email fallback when subscription id unknown", func(t *testing.T) {
		t.Parallel()
		dir := newFakeDirectory()
		dir.byEmail["buyer@example.com"] = userID
		adapter := newPayPalAdapter(t, paypalVerifyServer(t, "SUCCESS").URL, dir)

		events, err := adapter.Parse(context.Background(),
			paypalPayload(t, "BILLING.SUBSCRIPTION.ACTIVATED", "I-UNKNOWN", "P-PRO-MONTHLY"), http.Header{})
		require.NoError(t, err)
		require.Len(t, events, 1)
		assert.Equal(t, userID, events[0].UserID)
	})

	t.Run("unresolvable user rejected", func(t *testing.T) {
		t.Parallel()
		adapter := newPayPalAdapter(t, paypalVerifyServer(t, "SUCCESS").URL, newFakeDirectory())

		_, err := adapter.Parse(context.Background(),
			paypalPayload(t, "BILLING.SUBSCRIPTION.ACTIVATED", "I-UNKNOWN", "P-PRO-MONTHLY"), http.Header{})
		assert.ErrorIs(t, err, billing.ErrUnresolvedUser)
	})

	t.Run("event kind mapping", func(t *testing.T) {
		t.Parallel()
		dir := newFakeDirectory()
		dir.bySub["I-SUB1"] = userID

		cases := map[string]billing.EventKind{
			"BILLING.SUBSCRIPTION.UPDATED":   billing.EventUpdated,
			"BILLING.SUBSCRIPTION.CANCELLED": billing.EventCanceled,
			"BILLING.SUBSCRIPTION.SUSPENDED": billing.EventPaymentFailed,
		}
		for eventType, want := range cases {
			adapter := newPayPalAdapter(t, paypalVerifyServer(t, "SUCCESS").URL, dir)
			events, err := adapter.Parse(context.Background(),
				paypalPayload(t, eventType, "I-SUB1", "P-PRO-MONTHLY"), http.Header{})
			require.NoError(t, err, eventType)
			require.Len(t, events, 1, eventType)
			assert.Equal(t, want, events[0].Kind, eventType)
		}
	})

	t.Run("unrelated event types verify but translate to nothing", func(t *testing.T) {
		t.Parallel()
		adapter := newPayPalAdapter(t, paypalVerifyServer(t, "SUCCESS").URL, newFakeDirectory())

		events, err := adapter.Parse(context.Background(),
			paypalPayload(t, "CUSTOMER.DISPUTE.CREATED", "I-SUB1", ""), http.Header{})
		require.NoError(t, err)
		assert.Empty(t, events)
	})

	t.Run("failed verification never translates", func(t *testing.T) {
		t.Parallel()
		dir := newFakeDirectory()
		dir.bySub["I-SUB1"] = userID
		adapter := newPayPalAdapter(t, paypalVerifyServer(t, "FAILURE").URL, dir)

		_, err := adapter.Parse(context.Background(),
			paypalPayload(t, "BILLING.SUBSCRIPTION.ACTIVATED", "I-SUB1", "P-PRO-MONTHLY"), http.Header{})
		assert.ErrorIs(t, err, billing.ErrVerificationFailed)
	})

	t.Run("unreachable verify endpoint rejects", func(t *testing.T) {
		t.Parallel()
		adapter := newPayPalAdapter(t, "http://127.0.0.1:1", newFakeDirectory())

		_, err := adapter.Parse(context.Background(),
			paypalPayload(t, "BILLING.SUBSCRIPTION.ACTIVATED", "I-SUB1", "P-PRO-MONTHLY"), http.Header{})
		assert.ErrorIs(t, err, billing.ErrVerificationFailed)
	})
}
