// Package billing normalizes inbound payment-provider webhooks into
// canonical subscription events.
//
// Each provider adapter owns exactly two responsibilities: verifying the
// authenticity of a raw payload using that provider's proof mechanism, and
// translating the verified payload into zero or more Events. A payload that
// fails verification is never translated. Adapters resolve the internal
// user before emitting an event; an event that cannot be attributed to a
// user is discarded with an error, never applied to a "null" user.
//
// Three adapters ship with the product:
//
//   - Stripe: cryptographic signature header verified against a shared
//     secret (stripe-go webhook.ConstructEvent).
//   - PayPal: server-to-server verification call that echoes the payload
//     back to PayPal for confirmation.
//   - PayTR: HMAC computed over a canonical string of selected form fields
//     and compared to the provided hash.
//
// Translation is idempotent: replaying the same external event id yields
// the same events.
package billing
