// Package token issues and verifies the compact session credentials that
// authenticate every API request.
//
// Tokens are HMAC-SHA256 signed JWTs carrying the user identity and a plan
// snapshot. Verification is stateless: the entry gate can authenticate a
// request without a database round-trip. There is no per-token revocation;
// the short default lifetime bounds exposure and logout simply clears the
// transport cookie.
//
// Verify deliberately swallows every failure mode and returns nil. Callers
// treat nil as "unauthenticated", never as a system error, so a malformed or
// tampered token can never take a request path down.
package token
