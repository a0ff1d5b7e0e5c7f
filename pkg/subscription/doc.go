// Package subscription holds the canonical subscription record and the
// reconciliation engine that folds provider events into it.
//
// Every user has at most one Subscription row, keyed by user ID. The
// Reconciler consumes canonical billing events and applies idempotent state
// transitions: every transition is an upsert keyed by the user reference,
// never by event id, so applying the same event twice converges to the same
// record without any deduplication bookkeeping.
//
// Events for the same user are serialized; events for different users
// proceed in parallel.
package subscription
