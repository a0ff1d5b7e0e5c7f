// Package usage meters billable actions per user and billing period.
//
// Each user has one counter row per billing period. The Service resolves
// the active period from the user's subscription, falling back to the UTC
// calendar month for free-tier users, and compares consumption against
// the quota of the user's effective plan.
//
// The check/act/increment ordering is the caller's responsibility: check
// with GetUsage before performing the metered action, then Track after it
// succeeded. A failed action must never consume quota.
package usage
