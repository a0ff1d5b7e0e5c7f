// Package plan holds the static registry of subscription plans and the
// per-provider mappings from external price/plan identifiers to internal
// plan IDs.
//
// The registry is the single place where provider vocabulary becomes
// internal vocabulary: an absent mapping is an explicit ErrNoMapping, never
// a guess. All plan data is loaded once at startup through a Source, either
// the built-in table or a YAML file.
package plan
