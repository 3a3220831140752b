// Package config - defaults.go centralizes magic numbers and default values.
//
// DESIGN: All default values that appear in multiple places should be defined here.
// This makes configuration more maintainable and auditable.
package config

import "time"

// =============================================================================
// REMOTE API
// =============================================================================

// DefaultAPIBaseURL is the conversion API used when nothing else is configured.
const DefaultAPIBaseURL = "http://localhost:8081"

// DefaultRequestTimeout bounds a single request/response cycle.
const DefaultRequestTimeout = 30 * time.Second

// DefaultUserAgent is sent on every outbound request.
const DefaultUserAgent = "convertctl/1.0"

// MaxResponseSize is the maximum response body read from the API (10MB).
const MaxResponseSize = 10 * 1024 * 1024

// MaxErrorBodyLogLen limits error response body in logs to prevent bloat.
const MaxErrorBodyLogLen = 500

// =============================================================================
// SESSION
// =============================================================================

// SessionKey is the single Token Store key holding the bearer credential.
const SessionKey = "session_token"

// LoginPath is the navigation target signalled on logout or forced invalidation.
const LoginPath = "/auth/login"

// DefaultProtectedPrefixes are the API paths whose 401 means the credential is dead.
// Public and payment-callback endpoints can 401 without that implication.
var DefaultProtectedPrefixes = []string{
	"/api/v1/profile",
	"/api/v1/dashboard",
	"/api/v1/credits/balance",
	"/api/conversions",
}

// MinPasswordLength is the shortest password accepted at registration.
const MinPasswordLength = 6

// =============================================================================
// CREDIT RECONCILIATION
// =============================================================================

// DefaultReconcileAttempts caps balance queries after a payment redirect.
const DefaultReconcileAttempts = 10

// DefaultReconcileBaseDelay is the constant part of the inter-attempt delay.
const DefaultReconcileBaseDelay = 300 * time.Millisecond

// DefaultReconcileStepDelay is added once per completed attempt.
// With the defaults the worst case waits 7.2s in total.
const DefaultReconcileStepDelay = 100 * time.Millisecond

// =============================================================================
// OAUTH
// =============================================================================

// DefaultOAuthTimeout is how long the shell waits for the browser round trip.
const DefaultOAuthTimeout = 5 * time.Minute

// =============================================================================
// JOURNAL
// =============================================================================

// DefaultJournalFile is the SQLite file name under the user config directory.
const DefaultJournalFile = "journal.db"

// DefaultHistoryPageSize is the number of rows returned by journal and history listings.
const DefaultHistoryPageSize = 20
