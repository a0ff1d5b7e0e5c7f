package ratelimit

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/mfromawe/hyperhash/pkg/clientip"
)

// maxKeyLength caps key size to keep storage keys short in backends
// like Redis.
const maxKeyLength = 64

// KeyFunc extracts a limiting key from an HTTP request. An empty key
// disables limiting for that request.
type KeyFunc func(*http.Request) string

// ByIP keys requests by client IP address.
func ByIP(r *http.Request) string {
	return clientip.Get(r)
}

// Composite combines multiple key extraction functions into one key.
// Keys longer than 64 chars are hashed to 32 hex chars with SHA256.
func Composite(keyFuncs ...KeyFunc) KeyFunc {
	return func(r *http.Request) string {
		parts := make([]string, 0, len(keyFuncs))
		for _, fn := range keyFuncs {
			if key := fn(r); key != "" {
				parts = append(parts, key)
			}
		}

		if len(parts) == 0 {
			return ""
		}

		combined := strings.Join(parts, ":")
		if len(combined) > maxKeyLength {
			hash := sha256.Sum256([]byte(combined))
			return hex.EncodeToString(hash[:16])
		}
		return combined
	}
}
