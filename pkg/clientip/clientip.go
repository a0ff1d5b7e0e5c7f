// Package clientip extracts the client IP address from HTTP requests,
// honoring the proxy headers set by load balancers and CDNs in front of
// the server.
package clientip

import (
	"net"
	"net/http"
	"strings"
)

// Get returns the client's IP address from the request. Proxy headers
// are checked in order of trust, falling back to the connection's
// remote address:
//
//  1. CF-Connecting-IP (CDN)
//  2. X-Forwarded-For (first valid IP in the chain)
//  3. X-Real-IP (reverse proxy)
//  4. RemoteAddr
func Get(r *http.Request) string {
	if ip := r.Header.Get("CF-Connecting-IP"); ip != "" {
		if parsed := parseIP(ip); parsed != "" {
			return parsed
		}
	}

	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		for ip := range strings.SplitSeq(forwarded, ",") {
			if parsed := parseIP(strings.TrimSpace(ip)); parsed != "" {
				return parsed
			}
		}
	}

	if ip := r.Header.Get("X-Real-IP"); ip != "" {
		if parsed := parseIP(ip); parsed != "" {
			return parsed
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		// RemoteAddr without a port, assume it is a bare IP.
		return parseIP(r.RemoteAddr)
	}
	return parseIP(host)
}

// parseIP validates and normalizes an IP address string. Returns an
// empty string for anything that does not parse.
func parseIP(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return ""
	}

	// Bracketed IPv6 as it appears in host:port form.
	s = strings.TrimPrefix(s, "[")
	s = strings.TrimSuffix(s, "]")

	ip := net.ParseIP(s)
	if ip == nil {
		return ""
	}
	return ip.String()
}
