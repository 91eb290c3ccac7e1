package utils

import (
	"net"
	"net/http"
	"strings"
)

// UnknownIP is returned when no address can be resolved at all.
const UnknownIP = "0.0.0.0"

// RealIP resolves the originating client address from the request headers.
// Precedence: the Cloudflare connecting-IP header (honored only when the
// deployment trusts that edge), then X-Real-Ip, then the first entry of
// X-Forwarded-For, then True-Client-IP, finally the socket peer address.
func RealIP(r *http.Request, trustCloudflare bool) string {
	if trustCloudflare {
		if ip := strings.TrimSpace(r.Header.Get("CF-Connecting-IP")); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-Ip")); ip != "" {
		return ip
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := xff
		if idx := strings.Index(xff, ","); idx >= 0 {
			first = xff[:idx]
		}
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("True-Client-IP")); ip != "" {
		return ip
	}
	if r.RemoteAddr != "" {
		if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return host
		}
		return r.RemoteAddr
	}
	return UnknownIP
}
