package ratelimit

import (
	"net"
	"net/http"
	"strings"
)

// ClientIdentity derives the per-client key for a request: the first
// X-Forwarded-For entry, else the peer host, else UnknownIdentity.
func ClientIdentity(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if first != "" {
			return first
		}
	}

	addr := strings.TrimSpace(r.RemoteAddr)
	if addr == "" {
		return UnknownIdentity
	}
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	if host == "" {
		return UnknownIdentity
	}
	return host
}
