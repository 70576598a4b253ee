package audit

import (
	"net"
	"net/http"
	"strings"
)

// RequestMeta carries the client attributes extracted from an HTTP request
// that end up in a LoginAttempt.
type RequestMeta struct {
	IP        string
	UserAgent string
}

// MetaFromRequest extracts best-effort client metadata. Proxy headers win
// over the transport address; loopback is normalized to 127.0.0.1.
func MetaFromRequest(r *http.Request) RequestMeta {
	if r == nil {
		return RequestMeta{}
	}
	return RequestMeta{
		IP:        ClientIP(r),
		UserAgent: Truncate(r.UserAgent(), MaxBrowserLen),
	}
}

// ClientIP resolves the client address: first X-Forwarded-For entry, then
// X-Real-IP, then the transport-level remote address.
func ClientIP(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		return normalizeLoopback(strings.TrimSpace(parts[0]))
	}
	if rip := strings.TrimSpace(r.Header.Get("X-Real-IP")); rip != "" {
		return normalizeLoopback(rip)
	}
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return normalizeLoopback(r.RemoteAddr)
	}
	return normalizeLoopback(host)
}

func normalizeLoopback(ip string) string {
	if ip == "::1" {
		return "127.0.0.1"
	}
	return ip
}
