package clientip

import (
	"net"
	"net/http"
	"strings"
)

// Headers checked in priority order before falling back to RemoteAddr.
var headers = []string{
	"CF-Connecting-IP",
	"DO-Connecting-IP",
	"X-Forwarded-For",
	"X-Real-IP",
}

// GetIP returns the real client IP of r. It never returns an empty string
// unless RemoteAddr itself is empty.
func GetIP(r *http.Request) string {
	if ip, ok := FromHeaders(r); ok {
		return ip
	}
	if ip, ok := normalize(StripPort(r.RemoteAddr)); ok {
		return ip
	}
	return r.RemoteAddr
}

// FromHeaders returns the first valid address found in the proxy headers,
// ignoring RemoteAddr.
func FromHeaders(r *http.Request) (string, bool) {
	for _, h := range headers {
		if v := r.Header.Get(h); v != "" {
			if ip, ok := FirstForwarded(v); ok {
				return ip, true
			}
		}
	}
	return "", false
}

// FirstForwarded returns the leftmost valid address in a comma separated chain.
func FirstForwarded(chain string) (string, bool) {
	first, _, _ := strings.Cut(chain, ",")
	return normalize(first)
}

// StripPort removes a trailing port from host:port or [v6]:port.
func StripPort(addr string) string {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return strings.Trim(addr, "[]")
}

func normalize(raw string) (string, bool) {
	ip := net.ParseIP(strings.TrimSpace(raw))
	if ip == nil || ip.IsUnspecified() {
		return "", false
	}
	return ip.String(), true
}
