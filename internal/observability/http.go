package observability

import (
	"net"
	"net/http"
	"strings"
)

const (
	RequestIDHeader = "X-Request-ID"
	DeviceIDHeader  = "X-Device-Id"
)

// RequestMeta is caller identity taken from request headers, attached to
// access logs and websocket lifecycle events.
type RequestMeta struct {
	RequestID string
	DeviceID  string
	IP        string
	UserAgent string
}

func MetaFromRequest(r *http.Request) RequestMeta {
	return RequestMeta{
		RequestID: strings.TrimSpace(r.Header.Get(RequestIDHeader)),
		DeviceID:  strings.TrimSpace(r.Header.Get(DeviceIDHeader)),
		IP:        clientIP(r),
		UserAgent: r.UserAgent(),
	}
}

// clientIP prefers the first X-Forwarded-For hop, then X-Real-IP, then the
// socket peer.
func clientIP(r *http.Request) string {
	if forwarded := r.Header.Get("X-Forwarded-For"); forwarded != "" {
		first, _, _ := strings.Cut(forwarded, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}
	if ip := strings.TrimSpace(r.Header.Get("X-Real-IP")); ip != "" {
		return ip
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
