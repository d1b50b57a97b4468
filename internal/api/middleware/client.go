package middleware

import (
	"net"
	"net/http"
	"strings"

	reqctx "github.com/agentoven/agentoven/chat-gateway/pkg/middleware"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
)

// ClientContext resolves the request ID and client IP and stores both in
// the request context. It must run after chi's RequestID and RealIP.
// The request ID is echoed in the X-Request-Id response header.
func ClientContext(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := chimw.GetReqID(r.Context())
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Request-Id", id)

		ctx := reqctx.SetRequestID(r.Context(), id)
		ctx = reqctx.SetClientIP(ctx, clientIP(r))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// clientIP strips the port from RemoteAddr. RealIP has already replaced
// RemoteAddr with the proxy-reported address when one was present.
func clientIP(r *http.Request) string {
	addr := strings.TrimSpace(r.RemoteAddr)
	if host, _, err := net.SplitHostPort(addr); err == nil {
		return host
	}
	return addr
}
