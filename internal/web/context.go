package web

import (
	"context"
	"net/http"

	"github.com/JonMunkholm/reconcile/internal/core"
)

// WithRequestMetadata attaches the caller's address, user agent and the
// optional X-Actor header to ctx for audit entries. RemoteAddr has already
// been resolved by TrustedRealIP.
func WithRequestMetadata(ctx context.Context, r *http.Request) context.Context {
	return core.ContextWithRequestMeta(ctx, core.RequestMeta{
		IPAddress: r.RemoteAddr,
		UserAgent: r.UserAgent(),
		Actor:     r.Header.Get("X-Actor"),
	})
}
