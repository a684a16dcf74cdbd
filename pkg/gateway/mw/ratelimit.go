package mw

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/vango-go/vlearn/pkg/core"
	"github.com/vango-go/vlearn/pkg/gateway/apierror"
	"github.com/vango-go/vlearn/pkg/gateway/ratelimit"
)

// RateLimit rejects requests over the client's budget with 429 and a
// Retry-After header. A nil limiter passes everything through.
func RateLimit(l *ratelimit.Limiter, logger *slog.Logger, next http.Handler) http.Handler {
	if l == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		client := ratelimit.ClientKey(r)
		d := l.Acquire(client, time.Now())
		if !d.Allowed {
			if logger != nil {
				logger.Warn("rate limited", "client", client, "path", r.URL.Path, "retry_after", d.RetryAfter)
			}
			reqID, _ := RequestIDFrom(r.Context())
			w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfter))
			apierror.WriteError(w, http.StatusTooManyRequests, &core.Error{
				Type:      core.ErrRateLimit,
				Message:   "too many uploads; retry later",
				RequestID: reqID,
			})
			return
		}
		defer d.Permit.Release()
		next.ServeHTTP(w, r)
	})
}
