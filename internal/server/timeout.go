package server

import (
	"context"
	"net/http"
	"strings"
	"time"
)

// TimeoutMiddleware bounds each request's context. Paths under any of the
// exempt prefixes keep the caller's context; chat streams outlive ordinary
// page requests. Cancellation is cooperative: handlers must watch
// ctx.Done().
func TimeoutMiddleware(timeout time.Duration, exempt ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if timeout <= 0 {
				next.ServeHTTP(w, r)
				return
			}
			for _, prefix := range exempt {
				if strings.HasPrefix(r.URL.Path, prefix) {
					next.ServeHTTP(w, r)
					return
				}
			}
			ctx, cancel := context.WithTimeout(r.Context(), timeout)
			defer cancel()
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
