package ratelimit

import (
	"fmt"
	"math"
	"net"
	"net/http"
	"strconv"
	"strings"

	"ms-distribution/internal/logger"
	"ms-distribution/internal/utils"
)

type KeyFunc func(r *http.Request) string

// ClientIP keys requests by the caller's address. X-Forwarded-For is only
// honoured when the service sits behind a trusted proxy.
func ClientIP(trustXFF bool) KeyFunc {
	return func(r *http.Request) string {
		if trustXFF {
			if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
				if ip := strings.TrimSpace(strings.Split(xff, ",")[0]); ip != "" {
					return ip
				}
			}
		}
		host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
		if err == nil && host != "" {
			return host
		}
		if r.RemoteAddr != "" {
			return r.RemoteAddr
		}
		return "unknown"
	}
}

// Middleware answers 429 once the limiter refuses a key. Limiter errors let
// the request through.
func Middleware(l Limiter, keyFn KeyFunc, log *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := keyFn(r)

			allowed, retryAfter, err := l.Allow(r.Context(), key)
			if err != nil {
				log.Warn("RATELIMIT", fmt.Sprintf("limiter unavailable, allowing %s: %v", key, err))
				next.ServeHTTP(w, r)
				return
			}
			if !allowed {
				seconds := int(math.Ceil(retryAfter.Seconds()))
				if seconds < 1 {
					seconds = 1
				}
				log.LogSecurity("RATE_LIMITED", fmt.Sprintf("%s %s from %s", r.Method, r.URL.Path, key))
				w.Header().Set("Retry-After", strconv.Itoa(seconds))
				utils.WriteJSON(w, http.StatusTooManyRequests, utils.ErrorResponse("rate_limited", "too many requests, try again later", nil))
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
