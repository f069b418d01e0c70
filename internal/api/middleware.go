package api

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/oratioapp/oratio/internal/auth"
	"github.com/oratioapp/oratio/internal/observe"
	"github.com/oratioapp/oratio/internal/ratelimit"
)

// requireAuth verifies the bearer token and stores the user ID on the request
// context.
func (s *Server) requireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		raw, found := strings.CutPrefix(header, "Bearer ")
		raw = strings.TrimSpace(raw)
		if !found || raw == "" {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "missing bearer token")
			return
		}

		claims, err := s.tokens.Verify(raw)
		if err != nil {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "invalid token")
			return
		}

		next.ServeHTTP(w, r.WithContext(auth.WithUserID(r.Context(), claims.UserID)))
	})
}

// rateLimit enforces the given policy per user and route class. Denied
// requests get a 429 with a Retry-After header in seconds.
func (s *Server) rateLimit(class string, p ratelimit.Policy, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		userID, ok := auth.UserID(r.Context())
		if !ok {
			writeError(w, http.StatusUnauthorized, CodeUnauthorized, "missing user identity")
			return
		}

		decision, err := s.limiter.Allow(r.Context(), "user:"+userID.String()+":"+class, p)
		if err != nil {
			// Fail open: a broken limiter must not take the API down.
			observe.Logger(r.Context()).Warn("rate limiter unavailable", "error", err)
			next.ServeHTTP(w, r)
			return
		}
		if !decision.Allowed {
			secs := int(decision.RetryAfter.Seconds())
			if secs < 1 {
				secs = 1
			}
			w.Header().Set("Retry-After", strconv.Itoa(secs))
			writeError(w, http.StatusTooManyRequests, CodeRateLimited, "rate limit exceeded, please try again later")
			return
		}

		next.ServeHTTP(w, r)
	})
}
