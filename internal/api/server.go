// Package api exposes the Oratio HTTP surface: interview session management,
// the feedback workflow, and live-session token minting.
//
// Routes are registered on a plain [http.ServeMux] with method patterns. All
// /api/v1 routes pass through the middleware chain observe → auth → rate
// limit; probe and metrics endpoints are unauthenticated.
package api

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/oratioapp/oratio/internal/auth"
	"github.com/oratioapp/oratio/internal/feedback"
	"github.com/oratioapp/oratio/internal/health"
	"github.com/oratioapp/oratio/internal/observe"
	"github.com/oratioapp/oratio/internal/ratelimit"
	"github.com/oratioapp/oratio/internal/store"
	"github.com/oratioapp/oratio/pkg/provider/live"
)

// TokenMinter mints ephemeral credentials for the realtime voice provider.
// [live.Provider] satisfies it.
type TokenMinter interface {
	MintToken(ctx context.Context) (live.Token, error)
}

// Server holds the dependencies of the HTTP API.
type Server struct {
	store     store.SessionStore
	templates store.TemplateStore
	feedback  *feedback.Service
	tokens    *auth.Tokens
	live      TokenMinter
	limiter   ratelimit.Limiter
	mutation  ratelimit.Policy
	poll      ratelimit.Policy
	metrics   *observe.Metrics
	health    *health.Handler
}

// Config wires a [Server].
type Config struct {
	Store    store.SessionStore
	Feedback *feedback.Service
	Tokens   *auth.Tokens
	Live     TokenMinter
	Limiter  ratelimit.Limiter

	// Templates defaults to Store when it also implements
	// [store.TemplateStore]. Both built-in stores do.
	Templates store.TemplateStore

	// Mutation and Poll override the default rate limit policies. Zero
	// values use [ratelimit.PolicyMutation] and [ratelimit.PolicyPoll].
	Mutation ratelimit.Policy
	Poll     ratelimit.Policy

	// Metrics defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics

	// Health defaults to a handler with no checkers.
	Health *health.Handler
}

// NewServer creates a Server from cfg.
func NewServer(cfg Config) *Server {
	s := &Server{
		store:     cfg.Store,
		templates: cfg.Templates,
		feedback:  cfg.Feedback,
		tokens:    cfg.Tokens,
		live:      cfg.Live,
		limiter:   cfg.Limiter,
		mutation:  cfg.Mutation,
		poll:      cfg.Poll,
		metrics:   cfg.Metrics,
		health:    cfg.Health,
	}
	if s.templates == nil {
		if ts, ok := cfg.Store.(store.TemplateStore); ok {
			s.templates = ts
		}
	}
	if s.mutation.Limit == 0 {
		s.mutation = ratelimit.PolicyMutation
	}
	if s.poll.Limit == 0 {
		s.poll = ratelimit.PolicyPoll
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.health == nil {
		s.health = health.New()
	}
	return s
}

// Routes returns the fully assembled handler.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()

	s.health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	mutate := func(h http.HandlerFunc) http.Handler {
		return s.requireAuth(s.rateLimit("mutate", s.mutation, h))
	}
	poll := func(h http.HandlerFunc) http.Handler {
		return s.requireAuth(s.rateLimit("poll", s.poll, h))
	}

	mux.Handle("POST /api/v1/templates", mutate(s.createTemplate))
	mux.Handle("GET /api/v1/templates", poll(s.listTemplates))
	mux.Handle("GET /api/v1/templates/{id}", poll(s.getTemplate))
	mux.Handle("POST /api/v1/interviews", mutate(s.createInterview))
	mux.Handle("GET /api/v1/interviews/{id}", poll(s.getInterview))
	mux.Handle("POST /api/v1/interviews/{id}/feedback", mutate(s.queueFeedback))
	mux.Handle("POST /api/v1/interviews/{id}/process", mutate(s.processFeedback))
	mux.Handle("GET /api/v1/interviews/{id}/feedback/status", poll(s.feedbackStatus))
	mux.Handle("GET /api/v1/interviews/{id}/feedback", poll(s.getFeedback))
	mux.Handle("POST /api/v1/live/token", mutate(s.mintLiveToken))

	mw := observe.Middleware(s.metrics,
		observe.WithoutInstrumentation("/healthz", "/readyz", "/metrics"))
	return mw(mux)
}
