// Command oratio is the main entry point for the Oratio interview practice
// server.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	anyllmlib "github.com/mozilla-ai/any-llm-go"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/oratioapp/oratio/internal/api"
	"github.com/oratioapp/oratio/internal/auth"
	"github.com/oratioapp/oratio/internal/config"
	"github.com/oratioapp/oratio/internal/feedback"
	"github.com/oratioapp/oratio/internal/health"
	"github.com/oratioapp/oratio/internal/observe"
	"github.com/oratioapp/oratio/internal/ratelimit"
	"github.com/oratioapp/oratio/internal/resilience"
	"github.com/oratioapp/oratio/internal/store"
	"github.com/oratioapp/oratio/internal/store/postgres"
	liveopenai "github.com/oratioapp/oratio/pkg/provider/live/openai"
	"github.com/oratioapp/oratio/pkg/provider/score"
	"github.com/oratioapp/oratio/pkg/provider/score/anyllm"
	scoreopenai "github.com/oratioapp/oratio/pkg/provider/score/openai"
)

// version is stamped via -ldflags at release time.
var version = "dev"

const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "config.yaml", "path to the YAML configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "oratio: config file %q not found\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "oratio: %v\n", err)
		}
		return 1
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	slog.Info("oratio starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	otelShutdown, err := observe.InitProvider(ctx, observe.ProviderConfig{
		ServiceName:    "oratio",
		ServiceVersion: version,
	})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		sdCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := otelShutdown(sdCtx); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()

	var checkers []health.Checker

	// ── Session store ─────────────────────────────────────────────────────────
	var st store.SessionStore
	if cfg.Postgres.DSN != "" {
		pg, err := postgres.New(ctx, cfg.Postgres.DSN)
		if err != nil {
			slog.Error("failed to connect to postgres", "err", err)
			return 1
		}
		defer pg.Close()
		checkers = append(checkers, health.Checker{Name: "postgres", Check: pg.Ping})
		st = pg
		slog.Info("using postgres session store")
	} else {
		st = store.NewMemStore()
		slog.Info("using in-memory session store")
	}

	// ── Redis-backed limiter ──────────────────────────────────────────────────
	var limiter ratelimit.Limiter
	if cfg.Redis.Addr != "" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			slog.Error("failed to connect to redis", "err", err)
			return 1
		}
		checkers = append(checkers, health.Checker{Name: "redis", Check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
		limiter = ratelimit.NewRedisLimiter(rdb)
		slog.Info("using redis rate limiter")
	} else {
		limiter = ratelimit.NewMemLimiter()
		slog.Info("using in-memory rate limiter")
	}

	// ── Providers ─────────────────────────────────────────────────────────────
	grader, err := buildScoreProvider(cfg)
	if err != nil {
		slog.Error("failed to build score provider", "err", err)
		return 1
	}

	var liveOpts []liveopenai.Option
	if cfg.Providers.Live.Model != "" {
		liveOpts = append(liveOpts, liveopenai.WithModel(cfg.Providers.Live.Model))
	}
	liveProvider := liveopenai.New(cfg.Providers.Live.APIKey, liveOpts...)

	// ── Auth and feedback ─────────────────────────────────────────────────────
	tokens, err := auth.NewTokens(cfg.Auth.Secret, time.Duration(cfg.Auth.APITokenTTL))
	if err != nil {
		slog.Error("invalid auth configuration", "err", err)
		return 1
	}

	svc := feedback.NewService(st, grader, cfg.Providers.Score.Primary.Model)

	// ── HTTP server ───────────────────────────────────────────────────────────
	server := api.NewServer(api.Config{
		Store:    st,
		Feedback: svc,
		Tokens:   tokens,
		Live:     liveProvider,
		Limiter:  limiter,
		Mutation: policyFromConfig(cfg.Limits.Mutation),
		Poll:     policyFromConfig(cfg.Limits.Poll),
		Health:   health.New(checkers...),
	})

	addr := cfg.Server.ListenAddr
	if addr == "" {
		addr = ":8080"
	}
	httpSrv := &http.Server{
		Addr:              addr,
		Handler:           server.Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("server ready", "addr", addr)
		var err error
		if tls := cfg.Server.TLS; tls != nil {
			err = httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = httpSrv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	})
	g.Go(func() error {
		<-gCtx.Done()
		slog.Info("shutdown signal received, stopping")

		sdCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := httpSrv.Shutdown(sdCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		// Let in-flight feedback generations record their outcome.
		svc.Wait()
		return nil
	})

	if err := g.Wait(); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildScoreProvider assembles the grading backend: the configured primary
// wrapped, when fallbacks exist, in a breaker-guarded failover chain.
func buildScoreProvider(cfg *config.Config) (score.Provider, error) {
	primary, err := newScoreBackend(cfg.Providers.Score.Primary)
	if err != nil {
		return nil, fmt.Errorf("primary %q: %w", cfg.Providers.Score.Primary.Name, err)
	}
	if len(cfg.Providers.Score.Fallbacks) == 0 {
		return primary, nil
	}

	chain := resilience.NewScoreFallback(primary, cfg.Providers.Score.Primary.Name, resilience.FallbackConfig{})
	for _, entry := range cfg.Providers.Score.Fallbacks {
		backend, err := newScoreBackend(entry)
		if err != nil {
			return nil, fmt.Errorf("fallback %q: %w", entry.Name, err)
		}
		chain.AddFallback(entry.Name, backend)
		slog.Info("score fallback registered", "name", entry.Name, "model", entry.Model)
	}
	return chain, nil
}

// newScoreBackend constructs one grading backend from its config entry. The
// "openai" name uses the native SDK; everything else goes through any-llm.
func newScoreBackend(entry config.ProviderEntry) (score.Provider, error) {
	if entry.Name == "openai" {
		var opts []scoreopenai.Option
		if entry.BaseURL != "" {
			opts = append(opts, scoreopenai.WithBaseURL(entry.BaseURL))
		}
		return scoreopenai.New(entry.APIKey, entry.Model, opts...)
	}

	var opts []anyllmlib.Option
	if entry.APIKey != "" {
		opts = append(opts, anyllmlib.WithAPIKey(entry.APIKey))
	}
	if entry.BaseURL != "" {
		opts = append(opts, anyllmlib.WithBaseURL(entry.BaseURL))
	}
	return anyllm.New(entry.Name, entry.Model, opts...)
}

// policyFromConfig maps a config rate limit block onto a limiter policy. A
// zero block yields a zero policy, which the API server replaces with its
// default.
func policyFromConfig(p config.PolicyConfig) ratelimit.Policy {
	return ratelimit.Policy{Limit: p.Requests, Window: time.Duration(p.Window)}
}
