package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/mirkovic-academy/quantframe/internal/ai"
	"github.com/mirkovic-academy/quantframe/internal/exercise"
	"github.com/mirkovic-academy/quantframe/internal/httpapi"
	"github.com/mirkovic-academy/quantframe/internal/platform/cache"
	"github.com/mirkovic-academy/quantframe/internal/platform/config"
	"github.com/mirkovic-academy/quantframe/internal/platform/database"
	"github.com/mirkovic-academy/quantframe/internal/progress"
	"github.com/mirkovic-academy/quantframe/internal/questionbank"
	"github.com/mirkovic-academy/quantframe/internal/roadmap"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg, os.Stdout))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		slog.Error("failed to start", "error", err)
		os.Exit(1)
	}
	defer a.close()

	srv := &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      a.api.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Live sockets are hijacked and not waited for by Shutdown; flush
	// open attempts first.
	a.api.Close(shutdownCtx)
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
}

func newLogger(cfg *config.Config, w io.Writer) *slog.Logger {
	level, err := cfg.LogLevel()
	if err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.Format == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// app owns the connections behind the HTTP API.
type app struct {
	api     *httpapi.Server
	closers []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

// newApp connects the configured backends. Without a database URL progress
// stays in memory; without a cache URL roadmaps are not cached.
func newApp(ctx context.Context, cfg *config.Config) (*app, error) {
	a := &app{}
	deps := httpapi.Deps{
		Store:         progress.NewMemoryStore(),
		Events:        progress.NopEventLogger{},
		AutosaveDelay: cfg.Exam.AutosaveDelay,
		Ready:         map[string]httpapi.Check{},
	}

	if cfg.Database.URL != "" {
		db, err := database.Open(ctx, cfg.Database)
		if err != nil {
			return nil, fmt.Errorf("connecting to database: %w", err)
		}
		a.closers = append(a.closers, db.Close)
		if err := progress.Migrate(ctx, db.Pool); err != nil {
			a.close()
			return nil, fmt.Errorf("migrating database: %w", err)
		}
		store, err := progress.NewPostgresStore(db.Pool)
		if err != nil {
			a.close()
			return nil, err
		}
		deps.Store = store
		deps.Events = progress.NewPostgresEventLogger(db.Pool)
		deps.Ready["database"] = db.HealthCheck
		slog.Info("progress stored in postgres")
	}

	var serviceOpts []roadmap.ServiceOption
	if cfg.Cache.URL != "" {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			a.close()
			return nil, fmt.Errorf("connecting to cache: %w", err)
		}
		a.closers = append(a.closers, func() { c.Close() })
		serviceOpts = append(serviceOpts, roadmap.WithCache(cache.NewRedisJSON(c.Client, "qf:"), cfg.Roadmap.CacheTTL))
		deps.Ready["cache"] = c.HealthCheck
	}

	if router := newRouter(cfg); cfg.Roadmap.Narrate && router.HasProvider() {
		budget := ai.NewInMemoryBudget(cfg.AI.DailyTokens)
		serviceOpts = append(serviceOpts, roadmap.WithNarrator(roadmap.NewNarrator(router, budget)))
		slog.Info("roadmap narration enabled", "providers", router.Names())
	}
	deps.Roadmaps = roadmap.NewService(roadmap.DefaultCatalog(), serviceOpts...)

	bank, err := questionbank.NewLoader(cfg.QuestionPath, cfg.Exam.ExamPassingPercent,
		questionbank.WithQuizPassingPercent(cfg.Exam.QuizPassingPercent))
	if err != nil {
		a.close()
		return nil, err
	}
	deps.Instances = bank

	if cfg.SandboxURL != "" {
		deps.Sandbox = exercise.NewHTTPSandbox(cfg.SandboxURL, nil)
	}

	a.api = httpapi.New(deps)
	return a, nil
}

// newRouter registers every configured provider in fallback order.
func newRouter(cfg *config.Config) *ai.Router {
	router := ai.NewRouter()
	if key := cfg.AI.OpenAI.APIKey; key != "" {
		router.Register("openai", ai.NewOpenAIProvider(key, ai.WithDefaultModel(cfg.AI.OpenAI.Model)))
	}
	if key := cfg.AI.Anthropic.APIKey; key != "" {
		var opts []ai.AnthropicOption
		if cfg.AI.Anthropic.Model != "" {
			opts = append(opts, ai.WithAnthropicModel(cfg.AI.Anthropic.Model))
		}
		if p, err := ai.NewAnthropicProvider(key, opts...); err == nil {
			router.Register("anthropic", p)
		}
	}
	if key := cfg.AI.DeepSeek.APIKey; key != "" {
		router.Register("deepseek", ai.NewDeepSeekProvider(key))
	}
	if key := cfg.AI.OpenRouter.APIKey; key != "" {
		router.Register("openrouter", ai.NewOpenRouterProvider(key, cfg.AI.OpenRouter.Model))
	}
	if cfg.AI.Ollama.Enabled {
		router.Register("ollama", ai.NewOllamaProvider(cfg.AI.Ollama.URL, cfg.AI.Ollama.Model))
	}
	return router
}
