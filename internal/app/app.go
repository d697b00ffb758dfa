// Package app wires the pipeline components from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/hihihowru/forum-autoposter-sub005/internal/breaker"
	"github.com/hihihowru/forum-autoposter-sub005/internal/classify"
	"github.com/hihihowru/forum-autoposter-sub005/internal/config"
	"github.com/hihihowru/forum-autoposter-sub005/internal/discovery"
	"github.com/hihihowru/forum-autoposter-sub005/internal/fetch"
	"github.com/hihihowru/forum-autoposter-sub005/internal/generation"
	"github.com/hihihowru/forum-autoposter-sub005/internal/ledger"
	"github.com/hihihowru/forum-autoposter-sub005/internal/llm"
	"github.com/hihihowru/forum-autoposter-sub005/internal/metrics"
	"github.com/hihihowru/forum-autoposter-sub005/internal/personas"
	"github.com/hihihowru/forum-autoposter-sub005/internal/pipeline"
	"github.com/hihihowru/forum-autoposter-sub005/internal/platform"
	"github.com/hihihowru/forum-autoposter-sub005/internal/publish"
	"github.com/hihihowru/forum-autoposter-sub005/internal/retry"
	"github.com/hihihowru/forum-autoposter-sub005/internal/schedule"
	"github.com/hihihowru/forum-autoposter-sub005/internal/store"
	"github.com/hihihowru/forum-autoposter-sub005/internal/topics"
)

// ErrGenerationDisabled is returned when no Generation API key is configured
var ErrGenerationDisabled = errors.New("generation is not configured: GEMINI_API_KEY is required")

// ErrPublishDisabled is returned when no Platform API base URL is configured
var ErrPublishDisabled = errors.New("publishing is not configured: PLATFORM_BASE_URL is required")

// App holds the wired components. Generation and publishing are optional so that
// read-only commands run without external credentials.
type App struct {
	Config     *config.Config
	Logger     zerolog.Logger
	Metrics    *metrics.Registry
	Store      store.Store
	Personas   *personas.Registry
	Topics     *topics.Repository
	Ledger     *ledger.Ledger
	Schedules  *schedule.Service
	Classifier *classify.Classifier
	Discoverer *discovery.Discoverer

	batches   *pipeline.Runner
	publisher *publish.Scheduler
	closers   []func() error
}

// New opens the store and builds every component the configuration enables
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*App, error) {
	s, err := store.Open(ctx, store.Options{
		Backend:         cfg.Store.Backend,
		DatabaseURL:     cfg.Store.DatabaseURL,
		SQLitePath:      cfg.Store.SQLitePath,
		SpreadsheetID:   cfg.Store.SpreadsheetID,
		CredentialsFile: cfg.Store.CredentialsFile,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Backend, err)
	}

	classifier := classify.NewDefault()
	if cfg.Classify.LexiconPath != "" {
		lex, err := classify.LoadLexicon(cfg.Classify.LexiconPath)
		if err != nil {
			_ = store.Close(s)
			return nil, err
		}
		classifier = classify.New(lex)
	}

	a := &App{
		Config:     cfg,
		Logger:     logger,
		Metrics:    metrics.New(),
		Store:      s,
		Personas:   personas.NewRegistry(s, cfg.Store.PersonasSheet, logger),
		Topics:     topics.NewRepository(s, cfg.Store.TopicsSheet, logger),
		Ledger:     ledger.New(s, cfg.Store.PostsSheet, logger),
		Schedules:  schedule.NewService(s, cfg.Store.SchedulesSheet, logger),
		Classifier: classifier,
		closers:    []func() error{func() error { return store.Close(s) }},
	}

	if err := a.init(ctx); err != nil {
		_ = a.Close()
		return nil, err
	}
	return a, nil
}

func (a *App) init(ctx context.Context) error {
	if err := a.Topics.Init(ctx); err != nil {
		return fmt.Errorf("failed to init topics sheet: %w", err)
	}
	if err := a.Ledger.Init(ctx); err != nil {
		return fmt.Errorf("failed to init posts sheet: %w", err)
	}
	if err := a.Schedules.Init(ctx); err != nil {
		return fmt.Errorf("failed to init schedules sheet: %w", err)
	}

	if err := a.buildDiscovery(); err != nil {
		return err
	}
	if a.Config.Generation.APIKey != "" {
		if err := a.buildGeneration(ctx); err != nil {
			return err
		}
	}
	if a.Config.Publish.PlatformBaseURL != "" {
		if err := a.buildPublish(ctx); err != nil {
			return err
		}
	}
	return nil
}

func (a *App) buildDiscovery() error {
	dc := a.Config.Discovery
	client := fetch.New(fetch.Options{Timeout: dc.Timeout})
	sources, err := discovery.BuildSources(dc.Sources, client)
	if err != nil {
		return fmt.Errorf("invalid discovery sources: %w", err)
	}
	a.Discoverer = discovery.New(sources, a.Classifier, a.Topics, a.Logger)
	return nil
}

// LLMConfig maps the generation section onto the model client configuration
func LLMConfig(gc config.GenerationConfig) *llm.Config {
	cfg := llm.DefaultConfig()
	for tier, model := range gc.Models {
		cfg = cfg.WithModel(llm.ModelTier(tier), model)
	}
	cfg.Temperature = gc.Temperature
	if gc.MaxTokens > 0 {
		cfg.MaxTokens = gc.MaxTokens
	}
	cfg.CallTimeout = gc.CallTimeout
	return cfg
}

// GenerationConfig maps the generation section onto orchestrator bounds
func GenerationConfig(gc config.GenerationConfig) generation.Config {
	return generation.Config{
		TitleRetryMax: gc.TitleRetryMax,
		Retry: retry.Policy{
			MaxAttempts:    gc.RetryMax,
			InitialBackoff: gc.InitialBackoff,
			MaxBackoff:     gc.MaxBackoff,
			Multiplier:     2,
		},
		CallTimeout:   gc.CallTimeout,
		MinBodyChars:  gc.MinBodyChars,
		MaxTitleChars: gc.MaxTitleChars,
	}
}

func (a *App) buildGeneration(ctx context.Context) error {
	gc := a.Config.Generation
	client, err := llm.NewClient(ctx, LLMConfig(gc), gc.APIKey)
	if err != nil {
		return fmt.Errorf("failed to create generation client: %w", err)
	}
	a.closers = append(a.closers, client.Close)

	cb := breaker.New("generation", breaker.Settings{
		ConsecutiveFailures: gc.BreakerTrips,
		OpenTimeout:         gc.BreakerOpen,
	}, a.Logger)
	orch := generation.NewOrchestrator(generation.NewLLMGenerator(client), GenerationConfig(gc), a.Logger,
		generation.WithBreaker(cb),
		generation.WithMetrics(a.Metrics),
	)

	a.batches = pipeline.NewRunner(a.Personas, a.Topics, a.Ledger, a.Classifier, orch, pipeline.Config{
		TopicCap:   a.Config.Assignment.MaxPerTopic,
		TopicLimit: a.Config.Assignment.TopicLimit,
		Spacing:    a.Config.Publish.Spacing,
	}, a.Logger, pipeline.WithMetrics(a.Metrics))
	return nil
}

// PublishConfig maps the publish section onto scheduler bounds
func PublishConfig(pc config.PublishConfig) publish.Config {
	cfg := publish.DefaultConfig()
	cfg.TickCap = pc.TickCap
	cfg.TickBudget = pc.TickBudget
	cfg.PoolSize = pc.PoolSize
	cfg.MinDelay = pc.MinDelay
	cfg.SessionSkew = pc.SessionSkew
	cfg.RatePerSecond = pc.RatePerSecond
	cfg.Burst = pc.Burst
	return cfg
}

func (a *App) buildPublish(ctx context.Context) error {
	pc := a.Config.Publish
	cb := breaker.New("platform", breaker.Settings{
		ConsecutiveFailures: pc.BreakerTrips,
		OpenTimeout:         pc.BreakerOpen,
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, platform.ErrSessionExpired)
		},
	}, a.Logger)

	api, err := platform.NewClient(platform.Options{
		BaseURL: pc.PlatformBaseURL,
		Timeout: pc.CallTimeout,
		Breaker: cb,
		Metrics: a.Metrics,
	}, a.Logger)
	if err != nil {
		return err
	}

	sc := a.Config.Sessions
	sessions, err := platform.NewSessionCache(ctx, sc.RedisAddr, sc.RedisPassword, sc.RedisDB)
	if err != nil {
		return fmt.Errorf("failed to connect session cache: %w", err)
	}
	if rc, ok := sessions.(*platform.RedisSessionCache); ok {
		a.closers = append(a.closers, rc.Close)
	}

	a.publisher = publish.NewScheduler(a.Ledger, a.Personas, api, sessions, PublishConfig(pc), a.Logger,
		publish.WithMetrics(a.Metrics))
	return nil
}

// Batches returns the generation batch runner
func (a *App) Batches() (*pipeline.Runner, error) {
	if a.batches == nil {
		return nil, ErrGenerationDisabled
	}
	return a.batches, nil
}

// Publisher returns the publish scheduler
func (a *App) Publisher() (*publish.Scheduler, error) {
	if a.publisher == nil {
		return nil, ErrPublishDisabled
	}
	return a.publisher, nil
}

// Close releases clients and the store in reverse order of creation
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
