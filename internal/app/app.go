package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	"github.com/manuscript-desk-poc/server/internal/agent/graph"
	"github.com/manuscript-desk-poc/server/internal/agent/graph/conversations"
	"github.com/manuscript-desk-poc/server/internal/agent/knowledge"
	"github.com/manuscript-desk-poc/server/internal/agent/llm"
	"github.com/manuscript-desk-poc/server/internal/agent/model"
	"github.com/manuscript-desk-poc/server/internal/agent/policy"
	"github.com/manuscript-desk-poc/server/internal/agent/repo"
	"github.com/manuscript-desk-poc/server/internal/agent/responder"
	"github.com/manuscript-desk-poc/server/internal/agent/retrieval"
	"github.com/manuscript-desk-poc/server/internal/agent/triage"
	"github.com/manuscript-desk-poc/server/internal/api"
	"github.com/manuscript-desk-poc/server/internal/observability/metrics"
	logx "github.com/manuscript-desk-poc/server/pkg/logger"
)

const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
)

// App is the wired desk.
type App struct {
	Config      Config
	Service     *graph.Service
	Registry    *prometheus.Registry
	Metrics     *metrics.DeskMetrics
	Cases       *knowledge.CaseStore
	Manuscripts *knowledge.ManuscriptDB

	retriever retrieval.Retriever
	redis     *goredis.Client
}

// Data is the read-only corpus and manuscript database.
type Data struct {
	Cases       *knowledge.CaseStore
	Manuscripts *knowledge.ManuscriptDB
}

// LoadData reads both CSV files in parallel. A missing file degrades to an
// empty store; the error is logged and never returned.
func LoadData(ctx context.Context, cfg model.DataConfig) Data {
	var data Data
	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		cases, err := knowledge.LoadCases(cfg.CasesPath)
		if err != nil {
			logx.Debug().Err(err).Str("path", cfg.CasesPath).Msg("Continuing with an empty case corpus")
		}
		data.Cases = cases
		return nil
	})
	g.Go(func() error {
		db, err := knowledge.LoadManuscripts(cfg.ManuscriptsPath)
		if err != nil {
			logx.Debug().Err(err).Str("path", cfg.ManuscriptsPath).Msg("Continuing without manuscript lookups")
		}
		data.Manuscripts = db
		return nil
	})
	_ = g.Wait()
	return data
}

// New wires every component from cfg.
func New(ctx context.Context, cfg Config) (*App, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("GEMINI_API_KEY is required")
	}
	timeout, err := cfg.LLMTimeout()
	if err != nil {
		return nil, err
	}
	mode, err := retrieval.ParseMode(cfg.Retrieval.Mode)
	if err != nil {
		return nil, err
	}

	rules, err := policy.Load(cfg.Escalation.PolicyFile)
	if err != nil {
		return nil, err
	}
	rules = rules.WithThresholds(cfg.Escalation)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	deskMetrics := metrics.NewDeskMetrics(reg)

	data := LoadData(ctx, cfg.Data)

	cms, err := llm.NewChatModels(ctx, llm.ChatModelConfig{
		APIKey:           cfg.APIKey,
		BaseURL:          cfg.BaseURL,
		ClassifierConfig: &cfg.Classifier,
		RespConfig:       &cfg.Response,
		Timeout:          timeout,
		Metrics:          deskMetrics,
	})
	if err != nil {
		return nil, err
	}

	retriever := retrieval.New(mode, data.Cases, llm.NewGeminiEmbedder(cms.Client, cfg.Retrieval.EmbeddingModel),
		retrieval.WithBatching(cfg.Retrieval.BatchSize, cfg.Retrieval.Concurrency))
	if er, ok := retriever.(*retrieval.EmbeddingRetriever); ok {
		if err := er.Warm(ctx); err != nil {
			logx.Warn().Err(err).Msg("Embedding index warm-up failed, it will be rebuilt on first search")
		}
	}

	a := &App{
		Config:      cfg,
		Registry:    reg,
		Metrics:     deskMetrics,
		Cases:       data.Cases,
		Manuscripts: data.Manuscripts,
		retriever:   retriever,
	}

	conversationRepo, err := a.conversationRepository(ctx)
	if err != nil {
		return nil, err
	}

	svc, err := graph.NewService(ctx, graph.Config{
		Manager:         conversations.NewManager(conversationRepo, cfg.Conversation),
		Rules:           rules,
		Manuscripts:     data.Manuscripts,
		ManuscriptCount: data.Manuscripts.Len,
		Cases:           data.Cases,
		Classifier:      triage.NewClassifier(cms.Classifier, cfg.Prompt, cfg.Classifier.Temperature),
		Retriever:       retriever,
		Responder: responder.New(cms.Response, responder.Config{
			Threshold:           cfg.Escalation.Threshold,
			Temperature:         cfg.Response.Temperature,
			GroundedTemperature: cfg.Response.GroundedTemperature,
			Prompt:              cfg.Prompt,
		}),
		Pipeline:        cfg.Pipeline,
		TopK:            cfg.Retrieval.TopK,
		HistoryWindow:   cfg.Conversation.HistoryWindow,
		Metrics:         deskMetrics,
		ClassifierModel: cms.Classifier.Name(),
		ResponseModel:   cms.Response.Name(),
	})
	if err != nil {
		_ = a.Close()
		return nil, err
	}
	a.Service = svc

	logx.Info().
		Str("retrieval", string(retriever.Mode())).
		Str("store", cfg.Conversation.Store).
		Int("cases", data.Cases.Len()).
		Int("manuscripts", data.Manuscripts.Len()).
		Msg("Manuscript desk ready")
	return a, nil
}

func (a *App) conversationRepository(ctx context.Context) (model.ConversationRepository, error) {
	switch strings.ToLower(a.Config.Conversation.Store) {
	case "", StoreMemory:
		return repo.NewMemoryConversationRepository(), nil
	case StoreRedis:
		ttl, err := a.Config.ConversationTTL()
		if err != nil {
			return nil, err
		}
		rdb, err := a.Config.Redis.New(ctx)
		if err != nil {
			logx.Error().Err(err).Msg("Failed to initialise Redis client")
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.redis = rdb
		logx.Info().Msg("Connected to Redis successfully")
		return repo.NewRedisConversationRepository(rdb, ttl), nil
	}
	return nil, fmt.Errorf("unknown CONVERSATION_STORE %q", a.Config.Conversation.Store)
}

// Reload re-reads the case corpus. The corpus version changes, so an
// embedding retriever re-indexes before its next search; it is warmed here
// so the first query after a reload does not pay for it.
func (a *App) Reload(ctx context.Context) error {
	if err := a.Cases.Reload(a.Config.Data.CasesPath); err != nil {
		logx.Error().Err(err).Str("path", a.Config.Data.CasesPath).Msg("Case corpus reload failed, keeping the current corpus")
		return err
	}
	if er, ok := a.retriever.(*retrieval.EmbeddingRetriever); ok {
		if err := er.Warm(ctx); err != nil {
			logx.Warn().Err(err).Msg("Embedding index warm-up failed after reload")
		}
	}
	return nil
}

// Handler returns the HTTP API including /metrics.
func (a *App) Handler() http.Handler {
	return api.NewRouter(api.RouterConfig{
		Handler:        api.NewHandler(a.Service),
		MetricsHandler: promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{Registry: a.Registry}),
	})
}

// Serve runs the HTTP server until ctx is cancelled, then shuts down
// gracefully. SIGHUP reloads the case corpus.
func (a *App) Serve(ctx context.Context) error {
	shutdownTimeout, err := a.Config.ShutdownTimeout()
	if err != nil {
		return err
	}
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	srv := &http.Server{
		Addr:              a.Config.HTTP.Addr,
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logx.Info().Str("addr", srv.Addr).Msg("HTTP server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-hup:
				logx.Info().Msg("SIGHUP received, reloading case corpus")
				_ = a.Reload(gctx)
			}
		}
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		logx.Info().Msg("Shutting down HTTP server")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (a *App) Close() error {
	if a.redis != nil {
		return a.redis.Close()
	}
	return nil
}
