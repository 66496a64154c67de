package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/kastelov/lexitrain/internal/api"
	"github.com/kastelov/lexitrain/internal/clock"
	"github.com/kastelov/lexitrain/internal/config"
	"github.com/kastelov/lexitrain/internal/embedding"
	"github.com/kastelov/lexitrain/internal/gateway"
	"github.com/kastelov/lexitrain/internal/lesson"
	"github.com/kastelov/lexitrain/internal/llm"
	"github.com/kastelov/lexitrain/internal/notify"
	"github.com/kastelov/lexitrain/internal/provider"
	msgrouter "github.com/kastelov/lexitrain/internal/router"
	"github.com/kastelov/lexitrain/internal/store"
	"github.com/kastelov/lexitrain/internal/validate"
	"github.com/kastelov/lexitrain/internal/vectorstore"
)

func newLogger(level string) *zap.Logger {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		lvl = zapcore.InfoLevel
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	logger, err := cfg.Build()
	if err != nil {
		logger, _ = zap.NewProduction()
	}
	return logger
}

func main() {
	_ = godotenv.Load()

	cfgPath := os.Getenv("CONFIG_PATH")
	if cfgPath == "" {
		cfgPath = "configs/lexitrain.json"
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config %s: %v\n", cfgPath, err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Server.LogLevel)
	defer logger.Sync()
	logger.Info("Starting lexitrain...", zap.String("config", cfgPath))

	ctx := context.Background()
	clk := clock.System{}

	// PostgreSQL is the source of truth; refuse to start without it.
	st, err := store.New(ctx, cfg.Database.Postgres.DSN, logger)
	if err != nil {
		logger.Fatal("store init failed", zap.Error(err))
	}
	if err := st.Migrate(ctx, "migrations"); err != nil {
		logger.Fatal("migration failed", zap.Error(err))
	}

	// Redis is a hot cache only; a miss here degrades to Postgres lookups.
	rdb, err := llm.NewRedisClient(ctx, cfg.Database.Redis.URL, logger)
	if err != nil {
		logger.Warn("Redis unavailable, running without hot cache", zap.Error(err))
		rdb = nil
	}

	provCfg := provider.Config{
		Type:     cfg.Provider.Type,
		Endpoint: cfg.Provider.Endpoint,
		APIKey:   cfg.Provider.APIKey,
		Model:    cfg.Provider.Model,
		Timeout:  cfg.LLM.CallTimeout(),
	}
	var prov provider.Provider
	switch cfg.Provider.Type {
	case "anthropic":
		prov = provider.NewAnthropicProvider(provCfg, logger)
	case "openai":
		prov = provider.NewOpenAIProvider(provCfg, logger)
	default:
		logger.Fatal("unknown provider type", zap.String("type", cfg.Provider.Type))
	}

	llmGW := llm.NewGateway(cfg.LLM, prov, st, rdb, clk, logger)
	validator := validate.New(llmGW, cfg.Lesson.FuzzyThreshold, logger)
	engine := lesson.NewEngine(st, validator, cfg.Lesson, cfg.SRS, clk, logger)

	// Semantic distractors are optional; the random same-level pool covers
	// choice questions when Qdrant is not configured.
	var semanticPool *lesson.SemanticPool
	if cfg.Selector.SemanticDistractors && cfg.Database.Qdrant.Host != "" {
		vs, vsErr := vectorstore.NewClient(vectorstore.QdrantConfig{
			Host: cfg.Database.Qdrant.Host,
			Port: cfg.Database.Qdrant.Port,
		})
		if vsErr != nil {
			logger.Warn("Qdrant unavailable, semantic distractors disabled", zap.Error(vsErr))
		} else {
			emb := embedding.NewAPIProvider(embedding.Config{
				Endpoint:  cfg.Embedding.Endpoint,
				Model:     cfg.Embedding.Model,
				APIKey:    cfg.Embedding.APIKey,
				Dimension: cfg.Embedding.Dimension,
			})
			pool := lesson.NewSemanticPool(emb, vs, st, logger)
			if err := pool.Init(ctx); err != nil {
				logger.Warn("vector collection init failed, semantic distractors disabled", zap.Error(err))
				vs.Close()
			} else {
				semanticPool = pool
				engine.SetSemanticPool(pool)
				defer vs.Close()
				logger.Info("Semantic distractors enabled")
			}
		}
	}

	gw := gateway.New(logger)

	// The handler must be set before adapters register; Register captures it.
	router := msgrouter.New(st, engine, llmGW, gw, cfg, clk, logger)
	if semanticPool != nil {
		router.SetIndexer(semanticPool)
	}
	gw.SetHandler(router.Handle)

	restAdapter := gateway.NewRESTAdapter(logger)
	gw.Register(restAdapter)
	if cfg.Gateway.Discord.Enabled && cfg.Gateway.Discord.BotToken != "" {
		gw.Register(gateway.NewDiscordAdapter(cfg.Gateway.Discord.BotToken, logger))
	}
	if cfg.Gateway.Slack.Enabled && cfg.Gateway.Slack.BotToken != "" {
		gw.Register(gateway.NewSlackAdapter(cfg.Gateway.Slack.BotToken, cfg.Gateway.Slack.AppToken, logger))
	}
	if err := gw.ConnectAll(ctx); err != nil {
		logger.Warn("some gateway adapters failed to connect", zap.Error(err))
	}

	notifier, err := notify.New(st, gw, cfg.Notify, cfg.DefaultTZ, clk, logger)
	if err != nil {
		logger.Fatal("notifier init failed", zap.Error(err))
	}
	notifyCtx, stopNotifier := context.WithCancel(ctx)
	go notifier.Run(notifyCtx)

	handler := api.NewHandler(st, rdb, llmGW, restAdapter, gw, clk, logger)
	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: handler.Router(),
	}
	go func() {
		logger.Info("lexitrain listening", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != http.ErrServerClosed {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down lexitrain...")
	stopNotifier()
	gw.Close()
	srv.Shutdown(ctx)
	if rdb != nil {
		rdb.Close()
	}
	st.Close()
}
