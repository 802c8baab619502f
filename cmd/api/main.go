package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"go.uber.org/zap"

	"github.com/chapter-agent/backend/internal/api/handlers"
	"github.com/chapter-agent/backend/internal/behavior"
	"github.com/chapter-agent/backend/internal/cache/redis"
	"github.com/chapter-agent/backend/internal/citation"
	"github.com/chapter-agent/backend/internal/evidence"
	"github.com/chapter-agent/backend/internal/evolution"
	"github.com/chapter-agent/backend/internal/indexing"
	"github.com/chapter-agent/backend/internal/kg/neo4j"
	"github.com/chapter-agent/backend/internal/llm"
	"github.com/chapter-agent/backend/internal/merge"
	"github.com/chapter-agent/backend/internal/metrics"
	"github.com/chapter-agent/backend/internal/middleware/ratelimit"
	"github.com/chapter-agent/backend/internal/middleware/security"
	"github.com/chapter-agent/backend/internal/middleware/validation"
	"github.com/chapter-agent/backend/internal/qa"
	"github.com/chapter-agent/backend/internal/search/pubmed"
	"github.com/chapter-agent/backend/internal/search/web"
	"github.com/chapter-agent/backend/internal/storage/sqlite"
	"github.com/chapter-agent/backend/internal/vector/milvus"
	"github.com/chapter-agent/backend/pkg/config"
	appLogger "github.com/chapter-agent/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting Chapter Agent API Server")
	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	neo4jClient, err := neo4j.NewClient(
		cfg.Neo4j.URI,
		cfg.Neo4j.Username,
		cfg.Neo4j.Password,
		cfg.Neo4j.Database,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Neo4j client", zap.Error(err))
	}
	defer neo4jClient.Close(context.Background())

	milvusClient, err := milvus.NewClient(
		cfg.Milvus.Endpoint,
		cfg.Milvus.APIKey,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
	)
	if err != nil {
		appLogger.Fatal("Failed to create Milvus client", zap.Error(err))
	}
	defer milvusClient.Close()

	if err := milvusClient.CreateCollection(context.Background()); err != nil {
		appLogger.Fatal("Failed to create collection", zap.Error(err))
	}

	redisClient, err := redis.NewClient(cfg.Redis.Host, cfg.Redis.Port, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		appLogger.Fatal("Failed to create Redis client", zap.Error(err))
	}
	defer redisClient.Close()

	var provider llm.GenerationProvider
	if cfg.LLM.APIKey != "" {
		provider = llm.NewOpenAIProvider(
			cfg.LLM.APIKey,
			cfg.LLM.Model,
			cfg.LLM.EmbeddingModel,
			cfg.LLM.Temperature,
			cfg.LLM.MaxTokens,
		)
	} else {
		appLogger.Warn("No LLM API key configured, embeddings disabled")
		provider = llm.NewNullProvider()
	}

	// Evidence pipeline: three heterogeneous backends behind one searcher.
	backends := []evidence.Backend{
		pubmed.NewClient(cfg.Search.PubMedBaseURL, cfg.Search.PubMedAPIKey),
		neo4j.NewGraphBackend(neo4jClient),
		milvus.NewIndexBackend(milvusClient, provider),
	}
	if cfg.Search.WebProxyEnabled {
		backends = append(backends, web.NewClient(cfg.Search.WebProxyAPIKey))
	}

	scorer := evidence.NewScorer(cfg.Heuristics)
	searcher := evidence.NewSearcher(backends, scorer, provider, redisClient, evidence.SearcherConfig{
		MaxResults:     cfg.Search.MaxResults,
		ScoreThreshold: cfg.Search.ScoreThreshold,
		BackendTimeout: time.Duration(cfg.Search.BackendTimeoutSec) * time.Second,
		OverallTimeout: time.Duration(cfg.Search.OverallTimeoutSec) * time.Second,
	})

	analyzer := qa.NewAnalyzer(cfg.Heuristics)
	resolver := qa.NewResolver(cfg.Heuristics, qa.ConflictPolicy(cfg.QA.ConflictPolicy))
	synthesizer := qa.NewSynthesizer(resolver, cfg.QA.TopKEvidence, cfg.QA.ConflictPenalty)
	integrator := qa.NewIntegrator()

	qaEngine := qa.NewEngine(analyzer, searcher, synthesizer, integrator, sqliteClient, redisClient, qa.EngineConfig{
		AutoIntegrateThreshold: cfg.QA.AutoIntegrateThreshold,
		LatencyEMAAlpha:        cfg.QA.LatencyEMAAlpha,
		AnswerCacheTTL:         time.Duration(cfg.QA.AnswerCacheTTLMin) * time.Minute,
	})

	memory := behavior.NewMemory(
		time.Duration(cfg.Behavior.RetentionHours)*time.Hour,
		cfg.Behavior.MaxInteractionsPerCh,
		cfg.Behavior.MinSupport,
	)
	gapDetector := behavior.NewGapDetector(cfg.Heuristics)
	anticipation := behavior.NewAnticipationEngine(
		memory, gapDetector, sqliteClient, redisClient, cfg.Heuristics,
		time.Duration(cfg.Behavior.RetentionHours)*time.Hour,
	)

	detector := citation.NewDetector(cfg.Heuristics, cfg.Citation.RelevanceThreshold)
	builder := citation.NewBuilder(detector, sqliteClient, neo4jClient)
	suggester := citation.NewSuggester(
		cfg.Citation.SuggestionCutoff,
		cfg.Citation.MaxSuggestions,
		time.Duration(cfg.Citation.RecentCitationMin)*time.Minute,
	)

	evaluator := merge.NewEvaluator(cfg.Heuristics)
	mergeEngine := merge.NewEngine(sqliteClient, redisClient, memory, evaluator, cfg.Heuristics, cfg.Merge)

	healthChecker := evolution.NewHealthChecker(sqliteClient, evaluator)
	executor := evolution.NewExecutor(
		sqliteClient, anticipation, gapDetector, qaEngine, mergeEngine, builder, healthChecker, 3,
	)

	processor := indexing.NewProcessor(sqliteClient, milvusClient, redisClient, provider)

	// The prefetch worker warms the answer cache by running high-value
	// gap questions through the QA pipeline off the request path.
	prefetch := func(ctx context.Context, need behavior.AnticipatedNeed) error {
		if need.Kind != behavior.NeedOpenGap {
			return nil
		}
		chapter, err := sqliteClient.GetChapter(need.ChapterID)
		if err != nil || chapter == nil {
			return err
		}
		_, err = qaEngine.ProcessQuestion(ctx, qa.Request{
			QuestionText:   need.Description,
			ChapterID:      need.ChapterID,
			ChapterContent: chapter.Content,
			UserID:         "prefetch",
		})
		return err
	}

	workers := behavior.NewWorkers(
		memory, sqliteClient, redisClient, anticipation, prefetch,
		time.Duration(cfg.Behavior.MiningIntervalSec)*time.Second,
		time.Duration(cfg.Behavior.PrefetchIntervalSec)*time.Second,
		time.Duration(cfg.Behavior.PatternCacheTTLMin)*time.Minute,
		time.Duration(cfg.Behavior.RetentionHours)*time.Hour,
	)
	workers.Start()
	defer workers.Stop()

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	limiter := ratelimit.New(ratelimit.Config{
		RouteCosts: map[string]int{
			"/api/v1/qa/ask": 2,
			"/api/v1/merge":  2,
		},
		Logger: appLogger.GetLogger(),
	})
	defer limiter.Stop()

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, PUT, DELETE, OPTIONS",
	}))
	app.Use(security.HeadersMiddleware(security.HeadersConfig{}))
	app.Use(limiter.Middleware())
	app.Use(validation.Middleware(validation.Config{Logger: appLogger.GetLogger()}))

	qaHandler := handlers.NewQAHandler(qaEngine, sqliteClient, redisClient)
	behaviorHandler := handlers.NewBehaviorHandler(memory, anticipation, sqliteClient)
	citationHandler := handlers.NewCitationHandler(detector, builder, suggester, searcher, sqliteClient)
	mergeHandler := handlers.NewMergeHandler(mergeEngine, sqliteClient)
	chapterHandler := handlers.NewChapterHandler(sqliteClient, processor, healthChecker, executor, qaEngine)
	wsHandler := handlers.NewWebSocketHandler(qaEngine, sqliteClient, redisClient)

	api := app.Group("/api/v1")

	api.Post("/qa/ask", qaHandler.HandleAsk)
	api.Get("/qa/history", qaHandler.GetHistory)
	api.Post("/qa/feedback", qaHandler.HandleFeedback)

	api.Post("/behavior/interactions", behaviorHandler.HandleInteraction)
	api.Get("/behavior/anticipate", behaviorHandler.HandleAnticipate)
	api.Get("/behavior/suggestions", behaviorHandler.HandleSuggestions)
	api.Get("/behavior/gaps", behaviorHandler.GetGaps)

	api.Get("/citations/cross-references", citationHandler.HandleCrossReferences)
	api.Post("/citations/suggest", citationHandler.HandleSuggest)
	api.Post("/citations/cited", citationHandler.MarkCited)
	api.Get("/citations/network", citationHandler.HandleNetwork)

	api.Post("/merge", mergeHandler.HandleMerge)
	api.Get("/merge/history", mergeHandler.GetHistory)
	api.Get("/merge/preferences/:chapterID", mergeHandler.GetPreferences)
	api.Post("/merge/preferences/:chapterID", mergeHandler.SetPreferences)

	api.Get("/chapters", chapterHandler.List)
	api.Post("/chapters", chapterHandler.Upsert)
	api.Get("/chapters/:chapterID", chapterHandler.Get)
	api.Post("/chapters/:chapterID/index", chapterHandler.Reindex)
	api.Get("/chapters/:chapterID/health", chapterHandler.Health)
	api.Post("/chapters/:chapterID/evolve", chapterHandler.Evolve)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws", websocket.New(wsHandler.HandleConnection))

	app.Get("/metrics", metrics.MetricsHandler())

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}
