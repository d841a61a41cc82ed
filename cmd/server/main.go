package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"renterchat/internal/config"
	"renterchat/internal/handler"
	"renterchat/internal/logger"
	"renterchat/internal/matcher"
	"renterchat/internal/repository"
	"renterchat/internal/service"
	"renterchat/internal/session"
	"renterchat/internal/tools"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	zl, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = zl.Sync() }()

	zl.Info("Leasing assistant starting",
		zap.String("version", Version),
		zap.String("build_time", BuildTime),
		zap.String("git_commit", GitCommit),
	)

	if err := run(cfg, zl); err != nil {
		zl.Fatal("Server exited with error", zap.Error(err))
	}
}

func run(cfg *config.Config, zl *zap.Logger) error {
	ctx := context.Background()

	// Catalog
	repo, cache, closeRepo, err := openCatalog(cfg, zl)
	if err != nil {
		return err
	}
	defer closeRepo()

	// OpenAI-compatible client serves both embeddings and replies
	var openaiClient *service.OpenAIClient
	if cfg.OpenAI.Enabled {
		openaiClient = service.NewOpenAIClient(&cfg.OpenAI, zl)
		zl.Info("OpenAI client initialized",
			zap.String("api_base", cfg.OpenAI.APIBase),
			zap.String("chat_model", cfg.OpenAI.ChatModel),
			zap.String("embedding_model", cfg.OpenAI.EmbeddingModel),
		)
	}

	embedder := newEmbedder(ctx, cfg, openaiClient, zl)
	zl.Info("Embedding provider selected", zap.String("embedder", embedder.Name()))

	petTypes, err := repo.PetTypes(ctx)
	if err != nil {
		return fmt.Errorf("failed to load pet types: %w", err)
	}
	communities, err := repo.Communities(ctx)
	if err != nil {
		return fmt.Errorf("failed to load communities: %w", err)
	}

	pets, err := matcher.BuildCatalog(ctx, matcher.CatalogPets, embedder, matcher.PetCategories(petTypes), cache)
	if err != nil {
		return err
	}
	places, err := matcher.BuildCatalog(ctx, matcher.CatalogCommunities, embedder, matcher.CommunityCategories(communities), cache)
	if err != nil {
		return err
	}
	chain, vector := matcher.NewChain(embedder, cfg.Matcher.Threshold, zl)

	communityNames := make(map[string]string, len(communities))
	for _, c := range communities {
		communityNames[c.ID] = c.Name
	}

	// Sessions
	backend, closeBackend, err := openSessions(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeBackend()
	store := session.NewStore(backend, session.WithLogger(zl))

	// Tools
	registry := tools.NewRegistry(cfg.Tools.Timeout, zl)
	if err := registry.Register(tools.NewInventory(repo, zl).Definitions()...); err != nil {
		return fmt.Errorf("failed to register tools: %w", err)
	}

	// Reply composition
	llm := newCompleter(cfg, openaiClient)
	var composer service.ReplyComposer = service.NewTemplateComposer(communityNames)
	if llm != nil {
		composer = service.NewLLMComposer(llm, cfg.LLM.HistoryTurns, zl)
	}
	zl.Info("Reply composer selected", zap.String("provider", cfg.LLM.Provider))

	var extractorOpts []service.ExtractorOption
	if cfg.LLM.ExtractionAssist && llm != nil {
		extractorOpts = append(extractorOpts, service.WithAssistant(service.NewLLMAssistant(llm, zl)))
	}

	agent := service.NewAgent(
		store,
		service.NewExtractor(chain, pets, places, zl, extractorOpts...),
		service.NewPolicy(cfg.Policy.RetentionThreshold, cfg.Policy.TourTurnThreshold),
		service.NewOrchestrator(registry, service.NewRanker(
			cfg.Ranking.WeightPrice,
			cfg.Ranking.WeightTiming,
			cfg.Ranking.WeightSize,
		), zl),
		composer,
		service.NewClassifier(cfg.Policy.TourLeadDays, cfg.Policy.TourHour, cfg.TourLocation(), nil),
		zl,
		service.WithComposeTimeout(cfg.LLM.Timeout),
	)

	zl.Info("Services initialized")

	router := newRouter(cfg, zl, routes{
		chat:         handler.NewChatHandler(agent, zl),
		conversation: handler.NewConversationHandler(store),
		catalog:      handler.NewCatalogHandler(repo, chain, pets, places).WithQueryCache(vector),
	})

	return serve(cfg, zl, router)
}

type routes struct {
	chat         *handler.ChatHandler
	conversation *handler.ConversationHandler
	catalog      *handler.CatalogHandler
}

func newRouter(cfg *config.Config, zl *zap.Logger, h routes) *gin.Engine {
	gin.SetMode(cfg.Server.GinMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(handler.RequestID())
	router.Use(logger.GinMiddleware(zl))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = splitList(cfg.Server.AllowedOrigins)
	corsConfig.AllowMethods = splitList(cfg.Server.AllowedMethods)
	corsConfig.AllowHeaders = splitList(cfg.Server.AllowedHeaders)
	corsConfig.ExposeHeaders = []string{handler.RequestIDHeader}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":     "healthy",
			"service":    "leasing-assistant",
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
		})
	})

	router.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":    Version,
			"build_time": BuildTime,
			"git_commit": GitCommit,
		})
	})

	if cfg.Metrics.Enabled {
		router.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	api := router.Group("/api")
	{
		api.POST("/reply", h.chat.Reply)
		api.POST("/reply/stream", h.chat.ReplyStream)

		api.GET("/conversations/:client_id", h.conversation.Get)
		api.GET("/memory/stats", h.conversation.Stats)
		api.DELETE("/memory/:client_id", h.conversation.Delete)

		api.GET("/communities", h.catalog.Communities)
		api.POST("/matcher/resolve", h.catalog.Resolve)
		api.GET("/matcher/cache", h.catalog.CacheStats)
		api.DELETE("/matcher/cache", h.catalog.ResetCache)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "API endpoint not found"})
	})

	return router
}

func serve(cfg *config.Config, zl *zap.Logger, router *gin.Engine) error {
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: router}

	errCh := make(chan error, 1)
	go func() {
		zl.Info("Starting server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to start server: %w", err)
		}
		return nil
	case sig := <-quit:
		zl.Info("Shutting down server", zap.String("signal", sig.String()))
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("graceful shutdown failed: %w", err)
	}
	zl.Info("Server stopped")
	return nil
}

// openCatalog returns the catalog repository, the embedding cache (Postgres
// only) and a close function
func openCatalog(cfg *config.Config, zl *zap.Logger) (repository.CatalogRepository, matcher.EmbeddingCache, func(), error) {
	if cfg.Catalog.Source == "postgres" {
		repo, err := repository.NewPostgresRepository(
			cfg.GetPostgreSQLDSN(),
			cfg.PostgreSQL.MaxConnections,
			cfg.PostgreSQL.MaxIdleConnections,
		)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to connect to database: %w", err)
		}
		zl.Info("Connected to PostgreSQL catalog")
		return repo, repo, func() { _ = repo.Close() }, nil
	}

	repo, err := repository.NewJSONRepository(cfg.Catalog.DataDir)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to load catalog: %w", err)
	}
	zl.Info("Loaded JSON catalog", zap.String("dir", cfg.Catalog.DataDir))
	return repo, nil, func() {}, nil
}

func openSessions(ctx context.Context, cfg *config.Config) (session.Backend, func(), error) {
	if cfg.Session.Backend == "redis" {
		client := session.NewRedisClient(cfg.Redis)
		backend := session.NewRedisBackend(client, cfg.Redis.KeyPrefix, cfg.Session.TTL)
		if err := backend.Ping(ctx); err != nil {
			_ = client.Close()
			return nil, nil, err
		}
		return backend, func() { _ = client.Close() }, nil
	}
	return session.NewMemoryBackend(cfg.Session.TTL), func() {}, nil
}

func newEmbedder(ctx context.Context, cfg *config.Config, openaiClient *service.OpenAIClient, zl *zap.Logger) matcher.Embedder {
	switch cfg.Matcher.EmbeddingProvider {
	case "openai":
		return service.NewOpenAIEmbedder(openaiClient)
	case "ollama":
		return matcher.NewOllamaEmbedder(cfg.Ollama.Endpoint, cfg.Ollama.Model, cfg.Ollama.Timeout)
	case "lexical":
		return matcher.NewLexicalEmbedder(cfg.Matcher.LexicalDimensions)
	default:
		// Prefer the local sentence model; hashed trigrams keep the service
		// usable offline
		return matcher.SelectEmbedder(ctx, cfg.Ollama.Timeout, zl,
			matcher.NewOllamaEmbedder(cfg.Ollama.Endpoint, cfg.Ollama.Model, cfg.Ollama.Timeout),
			matcher.NewLexicalEmbedder(cfg.Matcher.LexicalDimensions),
		)
	}
}

// newCompleter returns nil for the template provider
func newCompleter(cfg *config.Config, openaiClient *service.OpenAIClient) service.TextCompleter {
	switch cfg.LLM.Provider {
	case "anthropic":
		return service.NewAnthropicClient(&cfg.Anthropic)
	case "openai":
		return openaiClient
	default:
		return nil
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
