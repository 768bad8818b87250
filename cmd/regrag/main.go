// regrag is the retrieval service for the multilingual regulatory document
// corpus. It exposes hybrid vector and keyword search with hierarchy
// expansion and hypothetical-question matching over per-language Qdrant
// collections.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/lexcorpus/regrag/internal/config"
	"github.com/lexcorpus/regrag/internal/embedding"
	"github.com/lexcorpus/regrag/internal/graph"
	"github.com/lexcorpus/regrag/internal/language"
	"github.com/lexcorpus/regrag/internal/llm"
	"github.com/lexcorpus/regrag/internal/metrics"
	"github.com/lexcorpus/regrag/internal/retrieval"
	"github.com/lexcorpus/regrag/internal/vectorstore"
)

// Server wires the retrieval pipeline behind the HTTP API.
type Server struct {
	cfg          *config.Config
	logger       *logrus.Logger
	orchestrator *retrieval.Orchestrator
	indexer      *retrieval.Indexer
	vectorClient *vectorstore.Client
	graphStore   graph.Store
}

// NewServer builds all backend clients and the retrieval pipeline from
// configuration. Optional backends that fail to connect are logged and left
// nil; the pipeline degrades instead of refusing to start.
func NewServer(cfg *config.Config, logger *logrus.Logger) (*Server, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	vectorCfg := &vectorstore.Config{
		URL:     cfg.Qdrant.URL,
		APIKey:  cfg.Qdrant.APIKey,
		Timeout: cfg.Qdrant.Timeout,
	}
	vectorClient, err := vectorstore.NewClient(vectorCfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create vector store client: %w", err)
	}
	if err := vectorClient.HealthCheck(ctx); err != nil {
		return nil, fmt.Errorf("vector store unreachable: %w", err)
	}

	var graphStore graph.Store
	if cfg.Neo4j.Enabled {
		store, graphErr := graph.NewNeo4jStore(cfg.Neo4j, logger)
		if graphErr != nil {
			logger.WithError(graphErr).Warn("Graph store unavailable, hierarchy expansion disabled")
		} else {
			graphStore = store
		}
	}

	var redisClient *redis.Client
	if cfg.Redis.Enabled {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.WithError(err).Warn("Redis unreachable, query cache disabled")
			redisClient = nil
		}
	}

	embedder := embedding.NewFromConfig(cfg.Embedding)
	detector := language.NewDetector(cfg.Language.Default, logger)
	registry := retrieval.NewRegistry(cfg, vectorClient, embedder, logger)
	cache := retrieval.NewQueryCache(redisClient, cfg.Redis.CacheTTL, logger)
	m := metrics.New(nil)

	var reranker *retrieval.CrossEncoderReranker
	if cfg.Reranker.Enabled {
		reranker = retrieval.NewCrossEncoderReranker(ctx, cfg.Reranker, logger)
	}

	provider := llm.NewOpenAIProvider(cfg.LLM, logger)
	questions := retrieval.NewQuestionGenerator(provider, logger)

	return &Server{
		cfg:          cfg,
		logger:       logger,
		orchestrator: retrieval.NewOrchestrator(cfg, registry, detector, graphStore, reranker, cache, m, logger),
		indexer:      retrieval.NewIndexer(cfg, registry, embedder, questions, detector, cache, m, logger),
		vectorClient: vectorClient,
		graphStore:   graphStore,
	}, nil
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	if s.cfg.Server.Mode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/retrieve", s.handleRetrieve)
	r.POST("/documents/:id/index", s.handleIndexDocument)
	r.DELETE("/documents/:id", s.handleDeleteDocument)
	r.POST("/languages/:code", s.handleInitLanguage)
	r.GET("/languages", s.handleListLanguages)
	r.GET("/healthz", s.handleHealth)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

func (s *Server) handleRetrieve(c *gin.Context) {
	var req retrieval.RetrieveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": retrieval.StatusError, "message": err.Error()})
		return
	}

	resp := s.orchestrator.Retrieve(c.Request.Context(), req)
	if resp.Status == retrieval.StatusError {
		c.JSON(http.StatusServiceUnavailable, resp)
		return
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleIndexDocument(c *gin.Context) {
	docID := c.Param("id")

	var req struct {
		Chunks   []string               `json:"chunks" binding:"required"`
		Language string                 `json:"language"`
		Metadata map[string]interface{} `json:"metadata"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": retrieval.StatusError, "message": err.Error()})
		return
	}

	result, err := s.indexer.IndexDocument(c.Request.Context(), docID, req.Chunks, req.Language, req.Metadata)
	if err != nil {
		status := http.StatusInternalServerError
		if result == nil {
			status = http.StatusBadRequest
			result = &retrieval.IndexResult{Status: retrieval.StatusError, Message: err.Error(), DocID: docID}
		}
		c.JSON(status, result)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleDeleteDocument(c *gin.Context) {
	docID := c.Param("id")
	// No language narrows the delete; the indexer sweeps every configured
	// language collection otherwise.
	lang := c.Query("language")

	deleted, err := s.indexer.DeleteDocument(c.Request.Context(), docID, lang)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"status": retrieval.StatusError, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"status":         retrieval.StatusSuccess,
		"doc_id":         docID,
		"points_deleted": deleted,
	})
}

func (s *Server) handleInitLanguage(c *gin.Context) {
	code := c.Param("code")
	if err := s.orchestrator.EnsureLanguageInitialized(c.Request.Context(), code); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"status": retrieval.StatusError, "message": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": retrieval.StatusSuccess, "language": code})
}

func (s *Server) handleListLanguages(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"default":   s.cfg.Language.Default,
		"supported": language.SupportedCodes(),
	})
}

func (s *Server) handleHealth(c *gin.Context) {
	ctx := c.Request.Context()

	checks := gin.H{"qdrant": "ok"}
	healthy := true
	if err := s.vectorClient.HealthCheck(ctx); err != nil {
		checks["qdrant"] = err.Error()
		healthy = false
	}
	if s.graphStore != nil {
		if s.graphStore.Available(ctx) {
			checks["neo4j"] = "ok"
		} else {
			checks["neo4j"] = "unavailable"
		}
	}

	status := http.StatusOK
	if !healthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{"healthy": healthy, "checks": checks})
}

func main() {
	_ = godotenv.Load()

	cfg := config.Load()

	logger := logrus.New()
	logger.SetFormatter(&logrus.JSONFormatter{})
	if cfg.Server.Mode == "debug" {
		logger.SetLevel(logrus.DebugLevel)
	} else {
		logger.SetLevel(logrus.InfoLevel)
	}

	server, err := NewServer(cfg, logger)
	if err != nil {
		logger.WithError(err).Fatal("Failed to initialize server")
	}
	defer func() {
		if server.graphStore != nil {
			_ = server.graphStore.Close(context.Background())
		}
	}()

	addr := cfg.Server.Host + ":" + cfg.Server.Port
	httpServer := &http.Server{
		Addr:         addr,
		Handler:      server.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	logger.WithField("addr", addr).Info("Starting retrieval service")
	if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.WithError(err).Error("Server stopped")
		os.Exit(1)
	}
}
