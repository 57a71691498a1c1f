package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/dbanalyst/dbanalyst/internal/api"
	"github.com/dbanalyst/dbanalyst/internal/auth"
	"github.com/dbanalyst/dbanalyst/internal/config"
	"github.com/dbanalyst/dbanalyst/internal/database"
	"github.com/dbanalyst/dbanalyst/internal/executor"
	"github.com/dbanalyst/dbanalyst/internal/guard"
	"github.com/dbanalyst/dbanalyst/internal/llm"
	"github.com/dbanalyst/dbanalyst/internal/nl2sql"
	"github.com/dbanalyst/dbanalyst/internal/observability"
	"github.com/dbanalyst/dbanalyst/internal/orchestrator"
	"github.com/dbanalyst/dbanalyst/internal/rag"
	duckdbindex "github.com/dbanalyst/dbanalyst/internal/rag/duckdb"
	"github.com/dbanalyst/dbanalyst/internal/schema"
	"github.com/dbanalyst/dbanalyst/internal/sqlparse"
	"github.com/dbanalyst/dbanalyst/internal/storage"
	s3store "github.com/dbanalyst/dbanalyst/internal/storage/s3"
	"github.com/dbanalyst/dbanalyst/internal/store"
	storepostgres "github.com/dbanalyst/dbanalyst/internal/store/postgres"
	"github.com/dbanalyst/dbanalyst/internal/tools"
	"github.com/dbanalyst/dbanalyst/internal/validation"
)

// appStore is the union the server needs from either application store
// backend.
type appStore interface {
	HealthCheck(ctx context.Context) error
	RecordAudit(ctx context.Context, entry store.AuditEntry) (store.AuditEntry, error)
	ListAudit(ctx context.Context, tenantID string, limit int) ([]store.AuditEntry, error)
	CreateDocument(ctx context.Context, doc store.Document) (store.Document, error)
	ListDocuments(ctx context.Context, tenantID string) ([]store.Document, error)
}

type pingableStore interface {
	storage.ObjectStore
	Ping(ctx context.Context) error
}

func main() {
	cfg, err := config.LoadFromEnv("dbanalyst-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	db, dialect, err := database.Open(context.Background(), database.Config{
		Dialect:         cfg.Database.Dialect,
		DSN:             cfg.Database.DSN,
		MaxOpenConns:    cfg.Database.MaxOpenConns,
		ConnMaxLifetime: cfg.Database.ConnMaxLifetime,
	})
	if err != nil {
		logger.Error("failed to open database", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() { _ = db.Close() }()
	if schemaName := strings.TrimSpace(cfg.Database.DefaultSchema); schemaName != "" {
		dialect.DefaultSchema = schemaName
	}

	patterns := []validation.Pattern{}
	if cfg.Validation.PatternsFile != "" {
		patterns, err = validation.LoadPatternFile(cfg.Validation.PatternsFile)
		if err != nil {
			logger.Error("failed to load validation patterns", slog.Any("error", err))
			os.Exit(1)
		}
	}
	validator := validation.New(logger, patterns...)

	guardOptions := guard.Options{MatchMode: guard.MatchMode(cfg.Guard.MatchMode), Logger: logger}
	if cfg.Guard.StatementCheck {
		guardOptions.Classifier = sqlparse.NewClassifier()
	}
	queryGuard := guard.New(guardOptions)
	queryExecutor := executor.New(db, executor.Options{
		ReadOnlyTx: cfg.Database.ReadOnlyTx && dialect.ReadOnlyTx,
		Timeout:    cfg.Database.QueryTimeout,
		MaxRows:    cfg.Database.MaxRows,
	}, logger)
	inspector := schema.NewInspector(db, dialect, logger)
	toolbox := tools.New(inspector, queryGuard, queryExecutor)

	var (
		planner   nl2sql.Planner          = nl2sql.Disabled{}
		generator nl2sql.Generator        = nl2sql.Disabled{}
		presenter nl2sql.Presenter        = nl2sql.Disabled{}
		answerer  nl2sql.DocumentAnswerer = nl2sql.Disabled{}
	)
	var llmClient *llm.Client
	if cfg.AI.Enabled {
		llmClient, err = llm.NewClient(llm.Config{
			BaseURL:        cfg.AI.BaseURL,
			APIKey:         cfg.AI.APIKey,
			Model:          cfg.AI.Model,
			EmbeddingModel: cfg.AI.EmbeddingModel,
			Temperature:    cfg.AI.Temperature,
			Timeout:        cfg.AI.Timeout,
		})
		if err != nil {
			logger.Error("failed to initialize llm client", slog.Any("error", err))
			os.Exit(1)
		}
		assistant := nl2sql.NewAssistant(llmClient, nl2sql.AssistantConfig{
			Model:             cfg.AI.Model,
			PresentationModel: cfg.AI.PresentationModelOrDefault(),
		})
		planner, generator, presenter, answerer = assistant, assistant, assistant, assistant
	}

	var repo appStore
	if cfg.AppDB.DSN != "" {
		appDB, err := storepostgres.Open(context.Background(), storepostgres.DBConfig{
			DSN:             cfg.AppDB.DSN,
			MaxOpenConns:    cfg.AppDB.MaxOpenConns,
			MaxIdleConns:    cfg.AppDB.MaxIdleConns,
			ConnMaxIdleTime: cfg.AppDB.ConnMaxIdleTime,
			ConnMaxLifetime: cfg.AppDB.ConnMaxLifetime,
		})
		if err != nil {
			logger.Error("failed to open application db", slog.Any("error", err))
			os.Exit(1)
		}
		defer func() { _ = appDB.Close() }()
		repo = storepostgres.NewRepository(appDB)
	} else {
		logger.Warn("DBANALYST_APPDB_DSN is empty; audit trail and document registry are kept in memory")
		repo = store.NewMemory()
	}

	orch := orchestrator.New(orchestrator.Dependencies{
		Validator:        validator,
		Planner:          planner,
		Generator:        generator,
		Presenter:        presenter,
		Discovery:        toolbox,
		Schema:           inspector,
		Guard:            queryGuard,
		Executor:         queryExecutor,
		Auditor:          repo,
		Logger:           logger,
		MaxContextTables: cfg.Orchestrator.MaxContextTables,
	})

	readiness := []api.ReadinessCheck{api.CheckDatabase(db), api.CheckAppStore(repo)}
	deps := api.Dependencies{
		Logger:            logger,
		DependencyTimeout: time.Second,
		Validator:         validator,
		Schemas:           inspector,
		Queries:           toolbox,
		Audit:             repo,
		MaxUploadBytes:    cfg.RAG.MaxUploadBytes,
	}

	var documents orchestrator.DocumentAnswerer
	if cfg.RAG.Enabled {
		objects, err := openObjectStore(cfg)
		if err != nil {
			logger.Error("failed to initialize object store", slog.Any("error", err))
			os.Exit(1)
		}
		readiness = append(readiness, api.CheckObjectStore(objects))

		var embedder rag.Embedder = rag.NewHashEmbedder()
		if cfg.RAG.Embedder == config.EmbedderLLM {
			embedder = llmClient
		}
		splitter, err := rag.NewSplitter(cfg.RAG.ChunkSize, cfg.RAG.ChunkOverlap)
		if err != nil {
			logger.Error("failed to configure splitter", slog.Any("error", err))
			os.Exit(1)
		}
		service, err := rag.NewService(rag.Dependencies{
			Store:          objects,
			Registry:       repo,
			Embedder:       embedder,
			Index:          duckdbindex.NewIndex(objects),
			Answerer:       answerer,
			Splitter:       splitter,
			TopK:           cfg.RAG.TopK,
			MaxUploadBytes: cfg.RAG.MaxUploadBytes,
			Logger:         logger,
		})
		if err != nil {
			logger.Error("failed to initialize document service", slog.Any("error", err))
			os.Exit(1)
		}
		documents = service
		deps.Documents = service
	}
	deps.Assistant = orchestrator.NewRouter(orch, documents, validator, logger)
	deps.Readiness = api.CombineReadinessChecks(readiness...)

	if cfg.Auth.Required {
		keys, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, keys)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("dialect", dialect.Name),
			slog.Bool("ai_enabled", cfg.AI.Enabled),
			slog.Bool("rag_enabled", cfg.RAG.Enabled),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}

// openObjectStore uses S3 when an endpoint is configured and the in-memory
// store otherwise.
func openObjectStore(cfg config.Config) (pingableStore, error) {
	if strings.TrimSpace(cfg.ObjectStore.Endpoint) == "" {
		return storage.NewMemoryStore(), nil
	}
	objects, err := s3store.New(context.Background(), s3store.Config{
		Endpoint:         cfg.ObjectStore.Endpoint,
		Region:           cfg.ObjectStore.Region,
		Bucket:           cfg.ObjectStore.Bucket,
		AccessKeyID:      cfg.ObjectStore.AccessKeyID,
		SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
		UseSSL:           cfg.ObjectStore.UseSSL,
		Prefix:           cfg.ObjectStore.Prefix,
		AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
	})
	if err != nil {
		return nil, fmt.Errorf("open s3 object store: %w", err)
	}
	return objects, nil
}
