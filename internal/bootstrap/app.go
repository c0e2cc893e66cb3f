package bootstrap

import (
	"context"
	"database/sql"
	"errors"
	"log"
	"strings"

	"github.com/gin-gonic/gin"

	"findoc-backend/internal/analyses"
	"findoc-backend/internal/jobstatus"
	"findoc-backend/internal/llm"
	"findoc-backend/internal/llm/gemini"
	"findoc-backend/internal/queue"
	"findoc-backend/internal/search"
	"findoc-backend/internal/shared/auth"
	"findoc-backend/internal/shared/config"
	"findoc-backend/internal/shared/server"
	"findoc-backend/internal/shared/storage/db"
	"findoc-backend/internal/shared/storage/object"
	localstore "findoc-backend/internal/shared/storage/object/local"
	miniostore "findoc-backend/internal/shared/storage/object/minio"
	"findoc-backend/internal/users"
)

// App holds shared dependencies for the API and worker processes.
type App struct {
	Config     config.Config
	Router     *gin.Engine
	DB         *sql.DB
	Store      object.ObjectStore
	Queue      queue.Client
	Status     jobstatus.Store
	Dispatcher *queue.Dispatcher
	Signer     *auth.Signer

	UsersRepo    users.Repo
	AnalysesRepo analyses.Repo

	UsersService    *users.Service
	AnalysesService *analyses.Service

	UsersHandler    *users.Handler
	AnalysisHandler *analyses.Handler
}

// Build prepares shared dependencies and wires the router for the API
// process.
func Build(cfg config.Config) (*App, error) {
	return build(cfg, db.DefaultServerOptions())
}

// BuildWorker prepares dependencies for the worker process, which holds
// a smaller connection pool than the API.
func BuildWorker(cfg config.Config) (*App, error) {
	return build(cfg, db.DefaultWorkerOptions())
}

func build(cfg config.Config, dbOpts db.Options) (*App, error) {
	if strings.TrimSpace(cfg.Env) == "" {
		cfg.Env = "dev"
	}
	ctx := context.Background()

	sqlDB, err := buildDB(ctx, cfg, dbOpts)
	if err != nil {
		return nil, err
	}

	store, err := buildStore(cfg)
	if err != nil {
		return nil, err
	}

	status, err := buildStatus(ctx, cfg)
	if err != nil {
		return nil, err
	}

	queueClient, err := buildQueue(cfg)
	if err != nil {
		return nil, err
	}

	signer, err := auth.NewSigner(cfg.JWTSecret, cfg.JWTAlgorithm, cfg.TokenTTL())
	if err != nil {
		return nil, err
	}

	llmClient, err := buildLLM(ctx, cfg)
	if err != nil {
		return nil, err
	}

	searcher := buildSearch(cfg)

	app := &App{
		Config: cfg,
		DB:     sqlDB,
		Store:  store,
		Queue:  queueClient,
		Status: status,
		Signer: signer,
	}

	if app.DB != nil {
		app.UsersRepo = &users.PGRepo{DB: app.DB}
		app.AnalysesRepo = &analyses.PGRepo{DB: app.DB}
	} else {
		app.UsersRepo = users.NewMemoryRepo()
		app.AnalysesRepo = analyses.NewMemoryRepo()
	}

	app.UsersService = users.NewService(app.UsersRepo)

	app.AnalysesService = &analyses.Service{
		Repo:   app.AnalysesRepo,
		Store:  app.Store,
		Status: app.Status,
		LLM:    llmClient,
		Search: searcher,
	}

	runner := func(ctx context.Context, msg queue.Message) {
		if err := app.AnalysesService.Process(ctx, msg.RequestID, msg.TaskID); err != nil {
			log.Printf("in-process analysis failed request=%s: %v", msg.RequestID, err)
		}
	}
	app.Dispatcher = queue.NewDispatcher(app.Queue, runner, app.Status, cfg.AnalysisTimeout)
	app.AnalysesService.Dispatcher = app.Dispatcher

	app.UsersHandler = users.NewHandler(app.UsersService, app.Signer)
	app.AnalysisHandler = analyses.NewHandler(app.AnalysesService)

	app.Router = server.NewRouter(server.RouterDeps{
		Config:          app.Config,
		Signer:          app.Signer,
		UsersHandler:    app.UsersHandler,
		AnalysisHandler: app.AnalysisHandler,
	})

	return app, nil
}

// Close releases long-lived connections.
func (a *App) Close() {
	if a.Queue != nil {
		_ = a.Queue.Close()
	}
	if closer, ok := a.Status.(interface{ Close() error }); ok {
		_ = closer.Close()
	}
	if a.DB != nil {
		_ = a.DB.Close()
	}
}

func buildDB(ctx context.Context, cfg config.Config, defaults db.Options) (*sql.DB, error) {
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: DATABASE_URL empty; using in-memory repositories")
			return nil, nil
		}
		return nil, errDatabaseRequired
	}

	opts := db.OptionsFromEnv(defaults)
	sqlDB, err := db.Connect(ctx, cfg.DatabaseURL, opts)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: database connect failed; using in-memory repositories: %v", err)
			return nil, nil
		}
		return nil, err
	}
	if err := db.RunMigrations(ctx, sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}
	return sqlDB, nil
}

func buildStore(cfg config.Config) (object.ObjectStore, error) {
	switch cfg.ObjectStoreType {
	case "minio":
		return miniostore.New(cfg.MinIO)
	default:
		return localstore.New(cfg.LocalStoreDir), nil
	}
}

func buildStatus(ctx context.Context, cfg config.Config) (jobstatus.Store, error) {
	if strings.TrimSpace(cfg.RedisAddr) == "" {
		log.Printf("bootstrap: REDIS_ADDR empty; using in-memory task state")
		return jobstatus.NewMemoryStore(), nil
	}
	store, err := jobstatus.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		if isDevLike(cfg.Env) {
			log.Printf("bootstrap: redis connect failed; using in-memory task state: %v", err)
			return jobstatus.NewMemoryStore(), nil
		}
		return nil, err
	}
	return store, nil
}

func buildQueue(cfg config.Config) (queue.Client, error) {
	if strings.TrimSpace(cfg.RabbitURL) == "" {
		log.Printf("bootstrap: RABBIT_URL empty; analysis jobs run in-process")
		return nil, nil
	}
	return queue.NewRabbitPublisher(cfg.RabbitURL, cfg.RabbitQueue)
}

func buildLLM(ctx context.Context, cfg config.Config) (llm.Client, error) {
	if cfg.LLMProvider == "gemini" && strings.TrimSpace(cfg.GeminiAPIKey) != "" {
		return gemini.New(ctx, cfg.GeminiAPIKey, cfg.LLMModel)
	}
	log.Printf("bootstrap: no LLM provider configured; using placeholder client")
	return llm.Placeholder{}, nil
}

func buildSearch(cfg config.Config) search.Searcher {
	if strings.TrimSpace(cfg.SerperAPIKey) == "" {
		return nil
	}
	client, err := search.NewSerperClient(cfg.SerperAPIKey)
	if err != nil {
		log.Printf("bootstrap: search client init failed: %v", err)
		return nil
	}
	return client
}

func isDevLike(env string) bool {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "dev", "local":
		return true
	default:
		return false
	}
}

var errDatabaseRequired = errors.New("DATABASE_URL is required")
