// Command ingestion starts the knowledge ingestion service.
//
// The service accepts documents via POST /api/v1/documents, stores the
// original bytes, and runs extraction, chunking and vector-index
// synchronization in the background. Clients poll GET /api/v1/documents/{id}
// for the outcome.
//
// Usage:
//
//	go run ./cmd/ingestion [-config configs/development.yaml]
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/sync/errgroup"

	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/chunking"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/ingestion"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/ingestion/dispatch"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/ingestion/extract"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/ingestion/handler"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/ingestion/knowledge"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/ingestion/lock"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/ingestion/orchestrator"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/ingestion/repository"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/ingestion/validator"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/internal/vectorsync"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/embedding"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/health"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/kafka"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/logger"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/metrics"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/objectstore"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/postgres"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/ratelimit"
	"github.com/Adithya-Monish-Kumar-K/Knowledge-Ingestion-Platform/pkg/redis"
)

func main() {
	configPath := flag.String("config", "configs/development.yaml", "path to config file")
	flag.Parse()
	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}
	logger.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("ingestion service failed", "error", err)
		os.Exit(1)
	}
	slog.Info("ingestion service stopped")
}

// run wires every component from cfg and serves until ctx is cancelled.
func run(ctx context.Context, cfg *config.Config) error {
	if cfg.Auth.JWTSecret == "" {
		return errors.New("auth.jwtSecret must be set")
	}
	slog.Info("starting ingestion service",
		"port", cfg.Server.Port,
		"dispatcher", cfg.Ingestion.Dispatcher,
		"storage", cfg.Storage.Backend,
	)

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)
	checker := health.NewChecker()

	db, err := postgres.New(cfg.Postgres)
	if err != nil {
		return err
	}
	defer db.Close()
	store := repository.NewPostgres(db)
	if err := store.Migrate(ctx); err != nil {
		return fmt.Errorf("migrating schema: %w", err)
	}
	checker.Register("postgres", health.PingCheck(store.Ping, true))
	slog.Info("connected to postgres")

	var locker lock.Locker = lock.NewMemory()
	if cfg.Redis.Addr != "" {
		rc, err := redis.NewClient(cfg.Redis)
		if err != nil {
			return err
		}
		defer rc.Close()
		locker = lock.NewRedis(rc)
		checker.Register("redis", health.PingCheck(rc.Ping, false))
		slog.Info("connected to redis", "addr", cfg.Redis.Addr)
	}

	blobs, err := objectstore.New(ctx, cfg.Storage, "")
	if err != nil {
		return fmt.Errorf("opening blob store: %w", err)
	}
	checker.Register("blobs", health.PingCheck(blobs.Ping, true))
	knowledgeBlobs, err := objectstore.New(ctx, cfg.Storage, cfg.Storage.KnowledgeBucket)
	if err != nil {
		return fmt.Errorf("opening knowledge store: %w", err)
	}
	registrar := knowledge.NewStoreRegistrar(knowledgeBlobs, cfg.Storage.KnowledgePrefix)

	var embedder embedding.Embedder
	if vectorsync.NeedsEmbedder(cfg.Vector) {
		embedder, err = embedding.New(ctx, cfg.AI)
		if err != nil {
			return fmt.Errorf("creating embedder: %w", err)
		}
		if c, ok := embedder.(io.Closer); ok {
			defer c.Close()
		}
	}
	def, extra, err := vectorsync.BuildIndexes(ctx, cfg.Vector, vectorsync.Backends{DB: db.DB, Embedder: embedder})
	if err != nil {
		return fmt.Errorf("building vector indexes: %w", err)
	}
	syncer, err := vectorsync.NewSynchronizer(def, extra,
		vectorsync.WithTopK(cfg.Vector.TopK),
		vectorsync.WithCallTimeout(cfg.Ingestion.StageTimeout),
		vectorsync.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	for _, name := range syncer.Names() {
		checker.Register("index:"+name, health.PingCheck(func(ctx context.Context) error {
			return syncer.PingIndex(ctx, name)
		}, name == syncer.DefaultIndex()))
	}

	chunker := chunking.FromConfig(cfg.Ingestion, m)

	// The dispatcher runs jobs through the orchestrator, which needs the
	// dispatcher to be constructed; process closes the loop.
	var orch *orchestrator.Orchestrator
	process := func(ctx context.Context, job ingestion.Job) error { return orch.Process(ctx, job) }

	g, gctx := errgroup.WithContext(ctx)

	var (
		dispatcher dispatch.Dispatcher
		pool       *dispatch.Pool
		consumer   *kafka.Consumer
	)
	switch cfg.Ingestion.Dispatcher {
	case "kafka":
		producer := kafka.NewProducer(cfg.Kafka, cfg.Kafka.Topics.IngestJobs)
		defer producer.Close()
		dispatcher = dispatch.NewKafka(producer)

		consumer = kafka.NewConsumer(cfg.Kafka, cfg.Kafka.Topics.IngestJobs,
			dispatch.MessageHandler(process, cfg.Ingestion.PipelineTimeout))
		defer consumer.Close()
		slog.Info("kafka dispatcher initialized", "topic", cfg.Kafka.Topics.IngestJobs)
	default:
		pool, err = dispatch.NewPool(cfg.Ingestion.Workers, cfg.Ingestion.PipelineTimeout, process)
		if err != nil {
			return err
		}
		dispatcher = pool
		slog.Info("worker pool dispatcher initialized", "workers", cfg.Ingestion.Workers)
	}

	orch, err = orchestrator.New(orchestrator.Deps{
		Store:      store,
		Blobs:      blobs,
		Extractor:  extract.NewDocconv(true),
		Registrar:  registrar,
		Chunker:    chunker,
		Sync:       syncer,
		Locker:     locker,
		Dispatcher: dispatcher,
		Validator:  validator.NewUpload(cfg.Ingestion.MaxUploadBytes, cfg.Ingestion.AllowedMediaTypes),
	},
		orchestrator.WithLockTTL(cfg.Redis.LockTTL),
		orchestrator.WithStageTimeout(cfg.Ingestion.StageTimeout),
		orchestrator.WithMetrics(m),
	)
	if err != nil {
		return err
	}
	if consumer != nil {
		g.Go(func() error { return consumer.Start(gctx) })
	}

	var limiter *ratelimit.Limiter
	if cfg.Auth.RequestsPerMinute > 0 {
		limiter = ratelimit.New(time.Minute)
		defer limiter.Close()
	}
	router := handler.NewRouter(handler.New(orch, cfg.Ingestion.MaxUploadBytes), handler.RouterConfig{
		JWTSecret:         []byte(cfg.Auth.JWTSecret),
		AllowedOrigins:    cfg.CORS.AllowedOrigins,
		Limiter:           limiter,
		RequestsPerMinute: cfg.Auth.RequestsPerMinute,
		QueryTimeout:      cfg.Ingestion.StageTimeout,
		Health:            checker,
		Metrics:           m,
	})

	if cfg.Metrics.Enabled {
		shutdownMetrics := metrics.StartServer(cfg.Metrics.Port, reg)
		defer func() {
			sctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = shutdownMetrics(sctx)
		}()
	}

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	g.Go(func() error {
		slog.Info("ingestion service listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("server shutdown error", "error", err)
		}
		if pool != nil {
			if err := pool.Close(shutdownCtx); err != nil {
				slog.Warn("pipeline runs still active at shutdown", "running", pool.Running(), "error", err)
			}
		}
		return nil
	})

	return g.Wait()
}
