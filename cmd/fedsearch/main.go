package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/kailas-cloud/fedsearch/internal/config"
	dbRedis "github.com/kailas-cloud/fedsearch/internal/db/redis"
	"github.com/kailas-cloud/fedsearch/internal/domain"
	"github.com/kailas-cloud/fedsearch/internal/domain/record"
	"github.com/kailas-cloud/fedsearch/internal/domain/search/resource"
	logpkg "github.com/kailas-cloud/fedsearch/internal/logger"
	"github.com/kailas-cloud/fedsearch/internal/metrics"
	"github.com/kailas-cloud/fedsearch/internal/repository/catalog"
	"github.com/kailas-cloud/fedsearch/internal/repository/embcache"
	"github.com/kailas-cloud/fedsearch/internal/repository/memory"
	prefsrepo "github.com/kailas-cloud/fedsearch/internal/repository/prefs"
	"github.com/kailas-cloud/fedsearch/internal/repository/records"
	"github.com/kailas-cloud/fedsearch/internal/repository/seed"
	"github.com/kailas-cloud/fedsearch/internal/repository/semantic"
	sbrepo "github.com/kailas-cloud/fedsearch/internal/repository/sidebuffer"
	chiTransport "github.com/kailas-cloud/fedsearch/internal/transport/chi"
	openaiEmb "github.com/kailas-cloud/fedsearch/internal/transport/openai"
	"github.com/kailas-cloud/fedsearch/internal/usecase/cursor"
	healthuc "github.com/kailas-cloud/fedsearch/internal/usecase/health"
	searchuc "github.com/kailas-cloud/fedsearch/internal/usecase/search"
	"github.com/kailas-cloud/fedsearch/internal/usecase/sidebuffer"
	"github.com/kailas-cloud/fedsearch/internal/version"
)

// recordTypes are the backend types served by plain record indexes.
var recordTypes = []resource.BackendType{
	resource.Typed,
	resource.ArchiveView,
	resource.ArchiveLegacy,
	resource.FederatedOnlyFilter,
}

// preferences reads and writes per-user page sizes.
type preferences interface {
	searchuc.Preferences
	SetPreferredPageSize(ctx context.Context, tenant, user string, n int) error
}

// backends is the storage wiring selected by database.driver.
type backends struct {
	byType   map[resource.BackendType]searchuc.Backend
	loader   searchuc.RecordLoader
	keys     cursor.KeyLister
	prefs    preferences
	sbStore  sidebuffer.ExpiringStore
	shutdown func()
}

func main() {
	// Load configuration based on ENV
	env := config.GetEnv()

	cfg, err := config.Load(env)
	if err != nil {
		panic("failed to load config: " + err.Error())
	}

	logger, err := logpkg.NewLogger(env, cfg.Logging.Level)
	if err != nil {
		panic("failed to create logger: " + err.Error())
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("Starting fedsearch API server",
		zap.String("version", version.Version),
		zap.String("commit", version.Commit),
		zap.String("env", env),
		zap.Int("http_port", cfg.HTTP.Port),
		zap.String("db_driver", cfg.Database.Driver),
		zap.Strings("db_addrs", cfg.Database.Addrs),
		zap.String("side_buffer", cfg.SideBuffer.Backend),
	)

	cat, err := catalog.Load(cfg.Catalog.Path)
	if err != nil {
		logger.Fatal("Failed to load resource catalog", zap.String("path", cfg.Catalog.Path), zap.Error(err))
	}
	logger.Info("Resource catalog loaded", zap.Int("resources", len(cat.Resources())))

	// Register metrics explicitly (no init())
	metrics.RegisterHTTPMetrics()
	metrics.RegisterSearchMetrics()
	metrics.RegisterSideBufferMetrics()
	metrics.RegisterEmbeddingMetrics()

	ctx, stop := context.WithCancel(logpkg.ContextWithLogger(context.Background(), logger))
	defer stop()

	health := healthuc.New()

	var b backends
	switch cfg.Database.Driver {
	case "memory":
		b, err = memoryBackends(&cfg, cat, logger)
		if err != nil {
			logger.Fatal("Failed to seed memory store", zap.Error(err))
		}
	case "redis":
		b, err = redisBackends(ctx, &cfg, cat, health, logger)
		if err != nil {
			logger.Fatal("Failed to set up redis backends", zap.Error(err))
		}
	default:
		logger.Fatal("Unknown database driver", zap.String("driver", cfg.Database.Driver))
	}
	defer b.shutdown()

	// Create use case services
	searchSvc := searchuc.New(b.byType, cat, b.loader, b.prefs, searchuc.Config{
		DefaultPageSize: cfg.Search.DefaultPageSize,
		MaxPageSize:     cfg.Search.MaxPageSize,
		FetchSize:       cfg.Search.FetchSize,
		MaxHits:         cfg.Search.MaxHits,
		MaxColumnLength: cfg.Search.MaxColumnLength,
	}, hooks(&cfg)...)
	sbSvc := sidebuffer.New(b.sbStore, searchSvc, cfg.SideBuffer.MaxLifetimeSec, nil)
	cursorSvc := cursor.New(b.keys, b.loader, cfg.Search.MaxCursorKeys)

	go sbSvc.Run(ctx, time.Duration(cfg.SideBuffer.SweepIntervalSec)*time.Second)

	// Create chi server
	server := chiTransport.NewServer(cat, searchSvc, sbSvc, cursorSvc, b.prefs, health, logger)

	r := chi.NewRouter()
	r.Use(jsonRecoverer(logger))
	r.Use(chiMiddleware.RequestID)
	r.Use(wideEventMiddleware(logger))
	r.Use(chiTransport.IdentityMiddleware())
	r.Use(metrics.Middleware())
	server.Routes(r)

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      r,
		ReadTimeout:  time.Duration(cfg.HTTP.ReadTimeoutSec) * time.Second,
		WriteTimeout: time.Duration(cfg.HTTP.WriteTimeoutSec) * time.Second,
	}

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)

	go func() {
		logger.Info("Starting HTTP server", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-quit
	logger.Info("Received shutdown signal")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Duration(cfg.HTTP.ShutdownSec)*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error during shutdown", zap.Error(err))
	}

	logger.Info("Server stopped gracefully")
}

// hooks builds the pre-search hooks from the search section.
func hooks(cfg *config.Config) []searchuc.Hook {
	var out []searchuc.Hook
	if cfg.Search.MaxResources > 0 {
		out = append(out, searchuc.LimitResources(cfg.Search.MaxResources))
	}
	if len(cfg.Search.FieldDefaults) > 0 {
		defaults := make(map[string]searchuc.Default, len(cfg.Search.FieldDefaults))
		for name, d := range cfg.Search.FieldDefaults {
			defaults[name] = searchuc.Default{Value: d.Value, Locked: d.Locked}
		}
		out = append(out, searchuc.ApplyDefaults(defaults))
	}
	return out
}

// memoryBackends serves every resource type from one in-process store,
// optionally seeded from a YAML file.
func memoryBackends(cfg *config.Config, cat *catalog.Catalog, logger *zap.Logger) (backends, error) {
	mem := memory.New()
	if path := cfg.Database.SeedPath; path != "" {
		recs, err := seed.Load(path, cat)
		if err != nil {
			return backends{}, err
		}
		mem.Put(recs...)
		logger.Info("Memory store seeded", zap.String("path", path), zap.Int("records", len(recs)))
	}
	byType := make(map[resource.BackendType]searchuc.Backend, len(recordTypes)+1)
	for _, t := range recordTypes {
		byType[t] = mem
	}
	byType[resource.FederatedStore] = mem
	return backends{
		byType:   byType,
		loader:   mem,
		keys:     mem,
		prefs:    memory.NewPreferences(),
		sbStore:  sbrepo.NewArena(),
		shutdown: func() {},
	}, nil
}

// redisBackends connects to Redis, ensures the FT indexes and wires the record,
// semantic, preference and side buffer stores.
func redisBackends(
	ctx context.Context,
	cfg *config.Config,
	cat *catalog.Catalog,
	health *healthuc.Service,
	logger *zap.Logger,
) (backends, error) {
	store, err := dbRedis.NewStore(dbRedis.Config{
		Addrs:    cfg.Database.Addrs,
		Password: cfg.Database.Password,
	})
	if err != nil {
		return backends{}, fmt.Errorf("create store: %w", err)
	}
	if err := store.WaitForReady(ctx, time.Duration(cfg.Database.ReadinessTimeout)*time.Second); err != nil {
		store.Close()
		return backends{}, fmt.Errorf("database not ready: %w", err)
	}
	logger.Info("Connected to database")
	health.Require("database", healthuc.CheckFunc(store.Ping))

	prefix := cfg.Storage.KeyPrefix
	recs := records.New(store, cat, prefix)
	emb := buildEmbedder(cfg, store, health, logger)
	sem := semantic.New(store, cat, emb, prefix, cfg.Embedding.Dimensions, cfg.Embedding.MaxK)

	if err := recs.EnsureIndexes(ctx, cat.Resources()); err != nil {
		store.Close()
		return backends{}, fmt.Errorf("record indexes: %w", err)
	}
	if err := sem.EnsureIndexes(ctx, cat.Resources()); err != nil {
		store.Close()
		return backends{}, fmt.Errorf("semantic indexes: %w", err)
	}

	if path := cfg.Database.SeedPath; path != "" {
		if err := seedRedis(ctx, path, cat, recs, sem, logger); err != nil {
			store.Close()
			return backends{}, err
		}
	}

	byType := make(map[resource.BackendType]searchuc.Backend, len(recordTypes)+1)
	for _, t := range recordTypes {
		byType[t] = recs
	}
	byType[resource.FederatedStore] = sem

	var sbStore sidebuffer.ExpiringStore = sbrepo.NewArena()
	if cfg.SideBuffer.Backend == config.SideBufferRedis {
		codec, err := sbrepo.NewCodec(cfg.SideBuffer.Compress)
		if err != nil {
			store.Close()
			return backends{}, fmt.Errorf("side buffer codec: %w", err)
		}
		sbStore = sbrepo.NewRedis(store, codec, prefix)
	}

	return backends{
		byType:   byType,
		loader:   recs,
		keys:     recs,
		prefs:    prefsrepo.New(store, prefix),
		sbStore:  sbStore,
		shutdown: store.Close,
	}, nil
}

// seedRedis writes fixture records, routing federated-store resources through the
// semantic repository so they get embedded.
func seedRedis(
	ctx context.Context,
	path string,
	cat *catalog.Catalog,
	recs *records.Repo,
	sem *semantic.Repo,
	logger *zap.Logger,
) error {
	all, err := seed.Load(path, cat)
	if err != nil {
		return err
	}
	var plain, federated []record.Record
	for _, rec := range all {
		d, err := cat.Resource(rec.Ref().ResourceID)
		if err != nil {
			return fmt.Errorf("seed record %s: %w", rec.Ref(), err)
		}
		if d.Type() == resource.FederatedStore {
			federated = append(federated, rec)
		} else {
			plain = append(plain, rec)
		}
	}
	if err := recs.Put(ctx, plain); err != nil {
		return fmt.Errorf("seed records: %w", err)
	}
	if err := sem.Put(ctx, federated); err != nil {
		return fmt.Errorf("seed federated records: %w", err)
	}
	logger.Info("Redis seeded",
		zap.String("path", path),
		zap.Int("records", len(plain)),
		zap.Int("federated", len(federated)),
	)
	return nil
}

// buildEmbedder assembles the decorator chain: OpenAI -> Cached -> Instruction.
// Returns nil when no provider is configured.
func buildEmbedder(
	cfg *config.Config,
	store *dbRedis.Store,
	health *healthuc.Service,
	logger *zap.Logger,
) domain.Embedder {
	ec := cfg.Embedding
	if !ec.Enabled() {
		logger.Info("Embedding disabled, hybrid resources rank by keyword only")
		return nil
	}

	// Base provider (with transport metrics built-in)
	base := openaiEmb.NewEmbedder(&openaiEmb.Config{
		APIKey:        ec.APIKey,
		BaseURL:       ec.BaseURL,
		Model:         ec.Model,
		Dimensions:    ec.Dimensions,
		Provider:      ec.Provider,
		MaxInputRunes: ec.MaxInputRunes,
		Logger:        logger,
	})
	health.Optional("embedding", healthuc.CheckFunc(base.HealthCheck))

	cached := embcache.New(base, store, cfg.Storage.KeyPrefix,
		time.Duration(ec.CacheTTLSec)*time.Second, metrics.EmbeddingCacheTotal, logger)

	logger.Info("Embedder created",
		zap.String("provider", ec.Provider),
		zap.String("model", ec.Model),
		zap.Int("dimensions", ec.Dimensions),
	)

	// Instruction prefix (outermost, so the cache key includes it)
	return domain.NewInstructionEmbedder(cached, ec.QueryInstruction)
}

// jsonRecoverer is a recovery middleware that returns JSON instead of a plain text stacktrace.
func jsonRecoverer(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			defer func() {
				if rvr := recover(); rvr != nil {
					logger.Error("panic recovered",
						zap.Any("panic", rvr),
						zap.Stack("stacktrace"),
					)
					w.Header().Set("Content-Type", "application/json")
					w.WriteHeader(http.StatusInternalServerError)
					_ = json.NewEncoder(w).Encode(chiTransport.ErrorResponse{
						Code:    chiTransport.CodeInternalError,
						Message: "internal error",
					})
				}
			}()
			next.ServeHTTP(w, r)
		})
	}
}

// wideEventMiddleware emits a canonical log line per request and propagates X-Request-ID.
func wideEventMiddleware(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()

			// chi.middleware.RequestID already placed request_id in context
			requestID := chiMiddleware.GetReqID(r.Context())
			if requestID != "" {
				w.Header().Set("X-Request-ID", requestID)
			}

			reqLogger := logger.With(zap.String("request_id", requestID))
			ctx := logpkg.ContextWithLogger(r.Context(), reqLogger)

			ww := chiMiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r.WithContext(ctx))

			// Canonical log line, one per request
			reqLogger.Info("http_request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("latency", time.Since(start)),
				zap.String("ip", r.RemoteAddr),
				zap.Int64("content_length", r.ContentLength),
				zap.String("user_agent", r.UserAgent()),
				zap.Int("response_bytes", ww.BytesWritten()),
			)
		})
	}
}
