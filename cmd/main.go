package main

import (
	"context"
	"database/sql"
	"errors"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	_ "github.com/lib/pq"
	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"

	"games-catalog-service/internal/api"
	"games-catalog-service/internal/cache"
	"games-catalog-service/internal/catalog"
	"games-catalog-service/internal/clock"
	"games-catalog-service/internal/config"
	"games-catalog-service/internal/logging"
	"games-catalog-service/internal/metrics"
	"games-catalog-service/internal/search"
	"games-catalog-service/internal/store"
)

const serviceName = "games-catalog-service"

func main() {
	cfg, err := config.Load()
	if err != nil {
		logger := logging.L()
		logger.Fatal().Err(err).Msg("error loading configuration")
	}

	logging.Init(logging.Config{Level: cfg.LogLevel, Pretty: cfg.LogPretty, ServiceName: serviceName})
	logger := logging.L()
	logger.Info().Str("app_env", cfg.AppEnv).Str("log_level", cfg.LogLevel).Msg("starting service")

	// --- Database Connection ---
	db, err := sql.Open("postgres", cfg.Postgres.DSN())
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to initialize database connection")
	}
	db.SetMaxOpenConns(cfg.Postgres.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Postgres.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.Postgres.ConnMaxLife)

	pingCtx, cancelPing := context.WithTimeout(context.Background(), 5*time.Second)
	err = db.PingContext(pingCtx)
	cancelPing()
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to ping database")
	}
	logger.Info().Msg("database connection established")
	dbStore := store.NewPostgresStore(db)

	// --- Search Backend ---
	es, err := search.NewClient(cfg.Elastic, nil)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to configure search backend")
	}
	recorder := metrics.NewRecorder()

	policies := search.DefaultPolicies()
	if cfg.Elastic.Strict {
		policies = search.StrictPolicies()
	}
	gateway := search.NewGateway(es, search.Options{
		GamesIndex: cfg.Elastic.GamesIndex,
		HitsIndex:  cfg.Elastic.HitsIndex,
		Policies:   policies,
		Failures:   recorder,
	})
	reindexGateway := search.NewGateway(es, search.Options{
		GamesIndex: cfg.Elastic.GamesIndex,
		HitsIndex:  cfg.Elastic.HitsIndex,
		Policies:   search.StrictPolicies(),
		Failures:   recorder,
	})

	ensureCtx, cancelEnsure := context.WithTimeout(context.Background(), 10*time.Second)
	if err := gateway.EnsureIndices(ensureCtx); err != nil {
		logger.Warn().Err(err).Msg("search indices not ready; search features will be degraded")
	}
	cancelEnsure()

	// --- Cache ---
	topCache, err := cache.New(cfg.Redis)
	if err != nil {
		logger.Warn().Err(err).Msg("redis unavailable, top-searched results will not be cached")
		topCache = cache.Noop{}
	}

	svc := catalog.NewService(catalog.Deps{
		Games:        dbStore,
		Genres:       dbStore,
		Promotions:   dbStore,
		Index:        gateway,
		ReindexIndex: reindexGateway,
		Cache:        topCache,
		Clock:        clock.NewRealClock(),
		Metrics:      recorder,
	}, catalog.Options{
		DefaultSize:        cfg.Search.DefaultSize,
		MaxSize:            cfg.Search.MaxSize,
		SuggestSize:        cfg.Search.SuggestSize,
		ReindexConcurrency: cfg.Search.ReindexConcurrency,
		TopTTL:             cfg.Redis.TopTTL,
	})

	// --- Initialize API Handlers ---
	httpAPIHandler := api.NewHTTPHandler(svc,
		api.HealthCheck{Name: "database", Critical: true, Check: dbStore.Ping},
		api.HealthCheck{Name: "search", Check: gateway.Ping},
	)
	grpcAPIHandler := api.NewGRPCHandler(svc)

	// --- Setup & Start HTTP Server ---
	httpRouter := chi.NewRouter()
	setupBaseMiddleware(httpRouter, logger, recorder, cfg.HttpServer.RequestTimeout)
	httpRouter.Method(http.MethodGet, "/metrics", recorder.Handler())
	httpAPIHandler.RegisterRoutes(httpRouter)

	httpServer := &http.Server{
		Addr:         ":" + cfg.HttpServer.Port,
		Handler:      httpRouter,
		ReadTimeout:  cfg.HttpServer.TimeoutRead,
		WriteTimeout: cfg.HttpServer.TimeoutWrite,
		IdleTimeout:  cfg.HttpServer.TimeoutIdle,
	}

	go func() {
		logger.Info().Str("port", cfg.HttpServer.Port).Msg("HTTP server listening")
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal().Err(err).Msg("HTTP server ListenAndServe error")
		}
		logger.Info().Msg("HTTP server has stopped")
	}()

	// --- Setup & Start gRPC Server ---
	grpcServer := setupGRPCServer(logger, grpcAPIHandler)
	grpcListener, err := net.Listen("tcp", ":"+cfg.GrpcServer.Port)
	if err != nil {
		logger.Fatal().Err(err).Str("port", cfg.GrpcServer.Port).Msg("failed to listen for gRPC")
	}

	go func() {
		logger.Info().Str("port", cfg.GrpcServer.Port).Msg("gRPC server listening")
		if err := grpcServer.Serve(grpcListener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logger.Fatal().Err(err).Msg("gRPC server Serve error")
		}
		logger.Info().Msg("gRPC server has stopped")
	}()

	// --- Graceful Shutdown ---
	shutdownComplete := make(chan struct{})
	go waitForShutdown(logger, httpServer, grpcServer, svc, topCache, dbStore, shutdownComplete)

	<-shutdownComplete
	logger.Info().Msg("service shutdown sequence finished")
}

func setupBaseMiddleware(router *chi.Mux, logger zerolog.Logger, recorder *metrics.Recorder, timeout time.Duration) {
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(logging.HTTPMiddleware(logger))
	router.Use(recorder.Middleware)
	router.Use(middleware.Recoverer)
	router.Use(middleware.Timeout(timeout))
}

func setupGRPCServer(logger zerolog.Logger, grpcAPIHandler *api.GRPCHandler) *grpc.Server {
	s := grpc.NewServer(grpc.ChainUnaryInterceptor(api.UnaryLoggingInterceptor(logger)))

	api.RegisterGameCatalogServer(s, grpcAPIHandler)
	grpc_health_v1.RegisterHealthServer(s, health.NewServer())
	reflection.Register(s)
	logger.Info().Msg("gRPC services registered")

	return s
}

func waitForShutdown(
	logger zerolog.Logger,
	httpServer *http.Server,
	grpcServer *grpc.Server,
	svc *catalog.Service,
	topCache cache.TopSearchedCache,
	dbStore *store.PostgresStore,
	shutdownComplete chan struct{},
) {
	defer close(shutdownComplete)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	receivedSignal := <-sigChan
	logger.Info().Str("signal", receivedSignal.String()).Msg("starting graceful shutdown")

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancelShutdown()

	stoppedGrpc := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stoppedGrpc)
	}()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Warn().Err(err).Msg("HTTP server graceful shutdown failed")
	} else {
		logger.Info().Msg("HTTP server gracefully shut down")
	}

	select {
	case <-stoppedGrpc:
		logger.Info().Msg("gRPC server gracefully shut down")
	case <-shutdownCtx.Done():
		logger.Warn().Err(shutdownCtx.Err()).Msg("gRPC graceful shutdown timed out, forcing stop")
		grpcServer.Stop()
	}

	// In-flight hit recording and cache writes finish before their stores close.
	svc.Wait()

	if err := topCache.Close(); err != nil {
		logger.Warn().Err(err).Msg("error closing cache")
	}
	if err := dbStore.Close(); err != nil {
		logger.Warn().Err(err).Msg("error closing database connection")
	}

	logger.Info().Msg("graceful shutdown sequence completed")
}
