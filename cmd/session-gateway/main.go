package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/sma-adp-mobile/api/swagger"
	"github.com/noah-isme/sma-adp-mobile/internal/client"
	"github.com/noah-isme/sma-adp-mobile/internal/handler"
	"github.com/noah-isme/sma-adp-mobile/internal/middleware"
	"github.com/noah-isme/sma-adp-mobile/internal/models"
	"github.com/noah-isme/sma-adp-mobile/internal/repository"
	"github.com/noah-isme/sma-adp-mobile/internal/service"
	"github.com/noah-isme/sma-adp-mobile/pkg/cache"
	"github.com/noah-isme/sma-adp-mobile/pkg/config"
	"github.com/noah-isme/sma-adp-mobile/pkg/database"
	"github.com/noah-isme/sma-adp-mobile/pkg/logger"
	corsmiddleware "github.com/noah-isme/sma-adp-mobile/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/sma-adp-mobile/pkg/middleware/requestid"
	"github.com/noah-isme/sma-adp-mobile/pkg/storage"
)

// @title SMA ADP Mobile Session Gateway
// @version 0.1.0
// @description Session lifecycle and authenticated access to the school API
// @BasePath /
// @schemes http

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logr, err := logger.New(cfg)
	if err != nil {
		log.Fatalf("failed to init logger: %v", err)
	}
	defer logr.Sync() //nolint:errcheck

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	metricsSvc := service.NewMetricsService()

	store, closers, err := openCredentialStore(ctx, cfg, logr)
	if err != nil {
		logr.Fatal("failed to open credential store", zap.Error(err))
	}
	defer closeAll(logr, closers)

	authAPI := client.NewAuthAPI(client.AuthAPIParams{
		BaseURL:     cfg.API.BaseURL,
		AuthPath:    cfg.API.AuthPath,
		RefreshPath: cfg.API.RefreshPath,
		Timeout:     cfg.API.Timeout,
		Observer:    metricsSvc,
		Logger:      logr,
	})

	sessions := service.NewAuthSessionManager(service.AuthSessionManagerParams{
		Store:          store,
		API:            authAPI,
		Inspector:      service.NewTokenInspector(cfg.Token.ExpirySkew, cfg.Token.RolesClaims...),
		State:          service.NewSessionState(),
		Metrics:        metricsSvc,
		Logger:         logr,
		RefreshTimeout: cfg.API.RefreshTimeout,
	})
	if err := sessions.Bootstrap(ctx); err != nil {
		logr.Warn("session bootstrap failed, continuing anonymous", zap.Error(err))
	}

	apiClient := client.New(client.Params{
		BaseURL:  cfg.API.BaseURL,
		Timeout:  cfg.API.Timeout,
		Sessions: sessions,
		Observer: metricsSvc,
		Logger:   logr,
	})

	cacheSvc, cacheCloser := openAdminDataCache(ctx, cfg, metricsSvc, logr)
	if cacheCloser != nil {
		defer closeAll(logr, []io.Closer{cacheCloser})
	}
	adminData := service.NewAdminDataService(service.AdminDataServiceParams{
		Fetcher:  apiClient,
		Sessions: sessions,
		Cache:    cacheSvc,
		Logger:   logr,
	})
	sessionUpdates, unsubscribe := sessions.Subscribe()
	defer unsubscribe()
	go adminData.WatchSessions(ctx, sessionUpdates)

	if cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.Gateway.AllowedOrigins))
	r.Use(middleware.Metrics(metricsSvc))

	metricsHandler := handler.NewMetricsHandler(metricsSvc)
	sessionHandler := handler.NewSessionHandler(sessions)
	adminDataHandler := handler.NewAdminDataHandler(adminData)
	proxyHandler := handler.NewProxyHandler(apiClient, logr)

	r.GET("/health", metricsHandler.Health)

	sessionGroup := r.Group("/session")
	sessionGroup.GET("", sessionHandler.Get)
	sessionGroup.POST("/login", middleware.Audit(logr, sessions, "login"), sessionHandler.Login)
	sessionGroup.POST("/logout", middleware.Audit(logr, sessions, "logout"), sessionHandler.Logout)
	sessionGroup.POST("/refresh", middleware.Audit(logr, sessions, "refresh"), sessionHandler.Refresh)

	r.GET("/admin-data", middleware.RequireSession(sessions, models.RoleAdmin), adminDataHandler.Get)
	r.Any("/api/*path", proxyHandler.Forward)

	if cfg.Gateway.EnableMetrics {
		r.GET("/metrics", metricsHandler.Prometheus)
		r.GET("/metrics/summary", metricsHandler.Summary)
	}
	if cfg.Gateway.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Gateway.Port),
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logr.Sugar().Infow("session gateway starting", "addr", srv.Addr, "env", cfg.Env, "api", cfg.API.BaseURL)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logr.Sugar().Fatalw("server failed", "error", err)
		}
	}()

	<-ctx.Done()
	logr.Info("shutting down session gateway")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logr.Error("graceful shutdown failed", zap.Error(err))
	}
}

func openCredentialStore(ctx context.Context, cfg *config.Config, logr *zap.Logger) (service.CredentialStore, []io.Closer, error) {
	creds := cfg.Credentials
	switch creds.Driver {
	case config.StoreMemory:
		return repository.NewCredentialMemoryRepository(), nil, nil
	case config.StoreFile:
		local, err := storage.NewLocalStorage(filepath.Dir(creds.FilePath))
		if err != nil {
			return nil, nil, err
		}
		sealer, err := storage.NewSealer(creds.Secret)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewCredentialFileRepository(local, sealer, filepath.Base(creds.FilePath), logr), nil, nil
	case config.StoreRedis:
		rdb, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, nil, err
		}
		return repository.NewCredentialRedisRepository(rdb, creds.Namespace), []io.Closer{rdb}, nil
	case config.StorePostgres:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, nil, err
		}
		repo := repository.NewCredentialPostgresRepository(db, creds.Namespace)
		if err := repo.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, nil, err
		}
		return repo, []io.Closer{db}, nil
	default:
		return nil, nil, fmt.Errorf("unknown credential store %q", creds.Driver)
	}
}

func openAdminDataCache(ctx context.Context, cfg *config.Config, metricsSvc *service.MetricsService, logr *zap.Logger) (*service.CacheService, io.Closer) {
	if !cfg.AdminData.CacheEnabled {
		return service.NewCacheService(nil, metricsSvc, cfg.AdminData.CacheTTL, logr, false), nil
	}
	rdb, err := cache.NewRedis(ctx, cfg.Redis)
	if err != nil {
		logr.Warn("admin data cache disabled, redis unavailable", zap.Error(err))
		return service.NewCacheService(nil, metricsSvc, cfg.AdminData.CacheTTL, logr, false), nil
	}
	repo := repository.NewCacheRepository(rdb, logr)
	return service.NewCacheService(repo, metricsSvc, cfg.AdminData.CacheTTL, logr, true), rdb
}

func closeAll(logr *zap.Logger, closers []io.Closer) {
	for _, c := range closers {
		if err := c.Close(); err != nil {
			logr.Warn("close failed", zap.Error(err))
		}
	}
}
