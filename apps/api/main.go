package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	tdbdirectory "github.com/orbiterhq/orbiter-saas/domains/tenantdb/be/directory"
	"github.com/orbiterhq/orbiter-saas/domains/tenantdb/be/fleetcache"
	tdbgateway "github.com/orbiterhq/orbiter-saas/domains/tenantdb/be/gateway"
	tdbhandler "github.com/orbiterhq/orbiter-saas/domains/tenantdb/be/handler"
	tdbrepo "github.com/orbiterhq/orbiter-saas/domains/tenantdb/be/repo"
	tdbservice "github.com/orbiterhq/orbiter-saas/domains/tenantdb/be/service"
	tenantshandler "github.com/orbiterhq/orbiter-saas/domains/tenants/be/handler"
	tenantsrepo "github.com/orbiterhq/orbiter-saas/domains/tenants/be/repo"
	tenantsservice "github.com/orbiterhq/orbiter-saas/domains/tenants/be/service"
	platformauth "github.com/orbiterhq/orbiter-saas/platform/go/auth"
	platformlogging "github.com/orbiterhq/orbiter-saas/platform/go/logging"
	platformmiddleware "github.com/orbiterhq/orbiter-saas/platform/go/middleware"
	"github.com/orbiterhq/orbiter-saas/platform/go/persistence"
)

type config struct {
	Port            string        `env:"PORT" envDefault:"3000"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	RequestTimeout  time.Duration `env:"REQUEST_TIMEOUT" envDefault:"15s"`
	LogLevel        string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL     string        `env:"DATABASE_URL,required"`
	JWTSecret       string        `env:"JWT_SECRET,required"`
	JWTIssuer       string        `env:"JWT_ISSUER" envDefault:"orbiter-control-plane"`
	RedisAddr       string        `env:"REDIS_ADDR"` // empty disables the fleet cache
	FleetCacheTTL   time.Duration `env:"FLEET_CACHE_TTL" envDefault:"30s"`
	PoolSize        int           `env:"TENANT_CLIENT_POOL_SIZE" envDefault:"100"`
	PoolTTL         time.Duration `env:"TENANT_CLIENT_POOL_TTL" envDefault:"5m"`
}

func main() {
	ctx := context.Background()

	_ = godotenv.Load()

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger, err := platformlogging.NewLogger(platformlogging.Config{
		Component: "api-server",
		Level:     cfg.LogLevel,
	})
	if err != nil {
		log.Fatalf("init zap logger: %v", err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	pool, err := persistence.NewPool(ctx, persistence.PoolConfig{ConnString: cfg.DatabaseURL})
	if err != nil {
		logger.Fatal("init postgres pool", zap.Error(err))
	}
	defer persistence.ClosePool(pool)

	tenantRepo := tenantsrepo.NewPostgresRepository(pool)
	tenantService := tenantsservice.New(tenantRepo)
	tenantHTTPHandler := tenantshandler.New(tenantService)

	var cache tdbservice.FleetCache
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{Addr: cfg.RedisAddr})
		defer redisClient.Close() //nolint:errcheck
		if err := redisClient.Ping(ctx).Err(); err != nil {
			logger.Warn("redis unreachable, fleet cache disabled", zap.Error(err))
		} else {
			cache = fleetcache.New(redisClient, cfg.FleetCacheTTL, logger)
		}
	}

	tdbService := tdbservice.New(tdbservice.Deps{
		Repo:      tdbrepo.NewPostgresRepository(pool),
		Directory: tdbdirectory.New(tenantService),
		Registry:  tdbservice.DefaultRegistry(),
		Factory: func(rawURL, apiKey string) (tdbservice.Gateway, error) {
			return tdbgateway.New(rawURL, apiKey)
		},
		Cache:    cache,
		Logger:   logger,
		PoolSize: cfg.PoolSize,
		PoolTTL:  cfg.PoolTTL,
	})
	tdbHTTPHandler := tdbhandler.New(tdbService)

	verifier, err := platformauth.NewVerifier(cfg.JWTSecret, cfg.JWTIssuer)
	if err != nil {
		logger.Fatal("init token verifier", zap.Error(err))
	}

	rootRouter := chi.NewRouter()

	rootRouter.Use(
		chimw.RequestID,
		chimw.RealIP,
		chimw.Recoverer,
		chimw.Timeout(cfg.RequestTimeout),
		platformmiddleware.DefaultCORS(),
	)

	rootRouter.Use(platformlogging.RequestLogger(logger))

	rootRouter.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	rootRouter.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if err := pool.Ping(r.Context()); err != nil {
			w.WriteHeader(http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
	})

	apiRouter := chi.NewRouter()
	apiRouter.Use(verifier.Middleware())

	apiRouter.Route("/admin", func(r chi.Router) {
		r.Use(platformauth.RequireRole(platformauth.RoleAdmin))
		r.Route("/tenants", func(r chi.Router) {
			tenantHTTPHandler.MountRoutes(r, tdbHTTPHandler.MountTenantRoutes)
		})
		tdbHTTPHandler.MountAdminRoutes(r)
	})

	rootRouter.Mount("/api/v1", apiRouter)

	server := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      rootRouter,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  2 * time.Minute,
	}

	go func() {
		logger.Info("starting api server", zap.String("port", cfg.Port))
		if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server listen failed", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)
	<-stop

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
}
