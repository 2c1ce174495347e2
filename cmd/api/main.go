package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/contrib/swagger"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/jhoicas/saas-tenancy-api/internal/application/audit"
	"github.com/jhoicas/saas-tenancy-api/internal/application/auth"
	"github.com/jhoicas/saas-tenancy-api/internal/application/quota"
	"github.com/jhoicas/saas-tenancy-api/internal/application/tenancy"
	"github.com/jhoicas/saas-tenancy-api/internal/application/usecase"
	"github.com/jhoicas/saas-tenancy-api/internal/infrastructure/metrics"
	"github.com/jhoicas/saas-tenancy-api/internal/infrastructure/ratelimit"
	"github.com/jhoicas/saas-tenancy-api/internal/infrastructure/storage"
	httpRouter "github.com/jhoicas/saas-tenancy-api/internal/interfaces/http"
	"github.com/jhoicas/saas-tenancy-api/pkg/config"
	"github.com/jhoicas/saas-tenancy-api/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic("cargar configuración: " + err.Error())
	}

	log := logger.New(logger.Config{
		Env:   cfg.App.Env,
		Level: cfg.App.LogLevel,
	})
	log.Info().
		Str("env", cfg.App.Env).
		Str("app", cfg.App.Name).
		Str("backend", cfg.DB.Backend).
		Msg("iniciando aplicación")

	if cfg.JWT.Secret == "" {
		log.Fatal().Msg("JWT_SECRET es obligatorio")
	}

	ctx := context.Background()
	store, err := storage.Open(ctx, cfg.DB, true, log)
	if err != nil {
		log.Fatal().Err(err).Msg("abrir almacenamiento")
	}

	recorder := audit.NewRecorder(store, cfg.Audit.BufferSize, log)
	quotaMgr := quota.NewManager(store, cfg.Quota.ResetPeriod, quota.WithLogger(log))
	creds := auth.NewCredentialParser(auth.JWTConfig{
		Secret:     cfg.JWT.Secret,
		ExpMinutes: cfg.JWT.Expiration,
		Issuer:     cfg.JWT.Issuer,
	})
	deps := tenancy.Deps{Store: store, Quota: quotaMgr, Auditor: recorder, Log: log}

	tenantUC := usecase.NewTenantUseCase(store, quotaMgr, recorder, log)
	authUC := auth.NewAuthUseCase(store, quotaMgr, creds, recorder)
	eventUC := usecase.NewEventUseCase(deps)
	orderUC := usecase.NewOrderUseCase(deps)

	limiter, rdb := newLimiter(ctx, cfg, log)

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics.MustRegister(registry)

	app := httpRouter.NewApp(cfg.App.Name, log)

	// Swagger UI en local: http://localhost:<port>/docs
	app.Use(swagger.New(swagger.Config{
		BasePath: "/",
		FilePath: "./docs/swagger.json",
		Path:     "docs",
		Title:    "SaaS Tenancy API",
	}))

	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok", "service": cfg.App.Name})
	})
	app.Get("/metrics", adaptor.HTTPHandler(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	httpRouter.Router(app, httpRouter.RouterDeps{
		AuthUC:           authUC,
		TenantUC:         tenantUC,
		EventUC:          eventUC,
		OrderUC:          orderUC,
		Audit:            recorder,
		Credentials:      creds,
		Quota:            quotaMgr,
		Limiter:          limiter,
		Log:              log,
		PlatformTenantID: cfg.App.PlatformTenantID,
	})

	go func() {
		if err := app.Listen(cfg.HTTP.Addr()); err != nil {
			log.Error().Err(err).Msg("servidor HTTP finalizado")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("señal de apagado recibida, cerrando servidor...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := app.ShutdownWithContext(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("apagado del servidor")
	}
	// Las entradas de auditoría encoladas se escriben antes de cerrar el Store.
	if err := recorder.Close(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("vaciar cola de auditoría")
	}
	if rdb != nil {
		_ = rdb.Close()
	}
	store.Close()

	log.Info().Msg("aplicación detenida")
}

// newLimiter usa Redis si REDIS_ADDR está configurado y responde; si no, un limitador en proceso.
func newLimiter(ctx context.Context, cfg *config.Config, log *logger.Logger) (ratelimit.Limiter, *redis.Client) {
	if cfg.RateLimit.RPS <= 0 {
		log.Info().Msg("rate limit desactivado")
		return nil, nil
	}
	if cfg.Redis.Addr != "" {
		rdb, err := ratelimit.NewRedisClient(ctx, ratelimit.RedisOpts{
			Addr:        cfg.Redis.Addr,
			Password:    cfg.Redis.Password,
			DB:          cfg.Redis.DB,
			DialTimeout: cfg.Redis.DialTimeout,
		})
		if err == nil {
			log.Info().Str("addr", cfg.Redis.Addr).Int("rps", cfg.RateLimit.RPS).Msg("rate limit en Redis")
			return ratelimit.NewRedis(rdb, cfg.RateLimit.RPS, time.Second), rdb
		}
		log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("Redis no disponible, rate limit en proceso")
	}
	return ratelimit.NewLocal(cfg.RateLimit.RPS, cfg.RateLimit.Burst), nil
}
