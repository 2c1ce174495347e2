package http

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/jhoicas/saas-tenancy-api/internal/domain"
	"github.com/jhoicas/saas-tenancy-api/internal/domain/entity"
	"github.com/jhoicas/saas-tenancy-api/internal/infrastructure/metrics"
	"github.com/jhoicas/saas-tenancy-api/internal/infrastructure/ratelimit"
	"github.com/jhoicas/saas-tenancy-api/pkg/logger"
)

// quotaConsumer lo implementa *quota.Manager.
type quotaConsumer interface {
	Consume(ctx context.Context, tenantID string, r entity.Resource) error
}

// RateLimit limita peticiones por tenant. Las anónimas no se limitan aquí.
// Si el limitador falla (p. ej. Redis caído) la petición pasa y el fallo queda en el log.
func RateLimit(limiter ratelimit.Limiter, log *logger.Logger) fiber.Handler {
	if log == nil {
		log = logger.Nop()
	}
	return func(c *fiber.Ctx) error {
		tc := GetTenantContext(c)
		if tc == nil || limiter == nil {
			return c.Next()
		}
		ok, err := limiter.Allow(c.UserContext(), tc.TenantID)
		if err != nil {
			log.Warn().Err(err).Str("tenant_id", tc.TenantID).Msg("rate limiter no disponible")
			return c.Next()
		}
		if !ok {
			metrics.RateLimitedTotal.Inc()
			c.Set(fiber.HeaderRetryAfter, "1")
			return deny(c, fiber.StatusTooManyRequests, CodeRateLimited, "demasiadas peticiones")
		}
		return c.Next()
	}
}

// MeterAPICalls contabiliza cada petición autenticada en la cuota api_calls y rechaza con
// 429 QUOTA_EXCEEDED cuando la ventana vigente está agotada.
func MeterAPICalls(quota quotaConsumer) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tc := GetTenantContext(c)
		if tc == nil {
			return c.Next()
		}
		if err := quota.Consume(c.UserContext(), tc.TenantID, entity.ResourceAPICalls); err != nil {
			if errors.Is(err, domain.ErrQuotaExceeded) || errors.Is(err, domain.ErrNotFound) {
				return writeError(c, err)
			}
			return err
		}
		return c.Next()
	}
}

// Metrics registra contador y latencia por método, ruta y status.
func Metrics() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		route := c.Route().Path
		metrics.HTTPRequestsTotal.WithLabelValues(c.Method(), route, strconv.Itoa(statusOf(c, err))).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(c.Method(), route).Observe(time.Since(start).Seconds())
		return err
	}
}

// RequestLogger una línea por petición con tenant y status.
func RequestLogger(log *logger.Logger) fiber.Handler {
	if log == nil {
		log = logger.Nop()
	}
	log = log.Named("http")
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()
		ev := log.Info()
		if err != nil {
			ev = log.Warn().Err(err)
		}
		if tc := GetTenantContext(c); tc != nil {
			ev = ev.Str("tenant_id", tc.TenantID).Str("user_id", tc.UserID)
		}
		ev.Str("method", c.Method()).
			Str("path", c.Path()).
			Int("status", statusOf(c, err)).
			Dur("latency", time.Since(start)).
			Msg("petición")
		return err
	}
}

// statusOf status final de la petición. Si el handler devolvió un error, ErrorHandler aún no
// ha escrito la respuesta y el status se deduce del error.
func statusOf(c *fiber.Ctx, err error) int {
	if err == nil {
		return c.Response().StatusCode()
	}
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return classify(err).status
}
