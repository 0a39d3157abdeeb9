// Package health exposes liveness and readiness probes for the service.
package health

import (
	"context"
	"net/http"
	"time"

	"github.com/heptiolabs/healthcheck"
	"go.uber.org/zap"

	"github.com/mailgoatai/mailgoat-inbox/internal/storage"
)

// RedisChecker is the dedup cache's health surface. Optional; nil skips the
// check.
type RedisChecker interface {
	Health(ctx context.Context) error
}

// HealthChecker aggregates the service's probes.
type HealthChecker struct {
	health healthcheck.Handler
	store  storage.Store
	redis  RedisChecker
	logger *zap.Logger
}

// NewHealthChecker creates the checker over the store and optional dedup
// cache.
func NewHealthChecker(store storage.Store, redis RedisChecker, logger *zap.Logger) *HealthChecker {
	hc := &HealthChecker{
		health: healthcheck.NewHandler(),
		store:  store,
		redis:  redis,
		logger: logger,
	}
	hc.addChecks()
	return hc
}

func (hc *HealthChecker) addChecks() {
	// Liveness is about the process itself; readiness covers dependencies
	// so a dead database takes us out of rotation without a restart.
	hc.health.AddReadinessCheck("store", func() error {
		return hc.store.Health()
	})

	if hc.redis != nil {
		hc.health.AddReadinessCheck("redis", func() error {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return hc.redis.Health(ctx)
		})
	}
}

// Handler serves /live and /ready.
func (hc *HealthChecker) Handler() http.Handler {
	return hc.health
}

// LiveEndpoint serves just the liveness probe.
func (hc *HealthChecker) LiveEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.LiveEndpoint(w, r)
}

// ReadyEndpoint serves just the readiness probe.
func (hc *HealthChecker) ReadyEndpoint(w http.ResponseWriter, r *http.Request) {
	hc.health.ReadyEndpoint(w, r)
}
