package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pinger is satisfied by *pgxpool.Pool.
type Pinger interface {
	Ping(ctx context.Context) error
}

type HealthHandler struct {
	db    Pinger
	redis redis.Cmdable
}

// NewHealthHandler creates a health handler. redis is nil when the run lock
// is process-local.
func NewHealthHandler(db Pinger, redis redis.Cmdable) *HealthHandler {
	return &HealthHandler{db: db, redis: redis}
}

func (h *HealthHandler) Live(w http.ResponseWriter, r *http.Request) {
	RespondJSON(w, http.StatusOK, map[string]string{"status": "alive"})
}

// Ready reports each dependency. Any failing dependency makes the instance
// unready, and the body names which one.
func (h *HealthHandler) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), time.Second)
	defer cancel()

	checks := map[string]string{
		"database": dependencyStatus(ctx, h.db != nil, func(ctx context.Context) error { return h.db.Ping(ctx) }),
		"redis":    dependencyStatus(ctx, h.redis != nil, func(ctx context.Context) error { return h.redis.Ping(ctx).Err() }),
	}

	status := http.StatusOK
	overall := "ready"
	for _, result := range checks {
		if result == "down" {
			status = http.StatusServiceUnavailable
			overall = "unready"
		}
	}
	RespondJSON(w, status, map[string]any{"status": overall, "checks": checks})
}

func dependencyStatus(ctx context.Context, configured bool, ping func(context.Context) error) string {
	if !configured {
		return "disabled"
	}
	if err := ping(ctx); err != nil {
		return "down"
	}
	return "up"
}
