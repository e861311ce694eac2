package api

import (
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/rs/zerolog"

	"github.com/jaker3001/lyfehub/internal/health"
	"github.com/jaker3001/lyfehub/internal/metrics"
	"github.com/jaker3001/lyfehub/internal/store"
)

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	store     *store.Store
	checker   *health.Checker
	metrics   *metrics.Metrics
	authCfg   AuthConfig
	logger    zerolog.Logger
	startTime time.Time
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(st *store.Store, checker *health.Checker, m *metrics.Metrics, authCfg AuthConfig, logger zerolog.Logger) *Handlers {
	return &Handlers{
		store:     st,
		checker:   checker,
		metrics:   m,
		authCfg:   authCfg,
		logger:    logger.With().Str("component", "handlers").Logger(),
		startTime: time.Now(),
	}
}

// Liveness handles GET /healthz.
func (h *Handlers) Liveness(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
	})
}

// Readiness handles GET /readyz.
func (h *Handlers) Readiness(c *fiber.Ctx) error {
	results := h.checker.RunAll(c.Context())

	ready := true
	for _, s := range results {
		if s == health.StatusDown {
			ready = false
			break
		}
	}

	resp := fiber.Map{"checks": results}
	if ready {
		resp["status"] = "ready"
		return c.JSON(resp)
	}
	resp["status"] = "not_ready"
	return c.Status(fiber.StatusServiceUnavailable).JSON(resp)
}

// HealthDetail handles GET /api/v1/health. It returns the most recently
// cached check results without re-running them; /readyz is the live probe.
func (h *Handlers) HealthDetail(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":         "ok",
		"uptime_seconds": int64(time.Since(h.startTime).Seconds()),
		"checks":         h.checker.Snapshot(),
	})
}

// IssueToken handles POST /api/v1/auth/token. The caller authenticates with
// an API key; the response is a short-lived session token carrying the same
// identity.
func (h *Handlers) IssueToken(c *fiber.Ctx) error {
	if h.authCfg.SessionSecret == "" {
		return problemResponse(c, fiber.StatusNotImplemented,
			"sessions_disabled", "Not Implemented",
			"Session tokens are not configured on this server")
	}

	id := identityFrom(c)
	if id.UserID == "" {
		return problemResponse(c, fiber.StatusUnauthorized,
			"missing_identity", "Unauthorized",
			"Session tokens require an authenticated identity")
	}

	ttl := h.authCfg.SessionTTL
	if ttl <= 0 {
		ttl = 12 * time.Hour
	}

	token, exp, err := mintSessionToken(id, h.authCfg.SessionSecret, ttl)
	if err != nil {
		h.logger.Error().Err(err).Msg("failed to mint session token")
		return storeError(c, err)
	}

	return c.JSON(TokenResponse{
		Token:     token,
		ExpiresAt: exp,
		UserID:    id.UserID,
		Role:      string(id.Role),
	})
}
