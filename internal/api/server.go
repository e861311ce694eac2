// Package api exposes the LyfeHub HTTP surface: task lifecycle, todos,
// restoration jobs, calendar, and the probe endpoints.
package api

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/rs/zerolog"

	"github.com/jaker3001/lyfehub/internal/health"
	"github.com/jaker3001/lyfehub/internal/metrics"
	"github.com/jaker3001/lyfehub/internal/requestid"
	"github.com/jaker3001/lyfehub/internal/store"
)

// ServerConfig holds configuration for the API server.
type ServerConfig struct {
	ListenAddr  string
	AuthConfig  AuthConfig
	RateLimit   RateLimitConfig
	CORSOrigins string
	TLSCert     string
	TLSKey      string
}

// Server is the LyfeHub Fiber application.
type Server struct {
	app      *fiber.App
	handlers *Handlers
	logger   zerolog.Logger
	config   ServerConfig
}

// NewServer creates and configures a new API server.
func NewServer(
	cfg ServerConfig,
	st *store.Store,
	checker *health.Checker,
	metricsCollector *metrics.Metrics,
	logger zerolog.Logger,
) *Server {
	app := fiber.New(fiber.Config{
		DisableStartupMessage: true,
		ErrorHandler:          customErrorHandler(logger),
		JSONEncoder:           json.Marshal,
		JSONDecoder:           json.Unmarshal,
		ReadBufferSize:        8192,
		WriteBufferSize:       8192,
	})

	handlers := NewHandlers(st, checker, metricsCollector, cfg.AuthConfig, logger)

	s := &Server{
		app:      app,
		handlers: handlers,
		logger:   logger.With().Str("component", "api_server").Logger(),
		config:   cfg,
	}

	s.setupMiddleware(cfg, metricsCollector, logger)
	s.setupRoutes(handlers, metricsCollector)

	return s
}

func (s *Server) setupMiddleware(cfg ServerConfig, m *metrics.Metrics, logger zerolog.Logger) {
	// Recovery middleware
	s.app.Use(recover.New(recover.Config{
		EnableStackTrace: true,
	}))

	// Request ID middleware
	s.app.Use(func(c *fiber.Ctx) error {
		id := c.Get(requestid.Header)
		if id == "" {
			_, id = requestid.New(c.Context())
		}
		c.Set(requestid.Header, id)
		c.Locals("request_id", id)
		return c.Next()
	})

	// CORS middleware
	if cfg.CORSOrigins != "" {
		s.app.Use(cors.New(cors.Config{
			AllowOrigins: cfg.CORSOrigins,
			AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-Request-ID",
			AllowMethods: "GET, POST, PATCH, DELETE, OPTIONS",
		}))
	}

	// Rate limiter
	if cfg.RateLimit.RPS > 0 {
		s.app.Use(NewRateLimitMiddleware(cfg.RateLimit))
	}

	// Auth middleware
	s.app.Use(NewAuthMiddleware(cfg.AuthConfig, logger))

	// Audit middleware (log and count every request)
	s.app.Use(func(c *fiber.Ctx) error {
		path := c.Path()
		// Skip noisy probe logging
		if path == "/healthz" || path == "/readyz" || path == "/metrics" {
			return c.Next()
		}

		start := time.Now()
		err := c.Next()

		logger.Info().
			Str("method", c.Method()).
			Str("path", path).
			Str("ip", c.IP()).
			Int("status", c.Response().StatusCode()).
			Str("request_id", fmt.Sprintf("%v", c.Locals("request_id"))).
			Msg("api request")

		if m != nil {
			route := c.Route().Path
			m.RecordRequest(route, strconv.Itoa(c.Response().StatusCode()))
			m.ObserveDuration(route, time.Since(start).Seconds())
		}

		return err
	})
}

func (s *Server) setupRoutes(h *Handlers, m *metrics.Metrics) {
	// Probe endpoints (no auth required, handled in auth middleware)
	s.app.Get("/healthz", h.Liveness)
	s.app.Get("/readyz", h.Readiness)

	// Prometheus metrics
	if m != nil {
		s.app.Get("/metrics", adaptor.HTTPHandler(m.Handler()))
	}

	v1 := s.app.Group("/api/v1")

	// Session tokens
	v1.Post("/auth/token", h.IssueToken)

	// Health detail (cached check results)
	v1.Get("/health", h.HealthDetail)

	// Task lifecycle
	v1.Post("/tasks", requireRole(RoleMember), h.CreateTask)
	v1.Get("/tasks", h.ListTasks)
	v1.Get("/tasks/:id", h.GetTask)
	v1.Patch("/tasks/:id", requireRole(RoleMember), h.UpdateTask)
	v1.Delete("/tasks/:id", requireRole(RoleMember), h.DeleteTask)
	v1.Post("/tasks/:id/pick", requireRole(RoleMember), h.PickTask)
	v1.Post("/tasks/:id/complete", requireRole(RoleMember), h.CompleteTask)
	v1.Post("/tasks/:id/review", requireRole(RoleMember), h.SubmitReview)
	v1.Post("/tasks/:id/plan-review", requireRole(RoleMember), h.SubmitPlanReview)
	v1.Post("/tasks/:id/log", requireRole(RoleMember), h.AddLogEntry)
	v1.Post("/tasks/:id/schedule", requireRole(RoleMember), h.ScheduleTask)
	v1.Post("/tasks/:id/unschedule", requireRole(RoleMember), h.UnscheduleTask)

	// Calendar
	v1.Get("/calendar", h.GetCalendar)

	// Todos
	v1.Post("/todos", requireRole(RoleMember), h.CreateTodo)
	v1.Get("/todos", h.ListTodos)
	v1.Get("/todos/:id", h.GetTodo)
	v1.Patch("/todos/:id", requireRole(RoleMember), h.UpdateTodo)
	v1.Post("/todos/:id/toggle", requireRole(RoleMember), h.ToggleTodo)
	v1.Delete("/todos/:id", requireRole(RoleMember), h.DeleteTodo)

	// Restoration jobs
	v1.Post("/jobs", requireRole(RoleMember), h.CreateJob)
	v1.Get("/jobs", h.ListJobs)
	v1.Get("/jobs/:id", h.GetJob)
	v1.Patch("/jobs/:id", requireRole(RoleMember), h.UpdateJob)
	v1.Delete("/jobs/:id", requireRole(RoleAdmin), h.DeleteJob)
	v1.Post("/jobs/:id/advance", requireRole(RoleMember), h.AdvanceJobPhase)
	v1.Post("/jobs/:id/ledger", requireRole(RoleMember), h.AddLedgerEntry)
	v1.Get("/jobs/:id/ledger", h.ListLedger)
	v1.Get("/jobs/:id/activity", h.ListJobActivity)
}

// Start starts the server. Blocks until stopped.
func (s *Server) Start() error {
	addr := s.config.ListenAddr
	if addr == "" {
		addr = ":8080"
	}

	s.logger.Info().Str("addr", addr).Msg("api server starting")

	if s.config.TLSCert != "" && s.config.TLSKey != "" {
		return s.app.ListenTLS(addr, s.config.TLSCert, s.config.TLSKey)
	}
	return s.app.Listen(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("api server shutting down")
	return s.app.Shutdown()
}

// App returns the underlying Fiber app (useful for testing).
func (s *Server) App() *fiber.App {
	return s.app
}

func customErrorHandler(logger zerolog.Logger) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		code := fiber.StatusInternalServerError
		if e, ok := err.(*fiber.Error); ok {
			code = e.Code
		}

		logger.Error().
			Err(err).
			Int("status", code).
			Str("path", c.Path()).
			Str("method", c.Method()).
			Msg("unhandled error")

		detail := err.Error()
		// Don't leak internal details
		if code == fiber.StatusInternalServerError {
			detail = "An internal error occurred"
		}

		return c.Status(code).JSON(ProblemDetail{
			Type:     "internal_error",
			Title:    "Internal Server Error",
			Status:   code,
			Detail:   detail,
			Instance: c.Path(),
		})
	}
}
