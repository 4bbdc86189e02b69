// Package http serves the assistant's REST API.
package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/fyrsmithlabs/assistantd/internal/chat"
	"github.com/fyrsmithlabs/assistantd/internal/logging"
	"github.com/fyrsmithlabs/assistantd/internal/memory"
	"github.com/fyrsmithlabs/assistantd/internal/store"
	"github.com/fyrsmithlabs/assistantd/internal/telemetry"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// ChatService handles chat turns.
type ChatService interface {
	Send(ctx context.Context, text, sessionID string) (chat.Reply, error)
	History(ctx context.Context, sessionID string) ([]store.Message, error)
}

// MemoryService stores and searches memories from raw text.
type MemoryService interface {
	Remember(ctx context.Context, content string, metadata map[string]string) (memory.Record, error)
	Recall(ctx context.Context, query string, limit int) ([]memory.SimilarityResult, error)
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps are the services behind the routes. DB may be nil.
type Deps struct {
	Chat      ChatService
	Tasks     store.TaskStore
	Reminders store.ReminderStore
	Memories  MemoryService
	DB        Pinger
	// Tracing, when set, is reported by /health. A degraded exporter
	// never fails the check.
	Tracing TracingHealth
}

// TracingHealth reports the trace exporter state.
type TracingHealth interface {
	Health() telemetry.HealthStatus
}

func (d Deps) validate() error {
	switch {
	case d.Chat == nil:
		return fmt.Errorf("chat service is required")
	case d.Tasks == nil:
		return fmt.Errorf("task store is required")
	case d.Reminders == nil:
		return fmt.Errorf("reminder store is required")
	case d.Memories == nil:
		return fmt.Errorf("memory service is required")
	}
	return nil
}

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server provides the HTTP endpoints.
type Server struct {
	echo   *echo.Echo
	deps   Deps
	logger *logging.Logger
	config *Config
	now    func() time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithClock overrides the timestamp source for created entities.
func WithClock(now func() time.Time) Option {
	return func(s *Server) { s.now = now }
}

// NewServer creates a new HTTP server. A nil cfg listens on localhost:9090.
func NewServer(deps Deps, logger *logging.Logger, cfg *Config, opts ...Option) (*Server, error) {
	if err := deps.validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logging.FromContext(context.Background())
	}
	if cfg == nil {
		cfg = &Config{Host: "localhost", Port: 9090}
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = errorHandler(logger)

	s := &Server{
		echo:   e,
		deps:   deps,
		logger: logger,
		config: cfg,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(s.requestLogger)
	e.Use(metricsMiddleware())

	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)
	s.echo.GET("/health/db", s.handleHealthDB)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	api := s.echo.Group("/api")

	api.POST("/chat", s.handleChat)
	api.GET("/chat/history", s.handleHistory)

	tasks := api.Group("/tasks")
	tasks.GET("", s.listTasks)
	tasks.GET("/active", s.listActiveTasks)
	tasks.GET("/completed", s.listCompletedTasks)
	tasks.GET("/:id", s.getTask)
	tasks.POST("", s.createTask)
	tasks.PUT("/:id", s.updateTask)
	tasks.DELETE("/:id", s.deleteTask)

	reminders := api.Group("/reminders")
	reminders.GET("", s.listReminders)
	reminders.GET("/active", s.listActiveReminders)
	reminders.GET("/completed", s.listCompletedReminders)
	reminders.GET("/:id", s.getReminder)
	reminders.POST("", s.createReminder)
	reminders.PUT("/:id", s.updateReminder)
	reminders.DELETE("/:id", s.deleteReminder)

	api.POST("/memories", s.storeMemory)
	api.GET("/memories/search", s.searchMemories)
}

// requestLogger puts the request ID on the context and logs each request.
func (s *Server) requestLogger(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		start := time.Now()
		req := c.Request()
		ctx := logging.WithRequestID(req.Context(), c.Response().Header().Get(echo.HeaderXRequestID))
		c.SetRequest(req.WithContext(ctx))

		err := next(c)

		s.logger.Info(ctx, "http request",
			zap.String("method", req.Method),
			zap.String("uri", req.RequestURI),
			zap.Int("status", c.Response().Status),
			zap.Duration("duration", time.Since(start)),
		)
		return err
	}
}

// errorHandler maps domain errors to status codes and hides internals
// behind a generic 500.
func errorHandler(logger *logging.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code := http.StatusInternalServerError
		msg := "internal server error"

		var he *echo.HTTPError
		switch {
		case errors.As(err, &he):
			code = he.Code
			msg = fmt.Sprint(he.Message)
		case errors.Is(err, store.ErrNotFound):
			code = http.StatusNotFound
			msg = "not found"
		case errors.Is(err, chat.ErrEmptyMessage), errors.Is(err, memory.ErrEmptyContent):
			code = http.StatusBadRequest
			msg = err.Error()
		default:
			logger.Error(c.Request().Context(), "request failed",
				zap.String("uri", c.Request().RequestURI),
				zap.Error(err),
			)
		}

		if c.Request().Method == http.MethodHead {
			_ = c.NoContent(code)
			return
		}
		_ = c.JSON(code, ErrorResponse{Message: msg})
	}
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok"}
	if s.deps.Tracing != nil {
		h := s.deps.Tracing.Health()
		resp.Tracing = &h
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleHealthDB(c echo.Context) error {
	if s.deps.DB == nil {
		return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
	}
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()
	if err := s.deps.DB.Ping(ctx); err != nil {
		s.logger.Warn(ctx, "database health check failed", zap.Error(err))
		return c.JSON(http.StatusServiceUnavailable, HealthResponse{Status: "unavailable", Error: "database unreachable"})
	}
	return c.JSON(http.StatusOK, HealthResponse{Status: "ok"})
}

// Handler exposes the router for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.echo
}

// Start serves until Shutdown. http.ErrServerClosed is not an error.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info(context.Background(), "starting http server", zap.String("addr", addr))
	if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info(ctx, "shutting down http server")
	return s.echo.Shutdown(ctx)
}
