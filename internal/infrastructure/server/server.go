package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	echoSwagger "github.com/swaggo/echo-swagger"

	_ "github.com/projtracker/core/docs"
	httpHandlers "github.com/projtracker/core/internal/adapters/http"
	"github.com/projtracker/core/internal/infrastructure/config"
	"github.com/projtracker/core/internal/infrastructure/logger"
	"github.com/projtracker/core/internal/infrastructure/metrics"
	"github.com/projtracker/core/internal/ports"
)

// Server represents the HTTP server
type Server struct {
	echo    *echo.Echo
	config  *config.Config
	logger  *logger.Logger
	metrics *metrics.Recorder
	storage string
}

// New creates a new server instance around an already loaded project service
func New(cfg *config.Config, projectService ports.ProjectService, storage string, recorder *metrics.Recorder, appLogger *logger.Logger) (*Server, error) {
	if projectService == nil {
		return nil, errors.New("project service is required")
	}

	e := echo.New()

	// Configure Echo
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.Server.ReadTimeout
	e.Server.WriteTimeout = cfg.Server.WriteTimeout
	e.Server.IdleTimeout = cfg.Server.IdleTimeout

	// Custom error handler
	e.HTTPErrorHandler = customErrorHandler(appLogger)

	projectHandler := httpHandlers.NewProjectHandler(projectService, cfg.Storage.StrictPersistence, appLogger)

	server := &Server{
		echo:    e,
		config:  cfg,
		logger:  appLogger.WithComponent("http_server"),
		metrics: recorder,
		storage: storage,
	}

	// Setup middleware
	server.setupMiddleware()

	// Setup metrics
	if cfg.Metrics.Enabled && recorder != nil {
		server.setupMetrics()
	}

	// Setup routes
	server.setupRoutes(projectHandler)

	return server, nil
}

// setupMiddleware configures middleware
func (s *Server) setupMiddleware() {
	// CORS runs before routing so preflights on any path are answered
	s.echo.Pre(s.corsMiddleware())

	// Recovery middleware
	s.echo.Use(middleware.Recover())

	// Request ID middleware
	s.echo.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	}))

	// Logger middleware
	s.echo.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogLatency:   true,
		LogError:     true,
		LogRequestID: true,
		LogValuesFunc: func(c echo.Context, values middleware.RequestLoggerValues) error {
			s.logger.WithRequestID(values.RequestID).LogHTTPRequest(
				values.Method,
				values.URI,
				values.Status,
				float64(values.Latency.Nanoseconds())/1000000,
				values.Error,
			)
			return nil
		},
	}))
}

// corsMiddleware opens the API to any configured origin and answers every
// OPTIONS request itself.
func (s *Server) corsMiddleware() echo.MiddlewareFunc {
	origins := s.config.Security.AllowedOrigins()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Response().Header()
			header.Set(echo.HeaderAccessControlAllowOrigin, allowOrigin(origins, c.Request().Header.Get(echo.HeaderOrigin)))
			header.Set(echo.HeaderAccessControlAllowMethods, "GET, POST, OPTIONS")
			header.Set(echo.HeaderAccessControlAllowHeaders, echo.HeaderContentType)
			if len(origins) > 1 || origins[0] != "*" {
				header.Add(echo.HeaderVary, echo.HeaderOrigin)
			}

			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusOK)
			}
			return next(c)
		}
	}
}

func allowOrigin(allowed []string, origin string) string {
	for _, o := range allowed {
		if o == "*" {
			return "*"
		}
		if o == origin {
			return origin
		}
	}
	return allowed[0]
}

// setupRoutes configures all routes
func (s *Server) setupRoutes(projectHandler *httpHandlers.ProjectHandler) {
	// Health check routes
	s.echo.GET("/health", s.healthCheck)

	// Swagger documentation
	s.echo.GET("/swagger/*", echoSwagger.WrapHandler)

	// Project state routes
	s.echo.GET("/state", projectHandler.GetState)
	s.echo.GET("/stats", projectHandler.GetStats)
	s.echo.POST("/start-project", projectHandler.StartProject)
	s.echo.POST("/deliver-project", projectHandler.DeliverProject)
	s.echo.POST("/reset-state", projectHandler.ResetState)
}

// setupMetrics configures Prometheus metrics
func (s *Server) setupMetrics() {
	s.echo.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()

			err := next(c)

			status := c.Response().Status
			if err != nil {
				status = http.StatusInternalServerError
				var he *echo.HTTPError
				if errors.As(err, &he) {
					status = he.Code
				}
			}

			path := c.Path()
			if path == "" {
				path = "unmatched"
			}

			s.metrics.ObserveRequest(c.Request().Method, path, fmt.Sprintf("%d", status), time.Since(start).Seconds())

			return err
		}
	})

	// Metrics endpoint
	s.echo.GET("/metrics", echo.WrapHandler(s.metrics.Handler()))
}

// Health check handler
func (s *Server) healthCheck(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"storage": s.storage,
		"version": s.config.App.Version,
	})
}

// ServeHTTP lets the server be driven directly, e.g. by httptest
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}

// Start starts the HTTP server
func (s *Server) Start(address string) error {
	s.logger.Infow("Starting server", "address", address)
	return s.echo.Start(address)
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Infow("Shutting down server")
	return s.echo.Shutdown(ctx)
}

// customErrorHandler handles HTTP errors
func customErrorHandler(logger *logger.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var (
			code = http.StatusInternalServerError
			msg  interface{}
		)

		var he *echo.HTTPError
		if errors.As(err, &he) {
			code = he.Code
			msg = he.Message
			if he.Internal != nil {
				err = fmt.Errorf("%v, %v", err, he.Internal)
			}
		}

		// Unknown routes and unsupported methods look the same to clients
		if code == http.StatusNotFound || code == http.StatusMethodNotAllowed {
			if err := c.String(http.StatusNotFound, "Not Found"); err != nil {
				logger.Errorw("Error sending response", "error", err)
			}
			return
		}

		switch m := msg.(type) {
		case httpHandlers.ErrorResponse:
		case string:
			msg = httpHandlers.ErrorResponse{Error: m}
		default:
			if code >= http.StatusInternalServerError {
				msg = httpHandlers.ErrorResponse{Error: httpHandlers.MsgProcessingFailed}
			} else {
				msg = httpHandlers.ErrorResponse{Error: strings.TrimSpace(http.StatusText(code))}
			}
		}

		if code >= http.StatusInternalServerError {
			logger.WithRequestID(c.Response().Header().Get(echo.HeaderXRequestID)).
				Errorw("Internal server error", "error", err, "path", c.Request().URL.Path)
		}

		// Send response
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, msg)
		}
		if err != nil {
			logger.Errorw("Error sending response", "error", err)
		}
	}
}
