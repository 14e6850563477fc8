package httpapi

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/phishdefender/phishdefender/internal/core"
	"github.com/phishdefender/phishdefender/internal/sched"
	"go.uber.org/zap"
)

// Server is the HTTP API consumed by the analyst dashboard.
type Server struct {
	echo       *echo.Echo
	service    *core.TriageService
	controller *sched.Controller
	listenAddr string
	logger     *zap.Logger
}

// NewServer creates a new HTTP API server
func NewServer(service *core.TriageService, controller *sched.Controller, listenAddr string, logger *zap.Logger) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.Recover())
	e.Use(requestLogger(logger))

	s := &Server{
		echo:       e,
		service:    service,
		controller: controller,
		listenAddr: listenAddr,
		logger:     logger,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.echo.GET("/healthz", s.health)

	api := s.echo.Group("/api")

	api.GET("/emails", s.listEmails)
	api.POST("/emails/bulk-review", s.bulkReview)
	api.GET("/emails/export/csv", s.exportEmailsCSV)
	api.GET("/emails/:id", s.getEmail)
	api.GET("/emails/:id/audit", s.getEmailAudit)
	api.POST("/emails/:id/override", s.overrideEmail)

	api.GET("/audit-log", s.listAudit)
	api.GET("/audit-log/export/csv", s.exportAuditCSV)

	api.GET("/settings", s.getSettings)
	api.PUT("/settings/thresholds", s.updateThresholds)
	api.PUT("/settings/notifications", s.updateNotifications)
	api.GET("/settings/rules", s.listRules)
	api.POST("/settings/rules", s.createRule)
	api.DELETE("/settings/rules/:id", s.deleteRule)
	api.GET("/settings/mailboxes", s.listMailboxes)

	api.POST("/settings/job/pause", s.pauseJob)
	api.POST("/settings/job/resume", s.resumeJob)
	api.POST("/settings/job/trigger", s.triggerJob)
	api.GET("/settings/job/status", s.jobStatus)
}

// Start starts the HTTP server and blocks until it stops.
func (s *Server) Start() error {
	s.logger.Info("HTTP API starting", zap.String("address", s.listenAddr))
	err := s.echo.Start(s.listenAddr)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

func (s *Server) health(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// requestLogger logs each request through zap.
func requestLogger(logger *zap.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogURI:     true,
		LogStatus:  true,
		LogMethod:  true,
		LogLatency: true,
		LogError:   true,
		LogValuesFunc: func(_ echo.Context, v middleware.RequestLoggerValues) error {
			fields := []zap.Field{
				zap.String("method", v.Method),
				zap.String("uri", v.URI),
				zap.Int("status", v.Status),
				zap.Duration("latency", v.Latency),
			}
			if v.Error != nil {
				fields = append(fields, zap.Error(v.Error))
			}
			logger.Info("Request", fields...)
			return nil
		},
	})
}

// writeError maps the error taxonomy onto HTTP status codes.
func writeError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, core.ErrValidation):
		return c.JSON(http.StatusUnprocessableEntity, errorBody(err))
	case errors.Is(err, core.ErrNotFound):
		return c.JSON(http.StatusNotFound, errorBody(err))
	case errors.Is(err, core.ErrRateLimited):
		return c.JSON(http.StatusTooManyRequests, errorBody(err))
	default:
		return c.JSON(http.StatusInternalServerError, errorBody(err))
	}
}

func errorBody(err error) map[string]string {
	return map[string]string{"error": err.Error()}
}

func parseTimeParam(value string) (*time.Time, error) {
	if value == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, value)
	if err != nil {
		return nil, core.ValidationErrorf("invalid timestamp %q, expected RFC 3339", value)
	}
	return &t, nil
}
