// Package server exposes the HTTP surface: event ingestion, health,
// and Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/signald/internal/config"
	"github.com/fyrsmithlabs/signald/internal/event"
	"github.com/fyrsmithlabs/signald/internal/pipeline"
)

// Server is the HTTP front to the pipeline.
type Server struct {
	cfg      config.ServerConfig
	pipeline *pipeline.Pipeline
	echo     *echo.Echo
	logger   *zap.Logger
}

// ingestRequest is the POST /v1/events payload.
type ingestRequest struct {
	Text      string            `json:"text"`
	Source    string            `json:"source"`
	Timestamp time.Time         `json:"timestamp,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// ingestResponse reports the pipeline outcome.
type ingestResponse struct {
	EventID       string `json:"event_id"`
	Duplicate     bool   `json:"duplicate"`
	LinkedEventID string `json:"linked_event_id,omitempty"`
	MatchedStage  string `json:"matched_stage,omitempty"`
	Signal        any    `json:"signal,omitempty"`
}

// New creates the server.
func New(cfg config.ServerConfig, p *pipeline.Pipeline, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())

	s := &Server{cfg: cfg, pipeline: p, echo: e, logger: logger.Named("server")}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.echo.POST("/v1/events", s.handleIngest)
	s.echo.GET("/healthz", s.handleHealth)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
}

func (s *Server) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "ok",
		"service": "signald",
	})
}

func (s *Server) handleIngest(c echo.Context) error {
	var req ingestRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid JSON body")
	}
	if req.Text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "text is required")
	}

	res, err := s.pipeline.Process(c.Request().Context(), event.Incoming{
		RawText:   req.Text,
		Source:    req.Source,
		Timestamp: req.Timestamp,
		Metadata:  req.Metadata,
	})
	if err != nil {
		s.logger.Warn("ingest rejected", zap.Error(err))
		return echo.NewHTTPError(http.StatusUnprocessableEntity, err.Error())
	}

	resp := ingestResponse{EventID: res.Event.ID}
	if res.Verdict.IsDuplicate {
		resp.Duplicate = true
		resp.LinkedEventID = res.Verdict.LinkedEventID
		resp.MatchedStage = res.Verdict.MatchedStage
		return c.JSON(http.StatusOK, resp)
	}
	resp.Signal = res.Signal
	return c.JSON(http.StatusCreated, resp)
}

// Start runs the server until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		if err := s.echo.Start(s.cfg.Addr); err != nil && err != http.ErrServerClosed {
			errCh <- fmt.Errorf("server start: %w", err)
		}
	}()

	s.logger.Info("http server listening", zap.String("addr", s.cfg.Addr))

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := s.echo.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown: %w", err)
		}
		return http.ErrServerClosed
	}
}

// Echo exposes the router for tests.
func (s *Server) Echo() *echo.Echo {
	return s.echo
}
