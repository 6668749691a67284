// Package httpapi exposes the question-answering pipeline over HTTP.
package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/corpusd/internal/ingest"
	"github.com/fyrsmithlabs/corpusd/internal/orchestrator"
	"github.com/fyrsmithlabs/corpusd/internal/session"
)

// Config holds HTTP server configuration.
type Config struct {
	Host string
	Port int
}

// Server serves the ask and ingest endpoints.
type Server struct {
	echo     *echo.Echo
	orch     *orchestrator.Orchestrator
	ingester *ingest.Service
	sessions *session.Registry
	index    interface{ Size() int }
	metrics  *Metrics
	logger   *zap.Logger
	config   Config
}

// NewServer creates the HTTP server and registers its routes.
func NewServer(orch *orchestrator.Orchestrator, ingester *ingest.Service, sessions *session.Registry, idx interface{ Size() int }, logger *zap.Logger, cfg Config) (*Server, error) {
	if orch == nil {
		return nil, fmt.Errorf("orchestrator is required")
	}
	if sessions == nil {
		return nil, fmt.Errorf("session registry is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required for request tracking and debugging")
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 9090
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	metrics := NewMetrics(logger)

	e.Use(middleware.Recover())
	e.Use(middleware.RequestID())
	e.Use(func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			duration := time.Since(start)

			metrics.RecordRequest(c.Request().Context(), c.Request().Method, c.Path(), c.Response().Status, duration)
			logger.Info("http request",
				zap.String("method", c.Request().Method),
				zap.String("uri", c.Request().RequestURI),
				zap.Int("status", c.Response().Status),
				zap.Duration("duration", duration),
				zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			)
			return err
		}
	})

	s := &Server{
		echo:     e,
		orch:     orch,
		ingester: ingester,
		sessions: sessions,
		index:    idx,
		metrics:  metrics,
		logger:   logger,
		config:   cfg,
	}
	s.registerRoutes()
	return s, nil
}

func (s *Server) registerRoutes() {
	s.echo.GET("/health", s.handleHealth)

	v1 := s.echo.Group("/api/v1")
	v1.POST("/ask", s.handleAsk)
	if s.ingester != nil {
		v1.POST("/ingest", s.handleIngest)
	}
}

// AskRequest is the request body for POST /api/v1/ask.
type AskRequest struct {
	SessionID string `json:"session_id"`
	Question  string `json:"question"`
}

// AskResponse is the response body for POST /api/v1/ask.
type AskResponse struct {
	SessionID     string   `json:"session_id"`
	Answer        string   `json:"answer"`
	CitedChunkIDs []string `json:"cited_chunk_ids"`
}

// IngestResponse is the response body for POST /api/v1/ingest.
type IngestResponse struct {
	Documents int `json:"documents"`
	Chunks    int `json:"chunks"`
	Embedded  int `json:"embedded"`
	Skipped   int `json:"skipped"`
	Removed   int `json:"removed"`
	Failures  int `json:"failures"`
}

// HealthResponse is the response body for GET /health.
type HealthResponse struct {
	Status        string `json:"status"`
	IndexedChunks int    `json:"indexed_chunks"`
}

func (s *Server) handleHealth(c echo.Context) error {
	resp := HealthResponse{Status: "ok"}
	if s.index != nil {
		resp.IndexedChunks = s.index.Size()
	}
	return c.JSON(http.StatusOK, resp)
}

func (s *Server) handleAsk(c echo.Context) error {
	var req AskRequest
	if err := c.Bind(&req); err != nil {
		s.logger.Warn("invalid ask request", zap.Error(err))
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.Question == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "question field is required")
	}

	sess := s.sessions.GetOrCreate(req.SessionID)
	turn, err := s.orch.HandleTurn(c.Request().Context(), sess, req.Question)
	if err != nil {
		return s.pipelineError(c, err)
	}

	cited := turn.RetrievedChunkIDs
	if cited == nil {
		cited = []string{}
	}
	return c.JSON(http.StatusOK, AskResponse{
		SessionID:     sess.ID(),
		Answer:        turn.Answer,
		CitedChunkIDs: cited,
	})
}

func (s *Server) handleIngest(c echo.Context) error {
	report, err := s.ingester.Run(c.Request().Context())
	if errors.Is(err, ingest.ErrIngestInProgress) {
		return echo.NewHTTPError(http.StatusConflict, "ingestion already in progress")
	}
	if err != nil {
		return s.pipelineError(c, err)
	}
	return c.JSON(http.StatusOK, IngestResponse{
		Documents: report.Documents,
		Chunks:    report.Chunks,
		Embedded:  report.Embedded,
		Skipped:   report.Skipped,
		Removed:   report.Removed,
		Failures:  len(report.Failures),
	})
}

// pipelineError maps a pipeline failure class to an HTTP status.
func (s *Server) pipelineError(c echo.Context, err error) error {
	class := orchestrator.Classify(err)
	s.logger.Error("request failed",
		zap.String("class", class.String()),
		zap.Error(err),
	)
	switch class {
	case orchestrator.ClassConfig:
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case orchestrator.ClassTransient:
		return echo.NewHTTPError(http.StatusServiceUnavailable, "temporarily unavailable, retry later")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	s.logger.Info("starting http server", zap.String("addr", addr))
	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down http server")
	return s.echo.Shutdown(ctx)
}
