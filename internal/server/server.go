// Package server exposes retrieval and question answering over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"kbqa/internal/domain"
	"kbqa/internal/logging"
)

// Service is the part of the application the HTTP layer depends on.
type Service interface {
	QueryK(ctx context.Context, question string, k int) ([]domain.Result, error)
	Ask(ctx context.Context, question string) (domain.Answer, error)
	Generation() string
}

// MaxTopK bounds the top_k a client may request.
const MaxTopK = 100

// Response is the JSON envelope of every endpoint.
type Response struct {
	Code    string `json:"code"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// QueryRequest is the body of POST /v1/query.
type QueryRequest struct {
	Question string `json:"question" binding:"required"`
	TopK     int    `json:"top_k"`
}

// AskRequest is the body of POST /v1/ask.
type AskRequest struct {
	Question string `json:"question" binding:"required"`
}

// Server routes HTTP requests to a Service.
type Server struct {
	engine *gin.Engine
	svc    Service
	log    *zap.Logger
}

// New builds the router.
func New(svc Service, log *zap.Logger) *Server {
	if log == nil {
		log = zap.NewNop()
	}
	s := &Server{engine: gin.New(), svc: svc, log: log}
	s.engine.Use(gin.Recovery(), s.accessLog())
	s.engine.GET("/healthz", s.health)
	v1 := s.engine.Group("/v1")
	v1.POST("/query", s.query)
	v1.POST("/ask", s.ask)
	return s
}

// Handler returns the router as an http.Handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("http server listening", zap.String("addr", addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, Response{Code: "ok", Data: gin.H{"generation": s.svc.Generation()}})
}

func (s *Server) query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.badRequest(c, "question must not be empty")
		return
	}
	if req.TopK < 0 || req.TopK > MaxTopK {
		s.badRequest(c, fmt.Sprintf("top_k must be between 0 and %d (0 uses the default)", MaxTopK))
		return
	}
	results, err := s.svc.QueryK(c.Request.Context(), req.Question, req.TopK)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Code: "ok", Data: gin.H{"results": results}})
}

func (s *Server) ask(c *gin.Context) {
	var req AskRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		s.badRequest(c, "invalid request body: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		s.badRequest(c, "question must not be empty")
		return
	}
	ans, err := s.svc.Ask(c.Request.Context(), req.Question)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, Response{Code: "ok", Data: ans})
}

func (s *Server) badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, Response{Code: "invalid_request", Message: msg})
}

func (s *Server) fail(c *gin.Context, err error) {
	code := domain.Classify(err)
	status := StatusFor(code)
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", append(logging.Err(err), zap.String("path", c.FullPath()))...)
	}
	c.JSON(status, Response{Code: string(code), Message: err.Error()})
}

// StatusFor maps an error class to an HTTP status.
func StatusFor(code domain.Code) int {
	switch code {
	case domain.CodeNotFound:
		return http.StatusNotFound
	case domain.CodeConfig:
		return http.StatusBadRequest
	case domain.CodeCollaborator:
		return http.StatusBadGateway
	}
	return http.StatusInternalServerError
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.log.Info("http request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("duration", time.Since(start)),
		)
	}
}
