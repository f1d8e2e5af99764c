package api

import (
	"context"
	_ "embed"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/NethermindEth/chaosfeed/api/handlers"
	"github.com/NethermindEth/chaosfeed/communication"
	"github.com/NethermindEth/chaosfeed/insights"
)

//go:embed web/index.html
var indexHTML []byte

const shutdownTimeout = 10 * time.Second

// Server is the HTTP front end: the single page, the websocket and the REST API.
type Server struct {
	router *gin.Engine
	logger *zap.Logger
}

// NewServer builds the router. ins and hub are optional.
func NewServer(h *handlers.Handler, ins *insights.Handler, hub *communication.Hub, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("http")

	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger))
	SetupRoutes(r, h, ins, hub)

	return &Server{router: r, logger: logger}
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		<-ctx.Done()

		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := server.Shutdown(sctx); err != nil {
			s.logger.Warn("graceful shutdown failed", zap.Error(err))
		}
	}()

	s.logger.Info("listening", zap.String("addr", addr))
	err := server.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	<-shutdownDone
	return nil
}

func requestLogger(logger *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		logger.Debug("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("took", time.Since(start)))
	}
}
