package agent

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/hatchstack/ignition/internal/command"
)

// Server is the sidecar's command listener. It exposes an open health
// probe and a single verified command endpoint.
type Server struct {
	port     uint
	verifier *command.Verifier
	handler  *CommandHandler

	srv *http.Server
}

func NewServer(port uint, verifier *command.Verifier, handler *CommandHandler) *Server {
	return &Server{
		port:     port,
		verifier: verifier,
		handler:  handler,
	}
}

func (s *Server) setupRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	commands := engine.Group("/v1")
	commands.Use(VerifyCommand(s.verifier))
	commands.POST("/commands", s.handler.Execute)
}

func (s *Server) Start() error {
	engine := gin.New()
	engine.Use(gin.Recovery())
	s.setupRoutes(engine)

	s.srv = &http.Server{
		Addr:    fmt.Sprintf(":%d", s.port),
		Handler: engine,
	}

	slog.Info("Starting agent command server", "port", s.port)
	if err := s.srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("agent server: %w", err)
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	if s.srv == nil {
		return nil
	}

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return s.srv.Shutdown(shutdownCtx)
}
