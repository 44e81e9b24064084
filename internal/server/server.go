package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strings"
	"time"

	ginzap "github.com/gin-contrib/zap"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spicaengine/fnscheduler/internal/config"
	"github.com/spicaengine/fnscheduler/internal/server/middlewares"
)

type Option func(*Server)

// WithMetrics serves h on /metrics, outside of authentication.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) {
		s.engine.GET("/metrics", gin.WrapH(h))
	}
}

type Server struct {
	engine *gin.Engine
	srv    *http.Server
	port   int
}

func NewServer(cfg *config.Configuration, registerHandlerFn func(router *gin.RouterGroup), opts ...Option) (*Server, error) {
	if cfg.Server.ServerMode == "prod" {
		gin.SetMode(gin.ReleaseMode)
	} else {
		gin.SetMode(gin.DebugMode)
	}

	engine := gin.New()
	engine.Use(middlewares.Logger(), ginzap.RecoveryWithZap(zap.L(), true))
	engine.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	s := &Server{engine: engine, port: cfg.Server.HTTPPort}
	for _, opt := range opts {
		opt(s)
	}

	router := engine.Group("/api/v1")
	if cfg.Auth.Enabled {
		secret, err := ReadSecret(cfg.Auth.JWTSecretFile)
		if err != nil {
			return nil, err
		}
		router.Use(middlewares.Authenticator(secret))
	}
	registerHandlerFn(router)

	engine.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	s.srv = &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// ReadSecret loads the JWT signing secret, trimming trailing whitespace.
func ReadSecret(path string) ([]byte, error) {
	if path == "" {
		return nil, errors.New("auth is enabled but no jwt secret file is set")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read jwt secret: %w", err)
	}
	secret := []byte(strings.TrimSpace(string(data)))
	if len(secret) == 0 {
		return nil, fmt.Errorf("jwt secret file %s is empty", path)
	}
	return secret, nil
}

func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start blocks until the server stops. It returns http.ErrServerClosed after Stop.
func (s *Server) Start(ctx context.Context) error {
	var lc net.ListenConfig
	l, err := lc.Listen(ctx, "tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}
	zap.S().Named("server").Infow("ops api listening", "address", l.Addr().String())
	return s.srv.Serve(l)
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
