// ABOUTME: Cloud server exposing the Row Store as a REST API
// ABOUTME: gin router with JSON request logs, CORS, JWT auth and a sync status timestamp
package web

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/harperreed/crmdesk/logging"
	"github.com/harperreed/crmdesk/store"
)

type Config struct {
	// JWTSecret signs bearer tokens. A random secret is generated when empty,
	// which invalidates tokens on restart.
	JWTSecret string
	TokenTTL  time.Duration
	// AllowedOrigins for CORS; empty allows all origins.
	AllowedOrigins []string
}

type Server struct {
	store  store.Store
	router *gin.Engine
	secret []byte
	ttl    time.Duration

	// registerMu serialises the first-user check with the insert.
	registerMu sync.Mutex

	mu         sync.Mutex
	lastChange time.Time
	now        func() time.Time
}

// NewServer builds the router over s. The server does not own s.
func NewServer(s store.Store, cfg Config) *Server {
	if cfg.JWTSecret == "" {
		buf := make([]byte, 32)
		_, _ = rand.Read(buf)
		cfg.JWTSecret = hex.EncodeToString(buf)
		log.Printf("Warning: JWT_SECRET not set, using a random secret for this process")
	}
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = 24 * time.Hour
	}

	srv := &Server{
		store:  s,
		secret: []byte(cfg.JWTSecret),
		ttl:    cfg.TokenTTL,
		now:    time.Now,
	}
	srv.lastChange = srv.now().UTC()
	srv.router = srv.setupRouter(cfg)
	return srv
}

func (s *Server) setupRouter(cfg Config) *gin.Engine {
	r := gin.New()
	r.Use(logging.JSONLogger())
	r.Use(gin.Recovery())

	corsCfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Authorization", "Content-Type"},
	}
	if len(cfg.AllowedOrigins) > 0 {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	} else {
		corsCfg.AllowAllOrigins = true
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := r.Group("/api")
	api.POST("/auth/login", s.handleLogin)
	api.POST("/auth/register", s.handleRegister)
	api.GET("/sync/status", s.handleSyncStatus)

	tables := api.Group("", s.AuthMiddleware())
	{
		tables.GET("/:table", s.handleList)
		tables.GET("/:table/:id", s.handleGet)
		tables.POST("/:table", s.handleInsert)
		tables.PUT("/:table/:id", s.handleUpdate)
		tables.DELETE("/:table/:id", s.handleDelete)
	}

	return r
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Serve runs the server on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	httpServer := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown error: %w", err)
		}
		return nil
	}
}

// ListenAndServe listens on addr (":8080") and serves until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	log.Printf("Starting cloud server at http://%s", ln.Addr())
	return s.Serve(ctx, ln)
}

// touch records a successful write. Successive values strictly increase.
func (s *Server) touch() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	if !now.After(s.lastChange) {
		now = s.lastChange.Add(time.Nanosecond)
	}
	s.lastChange = now
}

// LastChange is the time of the most recent successful write.
func (s *Server) LastChange() time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastChange
}

func (s *Server) handleSyncStatus(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"lastChange": s.LastChange().Format(time.RFC3339Nano)})
}
