// Package server exposes the analyzer, tools and agent over a JSON HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"slices"
	"sync"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/KaramelBytes/avalia-cli/internal/agent"
	"github.com/KaramelBytes/avalia-cli/internal/app"
)

// Session limits used unless WithSessionLimits overrides them.
const (
	DefaultMaxSessions = 256
	DefaultSessionTTL  = 30 * time.Minute
)

// AgentFactory builds the chat agent on first use.
type AgentFactory func() (*agent.Agent, error)

// Server is the HTTP front end over an app context.
type Server struct {
	app      *app.App
	logger   *zap.Logger
	engine   *gin.Engine
	origins  []string
	newAgent AgentFactory

	agentMu     sync.Mutex
	agent       *agent.Agent
	sessions    map[string]*sessionEntry
	maxSessions int
	sessionTTL  time.Duration
	now         func() time.Time
}

type sessionEntry struct {
	sess     *agent.Session
	lastUsed time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithAgentFactory replaces the default agent constructor.
func WithAgentFactory(f AgentFactory) Option {
	return func(s *Server) { s.newAgent = f }
}

// WithSessionLimits bounds the chat sessions kept in memory. Sessions idle
// for longer than ttl are dropped; past limit, the least recently used one is
// evicted. Non-positive values keep the defaults.
func WithSessionLimits(limit int, ttl time.Duration) Option {
	return func(s *Server) {
		if limit > 0 {
			s.maxSessions = limit
		}
		if ttl > 0 {
			s.sessionTTL = ttl
		}
	}
}

// WithCORSOrigins sets allowed origins; "*" allows any. Empty disables CORS.
func WithCORSOrigins(origins []string) Option {
	return func(s *Server) { s.origins = origins }
}

// New builds the router.
func New(a *app.App, opts ...Option) *Server {
	s := &Server{
		app:      a,
		logger:   a.Logger().Named("http"),
		newAgent:    a.NewAgent,
		sessions:    make(map[string]*sessionEntry),
		maxSessions: DefaultMaxSessions,
		sessionTTL:  DefaultSessionTTL,
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(s.requestLogger(), s.recovery())
	if len(s.origins) > 0 {
		r.Use(cors.New(corsConfig(s.origins)))
	}
	s.routes(r)
	s.engine = r
	return s
}

func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods: []string{"GET", "POST", "OPTIONS"},
		AllowHeaders: []string{"Origin", "Content-Type", "Accept"},
		MaxAge:       12 * time.Hour,
	}
	if slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
	} else {
		cfg.AllowOrigins = origins
	}
	return cfg
}

func (s *Server) routes(r *gin.Engine) {
	r.GET("/healthz", s.health)
	api := r.Group("/api")
	api.GET("/tables", s.listTables)
	api.GET("/tables/:table/preview", s.preview)
	api.GET("/tables/:table/stats", s.stats)
	api.GET("/schema", s.schemaSummary)
	api.GET("/schema/:table", s.schemaTable)
	api.POST("/tools/:name", s.runTool)
	api.POST("/chat", s.chat)
	api.GET("/history", s.history)
	api.POST("/reload", s.reload)
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves on addr until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:         addr,
		Handler:      s.engine,
		IdleTimeout:  time.Minute,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 5 * time.Minute,
	}
	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server gracefully")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	<-errCh
	return nil
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		s.logger.Info("request",
			zap.String("method", c.Request.Method),
			zap.String("path", c.FullPath()),
			zap.Int("status", c.Writer.Status()),
			zap.Duration("latency", time.Since(start)))
	}
}

func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("handler panicked", zap.Any("panic", r), zap.Stack("stack"))
				fail(c, http.StatusInternalServerError, fmt.Errorf("%v", r), "internal error")
				c.Abort()
			}
		}()
		c.Next()
	}
}

// session returns the agent and the session for id, creating either when
// needed. The bool reports whether this call created the session.
func (s *Server) session(id string) (*agent.Agent, *agent.Session, bool, error) {
	s.agentMu.Lock()
	defer s.agentMu.Unlock()
	if s.agent == nil {
		ag, err := s.newAgent()
		if err != nil {
			return nil, nil, false, err
		}
		s.agent = ag
	}
	now := s.now()
	s.pruneLocked(now)
	if e, ok := s.sessions[id]; ok {
		e.lastUsed = now
		return s.agent, e.sess, false, nil
	}
	if len(s.sessions) >= s.maxSessions {
		s.evictOldestLocked()
	}
	sess := s.agent.NewSession()
	s.sessions[sess.ID] = &sessionEntry{sess: sess, lastUsed: now}
	return s.agent, sess, true, nil
}

// forget drops a session, used when its first question fails.
func (s *Server) forget(id string) {
	s.agentMu.Lock()
	delete(s.sessions, id)
	s.agentMu.Unlock()
}

func (s *Server) pruneLocked(now time.Time) {
	for id, e := range s.sessions {
		if now.Sub(e.lastUsed) > s.sessionTTL {
			delete(s.sessions, id)
		}
	}
}

func (s *Server) evictOldestLocked() {
	var oldest string
	var at time.Time
	for id, e := range s.sessions {
		if oldest == "" || e.lastUsed.Before(at) {
			oldest, at = id, e.lastUsed
		}
	}
	if oldest != "" {
		delete(s.sessions, oldest)
		s.logger.Debug("chat session evicted", zap.String("session", oldest))
	}
}
