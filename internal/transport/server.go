// Package transport implements the thin HTTP & WebSocket surface: a
// consumer/producer shell around the Store/EntityRepo family,
// ModuleService, and AgentRuntime.
package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/agentctx/platform/internal/agentruntime"
	"github.com/agentctx/platform/internal/config"
	"github.com/agentctx/platform/internal/entity"
	"github.com/agentctx/platform/internal/store"
	instancesync "github.com/agentctx/platform/internal/sync"
	"github.com/agentctx/platform/internal/workspace"
	"github.com/gin-gonic/gin"
)

// Deps bundles everything the HTTP/WS surface reads or writes, kept flat
// rather than threading a moduleservice.Service through (several
// endpoints bypass module loading entirely, e.g. auth and awareness).
type Deps struct {
	DB         store.Store
	Agents     *entity.AgentRepo
	Users      *entity.UserRepo
	Instances  *entity.InstanceRepo
	Narratives *entity.NarrativeRepo
	Events     *entity.EventRepo
	Jobs       *entity.JobRepo
	Inbox      *entity.InboxRepo
	Awareness  *entity.AwarenessRepo
	Social     *entity.SocialRepo
	MCPUrls    *entity.MCPUrlRepo
	RAGStores  *entity.RAGStoreRepo
	Workspace  *workspace.Manager
	Runtime    *agentruntime.Runtime
	Syncer     *instancesync.Syncer
}

// Server wraps a gin.Engine with the routes and WebSocket upgrade point
// bound to Deps.
type Server struct {
	cfg    config.ServerConfig
	deps   Deps
	engine *gin.Engine
	http   *http.Server
	log    *slog.Logger
}

func New(cfg config.ServerConfig, deps Deps, log *slog.Logger) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger(log))
	s := &Server{cfg: cfg, deps: deps, engine: engine, log: log}
	s.routes()
	return s
}

// Run starts the server and blocks until ctx is cancelled, then shuts
// down gracefully.
func (s *Server) Run(ctx context.Context) error {
	s.http = &http.Server{Addr: s.cfg.Addr, Handler: s.engine}

	errCh := make(chan error, 1)
	go func() {
		if err := s.http.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}

func requestLogger(log *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Info("http request", "method", c.Request.Method, "path", c.Request.URL.Path, "status", c.Writer.Status(), "duration", time.Since(start))
	}
}

// requestingUserID reads the caller identity header, the convention this
// platform uses in place of a full session/auth layer.
func requestingUserID(c *gin.Context) string {
	return c.GetHeader("X-User-ID")
}
