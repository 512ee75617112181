// Package bridge is the HTTP façade of one platform: it turns requests
// into operations, runs them and maps envelopes onto status codes.
package bridge

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"social_automation/application/engines"
	"social_automation/domain/entities"
	"social_automation/infrastructure/metrics"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Executor runs operations for the bridge
type Executor interface {
	Run(ctx context.Context, req entities.Request) entities.Envelope
	Capabilities(platform entities.Platform) (engines.Capabilities, error)
}

// Jobs is the asynchronous queue surface
type Jobs interface {
	Submit(req entities.Request, callbackURL string) (entities.Task, error)
	Get(id string) (entities.Task, bool)
}

// Config holds server settings
type Config struct {
	Platform  entities.Platform
	RateLimit *RateLimitConfig
	// GlobalRateLimit caps the whole bridge across clients
	GlobalRateLimit *RateLimitConfig
	ShutdownTimeout time.Duration
}

// Server wraps the HTTP server and dependencies
type Server struct {
	cfg     Config
	exec    Executor
	jobs    Jobs
	metrics *metrics.Metrics
	logger  *logrus.Logger
	router  *gin.Engine
}

// NewServer - builds the router. jobs and m may be nil, which disables
// the queue routes and /metrics respectively.
func NewServer(cfg Config, exec Executor, jobs Jobs, m *metrics.Metrics, logger *logrus.Logger) *Server {
	if cfg.ShutdownTimeout <= 0 {
		cfg.ShutdownTimeout = 30 * time.Second
	}
	s := &Server{cfg: cfg, exec: exec, jobs: jobs, metrics: m, logger: logger}

	router := gin.New()
	router.Use(Recovery(logger), RequestID(), Logger(logger), CORS())
	if m != nil {
		router.Use(metrics.Middleware(m))
	}

	router.GET("/health", s.health)
	if m != nil {
		router.GET("/metrics", gin.WrapH(m.Handler()))
	}

	api := router.Group("/")
	if cfg.GlobalRateLimit != nil {
		api.Use(GlobalRateLimit(*cfg.GlobalRateLimit))
	}
	if cfg.RateLimit != nil {
		api.Use(RateLimit(*cfg.RateLimit))
	}

	api.GET("/capabilities", s.capabilities)
	api.POST("/operations", s.operation)

	api.GET("/user/:username", s.getProfile)
	api.GET("/user/:username/posts", s.listContent)
	api.GET("/search/:query", s.search)
	api.GET("/content/:id", s.getContent)
	api.POST("/post", s.convenience(entities.OpCreatePost))
	api.POST("/like", s.convenience(entities.OpLike))
	api.POST("/unlike", s.convenience(entities.OpUnlike))
	api.POST("/follow", s.convenience(entities.OpFollow))
	api.POST("/unfollow", s.convenience(entities.OpUnfollow))
	api.POST("/comment", s.convenience(entities.OpComment))
	api.POST("/dm", s.convenience(entities.OpSendMessage))

	if jobs != nil {
		api.POST("/jobs", s.submitJob)
		api.GET("/jobs/:id", s.getJob)
	}

	s.router = router
	return s
}

// Router - the gin engine, for tests and embedding
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Run - serves on addr until ctx is done, then drains in-flight requests
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.WithFields(logrus.Fields{"addr": addr, "platform": s.cfg.Platform}).Info("Bridge listening")
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("bridge server: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
	defer cancel()
	s.logger.Info("Shutting down bridge")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("bridge shutdown: %w", err)
	}
	return nil
}

// HTTPStatus - status code for an envelope
func HTTPStatus(env entities.Envelope) int {
	if env.Success {
		return http.StatusOK
	}
	if env.Error == nil {
		return http.StatusInternalServerError
	}
	switch env.Error.Kind {
	case entities.KindValidation:
		return http.StatusBadRequest
	case entities.KindAuthMissing, entities.KindAuthExpired:
		return http.StatusUnauthorized
	case entities.KindNotFound:
		return http.StatusNotFound
	case entities.KindBlocked:
		return http.StatusConflict
	case entities.KindUnknownUI:
		return http.StatusBadGateway
	case entities.KindTransient:
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
