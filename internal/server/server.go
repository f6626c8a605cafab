// Package server exposes aggregation, filtering and AI configuration over HTTP.
// Callers are identified by the X-User-ID header set by the authenticating proxy.
package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/aggregator"
	"github.com/spigell/job-aggregator/internal/aiconfig"
	"github.com/spigell/job-aggregator/internal/filtering"
	"github.com/spigell/job-aggregator/internal/listing"
	"github.com/spigell/job-aggregator/internal/logger"
)

const (
	UserIDHeader    = "X-User-ID"
	userIDKey       = "userID"
	maxBodySize     = 5 << 20
	shutdownTimeout = 10 * time.Second
)

type Aggregator interface {
	Aggregate(ctx context.Context, criteria listing.SearchCriteria, sources []listing.Source, perSourceTimeout time.Duration) (*aggregator.Result, error)
	Sources() []listing.Source
}

type Filterer interface {
	Filter(ctx context.Context, listings []*listing.Listing, criteria filtering.Criteria, active *aiconfig.Config) (*filtering.Result, error)
	Persist(ctx context.Context, userID string, res *filtering.Result) (int, int, error)
	Saved(ctx context.Context, userID string) ([]*listing.Listing, error)
}

type ConfigManager interface {
	List(ctx context.Context, userID string) ([]*aiconfig.Config, error)
	Get(ctx context.Context, userID, id string) (*aiconfig.Config, error)
	Create(ctx context.Context, userID string, req aiconfig.CreateRequest) (*aiconfig.Config, error)
	Activate(ctx context.Context, userID, id string) (*aiconfig.Config, error)
	Active(ctx context.Context, userID string) (*aiconfig.Config, error)
	Deactivate(ctx context.Context, userID string) error
}

type Options struct {
	Addr string `mapstructure:"addr"`
	// SourceTimeout bounds each connector call of an aggregation.
	SourceTimeout time.Duration `mapstructure:"source-timeout"`
}

type Server struct {
	router  *gin.Engine
	agg     Aggregator
	filter  Filterer
	configs ConfigManager
	opts    Options
	logger  *zap.Logger
}

func New(agg Aggregator, filter Filterer, configs ConfigManager, opts Options, l *zap.Logger) *Server {
	if opts.Addr == "" {
		opts.Addr = ":8080"
	}
	if opts.SourceTimeout <= 0 {
		opts.SourceTimeout = aggregator.DefaultTimeout
	}

	router := gin.New()
	s := &Server{
		router:  router,
		agg:     agg,
		filter:  filter,
		configs: configs,
		opts:    opts,
		logger:  logger.OrNop(l),
	}

	router.Use(gin.Recovery(), s.logRequests)

	router.GET("/health", s.handleHealth)

	api := router.Group("/api", s.requireUser, limitBody)
	{
		api.POST("/aggregate", s.handleAggregate)
		api.POST("/filter", s.handleFilter)
		api.GET("/listings", s.handleSavedListings)

		api.GET("/ai-configs", s.handleListConfigs)
		api.POST("/ai-configs", s.handleCreateConfig)
		api.GET("/ai-configs/active", s.handleActiveConfig)
		api.GET("/ai-configs/:id", s.handleGetConfig)
		api.DELETE("/ai-configs/active", s.handleDeactivate)
		api.POST("/ai-configs/:id/activate", s.handleActivate)
	}

	return s
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is done, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", s.opts.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down http server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func (s *Server) logRequests(c *gin.Context) {
	started := time.Now()
	c.Next()

	s.logger.Debug("http request",
		zap.String("method", c.Request.Method),
		zap.String("path", c.FullPath()),
		zap.Int("status", c.Writer.Status()),
		zap.Duration("duration", time.Since(started)),
		zap.String(logger.FieldUserID, c.GetString(userIDKey)),
	)
}

func (s *Server) requireUser(c *gin.Context) {
	userID := strings.TrimSpace(c.GetHeader(UserIDHeader))
	if userID == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
			"success": false,
			"error":   UserIDHeader + " header is required",
		})
		return
	}
	c.Set(userIDKey, userID)
	c.Next()
}

func limitBody(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodySize)
	c.Next()
}
