package server

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/spigell/job-aggregator/internal/aiconfig"
	"github.com/spigell/job-aggregator/internal/filtering"
	"github.com/spigell/job-aggregator/internal/listing"
)

// statusClientClosedRequest is reported when the caller went away mid-request.
const statusClientClosedRequest = 499

type aggregateRequest struct {
	Keywords    string     `json:"keywords"`
	Location    string     `json:"location"`
	Sources     []string   `json:"sources"`
	Page        int        `json:"page"`
	PostedAfter *time.Time `json:"postedAfter"`
}

type filterRequest struct {
	Listings []*listing.Listing `json:"listings"`
	Criteria filtering.Criteria `json:"criteria"`
	UseAI    bool               `json:"useAI"`
	// Persist saves the accepted listings for the caller.
	Persist bool `json:"persist"`
}

type saveReport struct {
	Inserted   int `json:"inserted"`
	Duplicates int `json:"duplicates"`
}

type filterResponse struct {
	*filtering.Result
	Saved *saveReport `json:"saved,omitempty"`
}

func (s *Server) handleHealth(c *gin.Context) {
	sources := make([]string, 0)
	if s.agg != nil {
		for _, src := range s.agg.Sources() {
			sources = append(sources, string(src))
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"status":  "ok",
		"sources": sources,
	})
}

func (s *Server) handleAggregate(c *gin.Context) {
	var req aggregateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	// Unknown sources are passed through and reported in sourceErrors.
	sources := make([]listing.Source, 0, len(req.Sources))
	for _, raw := range req.Sources {
		if raw = strings.ToLower(strings.TrimSpace(raw)); raw != "" {
			sources = append(sources, listing.Source(raw))
		}
	}

	criteria := listing.SearchCriteria{
		Keywords:    req.Keywords,
		Location:    req.Location,
		Page:        req.Page,
		PostedAfter: req.PostedAfter,
	}

	result, err := s.agg.Aggregate(c.Request.Context(), criteria, sources, s.opts.SourceTimeout)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (s *Server) handleFilter(c *gin.Context) {
	var req filterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	ctx := c.Request.Context()
	userID := c.GetString(userIDKey)
	criteria := req.Criteria
	criteria.UseAI = criteria.UseAI || req.UseAI

	var active *aiconfig.Config
	if criteria.UseAI {
		var err error
		if active, err = s.configs.Active(ctx, userID); err != nil {
			s.respondError(c, err)
			return
		}
	}

	result, err := s.filter.Filter(ctx, req.Listings, criteria, active)
	if err != nil {
		s.respondError(c, err)
		return
	}

	resp := filterResponse{Result: result}
	if req.Persist {
		inserted, duplicates, err := s.filter.Persist(ctx, userID, result)
		if err != nil {
			s.respondError(c, err)
			return
		}
		resp.Saved = &saveReport{Inserted: inserted, Duplicates: duplicates}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleSavedListings(c *gin.Context) {
	saved, err := s.filter.Saved(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"listings": saved, "count": len(saved)})
}

func (s *Server) handleListConfigs(c *gin.Context) {
	configs, err := s.configs.List(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, configs)
}

func (s *Server) handleCreateConfig(c *gin.Context) {
	var req aiconfig.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body: "+err.Error())
		return
	}

	cfg, err := s.configs.Create(c.Request.Context(), c.GetString(userIDKey), req)
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, cfg)
}

func (s *Server) handleGetConfig(c *gin.Context) {
	cfg, err := s.configs.Get(c.Request.Context(), c.GetString(userIDKey), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) handleActivate(c *gin.Context) {
	cfg, err := s.configs.Activate(c.Request.Context(), c.GetString(userIDKey), c.Param("id"))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

// handleActiveConfig answers null when the caller has no active configuration.
func (s *Server) handleActiveConfig(c *gin.Context) {
	cfg, err := s.configs.Active(c.Request.Context(), c.GetString(userIDKey))
	if err != nil {
		s.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, cfg)
}

func (s *Server) handleDeactivate(c *gin.Context) {
	if err := s.configs.Deactivate(c.Request.Context(), c.GetString(userIDKey)); err != nil {
		s.respondError(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Server) respondError(c *gin.Context, err error) {
	var validationErr *aiconfig.ValidationError
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, listing.ErrEmptyKeywords),
		errors.Is(err, listing.ErrNegativePage),
		errors.Is(err, filtering.ErrInvalidCriteria),
		errors.As(err, &validationErr):
		status = http.StatusBadRequest
	case errors.Is(err, aiconfig.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, context.Canceled):
		status = statusClientClosedRequest
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}

	if status == http.StatusInternalServerError {
		s.logger.Error("request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}

	c.AbortWithStatusJSON(status, gin.H{
		"success": false,
		"error":   err.Error(),
	})
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
		"success": false,
		"error":   msg,
	})
}
