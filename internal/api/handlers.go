package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"FRBScanner/internal/domain"
	"FRBScanner/internal/ports"
)

const (
	defaultListLimit = 20
	maxListLimit     = 200
	maxDays          = 365
)

// RunStarter starts a pipeline run in the background and returns its
// initial summary once the run lock is held.
type RunStarter interface {
	StartRun(ctx context.Context, req RunRequest) (domain.RunSummary, error)
}

// RunReader exposes recorded runs.
type RunReader interface {
	Get(ctx context.Context, runID string) (domain.RunSummary, error)
	List(ctx context.Context, limit int) ([]domain.RunSummary, error)
}

// RunRequest is the optional body of POST /api/runs.
type RunRequest struct {
	Days   int  `json:"days"`
	DryRun bool `json:"dry_run"`
}

// Handler serves the trigger and status endpoints.
type Handler struct {
	starter RunStarter
	runs    RunReader
	stats   ports.CatalogStatsReader
	// runCtx outlives individual requests so triggered runs are not cut short.
	runCtx context.Context
	logger *slog.Logger
}

// NewHandler wires handler dependencies. runCtx bounds background runs.
func NewHandler(runCtx context.Context, starter RunStarter, runs RunReader, stats ports.CatalogStatsReader, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handler{starter: starter, runs: runs, stats: stats, runCtx: runCtx, logger: logger}
}

// HealthCheck reports liveness.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// ListRuns returns the most recent runs, newest first.
func (h *Handler) ListRuns(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(n, maxListLimit)
	}

	runs, err := h.runs.List(c.Request.Context(), limit)
	if err != nil {
		h.logger.Error("list runs failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list runs"})
		return
	}
	if runs == nil {
		runs = []domain.RunSummary{}
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs, "total": len(runs)})
}

// GetRun returns one run summary.
func (h *Handler) GetRun(c *gin.Context) {
	run, err := h.runs.Get(c.Request.Context(), c.Param("id"))
	switch {
	case errors.Is(err, domain.ErrRunNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "run not found"})
	case err != nil:
		h.logger.Error("get run failed", "run", c.Param("id"), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load run"})
	default:
		c.JSON(http.StatusOK, run)
	}
}

// TriggerRun starts a manual run. It answers 409 while another run holds the lock.
func (h *Handler) TriggerRun(c *gin.Context) {
	var req RunRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "message": err.Error()})
			return
		}
	}
	if req.Days < 0 || req.Days > maxDays {
		c.JSON(http.StatusBadRequest, gin.H{"error": "days must be between 0 and 365"})
		return
	}

	run, err := h.starter.StartRun(h.runCtx, req)
	switch {
	case errors.Is(err, domain.ErrRunInProgress):
		c.JSON(http.StatusConflict, gin.H{"error": "another run is in progress"})
	case err != nil:
		h.logger.Error("manual run failed to start", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start run"})
	default:
		c.Header("Location", "/api/runs/"+run.RunID)
		c.JSON(http.StatusAccepted, run)
	}
}

// CatalogStats summarizes the catalog.
func (h *Handler) CatalogStats(c *gin.Context) {
	stats, err := h.stats.Stats(c.Request.Context())
	if err != nil {
		h.logger.Error("catalog stats failed", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to compute stats"})
		return
	}
	c.JSON(http.StatusOK, stats)
}
