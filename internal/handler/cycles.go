package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	cronrunner "greenfloor/internal/cron"
	"greenfloor/internal/daemon"
)

type CycleRunner interface {
	CycleSource
	RunOnce(ctx context.Context) (daemon.CycleSummary, error)
}

type JobLister interface {
	Jobs() []cronrunner.JobStatus
}

type CycleHandler struct {
	Cycles CycleRunner
	Jobs   JobLister
	// StateDir is where the reload marker is written.
	StateDir string
}

func (h *CycleHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1")
	g.GET("/cycles/last", h.last)
	g.POST("/cycles/run", h.run)
	g.GET("/cycles/schedule", h.schedule)
	g.POST("/reload", h.reload)
}

// @Summary Scheduled jobs with their next run
// @Tags cycles
// @Success 200 {object} apiResponse
// @Router /api/v1/cycles/schedule [get]
func (h *CycleHandler) schedule(c *gin.Context) {
	if h.Jobs == nil {
		Ok(c, []cronrunner.JobStatus{}, nil)
		return
	}
	Ok(c, h.Jobs.Jobs(), nil)
}

// @Summary Summary of the last daemon cycle
// @Tags cycles
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/cycles/last [get]
func (h *CycleHandler) last(c *gin.Context) {
	if h.Cycles == nil {
		Error(c, http.StatusInternalServerError, "daemon unavailable", nil)
		return
	}
	sum, ok := h.Cycles.Last()
	if !ok {
		Error(c, http.StatusNotFound, "no cycle has finished yet", nil)
		return
	}
	Ok(c, sum.Payload(), nil)
}

// @Summary Run one daemon cycle now
// @Tags cycles
// @Success 200 {object} apiResponse
// @Failure 409 {object} apiResponse
// @Failure 503 {object} apiResponse
// @Router /api/v1/cycles/run [post]
func (h *CycleHandler) run(c *gin.Context) {
	if h.Cycles == nil {
		Error(c, http.StatusInternalServerError, "daemon unavailable", nil)
		return
	}
	sum, err := h.Cycles.RunOnce(c.Request.Context())
	if err != nil {
		Error(c, http.StatusServiceUnavailable, err.Error(), map[string]any{"cycle_id": sum.CycleID})
		return
	}
	if sum.Skipped {
		Error(c, http.StatusConflict, "cycle skipped", map[string]any{"reason": sum.Error})
		return
	}
	Ok(c, sum.Payload(), nil)
}

// @Summary Ask the daemon to reload its markets file at the next cycle
// @Tags cycles
// @Success 200 {object} apiResponse
// @Router /api/v1/reload [post]
func (h *CycleHandler) reload(c *gin.Context) {
	if h.StateDir == "" {
		Error(c, http.StatusInternalServerError, "state dir unavailable", nil)
		return
	}
	if err := daemon.RequestReload(h.StateDir); err != nil {
		Error(c, http.StatusInternalServerError, err.Error(), nil)
		return
	}
	Ok(c, map[string]any{"reload_requested": true, "marker": daemon.ReloadMarkerPath(h.StateDir)}, nil)
}
