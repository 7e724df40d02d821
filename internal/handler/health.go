package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"greenfloor/internal/daemon"
)

// CycleSource exposes the most recent finished daemon cycle.
type CycleSource interface {
	Last() (daemon.CycleSummary, bool)
}

type HealthHandler struct {
	DB     *gorm.DB
	Cycles CycleSource
	// MaxCycleAge marks the daemon not ready when the last cycle is older. Zero disables it.
	MaxCycleAge time.Duration
	Now         func() time.Time
}

func (h *HealthHandler) Register(r *gin.Engine) {
	r.GET("/healthz", h.health)
	r.GET("/readyz", h.ready)
}

// @Summary Health check
// @Tags health
// @Success 200 {object} map[string]string
// @Router /healthz [get]
func (h *HealthHandler) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// @Summary Readiness check
// @Tags health
// @Success 200 {object} map[string]string
// @Failure 503 {object} map[string]string
// @Router /readyz [get]
func (h *HealthHandler) ready(c *gin.Context) {
	if h.DB == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_missing"})
		return
	}
	sqlDB, err := h.DB.DB()
	if err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_error"})
		return
	}
	if err := sqlDB.PingContext(c.Request.Context()); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_unreachable"})
		return
	}
	if h.Cycles != nil && h.MaxCycleAge > 0 {
		now := time.Now().UTC()
		if h.Now != nil {
			now = h.Now()
		}
		if last, ok := h.Cycles.Last(); ok && now.Sub(last.FinishedAt) > h.MaxCycleAge {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "cycle_stale", "last_cycle_at": last.FinishedAt})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}
