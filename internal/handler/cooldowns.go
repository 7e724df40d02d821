package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"greenfloor/internal/executor"
	"greenfloor/internal/paas"
)

type CooldownHandler struct {
	Executor *executor.Executor
}

func (h *CooldownHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/cooldowns")
	g.GET("/:market_id/:kind", h.get)
	g.DELETE("/:market_id/:kind", h.clear)
}

func cooldownTarget(c *gin.Context) (string, executor.Kind, bool) {
	marketID := strings.TrimSpace(c.Param("market_id"))
	kind := executor.Kind(strings.ToLower(strings.TrimSpace(c.Param("kind"))))
	if marketID == "" {
		Error(c, http.StatusBadRequest, "invalid market_id", nil)
		return "", "", false
	}
	if kind != executor.KindPost && kind != executor.KindCancel {
		Error(c, http.StatusBadRequest, "kind must be post or cancel", nil)
		return "", "", false
	}
	return marketID, kind, true
}

// @Summary Remaining cooldown for a market and operation kind
// @Tags cooldowns
// @Param market_id path string true "market id"
// @Param kind path string true "post or cancel"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Router /api/v1/cooldowns/{market_id}/{kind} [get]
func (h *CooldownHandler) get(c *gin.Context) {
	if h.Executor == nil {
		Error(c, http.StatusInternalServerError, "executor unavailable", nil)
		return
	}
	marketID, kind, ok := cooldownTarget(c)
	if !ok {
		return
	}
	left, err := h.Executor.Cooldown(c.Request.Context(), marketID, kind)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, map[string]any{
		"market_id":         marketID,
		"kind":              kind,
		"active":            left > 0,
		"remaining_seconds": left.Seconds(),
	}, nil)
}

// @Summary Clear a cooldown so the next cycle retries
// @Tags cooldowns
// @Param market_id path string true "market id"
// @Param kind path string true "post or cancel"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Router /api/v1/cooldowns/{market_id}/{kind} [delete]
func (h *CooldownHandler) clear(c *gin.Context) {
	if h.Executor == nil {
		Error(c, http.StatusInternalServerError, "executor unavailable", nil)
		return
	}
	marketID, kind, ok := cooldownTarget(c)
	if !ok {
		return
	}
	if err := h.Executor.ClearCooldown(c.Request.Context(), marketID, kind); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	paas.LogBestEffort(c, "cooldown_cleared", "info", map[string]any{"market_id": marketID, "kind": string(kind)})
	Ok(c, map[string]any{"market_id": marketID, "kind": kind, "cleared": true}, nil)
}
