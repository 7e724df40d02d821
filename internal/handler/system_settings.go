package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"greenfloor/internal/paas"
	"greenfloor/internal/repository"
	"greenfloor/internal/service"
)

type SystemSettingsHandler struct {
	Repo     repository.SettingsRepository
	Settings *service.SystemSettingsService
}

func (h *SystemSettingsHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/system-settings")
	g.GET("", h.list)
	g.GET("/switches", h.listSwitches)
	g.GET("/switches/:name", h.getSwitch)
	g.PUT("/switches/:name", h.putSwitch)
}

// @Summary List stored settings
// @Tags system-settings
// @Param prefix query string false "key prefix"
// @Success 200 {object} apiResponse
// @Router /api/v1/system-settings [get]
func (h *SystemSettingsHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 200)
	offset := intQuery(c, "offset", 0)
	params := repository.ListSystemSettingsParams{
		Limit:   limit,
		Offset:  offset,
		Prefix:  strQueryPtr(c, "prefix"),
		OrderBy: "key",
		Asc:     boolPtr(true),
	}
	items, err := h.Repo.ListSystemSettings(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountSystemSettings(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Feature switches with their effective values
// @Tags system-settings
// @Success 200 {object} apiResponse
// @Router /api/v1/system-settings/switches [get]
func (h *SystemSettingsHandler) listSwitches(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	snap := h.Settings.Snapshot(c.Request.Context())
	out := make([]map[string]any, 0, len(snap))
	for _, key := range service.FeatureKeys() {
		out = append(out, map[string]any{
			"name":    strings.TrimPrefix(key, service.FeaturePrefix),
			"key":     key,
			"enabled": snap[key],
			"default": service.DefaultFeatureSwitches()[key],
		})
	}
	Ok(c, out, nil)
}

func switchKey(c *gin.Context) (string, bool) {
	name := strings.TrimSpace(c.Param("name"))
	key := service.FeaturePrefix + name
	if name == "" || !service.IsFeatureKey(key) {
		Error(c, http.StatusNotFound, "unknown switch", map[string]any{"known": service.FeatureKeys()})
		return "", false
	}
	return key, true
}

// @Summary Read one feature switch
// @Tags system-settings
// @Param name path string true "switch name without the feature. prefix"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/system-settings/switches/{name} [get]
func (h *SystemSettingsHandler) getSwitch(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	key, ok := switchKey(c)
	if !ok {
		return
	}
	Ok(c, map[string]any{
		"name":    c.Param("name"),
		"key":     key,
		"enabled": h.Settings.IsEnabled(c.Request.Context(), key, service.DefaultFeatureSwitches()[key]),
	}, nil)
}

type putSwitchRequest struct {
	Enabled *bool `json:"enabled"`
}

// @Summary Turn a feature switch on or off
// @Tags system-settings
// @Param name path string true "switch name without the feature. prefix"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/system-settings/switches/{name} [put]
func (h *SystemSettingsHandler) putSwitch(c *gin.Context) {
	if h.Settings == nil {
		Error(c, http.StatusInternalServerError, "settings service unavailable", nil)
		return
	}
	key, ok := switchKey(c)
	if !ok {
		return
	}
	var req putSwitchRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	if err := h.Settings.SetEnabled(c.Request.Context(), key, *req.Enabled); err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	paas.LogBestEffort(c, "switch_updated", "info", map[string]any{"key": key, "enabled": *req.Enabled})
	Ok(c, map[string]any{
		"name":    c.Param("name"),
		"key":     key,
		"enabled": *req.Enabled,
	}, nil)
}
