package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"greenfloor/internal/repository"
)

type AuditHandler struct {
	Repo repository.AuditRepository
}

func (h *AuditHandler) Register(r *gin.Engine) {
	r.GET("/api/v1/audit-events", h.list)
}

// @Summary List audit events, newest first
// @Tags audit
// @Param event_type query string false "event type"
// @Param market_id query string false "market id"
// @Param since query string false "RFC3339 or YYYY-MM-DD"
// @Param until query string false "RFC3339 or YYYY-MM-DD"
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/audit-events [get]
func (h *AuditHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	since, ok := timeQueryPtr(c, "since")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid since", nil)
		return
	}
	until, ok := timeQueryPtr(c, "until")
	if !ok {
		Error(c, http.StatusBadRequest, "invalid until", nil)
		return
	}
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	params := repository.ListAuditEventsParams{
		Limit:     limit,
		Offset:    offset,
		EventType: strQueryPtr(c, "event_type"),
		MarketID:  strQueryPtr(c, "market_id"),
		Since:     since,
		Until:     until,
	}
	items, err := h.Repo.ListAuditEvents(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountAuditEvents(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}
