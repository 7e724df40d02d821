package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"greenfloor/internal/lifecycle"
	"greenfloor/internal/repository"
)

type OfferHandler struct {
	Repo repository.OfferRepository
}

func (h *OfferHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/offers")
	g.GET("", h.list)
	g.GET("/:id", h.get)
}

// @Summary List offers
// @Tags offers
// @Param market_id query string false "market id"
// @Param state query string false "comma separated states"
// @Param flag query string false "offer flag"
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Success 200 {object} apiResponse
// @Failure 400 {object} apiResponse
// @Router /api/v1/offers [get]
func (h *OfferHandler) list(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	states := listQuery(c, "state")
	for _, s := range states {
		if !lifecycle.State(s).Valid() {
			Error(c, http.StatusBadRequest, "unknown state "+s, nil)
			return
		}
	}
	limit := intQuery(c, "limit", 50)
	offset := intQuery(c, "offset", 0)
	params := repository.ListOfferStatesParams{
		Limit:    limit,
		Offset:   offset,
		MarketID: strQueryPtr(c, "market_id"),
		States:   states,
		Flag:     strQueryPtr(c, "flag"),
		OrderBy:  "updated_at",
		Asc:      boolPtr(false),
	}
	items, err := h.Repo.ListOfferStates(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	total, err := h.Repo.CountOfferStates(c.Request.Context(), params)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, paginationMeta(limit, offset, total))
}

// @Summary Get one offer
// @Tags offers
// @Param id path string true "offer id"
// @Success 200 {object} apiResponse
// @Failure 404 {object} apiResponse
// @Router /api/v1/offers/{id} [get]
func (h *OfferHandler) get(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	id := strings.TrimSpace(c.Param("id"))
	if id == "" {
		Error(c, http.StatusBadRequest, "invalid id", nil)
		return
	}
	item, err := h.Repo.GetOfferState(c.Request.Context(), id)
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	if item == nil {
		Error(c, http.StatusNotFound, "offer not found", nil)
		return
	}
	Ok(c, item, map[string]any{"tx_ids": item.TxIDList(), "emitted": item.EmittedList()})
}
