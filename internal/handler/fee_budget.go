package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"greenfloor/internal/feebudget"
	"greenfloor/internal/repository"
)

type FeeBudgetHandler struct {
	Budget *feebudget.Ledger
	Repo   repository.LedgerRepository
}

func (h *FeeBudgetHandler) Register(r *gin.Engine) {
	g := r.Group("/api/v1/fee-budget")
	g.GET("", h.report)
	g.GET("/ledger", h.ledger)
}

// @Summary Today's coin-op fee budget
// @Tags fee-budget
// @Success 200 {object} apiResponse
// @Router /api/v1/fee-budget [get]
func (h *FeeBudgetHandler) report(c *gin.Context) {
	if h.Budget == nil {
		Error(c, http.StatusInternalServerError, "fee budget unavailable", nil)
		return
	}
	day, err := h.Budget.Report(c.Request.Context())
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, day, nil)
}

// @Summary Coin-op ledger rows
// @Tags fee-budget
// @Param day query string false "UTC day YYYY-MM-DD"
// @Param market_id query string false "market id"
// @Param status query string false "planned, reserved, executed or skipped"
// @Param limit query int false "page size"
// @Param offset query int false "page offset"
// @Success 200 {object} apiResponse
// @Router /api/v1/fee-budget/ledger [get]
func (h *FeeBudgetHandler) ledger(c *gin.Context) {
	if h.Repo == nil {
		Error(c, http.StatusInternalServerError, "repo unavailable", nil)
		return
	}
	limit := intQuery(c, "limit", 100)
	offset := intQuery(c, "offset", 0)
	items, err := h.Repo.ListCoinOpLedger(c.Request.Context(), repository.ListCoinOpLedgerParams{
		Limit:    limit,
		Offset:   offset,
		Day:      strQueryPtr(c, "day"),
		MarketID: strQueryPtr(c, "market_id"),
		Status:   strQueryPtr(c, "status"),
	})
	if err != nil {
		Error(c, http.StatusBadGateway, err.Error(), nil)
		return
	}
	Ok(c, items, map[string]any{"limit": limit, "offset": offset, "count": len(items)})
}
