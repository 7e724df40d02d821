package handler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const DefaultTxBlockPath = "/coinset/tx-block"

// TxBlockSink records confirmed tx ids pushed by the ledger provider.
type TxBlockSink interface {
	HandleTxBlock(ctx context.Context, payload any) (int, error)
}

type TxBlockHandler struct {
	Sink   TxBlockSink
	Path   string
	Logger *zap.Logger
}

func (h *TxBlockHandler) path() string {
	if p := strings.TrimSpace(h.Path); p != "" {
		return p
	}
	return DefaultTxBlockPath
}

func (h *TxBlockHandler) Register(r *gin.Engine) {
	r.POST(h.path(), h.txBlock)
}

// @Summary Ledger tx-block webhook
// @Tags ledger
// @Accept json
// @Success 200 {object} map[string]bool
// @Failure 400 {object} map[string]string
// @Router /coinset/tx-block [post]
func (h *TxBlockHandler) txBlock(c *gin.Context) {
	raw, err := io.ReadAll(io.LimitReader(c.Request.Body, 4<<20))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read failed"})
		return
	}
	var payload any
	if err := json.Unmarshal(raw, &payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if h.Sink == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "listener unavailable"})
		return
	}
	n, err := h.Sink.HandleTxBlock(c.Request.Context(), payload)
	if err != nil {
		if h.Logger != nil {
			h.Logger.Warn("tx-block webhook write failed", zap.Error(err))
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "store failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"ok": true, "confirmed": n})
}
