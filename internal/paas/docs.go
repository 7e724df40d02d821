package paas

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func RegisterDocs(r *gin.Engine) {
	r.GET("/docs", func(c *gin.Context) {
		c.Header("Content-Type", "text/markdown; charset=utf-8")
		c.String(http.StatusOK, `# GreenFloor daemon

Local status API of the market-making daemon. It binds to localhost by
default; put it behind the PaaS gateway to reach it remotely.

## Auth

All /api/* routes require a Bearer token when auth.enabled is set.
Health endpoints, /metrics and the ledger webhook are public.

## Routes

- GET /healthz
- GET /readyz
- GET /metrics
- GET /swagger/index.html
- GET /api/v1/offers
- GET /api/v1/offers/:id
- GET /api/v1/audit-events
- GET /api/v1/fee-budget
- GET /api/v1/cycles/last
- GET /api/v1/cycles/schedule
- POST /api/v1/cycles/run
- POST /api/v1/reload
- GET /api/v1/system-settings/switches
- PUT /api/v1/system-settings/switches/:name
- POST /coinset/tx-block
`)
	})
}
