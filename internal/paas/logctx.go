package paas

import (
	"context"
	"time"
)

// LogBestEffortCtx logs through the client carried by ctx, if any. Failures are dropped.
func LogBestEffortCtx(ctx context.Context, action, level string, details map[string]any) {
	p := ClientFromContext(ctx)
	if p == nil {
		return
	}
	ctx2, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = p.Log(ctx2, action, level, details)
}
