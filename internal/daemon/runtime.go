package daemon

import (
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"greenfloor/internal/config"
)

// RuntimeContext is the process-wide state built once in main.
type RuntimeContext struct {
	HomeDir  string
	StateDir string
	Network  string
	DryRun   bool
	// SignerKeyID is used for markets that do not name their own key.
	SignerKeyID string
	Program     *config.Config
	Now         func() time.Time

	marketsPath string
	mu          sync.RWMutex
	markets     config.MarketsConfig
}

func NewRuntimeContext(cfg *config.Config, markets config.MarketsConfig) (*RuntimeContext, error) {
	if cfg == nil {
		return nil, fmt.Errorf("program config is required")
	}
	home := strings.TrimSpace(cfg.App.HomeDir)
	if home == "" {
		home = "."
	}
	stateDir := strings.TrimSpace(cfg.App.StateDir)
	if stateDir == "" {
		stateDir = filepath.Join(home, "state")
	}
	return &RuntimeContext{
		HomeDir:     home,
		StateDir:    stateDir,
		Network:     cfg.App.Network,
		DryRun:      cfg.Runtime.DryRun,
		SignerKeyID: cfg.Runtime.SignerKeyID,
		Program:     cfg,
		Now:         func() time.Time { return time.Now().UTC() },
		marketsPath: cfg.Runtime.MarketsPath,
		markets:     markets,
	}, nil
}

func (r *RuntimeContext) Clock() time.Time {
	if r == nil || r.Now == nil {
		return time.Now().UTC()
	}
	return r.Now().UTC()
}

func (r *RuntimeContext) Markets() config.MarketsConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.markets
}

func (r *RuntimeContext) SetMarkets(m config.MarketsConfig) {
	r.mu.Lock()
	r.markets = m
	r.mu.Unlock()
}

// ReloadMarkets re-reads the markets file. A bad file keeps the old markets.
func (r *RuntimeContext) ReloadMarkets() (int, error) {
	if strings.TrimSpace(r.marketsPath) == "" {
		return 0, fmt.Errorf("markets path is not configured")
	}
	m, err := config.LoadMarkets(r.marketsPath)
	if err != nil {
		return 0, err
	}
	r.SetMarkets(m)
	return len(m.Enabled()), nil
}

// KeyFor picks the signer key for a market.
func (r *RuntimeContext) KeyFor(m config.MarketConfig) string {
	if k := strings.TrimSpace(m.SignerKeyID); k != "" {
		return k
	}
	return r.SignerKeyID
}
