package config

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	SideSell = "sell"
	SideBuy  = "buy"

	QuoteStable   = "stable"
	QuoteUnstable = "unstable"
)

type MarketsConfig struct {
	Markets []MarketConfig `yaml:"markets"`
}

type MarketConfig struct {
	ID             string                   `yaml:"id"`
	Enabled        bool                     `yaml:"enabled"`
	BaseAsset      string                   `yaml:"base_asset"`
	BaseSymbol     string                   `yaml:"base_symbol"`
	QuoteAsset     string                   `yaml:"quote_asset"`
	QuoteAssetType string                   `yaml:"quote_asset_type"`
	ReceiveAddress string                   `yaml:"receive_address"`
	Mode           string                   `yaml:"mode"`
	SignerKeyID    string                   `yaml:"signer_key_id"`
	PuzzleHash     string                   `yaml:"puzzle_hash"`
	Inventory      MarketInventoryConfig    `yaml:"inventory"`
	Pricing        map[string]any           `yaml:"pricing"`
	Ladders        map[string][]LadderEntry `yaml:"ladders"`
}

type MarketInventoryConfig struct {
	LowWatermarkBaseUnits     int64         `yaml:"low_watermark_base_units"`
	AlertThresholdBaseUnits   int64         `yaml:"low_inventory_alert_threshold_base_units"`
	CurrentAvailableBaseUnits int64         `yaml:"current_available_base_units"`
	BucketCounts              map[int64]int `yaml:"bucket_counts"`
}

type LadderEntry struct {
	SizeBaseUnits           int64   `yaml:"size_base_units"`
	TargetCount             int     `yaml:"target_count"`
	SplitBufferCount        int     `yaml:"split_buffer_count"`
	CombineWhenExcessFactor float64 `yaml:"combine_when_excess_factor"`
}

// LoadMarkets reads the markets file and applies ladder defaults.
func LoadMarkets(path string) (MarketsConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return MarketsConfig{}, err
	}
	return ParseMarkets(raw)
}

func ParseMarkets(raw []byte) (MarketsConfig, error) {
	var out MarketsConfig
	if err := yaml.Unmarshal(raw, &out); err != nil {
		return MarketsConfig{}, fmt.Errorf("parse markets: %w", err)
	}
	seen := make(map[string]struct{}, len(out.Markets))
	for i := range out.Markets {
		m := &out.Markets[i]
		m.ID = strings.TrimSpace(m.ID)
		if m.ID == "" {
			return MarketsConfig{}, fmt.Errorf("market %d: id is required", i)
		}
		if _, ok := seen[m.ID]; ok {
			return MarketsConfig{}, fmt.Errorf("market %s: duplicate id", m.ID)
		}
		seen[m.ID] = struct{}{}
		m.QuoteAssetType = strings.ToLower(strings.TrimSpace(m.QuoteAssetType))
		if m.QuoteAssetType == "" {
			m.QuoteAssetType = QuoteUnstable
		}
		if m.QuoteAssetType != QuoteStable && m.QuoteAssetType != QuoteUnstable {
			return MarketsConfig{}, fmt.Errorf("market %s: invalid quote_asset_type %q", m.ID, m.QuoteAssetType)
		}
		for side, entries := range m.Ladders {
			if side != SideSell && side != SideBuy {
				return MarketsConfig{}, fmt.Errorf("market %s: invalid ladder side %q", m.ID, side)
			}
			for j := range entries {
				e := &entries[j]
				if e.SizeBaseUnits <= 0 {
					return MarketsConfig{}, fmt.Errorf("market %s: ladder %s[%d] size must be positive", m.ID, side, j)
				}
				if e.TargetCount < 0 || e.SplitBufferCount < 0 {
					return MarketsConfig{}, fmt.Errorf("market %s: ladder %s[%d] counts must be non-negative", m.ID, side, j)
				}
				if e.CombineWhenExcessFactor <= 0 {
					e.CombineWhenExcessFactor = 2.0
				}
			}
		}
	}
	return out, nil
}

// Enabled returns enabled markets ordered by id.
func (c MarketsConfig) Enabled() []MarketConfig {
	out := make([]MarketConfig, 0, len(c.Markets))
	for _, m := range c.Markets {
		if m.Enabled {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (c MarketsConfig) Find(id string) (MarketConfig, bool) {
	for _, m := range c.Markets {
		if m.ID == id {
			return m, true
		}
	}
	return MarketConfig{}, false
}

func (m MarketConfig) PricingString(key string) string {
	if m.Pricing == nil {
		return ""
	}
	v, ok := m.Pricing[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}
