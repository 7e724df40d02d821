package service

import (
	"context"
	"encoding/json"
	"sort"
	"strings"
	"time"

	"gorm.io/datatypes"

	"greenfloor/internal/models"
	"greenfloor/internal/repository"
)

// FeaturePrefix starts every switch key.
const FeaturePrefix = "feature."

const (
	FeatureDaemonCycle        = "feature.daemon_cycle"
	FeatureReconcile          = "feature.reconcile"
	FeatureTxListener         = "feature.tx_listener"
	FeatureCoinOps            = "feature.coin_ops"
	FeatureCancelPolicy       = "feature.cancel_policy"
	FeatureLowInventoryAlerts = "feature.low_inventory_alerts"
)

func DefaultFeatureSwitches() map[string]bool {
	return map[string]bool{
		FeatureDaemonCycle:        true,
		FeatureReconcile:          true,
		FeatureTxListener:         true,
		FeatureCoinOps:            true,
		FeatureCancelPolicy:       false,
		FeatureLowInventoryAlerts: true,
	}
}

// IsFeatureKey reports whether key is one of the known switches.
func IsFeatureKey(key string) bool {
	_, ok := DefaultFeatureSwitches()[strings.TrimSpace(key)]
	return ok
}

func FeatureKeys() []string {
	out := make([]string, 0, len(DefaultFeatureSwitches()))
	for k := range DefaultFeatureSwitches() {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

type SystemSettingsService struct {
	Repo repository.SettingsRepository
}

// EnsureDefaultSwitches seeds missing switches. Operator-set values are left alone.
func (s *SystemSettingsService) EnsureDefaultSwitches(ctx context.Context) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	now := time.Now().UTC()
	for _, key := range FeatureKeys() {
		existing, err := s.Repo.GetSystemSettingByKey(ctx, key)
		if err != nil {
			return err
		}
		if existing != nil {
			continue
		}
		raw, _ := json.Marshal(DefaultFeatureSwitches()[key])
		item := &models.SystemSetting{
			Key:         key,
			Value:       datatypes.JSON(raw),
			Description: "feature switch",
			CreatedAt:   now,
			UpdatedAt:   now,
		}
		if err := s.Repo.UpsertSystemSetting(ctx, item); err != nil {
			return err
		}
	}
	return nil
}

func (s *SystemSettingsService) IsEnabled(ctx context.Context, key string, fallback bool) bool {
	if s == nil || s.Repo == nil {
		return fallback
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return fallback
	}
	item, err := s.Repo.GetSystemSettingByKey(ctx, key)
	if err != nil || item == nil || len(item.Value) == 0 {
		return fallback
	}
	var enabled bool
	if err := json.Unmarshal(item.Value, &enabled); err != nil {
		return fallback
	}
	return enabled
}

func (s *SystemSettingsService) SetEnabled(ctx context.Context, key string, enabled bool) error {
	if s == nil || s.Repo == nil {
		return nil
	}
	key = strings.TrimSpace(key)
	if key == "" {
		return nil
	}
	raw, _ := json.Marshal(enabled)
	item := &models.SystemSetting{
		Key:         key,
		Value:       datatypes.JSON(raw),
		Description: "feature switch",
		UpdatedAt:   time.Now().UTC(),
	}
	return s.Repo.UpsertSystemSetting(ctx, item)
}

// Snapshot returns every known switch with its effective value.
func (s *SystemSettingsService) Snapshot(ctx context.Context) map[string]bool {
	out := make(map[string]bool, len(DefaultFeatureSwitches()))
	for key, def := range DefaultFeatureSwitches() {
		out[key] = s.IsEnabled(ctx, key, def)
	}
	return out
}
