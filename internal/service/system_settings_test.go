package service

import (
	"context"
	"errors"
	"testing"

	"gorm.io/datatypes"

	"greenfloor/internal/models"
	"greenfloor/internal/repository"
)

type memSettings struct {
	items map[string]models.SystemSetting
	err   error
}

func newMemSettings() *memSettings {
	return &memSettings{items: map[string]models.SystemSetting{}}
}

func (m *memSettings) UpsertSystemSetting(_ context.Context, item *models.SystemSetting) error {
	if m.err != nil {
		return m.err
	}
	m.items[item.Key] = *item
	return nil
}

func (m *memSettings) GetSystemSettingByKey(_ context.Context, key string) (*models.SystemSetting, error) {
	if m.err != nil {
		return nil, m.err
	}
	item, ok := m.items[key]
	if !ok {
		return nil, nil
	}
	return &item, nil
}

func (m *memSettings) ListSystemSettings(context.Context, repository.ListSystemSettingsParams) ([]models.SystemSetting, error) {
	out := make([]models.SystemSetting, 0, len(m.items))
	for _, v := range m.items {
		out = append(out, v)
	}
	return out, nil
}

func (m *memSettings) CountSystemSettings(context.Context, repository.ListSystemSettingsParams) (int64, error) {
	return int64(len(m.items)), nil
}

func TestEnsureDefaultSwitchesKeepsOperatorValues(t *testing.T) {
	ctx := context.Background()
	repo := newMemSettings()
	repo.items[FeatureCoinOps] = models.SystemSetting{Key: FeatureCoinOps, Value: datatypes.JSON("false")}
	svc := &SystemSettingsService{Repo: repo}

	if err := svc.EnsureDefaultSwitches(ctx); err != nil {
		t.Fatalf("ensure err=%v", err)
	}
	if len(repo.items) != len(FeatureKeys()) {
		t.Fatalf("items=%d want=%d", len(repo.items), len(FeatureKeys()))
	}
	if svc.IsEnabled(ctx, FeatureCoinOps, true) {
		t.Fatalf("coin ops switch overwritten")
	}
	if !svc.IsEnabled(ctx, FeatureDaemonCycle, false) {
		t.Fatalf("daemon cycle default not seeded")
	}
}

func TestIsEnabledFallsBack(t *testing.T) {
	ctx := context.Background()
	var nilSvc *SystemSettingsService
	if !nilSvc.IsEnabled(ctx, FeatureReconcile, true) {
		t.Fatalf("nil service should return fallback")
	}

	repo := newMemSettings()
	svc := &SystemSettingsService{Repo: repo}
	repo.items[FeatureReconcile] = models.SystemSetting{Key: FeatureReconcile, Value: datatypes.JSON(`"yes"`)}
	if !svc.IsEnabled(ctx, FeatureReconcile, true) {
		t.Fatalf("malformed value should return fallback")
	}
	repo.err = errors.New("db down")
	if svc.IsEnabled(ctx, FeatureReconcile, false) {
		t.Fatalf("store error should return fallback")
	}
}

func TestSetEnabledAndSnapshot(t *testing.T) {
	ctx := context.Background()
	svc := &SystemSettingsService{Repo: newMemSettings()}
	if err := svc.SetEnabled(ctx, FeatureCancelPolicy, true); err != nil {
		t.Fatalf("set err=%v", err)
	}
	snap := svc.Snapshot(ctx)
	if !snap[FeatureCancelPolicy] {
		t.Fatalf("cancel policy=%v want=true", snap[FeatureCancelPolicy])
	}
	if !snap[FeatureTxListener] {
		t.Fatalf("tx listener default=%v want=true", snap[FeatureTxListener])
	}
	if IsFeatureKey("feature.unknown") {
		t.Fatalf("unknown key accepted")
	}
}
