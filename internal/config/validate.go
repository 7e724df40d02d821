package config

import (
	"fmt"
	"strings"

	"github.com/robfig/cron/v3"
)

var cronParser = cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor)

// ValidCronSpec reports whether spec parses with the scheduler; the seconds field is optional.
func ValidCronSpec(spec string) error {
	if strings.TrimSpace(spec) == "" {
		return nil
	}
	_, err := cronParser.Parse(spec)
	return err
}

func (c Config) Validate() error {
	switch strings.ToLower(c.DB.Driver) {
	case "sqlite", "postgres":
	default:
		return fmt.Errorf("db.driver: unsupported %q", c.DB.Driver)
	}
	switch strings.ToLower(c.OfferPublish.Provider) {
	case "dexie", "splash":
	default:
		return fmt.Errorf("offer_publish.provider: unsupported %q", c.OfferPublish.Provider)
	}
	switch strings.ToLower(c.CancelPolicy.Mechanism) {
	case "venue", "onchain":
	default:
		return fmt.Errorf("cancel_policy.mechanism: unsupported %q", c.CancelPolicy.Mechanism)
	}
	for name, p := range map[string]RetryPolicyConfig{"post": c.Retry.Post, "cancel": c.Retry.Cancel} {
		if p.MaxAttempts < 1 {
			return fmt.Errorf("retry.%s.max_attempts must be >= 1", name)
		}
		switch strings.ToLower(p.BackoffMode) {
		case "", "fixed", "exponential":
		default:
			return fmt.Errorf("retry.%s.backoff_mode: unsupported %q", name, p.BackoffMode)
		}
	}
	if c.CoinOps.MaxOperationsPerRun < 0 {
		return fmt.Errorf("coin_ops.max_operations_per_run must be >= 0")
	}
	for name, spec := range map[string]string{
		"cron.cycle":         c.Cron.Cycle,
		"cron.reconcile":     c.Cron.Reconcile,
		"cron.audit_archive": c.Cron.AuditArchive,
	} {
		if err := ValidCronSpec(spec); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	return nil
}
