package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App     AppConfig     `mapstructure:"app"`
	Server  ServerConfig  `mapstructure:"server"`
	Log     LogConfig     `mapstructure:"log"`
	DB      DBConfig      `mapstructure:"db"`
	Cron    CronConfig    `mapstructure:"cron"`
	Runtime RuntimeConfig `mapstructure:"runtime"`

	Venues       VenuesConfig       `mapstructure:"venues"`
	OfferPublish OfferPublishConfig `mapstructure:"offer_publish"`
	Signer       SignerConfig       `mapstructure:"signer"`
	Retry        RetryConfig        `mapstructure:"retry"`
	CoinOps      CoinOpsConfig      `mapstructure:"coin_ops"`
	LowInventory LowInventoryConfig `mapstructure:"low_inventory"`
	Reconcile    ReconcileConfig    `mapstructure:"reconcile"`
	CancelPolicy CancelPolicyConfig `mapstructure:"cancel_policy"`
	Waits        WaitsConfig        `mapstructure:"waits"`
	Listener     ListenerConfig     `mapstructure:"listener"`

	// Optional sinks and backends.
	Redis      RedisConfig      `mapstructure:"redis"`
	Kafka      KafkaConfig      `mapstructure:"kafka"`
	Archive    ArchiveConfig    `mapstructure:"archive"`
	CloudWatch CloudWatchConfig `mapstructure:"cloudwatch"`
	PaaS       PaaSConfig       `mapstructure:"paas"`
	Notify     NotifyConfig     `mapstructure:"notify"`
	Auth       AuthConfig       `mapstructure:"auth"`
}

type AppConfig struct {
	Env     string `mapstructure:"env"`
	Network string `mapstructure:"network"`
	HomeDir string `mapstructure:"home_dir"`
	// StateDir holds the sqlite database and the reload marker.
	StateDir string `mapstructure:"state_dir"`
}

type ServerConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	HTTPAddr string `mapstructure:"http_addr"`
}

type LogConfig struct {
	Level             string        `mapstructure:"level"`
	Encoding          string        `mapstructure:"encoding"`
	Development       bool          `mapstructure:"development"`
	Sampling          bool          `mapstructure:"sampling"`
	DisableCaller     bool          `mapstructure:"disable_caller"`
	DisableStacktrace bool          `mapstructure:"disable_stacktrace"`
	File              LogFileConfig `mapstructure:"file"`
}

type LogFileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAgeDays int    `mapstructure:"max_age_days"`
	Compress   bool   `mapstructure:"compress"`
}

type DBConfig struct {
	// Driver is sqlite or postgres.
	Driver          string        `mapstructure:"driver"`
	DSN             string        `mapstructure:"dsn"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
	Timezone        string        `mapstructure:"timezone"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
}

type CronConfig struct {
	Enabled      bool   `mapstructure:"enabled"`
	Cycle        string `mapstructure:"cycle"`
	Reconcile    string `mapstructure:"reconcile"`
	AuditArchive string `mapstructure:"audit_archive"`
}

type RuntimeConfig struct {
	LoopInterval time.Duration `mapstructure:"loop_interval"`
	DryRun       bool          `mapstructure:"dry_run"`
	MarketsPath  string        `mapstructure:"markets_path"`
	SignerKeyID  string        `mapstructure:"signer_key_id"`
}

type VenuesConfig struct {
	Dexie   VenueEndpointConfig `mapstructure:"dexie"`
	Splash  VenueEndpointConfig `mapstructure:"splash"`
	Coinset CoinsetConfig       `mapstructure:"coinset"`
	Price   PriceConfig         `mapstructure:"price"`
}

type VenueEndpointConfig struct {
	APIBase    string        `mapstructure:"api_base"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RatePerSec float64       `mapstructure:"rate_per_sec"`
	Burst      int           `mapstructure:"burst"`
}

type CoinsetConfig struct {
	APIBase    string        `mapstructure:"api_base"`
	WSURL      string        `mapstructure:"ws_url"`
	Timeout    time.Duration `mapstructure:"timeout"`
	RatePerSec float64       `mapstructure:"rate_per_sec"`
	Burst      int           `mapstructure:"burst"`
}

type PriceConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
	TTL     time.Duration `mapstructure:"ttl"`
}

type OfferPublishConfig struct {
	// Provider is dexie or splash.
	Provider string `mapstructure:"provider"`
	DropOnly bool   `mapstructure:"drop_only"`
}

type SignerConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type RetryConfig struct {
	Post   RetryPolicyConfig `mapstructure:"post"`
	Cancel RetryPolicyConfig `mapstructure:"cancel"`
}

type RetryPolicyConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
	// BackoffMode is fixed or exponential.
	BackoffMode string        `mapstructure:"backoff_mode"`
	MaxBackoff  time.Duration `mapstructure:"max_backoff"`
	Cooldown    time.Duration `mapstructure:"cooldown"`
}

type CoinOpsConfig struct {
	MaxOperationsPerRun      int   `mapstructure:"max_operations_per_run"`
	MaxDailyFeeBudgetMojos   int64 `mapstructure:"max_daily_fee_budget_mojos"`
	SplitFeeMojos            int64 `mapstructure:"split_fee_mojos"`
	CombineFeeMojos          int64 `mapstructure:"combine_fee_mojos"`
	UseLedgerFeeEstimate     bool  `mapstructure:"use_ledger_fee_estimate"`
	FeeEstimateTargetSeconds int   `mapstructure:"fee_estimate_target_seconds"`
}

type LowInventoryConfig struct {
	Enabled                   bool          `mapstructure:"enabled"`
	DefaultThresholdBaseUnits int64         `mapstructure:"default_threshold_base_units"`
	DedupCooldown             time.Duration `mapstructure:"dedup_cooldown"`
	ClearHysteresisPercent    int           `mapstructure:"clear_hysteresis_percent"`
}

type ReconcileConfig struct {
	// CompletedFallbackWindow bounds how long a venue-reported completion waits for chain evidence.
	CompletedFallbackWindow time.Duration `mapstructure:"completed_fallback_window"`
	MaxOffersPerPass        int           `mapstructure:"max_offers_per_pass"`
}

type CancelPolicyConfig struct {
	Enabled bool  `mapstructure:"enabled"`
	MoveBps int64 `mapstructure:"move_bps"`
	// Mechanism is venue or onchain.
	Mechanism string `mapstructure:"mechanism"`
}

type WaitsConfig struct {
	PollInterval         time.Duration `mapstructure:"poll_interval"`
	StillWaitingInterval time.Duration `mapstructure:"still_waiting_interval"`
	SignatureTimeout     time.Duration `mapstructure:"signature_timeout"`
	MempoolTimeout       time.Duration `mapstructure:"mempool_timeout"`
	ConfirmationTimeout  time.Duration `mapstructure:"confirmation_timeout"`
	ReorgTimeout         time.Duration `mapstructure:"reorg_timeout"`
	ReorgConfirmations   int           `mapstructure:"reorg_confirmations"`
}

type ListenerConfig struct {
	Enabled           bool          `mapstructure:"enabled"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
	BackoffMax        time.Duration `mapstructure:"backoff_max"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	RecoveryPoll      bool          `mapstructure:"recovery_poll"`
	WebhookPath       string        `mapstructure:"webhook_path"`
}

type RedisConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	DB      int    `mapstructure:"db"`
	Prefix  string `mapstructure:"prefix"`
}

type KafkaConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

type ArchiveConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Prefix    string `mapstructure:"prefix"`
	Endpoint  string `mapstructure:"endpoint"`
	PathStyle bool   `mapstructure:"path_style"`
}

type CloudWatchConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Region    string `mapstructure:"region"`
	Namespace string `mapstructure:"namespace"`
}

type PaaSConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	BaseURL string `mapstructure:"base_url"`
	Agent   string `mapstructure:"agent"`
}

type NotifyConfig struct {
	Pushover bool   `mapstructure:"pushover"`
	Slack    bool   `mapstructure:"slack"`
	Webhook  string `mapstructure:"webhook"`
}

type AuthConfig struct {
	Enabled bool `mapstructure:"enabled"`
}

func Load(path string, envOnly bool) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("GREENFLOOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetDefault("app.env", "dev")
	v.SetDefault("app.network", "mainnet")
	v.SetDefault("app.home_dir", "~/.greenfloor")
	v.SetDefault("app.state_dir", ".greenfloor/state")
	v.SetDefault("server.enabled", true)
	v.SetDefault("server.http_addr", "127.0.0.1:8787")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "console")
	v.SetDefault("log.development", true)
	v.SetDefault("log.sampling", false)
	v.SetDefault("log.disable_caller", false)
	v.SetDefault("log.disable_stacktrace", false)
	v.SetDefault("log.file.path", "")
	v.SetDefault("log.file.max_size_mb", 50)
	v.SetDefault("log.file.max_backups", 5)
	v.SetDefault("log.file.max_age_days", 14)
	v.SetDefault("log.file.compress", true)
	v.SetDefault("db.driver", "sqlite")
	v.SetDefault("db.dsn", "")
	v.SetDefault("db.max_open_conns", 4)
	v.SetDefault("db.max_idle_conns", 2)
	v.SetDefault("db.conn_max_lifetime", "30m")
	v.SetDefault("db.conn_max_idle_time", "5m")
	v.SetDefault("db.timezone", "UTC")
	v.SetDefault("db.busy_timeout", "5s")
	v.SetDefault("cron.enabled", true)
	v.SetDefault("cron.cycle", "")
	v.SetDefault("cron.reconcile", "@every 2m")
	v.SetDefault("cron.audit_archive", "0 15 0 * * *")
	v.SetDefault("runtime.loop_interval", "30s")
	v.SetDefault("runtime.dry_run", false)
	v.SetDefault("runtime.markets_path", "config/markets.yaml")

	v.SetDefault("venues.dexie.api_base", "https://api.dexie.space")
	v.SetDefault("venues.dexie.timeout", "15s")
	v.SetDefault("venues.dexie.rate_per_sec", 4)
	v.SetDefault("venues.dexie.burst", 4)
	v.SetDefault("venues.splash.api_base", "http://localhost:4000")
	v.SetDefault("venues.splash.timeout", "15s")
	v.SetDefault("venues.splash.rate_per_sec", 2)
	v.SetDefault("venues.splash.burst", 2)
	v.SetDefault("venues.coinset.api_base", "https://api.coinset.org")
	v.SetDefault("venues.coinset.ws_url", "wss://api.coinset.org/ws")
	v.SetDefault("venues.coinset.timeout", "20s")
	v.SetDefault("venues.coinset.rate_per_sec", 5)
	v.SetDefault("venues.coinset.burst", 5)
	v.SetDefault("venues.price.base_url", "https://coincodex.com/api/coincodex/get_coin/xch")
	v.SetDefault("venues.price.timeout", "8s")
	v.SetDefault("venues.price.ttl", "120s")

	v.SetDefault("offer_publish.provider", "dexie")
	v.SetDefault("offer_publish.drop_only", true)
	v.SetDefault("signer.base_url", "http://127.0.0.1:8788")
	v.SetDefault("signer.timeout", "60s")

	v.SetDefault("retry.post.max_attempts", 2)
	v.SetDefault("retry.post.backoff", "250ms")
	v.SetDefault("retry.post.backoff_mode", "exponential")
	v.SetDefault("retry.post.max_backoff", "5s")
	v.SetDefault("retry.post.cooldown", "30s")
	v.SetDefault("retry.cancel.max_attempts", 2)
	v.SetDefault("retry.cancel.backoff", "250ms")
	v.SetDefault("retry.cancel.backoff_mode", "exponential")
	v.SetDefault("retry.cancel.max_backoff", "5s")
	v.SetDefault("retry.cancel.cooldown", "30s")

	v.SetDefault("coin_ops.max_operations_per_run", 20)
	v.SetDefault("coin_ops.max_daily_fee_budget_mojos", 0)
	v.SetDefault("coin_ops.split_fee_mojos", 0)
	v.SetDefault("coin_ops.combine_fee_mojos", 0)
	v.SetDefault("coin_ops.use_ledger_fee_estimate", false)
	v.SetDefault("coin_ops.fee_estimate_target_seconds", 60)

	v.SetDefault("low_inventory.enabled", true)
	v.SetDefault("low_inventory.default_threshold_base_units", 0)
	v.SetDefault("low_inventory.dedup_cooldown", "60m")
	v.SetDefault("low_inventory.clear_hysteresis_percent", 10)

	v.SetDefault("reconcile.completed_fallback_window", "30m")
	v.SetDefault("reconcile.max_offers_per_pass", 500)

	v.SetDefault("cancel_policy.enabled", true)
	v.SetDefault("cancel_policy.move_bps", 500)
	v.SetDefault("cancel_policy.mechanism", "venue")

	v.SetDefault("waits.poll_interval", "5s")
	v.SetDefault("waits.still_waiting_interval", "30s")
	v.SetDefault("waits.signature_timeout", "15m")
	v.SetDefault("waits.mempool_timeout", "10m")
	v.SetDefault("waits.confirmation_timeout", "30m")
	v.SetDefault("waits.reorg_timeout", "60m")
	v.SetDefault("waits.reorg_confirmations", 0)

	v.SetDefault("listener.enabled", true)
	v.SetDefault("listener.reconnect_interval", "30s")
	v.SetDefault("listener.backoff_max", "2m")
	v.SetDefault("listener.heartbeat_interval", "20s")
	v.SetDefault("listener.recovery_poll", true)
	v.SetDefault("listener.webhook_path", "/coinset/tx-block")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.prefix", "greenfloor:")
	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.topic", "greenfloor.audit")
	v.SetDefault("archive.enabled", false)
	v.SetDefault("archive.prefix", "audit")
	v.SetDefault("cloudwatch.enabled", false)
	v.SetDefault("cloudwatch.namespace", "GreenFloor")
	v.SetDefault("paas.enabled", false)
	v.SetDefault("paas.agent", "greenfloor-daemon")
	v.SetDefault("notify.pushover", true)
	v.SetDefault("notify.slack", false)
	v.SetDefault("auth.enabled", false)

	if !envOnly {
		if err := v.ReadInConfig(); err != nil {
			return Config{}, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}
