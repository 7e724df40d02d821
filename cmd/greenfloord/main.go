package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"greenfloor/internal/audit"
	"greenfloor/internal/auth"
	"greenfloor/internal/cache"
	"greenfloor/internal/client/coinset"
	"greenfloor/internal/client/price"
	"greenfloor/internal/client/venue"
	"greenfloor/internal/config"
	cronrunner "greenfloor/internal/cron"
	"greenfloor/internal/daemon"
	"greenfloor/internal/db"
	"greenfloor/internal/executor"
	"greenfloor/internal/feebudget"
	"greenfloor/internal/handler"
	"greenfloor/internal/inventory"
	"greenfloor/internal/listener"
	"greenfloor/internal/logger"
	"greenfloor/internal/metrics"
	"greenfloor/internal/notify"
	"greenfloor/internal/paas"
	"greenfloor/internal/reconcile"
	gormrepository "greenfloor/internal/repository/gorm"
	"greenfloor/internal/service"
	"greenfloor/internal/signer"
	"greenfloor/internal/strategy"

	_ "greenfloor/docs"
)

func main() {
	var (
		cfgPath     = flag.String("config", envOr("GREENFLOOR_CONFIG", "config/config.yaml"), "program config file")
		marketsPath = flag.String("markets", "", "markets file, overrides runtime.markets_path")
		stateDir    = flag.String("state-dir", "", "state directory, overrides app.state_dir")
		envFile     = flag.String("env-file", ".env", "dotenv file with secrets")
		keyID       = flag.String("key-id", "", "default signer key id")
		once        = flag.Bool("once", false, "run a single cycle and exit")
		dryRun      = flag.Bool("dry-run", false, "plan and audit without signing or posting")
	)
	flag.Parse()

	// Secrets first so the dotenv file also feeds viper's env overrides.
	secrets, err := config.LoadSecrets(*envFile)
	if err != nil {
		panic(err)
	}

	envOnly := false
	if raw := os.Getenv("GREENFLOOR_ENV_ONLY"); raw != "" {
		envOnly = strings.EqualFold(raw, "true") || raw == "1"
	}
	cfg, err := config.Load(*cfgPath, envOnly)
	if err != nil {
		panic(err)
	}
	if *marketsPath != "" {
		cfg.Runtime.MarketsPath = *marketsPath
	}
	if *stateDir != "" {
		cfg.App.StateDir = *stateDir
	}
	if *keyID != "" {
		cfg.Runtime.SignerKeyID = *keyID
	}
	if *dryRun {
		cfg.Runtime.DryRun = true
	}
	if secrets.UnstableMoveBps > 0 {
		cfg.CancelPolicy.MoveBps = secrets.UnstableMoveBps
	}

	logger, err := logger.New(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	markets, err := config.LoadMarkets(cfg.Runtime.MarketsPath)
	if err != nil {
		logger.Fatal("markets config load failed", zap.String("path", cfg.Runtime.MarketsPath), zap.Error(err))
	}
	for _, m := range markets.Enabled() {
		if err := strategy.ValidatePricing(m); err != nil {
			logger.Fatal("market pricing invalid", zap.Error(err))
		}
	}

	if err := os.MkdirAll(cfg.App.StateDir, 0o755); err != nil {
		logger.Fatal("state dir create failed", zap.Error(err))
	}
	dbConn, err := db.Open(cfg.DB)
	if err != nil {
		logger.Fatal("db open failed", zap.Error(err))
	}
	defer db.Close(dbConn)
	if err := db.Ping(dbConn); err != nil {
		logger.Fatal("db ping failed", zap.Error(err))
	}
	if err := db.SetTimezone(dbConn, cfg.DB.Timezone); err != nil {
		logger.Warn("failed to set timezone", zap.Error(err))
	}
	if err := db.AutoMigrate(dbConn); err != nil {
		logger.Fatal("auto-migrate failed", zap.Error(err))
	}
	store := gormrepository.New(dbConn.Gorm)

	settingsSvc := &service.SystemSettingsService{Repo: store}
	if err := settingsSvc.EnsureDefaultSwitches(context.Background()); err != nil {
		logger.Warn("init default system switches failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	paasClient := initPaaSClient(cfg.PaaS, secrets, logger)
	baseCtx := ctx
	if paasClient != nil {
		baseCtx = paas.WithClient(ctx, paasClient)
	}

	var auditSinks []audit.Sink
	if cfg.Kafka.Enabled {
		ks, err := audit.NewKafkaSink(cfg.Kafka, logger)
		if err != nil {
			logger.Warn("kafka audit sink disabled", zap.Error(err))
		} else {
			defer ks.Close()
			auditSinks = append(auditSinks, ks)
		}
	}
	auditLog := audit.New(store, logger, auditSinks...)
	m := metrics.New()

	rt, err := daemon.NewRuntimeContext(&cfg, markets)
	if err != nil {
		logger.Fatal("runtime context failed", zap.Error(err))
	}

	coinsetClient := coinset.NewClient(cfg.Venues.Coinset, cfg.App.Network)
	venueClient, err := venue.New(cfg.OfferPublish, cfg.Venues)
	if err != nil {
		logger.Fatal("venue init failed", zap.Error(err))
	}
	exec := executor.New(cfg.Retry, initCooldowns(ctx, cfg.Redis, secrets, logger), logger)
	budget := &feebudget.Ledger{Repo: store, Logger: logger, CapMojos: cfg.CoinOps.MaxDailyFeeBudgetMojos}

	cycle := &daemon.Cycle{
		Runtime: rt,
		Repo:    store,
		Audit:   auditLog,
		Logger:  logger,
		Prices:  price.NewClient(cfg.Venues.Price),
		Inventory: &inventory.Provider{
			Ledger: coinsetClient,
			Locked: inventory.LockedByOffers(store),
		},
		Budget:   budget,
		Signer:   signer.NewHTTPBuilder(cfg.Signer),
		Ledger:   coinsetClient,
		Venue:    venueClient,
		Executor: exec,
		Reconcile: &reconcile.Engine{
			Offers:         store,
			Signals:        store,
			Venue:          venueClient,
			Audit:          auditLog,
			Logger:         logger,
			FallbackWindow: cfg.Reconcile.CompletedFallbackWindow,
			MaxOffers:      cfg.Reconcile.MaxOffersPerPass,
		},
		Waiter:  daemon.NewWaiter(cfg.Waits, auditLog),
		Flags:   settingsSvc,
		Metrics: m,
		Sinks:   initSummarySinks(ctx, cfg.CloudWatch, logger),
		Health: func(ctx context.Context) error {
			return dbConn.SQL.PingContext(ctx)
		},
	}
	if cfg.LowInventory.Enabled {
		cycle.Alerts = &inventory.Alerter{
			Repo:     store,
			Notifier: notify.New(cfg.Notify, secrets),
			Audit:    auditLog,
			Logger:   logger,
			Config:   cfg.LowInventory,
		}
	}

	if *once {
		sum, err := cycle.RunOnce(baseCtx)
		out, _ := json.MarshalIndent(sum.Payload(), "", "  ")
		fmt.Println(string(out))
		if err != nil {
			logger.Error("cycle aborted", zap.Error(err))
			os.Exit(1)
		}
		return
	}

	// The listener writes through its own handles; sqlite serialises them with the cycle's.
	txListener := &listener.Listener{
		Open:         listener.FactoryOpener(db.NewFactory(cfg.DB), logger, auditSinks...),
		Mempool:      coinsetClient,
		Metrics:      m,
		Logger:       logger,
		RecoveryPoll: cfg.Listener.RecoveryPoll,
	}
	wsURL := coinset.WSURL(cfg.Venues.Coinset.WSURL, cfg.Venues.Coinset.APIBase, cfg.App.Network)
	onConnecting, onConnected, onDisconnected := txListener.Hooks(wsURL)
	txListener.Stream = coinset.NewStream(coinset.StreamOptions{
		URL:               wsURL,
		HeartbeatInterval: cfg.Listener.HeartbeatInterval,
		BackoffMin:        cfg.Listener.ReconnectInterval,
		BackoffMax:        cfg.Listener.BackoffMax,
		Logger:            logger,
		OnConnecting:      onConnecting,
		OnConnected:       onConnected,
		OnDisconnected:    onDisconnected,
	})
	if cfg.Listener.Enabled && settingsSvc.IsEnabled(baseCtx, service.FeatureTxListener, true) {
		go func() {
			if err := txListener.Run(baseCtx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("tx listener stopped", zap.Error(err))
			}
		}()
	}

	cronRunner := cronrunner.New(logger, baseCtx)
	if cfg.Cron.Enabled {
		registerJobs(cronRunner, cfg, cycle, store, settingsSvc, logger)
	}
	cronRunner.Start()
	defer cronRunner.Stop()

	// Without a cycle cron spec the daemon runs on its own loop interval.
	if !cfg.Cron.Enabled || strings.TrimSpace(cfg.Cron.Cycle) == "" {
		go func() {
			if err := cycle.Run(baseCtx, cfg.Runtime.LoopInterval); err != nil && !errors.Is(err, context.Canceled) {
				logger.Warn("daemon loop stopped", zap.Error(err))
			}
		}()
	}

	if !cfg.Server.Enabled {
		<-ctx.Done()
		logger.Info("shutdown requested")
		return
	}

	if strings.EqualFold(cfg.App.Env, "dev") {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())

	var jwt *auth.JWT
	if cfg.Auth.Enabled {
		if secrets.APIJWTSecret == "" {
			logger.Fatal("auth enabled but GREENFLOOR_API_JWT_SECRET is empty")
		}
		jwt = &auth.JWT{Secret: []byte(secrets.APIJWTSecret)}
	}
	webhookPath := strings.TrimSpace(cfg.Listener.WebhookPath)
	if webhookPath == "" {
		webhookPath = handler.DefaultTxBlockPath
	}
	engine.Use(auth.Middleware(jwt, webhookPath))
	engine.Use(paas.InjectClientMiddleware(paasClient))
	engine.Use(paas.WriteAuditMiddleware(paasClient, logger))

	(&handler.HealthHandler{DB: dbConn.Gorm, Cycles: cycle, MaxCycleAge: 10 * maxDuration(cfg.Runtime.LoopInterval, time.Minute)}).Register(engine)
	(&handler.OfferHandler{Repo: store}).Register(engine)
	(&handler.AuditHandler{Repo: store}).Register(engine)
	(&handler.FeeBudgetHandler{Budget: budget, Repo: store}).Register(engine)
	(&handler.CycleHandler{Cycles: cycle, Jobs: cronRunner, StateDir: rt.StateDir}).Register(engine)
	(&handler.SystemSettingsHandler{Repo: store, Settings: settingsSvc}).Register(engine)
	(&handler.CooldownHandler{Executor: exec}).Register(engine)
	(&handler.TxBlockHandler{Sink: txListener, Path: webhookPath, Logger: logger}).Register(engine)
	paas.RegisterDocs(engine)
	engine.GET("/metrics", gin.WrapH(m.Handler()))
	engine.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	srv := &http.Server{
		Addr:    cfg.Server.HTTPAddr,
		Handler: engine,
	}
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server starting", zap.String("addr", cfg.Server.HTTPAddr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown requested")
	case err := <-errCh:
		logger.Error("server error", zap.Error(err))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
}

func registerJobs(r *cronrunner.Runner, cfg config.Config, cycle *daemon.Cycle, store *gormrepository.Store, flags *service.SystemSettingsService, logger *zap.Logger) {
	if spec := strings.TrimSpace(cfg.Cron.Cycle); spec != "" {
		if _, err := r.Add("daemon_cycle", spec, func(ctx context.Context) error {
			_, err := cycle.RunOnce(ctx)
			return err
		}); err != nil {
			logger.Warn("cron register daemon cycle failed", zap.Error(err))
		}
	}

	if spec := strings.TrimSpace(cfg.Cron.Reconcile); spec != "" && cycle.Reconcile != nil {
		_, err := r.Add("reconcile", spec, func(ctx context.Context) error {
			if !flags.IsEnabled(ctx, service.FeatureReconcile, true) {
				return nil
			}
			agg := reconcile.Result{}
			for _, m := range cycle.Runtime.Markets().Enabled() {
				res, err := cycle.Reconcile.Run(ctx, m.ID)
				if err != nil {
					return err
				}
				agg.Add(res)
			}
			paas.LogBestEffortCtx(ctx, "greenfloor_reconcile", "info", agg.Payload())
			return nil
		})
		if err != nil {
			logger.Warn("cron register reconcile failed", zap.Error(err))
		}
	}

	if spec := strings.TrimSpace(cfg.Cron.AuditArchive); spec != "" && cfg.Archive.Enabled {
		archiver, err := audit.NewS3Archiver(context.Background(), cfg.Archive, store, logger)
		if err != nil {
			logger.Warn("audit archive disabled", zap.Error(err))
			return
		}
		if _, err := r.Add("audit_archive", spec, archiver.ArchivePreviousDay); err != nil {
			logger.Warn("cron register audit archive failed", zap.Error(err))
		}
	}
}

func initCooldowns(ctx context.Context, cfg config.RedisConfig, secrets config.Secrets, logger *zap.Logger) executor.CooldownStore {
	if !cfg.Enabled {
		return executor.NewMemoryCooldowns(nil)
	}
	rs := cache.NewRedisStore(&redis.Options{Addr: cfg.Addr, Password: secrets.RedisPassword, DB: cfg.DB}, cfg.Prefix)
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rs.Ping(pingCtx); err != nil {
		logger.Warn("redis unavailable, cooldowns kept in memory", zap.Error(err))
		_ = rs.Close()
		return executor.NewMemoryCooldowns(nil)
	}
	logger.Info("cooldowns persisted in redis", zap.String("addr", cfg.Addr))
	return &executor.CacheCooldowns{Store: rs, Prefix: "cooldown:"}
}

func initSummarySinks(ctx context.Context, cfg config.CloudWatchConfig, logger *zap.Logger) []daemon.SummarySink {
	if !cfg.Enabled {
		return nil
	}
	cw, err := metrics.NewCloudWatchSink(ctx, cfg)
	if err != nil {
		logger.Warn("cloudwatch sink disabled", zap.Error(err))
		return nil
	}
	return []daemon.SummarySink{cw}
}

func initPaaSClient(cfg config.PaaSConfig, secrets config.Secrets, logger *zap.Logger) *paas.Client {
	base := strings.TrimSpace(cfg.BaseURL)
	apiKey := strings.TrimSpace(secrets.PaaSAPIKey)
	if !cfg.Enabled || base == "" || apiKey == "" {
		return nil
	}

	p := &paas.Client{BaseURL: base, APIKey: apiKey, Agent: cfg.Agent}
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
	defer cancel()
	if err := p.Login(ctx); err != nil {
		if logger != nil {
			logger.Warn("paas login failed (ops logs disabled)", zap.Error(err))
		}
		return nil
	}
	if logger != nil {
		logger.Info("paas login ok")
	}
	return p
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
