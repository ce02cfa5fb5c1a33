package main

import (
	"context"
	"encoding/json"
	"net/http"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"economy-sentinel/internal/analytics"
	"economy-sentinel/internal/bot"
	"economy-sentinel/internal/config"
	"economy-sentinel/internal/controls"
	"economy-sentinel/internal/economy"
	"economy-sentinel/internal/health"
	"economy-sentinel/internal/ledger"
	"economy-sentinel/internal/metrics"
	"economy-sentinel/internal/modules/audit"
	"economy-sentinel/internal/notify"
	"economy-sentinel/internal/payout"
	"economy-sentinel/internal/risk"
	"economy-sentinel/internal/storage"
	"economy-sentinel/internal/utils"

	"go.uber.org/zap"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		panic(err)
	}

	logger, err := config.BuildLogger(cfg.LogLevel)
	if err != nil {
		panic(err)
	}
	defer func() {
		_ = logger.Sync()
	}()

	store, err := storage.New(cfg.DatabasePath)
	if err != nil {
		logger.Fatal("storage init failed", zap.Error(err))
	}
	defer store.Close()
	if err := store.Migrate(); err != nil {
		logger.Fatal("migrations failed", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var (
		source  ledger.Ledger
		results economy.ResultRecorder
	)
	if cfg.LedgerDSN != "" {
		pool, err := ledger.Connect(ctx, cfg.LedgerDSN)
		if err != nil {
			logger.Fatal("ledger connect failed", zap.Error(err))
		}
		defer pool.Close()
		pg := ledger.NewPostgresStore(pool)
		if err := pg.Migrate(ctx); err != nil {
			logger.Fatal("ledger migrations failed", zap.Error(err))
		}
		source = pg
		logger.Info("ledger connected")
	} else {
		logger.Warn("no ledger DSN configured, using in-memory ledger")
		memory := ledger.NewMemoryStore()
		source = memory
		results = memory
	}
	guarded := ledger.NewGuarded(source, time.Duration(cfg.LedgerTimeoutSeconds)*time.Second, logger)
	guarded.OnError(func(op string) {
		metrics.LedgerErrors.WithLabelValues(op).Inc()
	})

	dispatcher := notify.NewDispatcher(logger, true)
	dispatcher.OnFailure(func(kind string) {
		metrics.NotificationFailures.WithLabelValues(kind).Inc()
	})

	auditLogger := audit.NewLogger(store, logger)
	analyticsEngine := analytics.New(store)
	payouts := payout.New(cfg.Payout)
	losses := utils.NewRollingSum(time.Duration(cfg.Analysis.DailyLossWindowHours) * time.Hour)

	riskEngine := risk.NewEngine(cfg.Risk, risk.Deps{
		Edges:    payouts,
		Reviews:  store,
		Stats:    guarded,
		Audit:    auditLogger,
		Notifier: dispatcher,
		Logger:   logger,
	})
	globalControls := controls.New(controls.Config{
		DefaultScore:      cfg.Analysis.DefaultScore,
		EmergencyDuration: time.Duration(cfg.Analysis.EmergencyDurationMinutes) * time.Minute,
	}, auditLogger, dispatcher, logger)
	manager := economy.NewManager(cfg.Limits, cfg.Games, economy.Deps{
		Risk:     riskEngine,
		Controls: globalControls,
		Payouts:  payouts,
		Ledger:   guarded,
		Games:    store,
		Reviews:  store,
		Audit:    auditLogger,
		Losses:   losses,
		Results:  results,
		Logger:   logger,
	})
	if err := manager.LoadGameControls(ctx); err != nil {
		logger.Warn("using configured game controls", zap.Error(err))
	}
	analyzer := health.NewAnalyzer(cfg.Analysis, guarded, globalControls, losses, logger)

	var botSvc *bot.Bot
	if cfg.BotEnabled {
		botSvc, err = bot.New(cfg, logger, bot.Deps{
			Store:      store,
			Audit:      auditLogger,
			Analytics:  analyticsEngine,
			Economy:    manager,
			Risk:       riskEngine,
			Analyzer:   analyzer,
			Dispatcher: dispatcher,
		})
		if err != nil {
			logger.Fatal("bot init failed", zap.Error(err))
		}
	}

	var wg sync.WaitGroup
	if cfg.Analysis.Enabled {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = analyzer.PerformAnalysis(ctx)
			analyzer.Run(ctx, utils.NewTicker(time.Duration(cfg.Analysis.IntervalMinutes)*time.Minute))
		}()
	}
	wg.Add(2)
	go func() {
		defer wg.Done()
		utils.RunEvery(ctx, utils.NewTicker(time.Duration(cfg.Risk.SweepIntervalMinutes)*time.Minute), func(time.Time) {
			if removed := riskEngine.Sweep(); removed > 0 {
				logger.Debug("expired risk records swept", zap.Int("removed", removed))
			}
		})
	}()
	go func() {
		defer wg.Done()
		utils.RunEvery(ctx, utils.NewTicker(24*time.Hour), func(time.Time) {
			removed, err := store.CleanupAuditLogs(ctx, cfg.RetentionDays)
			if err != nil {
				logger.Warn("audit cleanup failed", zap.Error(err))
				return
			}
			logger.Info("audit cleanup", zap.Int64("removed", removed))
		})
	}()

	if botSvc != nil {
		if err := botSvc.Start(); err != nil {
			logger.Fatal("bot start failed", zap.Error(err))
		}
		logger.Info("bot started")
	}

	var server *http.Server
	if cfg.Health.Enabled {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			status := manager.SystemStatus()
			w.Header().Set("Content-Type", "application/json")
			_ = json.NewEncoder(w).Encode(map[string]any{
				"status":         "ok",
				"emergency_mode": status.EmergencyMode,
				"health_score":   status.HealthScore,
				"tracked_users":  status.TrackedUsers,
				"blocked_users":  status.BlockedUsers,
				"flagged_users":  status.FlaggedUsers,
				"ledger_breaker": guarded.State().String(),
			})
		})
		mux.Handle("/metrics", metrics.Handler())
		server = &http.Server{Addr: cfg.Health.Addr, Handler: mux}
		go func() {
			logger.Info("health endpoint enabled", zap.String("addr", cfg.Health.Addr))
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.Error("health server error", zap.Error(err))
			}
		}()
	}

	<-ctx.Done()
	logger.Info("shutdown requested")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if server != nil {
		_ = server.Shutdown(shutdownCtx)
	}
	if botSvc != nil {
		botSvc.Close()
	}
	wg.Wait()
}
