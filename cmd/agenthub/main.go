package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"agenthub/internal/adapter/channel"
	"agenthub/internal/adapter/gateway"
	"agenthub/internal/adapter/sandbox"
	"agenthub/internal/adapter/store"
	"agenthub/internal/infra/config"
	"agenthub/internal/infra/logger"
	"agenthub/internal/infra/tracer"
	"agenthub/internal/usecase/backup"
	"agenthub/internal/usecase/health"
	"agenthub/internal/usecase/hooks"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

func configPath() string {
	for i := 1; i < len(os.Args)-1; i++ {
		if os.Args[i] == "--config" {
			return os.Args[i+1]
		}
	}
	return "./config.yaml"
}

func run() error {
	// 1. Config
	cfg, err := config.Load(configPath())
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}

	// 2. Logger & Tracer
	log, logCloser, err := logger.New(cfg.Logger)
	if err != nil {
		return fmt.Errorf("logger: %w", err)
	}
	defer logCloser()

	ctx := context.Background()
	tracerShutdown, err := tracer.Setup(ctx, cfg.Tracer)
	if err != nil {
		return fmt.Errorf("tracer: %w", err)
	}
	defer tracerShutdown(ctx)

	// 3. Store
	db, err := store.NewSQLiteStore(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	defer db.Close()

	// 4. Hook manager
	manager := hooks.NewManager(log)

	// 5. Gateway (status broadcast target)
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var gw *gateway.Server
	if cfg.Gateway.Enabled {
		entries := make([]gateway.TokenEntry, len(cfg.Gateway.Tokens))
		for i, t := range cfg.Gateway.Tokens {
			entries[i] = gateway.TokenEntry{Token: t.Token, UserID: t.UserID}
		}
		gw = gateway.NewServer(
			gateway.NewStaticTokenAuth(entries),
			cfg.Gateway.Addr,
			cfg.Gateway.RequestsPerMin,
			cfg.Gateway.BurstSize,
			log,
		)
		go func() {
			if err := gw.Start(ctx); err != nil {
				log.Error("gateway error", "error", err)
			}
		}()
		manager.Register(hooks.StatusBroadcastHook(gw))
	}

	// 6. Channel sender
	if cfg.Channel.Enabled {
		sender := channel.NewAPISender(cfg.Channel.BaseURL, cfg.Channel.Token, log)
		manager.Register(hooks.SenderHook(sender, log))
	}

	// 7. Webhooks
	deliverer := hooks.NewDeliverer(log)
	webhookSvc := hooks.NewService(db, manager, deliverer, cfg.Webhooks, cfg.Security.Passphrase, log)
	if err := webhookSvc.LoadAndRegister(ctx); err != nil {
		return fmt.Errorf("webhooks: %w", err)
	}

	// 8. Backup scheduler
	snapshotter := sandbox.NewLocalDir(cfg.Backup.SandboxDir, log)
	scheduler := backup.NewScheduler(snapshotter, db, manager,
		cfg.Backup.IntervalDuration(), cfg.Backup.DebounceDuration(), log)
	defer scheduler.StopAll()

	// 9. Health monitor
	if cfg.Health.Enabled {
		monitor := health.NewMonitor(manager, cfg.Health.IntervalDuration(), log)
		go monitor.Run(ctx)
		defer monitor.Stop()
	}

	log.Info("agenthub started")

	<-ctx.Done()
	log.Info("shutting down")

	if gw != nil {
		shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancelShutdown()
		if err := gw.Stop(shutdownCtx); err != nil {
			log.Error("gateway shutdown error", "error", err)
		}
	}
	return nil
}
