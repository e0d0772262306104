// cmd/worker/main.go
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"

	"github.com/mailkite/campaign-engine/internal/config"
	"github.com/mailkite/campaign-engine/internal/db"
	"github.com/mailkite/campaign-engine/internal/logger"
	"github.com/mailkite/campaign-engine/internal/quota"
	"github.com/mailkite/campaign-engine/internal/queue"
	"github.com/mailkite/campaign-engine/internal/repository"
	"github.com/mailkite/campaign-engine/internal/secrets"
	"github.com/mailkite/campaign-engine/internal/sender"
	"github.com/mailkite/campaign-engine/internal/service"
)

func main() {
	once := flag.Bool("once", false, "run a single dispatch cycle and exit (cron mode)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	zlog, err := logger.New(cfg.Log.Dir, cfg.Log.Level, true)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zlog.Sync()

	conn, err := db.Open(cfg.Database.URL, cfg.Database.MaxOpen, cfg.Database.MaxIdle)
	if err != nil {
		zlog.Fatalw("database connect failed", "err", err)
	}
	defer conn.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// No master key means no tenant can be served; refuse to start.
	keyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	masterKey, err := secrets.LoadMasterKey(keyCtx, cfg.Crypto.MasterKey, cfg.Crypto.VaultPath, cfg.Crypto.VaultField)
	cancel()
	if err != nil {
		zlog.Fatalw("master key unavailable, refusing to start", "err", err)
	}

	tenantRepo := &repository.TenantRepository{DB: conn}
	campaignRepo := &repository.CampaignRepository{DB: conn}
	secretRepo := &repository.SecretRepository{DB: conn}
	usageRepo := &repository.UsageRepository{DB: conn}

	vault, err := secrets.NewVault(masterKey, secretRepo, tenantRepo, zlog)
	if err != nil {
		zlog.Fatalw("vault init failed", "err", err)
	}

	plans := quota.DefaultPlans()
	for id, p := range cfg.Plans {
		plans.Apply(id, p.EmailsPerDay, p.EmailsPerMonth, p.Campaigns, p.Contacts, p.Templates)
	}

	var snd sender.Sender
	switch cfg.Sender.Mode {
	case "mock":
		zlog.Warnw("using in-memory mock sender, no real emails will be delivered")
		snd = sender.NewMemorySender()
	default:
		snd = sender.NewBrevoSender(cfg.Sender.BaseURL)
	}

	dispatcher := service.NewDispatcher(
		campaignRepo,
		tenantRepo,
		vault,
		quota.NewEnforcer(usageRepo),
		plans,
		snd,
		zlog,
		service.DispatcherConfig{
			BatchSize:   cfg.Worker.BatchSize,
			Concurrency: cfg.Worker.Concurrency,
			SendTimeout: cfg.Worker.SendTimeout,
			MaxAttempts: cfg.Worker.MaxAttempts,
			RetryBase:   cfg.Worker.RetryBase,
			RetryCap:    cfg.Worker.RetryCap,
			QuotaDelay:  cfg.Worker.QuotaDelay,
		},
	)

	if *once {
		n, err := dispatcher.RunOnce(ctx)
		if err != nil {
			zlog.Fatalw("dispatch cycle failed", "err", err)
		}
		zlog.Infow("dispatch cycle complete", "candidates", n)
		return
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		zlog.Infow("worker polling", "interval", cfg.Worker.PollInterval)
		return dispatcher.Run(gctx, cfg.Worker.PollInterval)
	})

	if cfg.AMQP.URL != "" {
		aq, err := queue.NewAMQPQueue(cfg.AMQP.URL, cfg.AMQP.Queue, zlog)
		if err != nil {
			zlog.Fatalw("amqp connect failed", "err", err)
		}
		defer aq.Close()
		g.Go(func() error {
			zlog.Infow("worker consuming dispatch queue", "queue", cfg.AMQP.Queue)
			return aq.Consume(gctx, dispatcher.DispatchByID)
		})
	}

	g.Go(func() error {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		srv := &http.Server{Addr: cfg.Worker.MetricsAddr, Handler: mux}
		go func() {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})

	if err := g.Wait(); err != nil && err != context.Canceled {
		zlog.Errorw("worker stopped", "err", err)
	}
	zlog.Infow("worker shut down")
}
