// cmd/server/main.go
package main

import (
	"context"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mailkite/campaign-engine/internal/config"
	"github.com/mailkite/campaign-engine/internal/controller"
	"github.com/mailkite/campaign-engine/internal/db"
	"github.com/mailkite/campaign-engine/internal/handler"
	"github.com/mailkite/campaign-engine/internal/logger"
	"github.com/mailkite/campaign-engine/internal/quota"
	"github.com/mailkite/campaign-engine/internal/queue"
	"github.com/mailkite/campaign-engine/internal/repository"
	"github.com/mailkite/campaign-engine/internal/secrets"
	"github.com/mailkite/campaign-engine/internal/service"
)

func main() {
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
	zlog.Infow("connected to database")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	keyCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	masterKey, err := secrets.LoadMasterKey(keyCtx, cfg.Crypto.MasterKey, cfg.Crypto.VaultPath, cfg.Crypto.VaultField)
	cancel()
	if err != nil {
		zlog.Fatalw("master key unavailable", "err", err)
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

	var q queue.Queue
	if cfg.AMQP.URL != "" {
		aq, err := queue.NewAMQPQueue(cfg.AMQP.URL, cfg.AMQP.Queue, zlog)
		if err != nil {
			zlog.Fatalw("amqp connect failed", "err", err)
		}
		defer aq.Close()
		q = aq
	} else {
		zlog.Warnw("no amqp url configured, dispatch relies on worker polling only")
	}

	campaignService := &service.CampaignService{
		CampaignRepo: campaignRepo,
		TenantRepo:   tenantRepo,
		Quota:        quota.NewEnforcer(usageRepo),
		Plans:        plans,
		Queue:        q,
		Log:          zlog,
	}

	campaignController := &controller.CampaignController{CampaignService: campaignService}
	tenantHandler := &handler.TenantHandler{Vault: vault, CampaignService: campaignService}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)

	r.Post("/campaigns", campaignController.CreateCampaign)
	r.Get("/campaigns", campaignController.ListCampaigns)
	r.Get("/campaigns/{id}", campaignController.GetCampaign)
	r.Post("/campaigns/{id}/enqueue", campaignController.EnqueueCampaign)
	r.Post("/campaigns/{id}/personalized-preview", campaignController.PersonalizedPreview)

	r.Post("/tenants/{id}/keys", tenantHandler.SaveKey)
	r.Post("/tenants/{id}/keys/{keyID}/activate", tenantHandler.ActivateKey)
	r.Post("/tenants/{id}/keys/migrate", tenantHandler.MigrateKeys)
	r.Get("/tenants/{id}/quota", tenantHandler.Quota)

	r.Handle("/metrics", promhttp.Handler())
	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	srv := &http.Server{Addr: cfg.HTTP.ListenAddr, Handler: r}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(shutdownCtx)
	}()

	zlog.Infow("🚀 server running", "addr", cfg.HTTP.ListenAddr)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		zlog.Fatalw("server stopped", "err", err)
	}
	zlog.Infow("server shut down")
}
