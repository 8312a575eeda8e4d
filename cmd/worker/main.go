package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"github.com/redis/go-redis/v9"

	"github.com/velora/crm-server/internal/campaign"
	"github.com/velora/crm-server/internal/config"
	"github.com/velora/crm-server/internal/crm"
	"github.com/velora/crm-server/internal/pkg/distlock"
	"github.com/velora/crm-server/internal/resend"
	"github.com/velora/crm-server/internal/template"
	"github.com/velora/crm-server/internal/worker"
)

// Standalone worker binary: runs the campaign scheduler, template sync, and
// RSS drafter without the HTTP server. Deploy it separately when dispatch
// volume should not share a process with the dashboard API.
func main() {
	log.Println("Velora CRM worker starting")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Failed to ping database: %v", err)
	}
	pingCancel()
	log.Println("Connected to database")

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("Warning: Redis unavailable, using PG advisory locks: %v", err)
			redisClient.Close()
			redisClient = nil
		}
		pingCancel()
	}

	crmStore := crm.NewStore(db)
	campaignStore := campaign.NewStore(db)
	templateStore := template.NewStore(db)
	engine := template.NewEngine()
	resendClient := resend.NewClient(cfg.Resend)
	syncer := template.NewSyncer(resendClient, templateStore)

	lockTTL := cfg.Dispatch.LockTTL()
	locks := campaign.LockFactory(func(campaignID string) campaign.Lock {
		return distlock.NewLock(redisClient, db, "dispatch:campaign:"+campaignID, lockTTL)
	})

	dispatcher := campaign.NewDispatcher(campaignStore, resendClient, engine, locks)
	dispatcher.SetBatchSize(cfg.Dispatch.BatchSize)
	dispatcher.SetPacing(cfg.Dispatch.Pacing())
	enqueuer := campaign.NewEnqueuer(campaignStore, crmStore)
	campaignSvc := campaign.NewService(campaignStore, enqueuer, dispatcher, resendClient)

	scheduler := worker.NewScheduler(campaignStore, campaignSvc,
		time.Duration(cfg.Dispatch.SchedulerPollSeconds)*time.Second)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}

	syncWorker := worker.NewTemplateSyncWorker(syncer, 0)
	if cfg.Resend.APIKey != "" {
		if err := syncWorker.Start(); err != nil {
			log.Fatalf("Failed to start template sync: %v", err)
		}
	}

	var rssWorker *worker.RSSWorker
	if cfg.RSS.Enabled && cfg.RSS.FeedURL != "" {
		drafter := campaign.NewRSSDrafter(campaignStore, cfg.RSS.FeedURL, cfg.Resend.FromName, cfg.Resend.FromEmail)
		rssWorker = worker.NewRSSWorker(drafter, 0)
		if err := rssWorker.Start(); err != nil {
			log.Fatalf("Failed to start rss worker: %v", err)
		}
	}

	log.Println("Worker running")

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker")
	scheduler.Stop()
	if cfg.Resend.APIKey != "" {
		syncWorker.Stop()
	}
	if rssWorker != nil {
		rssWorker.Stop()
	}
	if redisClient != nil {
		redisClient.Close()
	}
	log.Println("Worker stopped")
}
