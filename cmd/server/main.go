package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/velora/crm-server/internal/analytics"
	"github.com/velora/crm-server/internal/api"
	"github.com/velora/crm-server/internal/auth"
	"github.com/velora/crm-server/internal/campaign"
	"github.com/velora/crm-server/internal/config"
	"github.com/velora/crm-server/internal/crm"
	"github.com/velora/crm-server/internal/export"
	"github.com/velora/crm-server/internal/pkg/distlock"
	"github.com/velora/crm-server/internal/resend"
	"github.com/velora/crm-server/internal/segment"
	"github.com/velora/crm-server/internal/template"
	"github.com/velora/crm-server/internal/worker"
)

// checkPortAvailable verifies that the target port is not already in use.
func checkPortAvailable(host string, port int) error {
	addr := fmt.Sprintf("%s:%d", host, port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("port %d is already in use (addr %s): %v", port, addr, err)
	}
	ln.Close()
	return nil
}

func extractHost(dsn string) string {
	at := strings.Index(dsn, "@")
	if at < 0 {
		return "(unknown)"
	}
	rest := dsn[at+1:]
	if slash := strings.Index(rest, "/"); slash >= 0 {
		rest = rest[:slash]
	}
	return rest
}

func main() {
	log.Println("Velora CRM server starting")

	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if os.Getenv("DATABASE_URL") != "" {
		log.Println("[config] DATABASE_URL env override active")
	}

	host := cfg.Server.GetHost()
	port := cfg.Server.Port
	if err := checkPortAvailable(host, port); err != nil {
		log.Fatalf("Pre-flight check FAILED: %v", err)
	}

	// Postgres. Statement timeouts keep a stuck query from wedging the pool.
	dbURL := cfg.Database.URL
	sep := "?"
	if strings.Contains(dbURL, "?") {
		sep = "&"
	}
	if !strings.Contains(dbURL, "connect_timeout") {
		dbURL += sep + "connect_timeout=5"
	}
	log.Printf("DB host: %s", extractHost(dbURL))
	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	db.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	db.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	if err := db.PingContext(pingCtx); err != nil {
		log.Fatalf("Database unreachable: %v", err)
	}
	pingCancel()

	// Redis for dispatch locks. Optional; when absent the locks fall back
	// to Postgres advisory locks.
	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		pingCtx, pingCancel := context.WithTimeout(context.Background(), 3*time.Second)
		if err := redisClient.Ping(pingCtx).Err(); err != nil {
			log.Printf("Warning: Redis connection failed (%s): %v — falling back to PG advisory locks",
				cfg.Redis.Addr, err)
			redisClient.Close()
			redisClient = nil
		}
		pingCancel()
	}

	// Core services.
	crmStore := crm.NewStore(db)
	campaignStore := campaign.NewStore(db)
	templateStore := template.NewStore(db)
	engine := template.NewEngine()
	resendClient := resend.NewClient(cfg.Resend)
	syncer := template.NewSyncer(resendClient, templateStore)
	previewer := segment.NewPreviewer(crmStore)

	lockTTL := cfg.Dispatch.LockTTL()
	locks := campaign.LockFactory(func(campaignID string) campaign.Lock {
		return distlock.NewLock(redisClient, db, "dispatch:campaign:"+campaignID, lockTTL)
	})

	dispatcher := campaign.NewDispatcher(campaignStore, resendClient, engine, locks)
	dispatcher.SetBatchSize(cfg.Dispatch.BatchSize)
	dispatcher.SetPacing(cfg.Dispatch.Pacing())
	enqueuer := campaign.NewEnqueuer(campaignStore, crmStore)
	campaignSvc := campaign.NewService(campaignStore, enqueuer, dispatcher, resendClient)

	// Navigation analytics from the storefront data lake.
	var navSource api.NavigationSource
	if cfg.Snowflake.Enabled {
		client, err := analytics.NewClient(cfg.Snowflake)
		if err != nil {
			log.Printf("Warning: analytics disabled: %v", err)
		} else {
			defer client.Close()
			navSource = client
		}
	}

	// CSV exports to S3.
	var exporter api.Exporter
	if cfg.Exports.Enabled && cfg.Exports.S3Bucket != "" {
		exp, err := export.NewExporter(context.Background(), cfg.Exports)
		if err != nil {
			log.Printf("Warning: exports disabled: %v", err)
		} else {
			exporter = exp
		}
	}

	// Authentication.
	var authManager *auth.Manager
	if cfg.Auth.Enabled && cfg.Auth.GoogleClientID != "" {
		baseURL := fmt.Sprintf("http://%s:%d", host, port)
		if os.Getenv("ECS_CONTAINER_METADATA_URI") != "" {
			baseURL = "https://admin.velora.com.br"
		}
		if envURL := os.Getenv("AUTH_BASE_URL"); envURL != "" {
			baseURL = envURL
		}

		authManager = auth.NewManager(&cfg.Auth, baseURL)
		if err := authManager.ValidateCredentials(context.Background()); err != nil {
			log.Fatalf("OAuth pre-flight FAILED: %v", err)
		}
		authManager.CleanupExpiredSessions()
		log.Printf("Google OAuth enabled for domain: %s", cfg.Auth.AllowedDomain)
	} else {
		log.Println("Authentication disabled")
	}

	// Background workers.
	scheduler := worker.NewScheduler(campaignStore, campaignSvc,
		time.Duration(cfg.Dispatch.SchedulerPollSeconds)*time.Second)
	if err := scheduler.Start(); err != nil {
		log.Fatalf("Failed to start scheduler: %v", err)
	}
	defer scheduler.Stop()

	syncWorker := worker.NewTemplateSyncWorker(syncer, 0)
	if cfg.Resend.APIKey != "" {
		if err := syncWorker.Start(); err != nil {
			log.Fatalf("Failed to start template sync: %v", err)
		}
		defer syncWorker.Stop()
	}

	var rssWorker *worker.RSSWorker
	if cfg.RSS.Enabled && cfg.RSS.FeedURL != "" {
		drafter := campaign.NewRSSDrafter(campaignStore, cfg.RSS.FeedURL, cfg.Resend.FromName, cfg.Resend.FromEmail)
		rssWorker = worker.NewRSSWorker(drafter, 0)
		if err := rssWorker.Start(); err != nil {
			log.Fatalf("Failed to start rss worker: %v", err)
		}
		defer rssWorker.Stop()
	}

	// HTTP server.
	handlers := api.NewHandlers(crmStore, campaignSvc, templateStore, syncer, previewer, navSource, exporter)
	server := api.NewServer(handlers, authManager)

	errCh := make(chan error, 1)
	go func() {
		addr := fmt.Sprintf("%s:%d", host, port)
		log.Printf("Listening on %s", addr)
		errCh <- server.ListenAndServe(addr)
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Fatalf("Server error: %v", err)
	case sig := <-stop:
		log.Printf("Received %v, shutting down", sig)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
	if redisClient != nil {
		redisClient.Close()
	}
	db.Close()
	log.Println("Server stopped")
}
