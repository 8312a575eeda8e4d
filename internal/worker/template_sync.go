package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/velora/crm-server/internal/pkg/logger"
)

// DefaultTemplateSyncInterval is how often the provider's template list is
// mirrored into the local store.
const DefaultTemplateSyncInterval = 6 * time.Hour

// TemplateSyncer mirrors provider templates into the local store.
type TemplateSyncer interface {
	Sync(ctx context.Context) (int, error)
}

// TemplateSyncWorker periodically pulls the email provider's templates so
// the campaign builder always lists current ones.
type TemplateSyncWorker struct {
	syncer   TemplateSyncer
	interval time.Duration

	synced int64
	errs   int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewTemplateSyncWorker creates the sync worker.
func NewTemplateSyncWorker(syncer TemplateSyncer, interval time.Duration) *TemplateSyncWorker {
	if interval <= 0 {
		interval = DefaultTemplateSyncInterval
	}
	return &TemplateSyncWorker{syncer: syncer, interval: interval}
}

// Start begins the sync loop. The first sync runs immediately so a fresh
// deployment has templates without waiting a full interval.
func (w *TemplateSyncWorker) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("template sync worker already running")
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.mu.Unlock()

	logger.Info("template-sync: starting", "interval", w.interval.String())

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop gracefully stops the worker.
func (w *TemplateSyncWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()
	logger.Info("template-sync: stopped",
		"templates_synced", atomic.LoadInt64(&w.synced),
		"errors", atomic.LoadInt64(&w.errs))
}

func (w *TemplateSyncWorker) loop() {
	defer w.wg.Done()

	w.runOnce()

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.ctx.Done():
			return
		case <-ticker.C:
			w.runOnce()
		}
	}
}

func (w *TemplateSyncWorker) runOnce() {
	ctx, cancel := context.WithTimeout(w.ctx, 2*time.Minute)
	defer cancel()

	n, err := w.syncer.Sync(ctx)
	if err != nil {
		atomic.AddInt64(&w.errs, 1)
		logger.Error("template-sync: sync failed", "error", err)
		return
	}
	atomic.AddInt64(&w.synced, int64(n))
	logger.Info("template-sync: completed", "templates", n)
}
