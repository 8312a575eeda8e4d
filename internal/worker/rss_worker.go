package worker

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/velora/crm-server/internal/campaign"
	"github.com/velora/crm-server/internal/pkg/logger"
)

// DefaultRSSPollInterval is how often the content feed is checked for new
// posts to draft campaigns from.
const DefaultRSSPollInterval = 1 * time.Hour

// RSSWorker polls the blog feed and drafts a campaign for each new post.
// Drafts are never sent automatically; the marketing team reviews them in
// the dashboard.
type RSSWorker struct {
	drafter  *campaign.RSSDrafter
	interval time.Duration

	drafts int64
	errs   int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewRSSWorker creates the feed poller.
func NewRSSWorker(drafter *campaign.RSSDrafter, interval time.Duration) *RSSWorker {
	if interval <= 0 {
		interval = DefaultRSSPollInterval
	}
	return &RSSWorker{drafter: drafter, interval: interval}
}

// Start begins the polling loop.
func (w *RSSWorker) Start() error {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return fmt.Errorf("rss worker already running")
	}
	w.running = true
	w.ctx, w.cancel = context.WithCancel(context.Background())
	w.mu.Unlock()

	logger.Info("rss-worker: starting", "interval", w.interval.String())

	w.wg.Add(1)
	go w.loop()
	return nil
}

// Stop gracefully stops the worker.
func (w *RSSWorker) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return
	}
	w.running = false
	w.mu.Unlock()

	w.cancel()
	w.wg.Wait()
	logger.Info("rss-worker: stopped",
		"drafts_created", atomic.LoadInt64(&w.drafts),
		"errors", atomic.LoadInt64(&w.errs))
}

func (w *RSSWorker) loop() {
	defer w.wg.Done()

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

func (w *RSSWorker) runOnce() {
	ctx, cancel := context.WithTimeout(w.ctx, 2*time.Minute)
	defer cancel()

	items, err := w.drafter.Poll(ctx)
	if err != nil {
		atomic.AddInt64(&w.errs, 1)
		logger.Error("rss-worker: feed poll failed", "error", err)
		return
	}

	for _, item := range items {
		c, err := w.drafter.DraftFromItem(ctx, item)
		if err != nil {
			atomic.AddInt64(&w.errs, 1)
			logger.Error("rss-worker: draft failed", "guid", item.GUID, "error", err)
			continue
		}
		atomic.AddInt64(&w.drafts, 1)
		logger.Info("rss-worker: campaign drafted", "campaign_id", c.ID, "title", item.Title)
	}
}
