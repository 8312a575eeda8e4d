package worker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/velora/crm-server/internal/campaign"
	"github.com/velora/crm-server/internal/domain"
	"github.com/velora/crm-server/internal/pkg/logger"
)

// DefaultSchedulerPollInterval is how often the scheduler checks for due
// and in-flight campaigns.
const DefaultSchedulerPollInterval = 60 * time.Second

// CampaignSource lists the campaigns the scheduler acts on.
type CampaignSource interface {
	DueCampaigns(ctx context.Context, now time.Time) ([]domain.Campaign, error)
	ListCampaigns(ctx context.Context, status domain.CampaignStatus) ([]domain.Campaign, error)
}

// CampaignRunner starts or continues a campaign send.
type CampaignRunner interface {
	Send(ctx context.Context, id string, tagIDs []string) (*campaign.Result, error)
}

// Scheduler polls for scheduled campaigns whose send time has arrived and
// keeps draining sending campaigns one batch per tick until their queues
// are empty.
type Scheduler struct {
	source       CampaignSource
	runner       CampaignRunner
	pollInterval time.Duration

	// Stats
	started int64
	batches int64
	errs    int64

	// Control
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.Mutex
	running bool
}

// NewScheduler creates a campaign scheduler.
func NewScheduler(source CampaignSource, runner CampaignRunner, pollInterval time.Duration) *Scheduler {
	if pollInterval <= 0 {
		pollInterval = DefaultSchedulerPollInterval
	}
	return &Scheduler{source: source, runner: runner, pollInterval: pollInterval}
}

// Start begins the polling loop.
func (s *Scheduler) Start() error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return fmt.Errorf("scheduler already running")
	}
	s.running = true
	s.ctx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	logger.Info("scheduler: starting", "poll_interval", s.pollInterval.String())

	s.wg.Add(1)
	go s.loop()
	return nil
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	s.cancel()
	s.wg.Wait()
	logger.Info("scheduler: stopped",
		"campaigns_started", atomic.LoadInt64(&s.started),
		"batches_run", atomic.LoadInt64(&s.batches),
		"errors", atomic.LoadInt64(&s.errs))
}

func (s *Scheduler) loop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.ctx.Done():
			return
		case <-ticker.C:
			s.Tick(s.ctx)
		}
	}
}

// Tick runs one scheduler pass: start due campaigns, then continue draining
// campaigns already in sending. Exported so tests and the CLI can drive it
// directly.
func (s *Scheduler) Tick(ctx context.Context) {
	due, err := s.source.DueCampaigns(ctx, time.Now())
	if err != nil {
		atomic.AddInt64(&s.errs, 1)
		logger.Error("scheduler: due campaign query failed", "error", err)
	}
	for i := range due {
		if s.run(ctx, due[i].ID) {
			atomic.AddInt64(&s.started, 1)
		}
	}

	sending, err := s.source.ListCampaigns(ctx, domain.CampaignSending)
	if err != nil {
		atomic.AddInt64(&s.errs, 1)
		logger.Error("scheduler: sending campaign query failed", "error", err)
		return
	}
	for i := range sending {
		s.run(ctx, sending[i].ID)
	}
}

// run executes one send batch for a campaign. Returns false when the send
// was skipped or failed.
func (s *Scheduler) run(ctx context.Context, id string) bool {
	result, err := s.runner.Send(ctx, id, nil)
	switch {
	case err == nil:
		atomic.AddInt64(&s.batches, 1)
		logger.Info("scheduler: batch dispatched", "campaign_id", id,
			"sent", result.Sent, "failed", result.Failed)
		return true
	case errors.Is(err, campaign.ErrDispatchInProgress):
		// Another worker holds the campaign lock; it will drain the queue.
		return false
	case errors.Is(err, campaign.ErrNotSendable):
		// Paused or cancelled between the listing and the send.
		return false
	case errors.Is(err, campaign.ErrEmptyAudience):
		logger.Warn("scheduler: campaign has no audience", "campaign_id", id)
		return false
	default:
		atomic.AddInt64(&s.errs, 1)
		logger.Error("scheduler: send failed", "campaign_id", id, "error", err)
		return false
	}
}
