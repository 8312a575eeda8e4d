package campaign_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/velora/crm-server/internal/campaign"
	"github.com/velora/crm-server/internal/domain"
	"github.com/velora/crm-server/internal/segment"
)

// =============================================================================
// TEST DOUBLES
// =============================================================================

type fakeAudience struct {
	segments  map[string]*domain.Segment
	customers []domain.Customer
	gotGroup  *segment.FilterGroup
	gotTags   []string
}

func (f *fakeAudience) SegmentByID(_ context.Context, id string) (*domain.Segment, error) {
	return f.segments[id], nil
}

func (f *fakeAudience) FilterCustomers(_ context.Context, group *segment.FilterGroup, tagIDs []string) ([]domain.Customer, error) {
	f.gotGroup = group
	f.gotTags = tagIDs
	if group == nil {
		return f.customers, nil
	}
	var out []domain.Customer
	for i := range f.customers {
		c := f.customers[i]
		if segment.Evaluate(group, &c) {
			out = append(out, c)
		}
	}
	return out, nil
}

type fakeEnqueueRepo struct {
	inserted    []domain.CampaignLog
	recentSends map[string]int
	insertErr   error
}

func (f *fakeEnqueueRepo) InsertLogs(_ context.Context, logs []domain.CampaignLog) error {
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserted = append(f.inserted, logs...)
	return nil
}

func (f *fakeEnqueueRepo) RecentSendCount(_ context.Context, customerID string, _ time.Time) (int, error) {
	return f.recentSends[customerID], nil
}

func (f *fakeEnqueueRepo) RefreshCampaignStats(_ context.Context, _ string) error {
	return nil
}

func audienceCustomers() []domain.Customer {
	return []domain.Customer{
		{ID: "c1", Name: "Ana", Email: "ana@example.com", DaysSinceLastOrder: 65, TotalSpent: 700, MarketingEmails: true},
		{ID: "c2", Name: "Bia", Email: "bia@example.com", DaysSinceLastOrder: 10, TotalSpent: 120, MarketingEmails: true},
		{ID: "c3", Name: "Clara", Email: "clara@example.com", DaysSinceLastOrder: 90, TotalSpent: 80, MarketingEmails: true},
	}
}

// =============================================================================
// ENQUEUE TESTS
// =============================================================================

func TestEnqueue_SegmentFilterApplied(t *testing.T) {
	filters, _ := json.Marshal(map[string]any{
		"operator": "AND",
		"conditions": []map[string]any{
			{"field": "dias_sem_comprar", "operator": ">=", "value": 60},
		},
	})
	audience := &fakeAudience{
		segments:  map[string]*domain.Segment{"seg-1": {ID: "seg-1", FiltersJSON: filters}},
		customers: audienceCustomers(),
	}
	repo := &fakeEnqueueRepo{}

	segID := "seg-1"
	c := &domain.Campaign{ID: "camp-1", SegmentID: &segID}

	result, err := campaign.NewEnqueuer(repo, audience).Enqueue(context.Background(), c, nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if result.Queued != 2 || result.Suppressed != 0 {
		t.Errorf("result = %+v, want 2 queued (only 60+ day customers)", result)
	}
	if len(repo.inserted) != 2 {
		t.Fatalf("inserted %d logs, want 2", len(repo.inserted))
	}
	for _, l := range repo.inserted {
		if l.CustomerID == "c2" {
			t.Error("customer outside the segment was enqueued")
		}
	}
}

func TestEnqueue_SnapshotsPersonalizationVars(t *testing.T) {
	audience := &fakeAudience{customers: audienceCustomers()[:1]}
	repo := &fakeEnqueueRepo{}
	c := &domain.Campaign{ID: "camp-1"}

	if _, err := campaign.NewEnqueuer(repo, audience).Enqueue(context.Background(), c, nil); err != nil {
		t.Fatalf("Enqueue: %v", err)
	}

	meta := repo.inserted[0].Metadata
	if meta["nome"] != "Ana" {
		t.Errorf("metadata nome = %v, want Ana", meta["nome"])
	}
	if meta["dias_sem_comprar"] != 65 {
		t.Errorf("metadata dias_sem_comprar = %v, want 65", meta["dias_sem_comprar"])
	}
}

func TestEnqueue_FrequencyCapSuppresses(t *testing.T) {
	audience := &fakeAudience{customers: audienceCustomers()}
	repo := &fakeEnqueueRepo{recentSends: map[string]int{"c1": 3, "c2": 1}}

	freqCap := 2
	c := &domain.Campaign{ID: "camp-1", FrequencyCap: &freqCap}

	result, err := campaign.NewEnqueuer(repo, audience).Enqueue(context.Background(), c, nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if result.Queued != 2 || result.Suppressed != 1 {
		t.Errorf("result = %+v, want c1 suppressed at the cap", result)
	}
	for _, l := range repo.inserted {
		want := domain.LogQueued
		if l.CustomerID == "c1" {
			want = domain.LogSuppressed
		}
		if l.Status != want {
			t.Errorf("customer %s status = %s, want %s", l.CustomerID, l.Status, want)
		}
	}
}

func TestEnqueue_NoCapMeansNoChecks(t *testing.T) {
	audience := &fakeAudience{customers: audienceCustomers()}
	repo := &fakeEnqueueRepo{recentSends: map[string]int{"c1": 99}}

	c := &domain.Campaign{ID: "camp-1"}
	result, err := campaign.NewEnqueuer(repo, audience).Enqueue(context.Background(), c, nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if result.Suppressed != 0 {
		t.Errorf("suppressed = %d, cap is opt-in per campaign", result.Suppressed)
	}
}

func TestEnqueue_DeduplicatesAudience(t *testing.T) {
	customers := audienceCustomers()
	customers = append(customers, customers[0]) // c1 matched twice
	audience := &fakeAudience{customers: customers}
	repo := &fakeEnqueueRepo{}

	c := &domain.Campaign{ID: "camp-1"}
	result, err := campaign.NewEnqueuer(repo, audience).Enqueue(context.Background(), c, nil)
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if result.Queued != 3 {
		t.Errorf("queued = %d, want 3 distinct recipients", result.Queued)
	}
	if len(repo.inserted) != 3 {
		t.Errorf("inserted %d logs, want one per distinct customer", len(repo.inserted))
	}
}

func TestEnqueue_EmptyAudience(t *testing.T) {
	audience := &fakeAudience{}
	c := &domain.Campaign{ID: "camp-1"}

	_, err := campaign.NewEnqueuer(&fakeEnqueueRepo{}, audience).Enqueue(context.Background(), c, nil)
	if !errors.Is(err, campaign.ErrEmptyAudience) {
		t.Errorf("err = %v, want ErrEmptyAudience", err)
	}
}

func TestEnqueue_ArchivedSegmentStillResolves(t *testing.T) {
	filters, _ := json.Marshal(map[string]any{
		"operator": "AND",
		"conditions": []map[string]any{
			{"field": "dias_sem_comprar", "operator": ">=", "value": 60},
		},
	})
	audience := &fakeAudience{
		segments: map[string]*domain.Segment{
			"seg-old": {ID: "seg-old", FiltersJSON: filters, IsActive: false},
		},
		customers: audienceCustomers(),
	}
	repo := &fakeEnqueueRepo{}

	segID := "seg-old"
	c := &domain.Campaign{ID: "camp-1", SegmentID: &segID}

	result, err := campaign.NewEnqueuer(repo, audience).Enqueue(context.Background(), c, nil)
	if err != nil {
		t.Fatalf("Enqueue with archived segment: %v", err)
	}
	if result.Queued != 2 {
		t.Errorf("queued = %d, want the archived segment's filters still applied", result.Queued)
	}
}

func TestEnqueue_UnknownSegment(t *testing.T) {
	audience := &fakeAudience{segments: map[string]*domain.Segment{}, customers: audienceCustomers()}
	segID := "ghost"
	c := &domain.Campaign{ID: "camp-1", SegmentID: &segID}

	_, err := campaign.NewEnqueuer(&fakeEnqueueRepo{}, audience).Enqueue(context.Background(), c, nil)
	if err == nil {
		t.Error("expected error for missing segment")
	}
}

func TestEnqueue_TagIDsForwarded(t *testing.T) {
	audience := &fakeAudience{customers: audienceCustomers()}
	c := &domain.Campaign{ID: "camp-1"}

	_, err := campaign.NewEnqueuer(&fakeEnqueueRepo{}, audience).Enqueue(context.Background(), c, []string{"t1", "t2"})
	if err != nil {
		t.Fatalf("Enqueue: %v", err)
	}
	if len(audience.gotTags) != 2 {
		t.Errorf("tag ids not forwarded to audience resolution: %v", audience.gotTags)
	}
}
