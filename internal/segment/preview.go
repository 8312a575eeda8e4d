package segment

import (
	"context"
	"sync"
	"time"

	"github.com/velora/crm-server/internal/domain"
	"github.com/velora/crm-server/internal/pkg/logger"
)

// DefaultDebounce is how long the previewer waits after the last filter
// change before counting. Matches the dashboard's typing cadence.
const DefaultDebounce = 500 * time.Millisecond

// CustomerSource supplies the eligible customer set for preview counts.
// Eligible means marketing_emails is on and the customer is not blocked.
type CustomerSource interface {
	EligibleCustomers(ctx context.Context) ([]domain.Customer, error)
}

// Previewer computes segment preview counts. Synchronous counts go through
// Count; the dashboard's live preview uses Preview, which debounces rapid
// filter edits and guarantees only the latest request's result is
// delivered.
type Previewer struct {
	src      CustomerSource
	debounce time.Duration

	mu    sync.Mutex
	timer *time.Timer
	seq   uint64
}

// NewPreviewer returns a Previewer with the default debounce window.
func NewPreviewer(src CustomerSource) *Previewer {
	return &Previewer{src: src, debounce: DefaultDebounce}
}

// NewPreviewerWithDebounce is used by tests to shrink the window.
func NewPreviewerWithDebounce(src CustomerSource, d time.Duration) *Previewer {
	return &Previewer{src: src, debounce: d}
}

// Count fetches the eligible customer set and returns how many match group,
// optionally intersected with a tag membership id set (nil means no tag
// filter). The count reflects the full compiled filter, not just the
// eligible total.
func (p *Previewer) Count(ctx context.Context, group *FilterGroup, tagSet map[string]struct{}) (int, error) {
	customers, err := p.src.EligibleCustomers(ctx)
	if err != nil {
		return 0, err
	}
	count := 0
	for i := range customers {
		c := &customers[i]
		if tagSet != nil {
			if _, ok := tagSet[c.ID]; !ok {
				continue
			}
		}
		if Evaluate(group, c) {
			count++
		}
	}
	return count, nil
}

// Preview schedules a debounced count and invokes deliver with the result.
// Calls arriving within the debounce window supersede pending ones, and a
// slow count that finishes after a newer request started is dropped, so
// deliver only ever sees the latest selection's count. Count errors are
// logged and delivered as 0 so the dashboard shows an empty preview rather
// than a stale one.
func (p *Previewer) Preview(group *FilterGroup, tagSet map[string]struct{}, deliver func(int)) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.seq++
	seq := p.seq
	if p.timer != nil {
		p.timer.Stop()
	}
	p.timer = time.AfterFunc(p.debounce, func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		count, err := p.Count(ctx, group, tagSet)
		if err != nil {
			logger.Error("segment preview count failed", "error", err.Error())
			count = 0
		}

		p.mu.Lock()
		latest := p.seq == seq
		p.mu.Unlock()
		if latest {
			deliver(count)
		}
	})
}
