package template

import (
	"context"
	"fmt"

	"github.com/velora/crm-server/internal/domain"
	"github.com/velora/crm-server/internal/pkg/logger"
	"github.com/velora/crm-server/internal/resend"
)

// Provider lists the remote template catalog.
type Provider interface {
	ListTemplates(ctx context.Context) ([]resend.Template, error)
}

// Upserter persists provider templates locally.
type Upserter interface {
	UpsertFromProvider(ctx context.Context, tpl *domain.EmailTemplate) error
}

// Syncer mirrors the provider's template catalog into the local store.
type Syncer struct {
	provider Provider
	store    Upserter
}

// NewSyncer creates a template syncer.
func NewSyncer(provider Provider, store Upserter) *Syncer {
	return &Syncer{provider: provider, store: store}
}

// Sync pulls all provider templates and upserts them locally, returning how
// many were written. A single failed upsert does not abort the rest.
func (s *Syncer) Sync(ctx context.Context) (int, error) {
	remote, err := s.provider.ListTemplates(ctx)
	if err != nil {
		return 0, fmt.Errorf("fetch provider templates: %w", err)
	}

	synced := 0
	for _, rt := range remote {
		tpl := &domain.EmailTemplate{
			ProviderID: rt.ID,
			Name:       rt.Name,
			Subject:    rt.Subject,
			BodyHTML:   rt.HTML,
			Variables:  ExtractVariables(rt.Subject + " " + rt.HTML),
		}
		if err := s.store.UpsertFromProvider(ctx, tpl); err != nil {
			logger.Error("template sync upsert failed", "provider_id", rt.ID, "error", err.Error())
			continue
		}
		synced++
	}
	logger.Info("template sync complete", "remote", len(remote), "synced", synced)
	return synced, nil
}
