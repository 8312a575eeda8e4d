package campaign

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/velora/crm-server/internal/domain"
	"github.com/velora/crm-server/internal/pkg/logger"
)

// RSSDrafter turns new items from the storefront's product feed into draft
// campaigns the marketing team can review and send.
type RSSDrafter struct {
	store      *Store
	feedParser *gofeed.Parser
	feedURL    string
	fromName   string
	fromEmail  string
	maxItems   int
}

// NewRSSDrafter creates a feed drafter for the given feed URL. Drafts carry
// the brand's default sender so they are sendable once reviewed.
func NewRSSDrafter(store *Store, feedURL, fromName, fromEmail string) *RSSDrafter {
	return &RSSDrafter{
		store:      store,
		feedParser: gofeed.NewParser(),
		feedURL:    feedURL,
		fromName:   fromName,
		fromEmail:  fromEmail,
		maxItems:   3,
	}
}

// FeedItem is one entry pulled from the product feed.
type FeedItem struct {
	GUID        string    `json:"guid"`
	Title       string    `json:"title"`
	Description string    `json:"description"`
	Link        string    `json:"link"`
	ImageURL    string    `json:"image_url"`
	PubDate     time.Time `json:"pub_date"`
}

// Poll fetches the feed and returns items not yet turned into drafts,
// newest first, capped at maxItems.
func (r *RSSDrafter) Poll(ctx context.Context) ([]FeedItem, error) {
	feed, err := r.feedParser.ParseURLWithContext(r.feedURL, ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch feed: %w", err)
	}

	var items []FeedItem
	for _, item := range feed.Items {
		fi := parseFeedItem(item)
		exists, err := r.draftExists(ctx, fi.GUID)
		if err != nil {
			continue
		}
		if !exists {
			items = append(items, fi)
		}
	}
	if len(items) > r.maxItems {
		items = items[:r.maxItems]
	}
	return items, nil
}

// DraftFromItem creates a draft campaign for one feed item. The draft body
// is a minimal product announcement; the team edits before sending.
func (r *RSSDrafter) DraftFromItem(ctx context.Context, item FeedItem) (*domain.Campaign, error) {
	var body strings.Builder
	body.WriteString("<h1>" + item.Title + "</h1>\n")
	if item.ImageURL != "" {
		body.WriteString(fmt.Sprintf("<img src=%q alt=%q/>\n", item.ImageURL, item.Title))
	}
	if item.Description != "" {
		body.WriteString("<p>" + item.Description + "</p>\n")
	}
	body.WriteString(fmt.Sprintf("<p><a href=%q>Ver na loja</a></p>\n", item.Link))

	c := &domain.Campaign{
		Name:      "Feed: " + item.Title,
		Subject:   item.Title,
		FromName:  r.fromName,
		FromEmail: r.fromEmail,
		BodyHTML:  body.String(),
		Status:    domain.CampaignDraft,
	}
	if err := r.store.CreateCampaign(ctx, c); err != nil {
		return nil, err
	}
	if err := r.recordDraft(ctx, item.GUID, c.ID); err != nil {
		logger.Warn("record rss draft failed", "guid", item.GUID, "error", err.Error())
	}
	logger.Info("draft campaign created from feed", "campaign_id", c.ID, "guid", item.GUID)
	return c, nil
}

func (r *RSSDrafter) draftExists(ctx context.Context, guid string) (bool, error) {
	var n int
	err := r.store.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM crm_rss_drafts WHERE guid = $1`, guid).Scan(&n)
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *RSSDrafter) recordDraft(ctx context.Context, guid, campaignID string) error {
	_, err := r.store.db.ExecContext(ctx, `
		INSERT INTO crm_rss_drafts (guid, campaign_id, created_at)
		VALUES ($1, $2, NOW()) ON CONFLICT DO NOTHING`, guid, campaignID)
	return err
}

func parseFeedItem(item *gofeed.Item) FeedItem {
	fi := FeedItem{
		GUID:        item.GUID,
		Title:       item.Title,
		Description: stripHTML(item.Description),
		Link:        item.Link,
	}
	if fi.GUID == "" {
		fi.GUID = item.Link
	}
	if item.PublishedParsed != nil {
		fi.PubDate = *item.PublishedParsed
	} else {
		fi.PubDate = time.Now()
	}
	if item.Image != nil {
		fi.ImageURL = item.Image.URL
	} else if len(item.Enclosures) > 0 {
		for _, enc := range item.Enclosures {
			if strings.HasPrefix(enc.Type, "image/") {
				fi.ImageURL = enc.URL
				break
			}
		}
	}
	return fi
}
