package feed

import (
	"context"
	"log/slog"
	"time"

	"github.com/sonroyaalmerol/tubeplay/internal/repository"
	"github.com/sonroyaalmerol/tubeplay/internal/resolver"
)

// Store is the slice of the repository the feed needs.
type Store interface {
	ListSubscriptions(ctx context.Context) ([]repository.Subscription, error)
	ReplaceFeedItems(ctx context.Context, subscriptionID int64, items []repository.FeedItem) error
	ListFeedItems(ctx context.Context, limit int) ([]repository.FeedItem, error)
}

// Lister resolves a channel URL to its uploads.
type Lister interface {
	Playlist(ctx context.Context, url string, limit int) ([]resolver.Entry, error)
}

// Aggregator refreshes the subscription feed by fetching each channel's
// newest uploads.
type Aggregator struct {
	store      Store
	lister     Lister
	perChannel int
}

func New(store Store, lister Lister, perChannel int) *Aggregator {
	if perChannel <= 0 {
		perChannel = 20
	}
	return &Aggregator{store: store, lister: lister, perChannel: perChannel}
}

// Refresh fetches every subscription's uploads and replaces its stored feed
// items. A failing channel is logged and skipped, the rest still refresh.
func (a *Aggregator) Refresh(ctx context.Context) error {
	subs, err := a.store.ListSubscriptions(ctx)
	if err != nil {
		return err
	}
	now := time.Now()
	for _, sub := range subs {
		entries, err := a.lister.Playlist(ctx, sub.URL, a.perChannel)
		if err != nil {
			slog.Warn("feed refresh failed for channel", "url", sub.URL, "error", err)
			continue
		}
		items := make([]repository.FeedItem, 0, len(entries))
		for _, e := range entries {
			items = append(items, repository.FeedItem{
				SubscriptionID: sub.ID,
				URL:            e.URL,
				Title:          e.Title,
				Uploader:       e.Uploader,
				DurationMs:     e.DurationMs,
				FetchedAt:      now,
			})
		}
		if err := a.store.ReplaceFeedItems(ctx, sub.ID, items); err != nil {
			slog.Warn("feed store failed for channel", "url", sub.URL, "error", err)
		}
	}
	return nil
}

// Items lists the newest aggregated uploads.
func (a *Aggregator) Items(ctx context.Context, limit int) ([]repository.FeedItem, error) {
	return a.store.ListFeedItems(ctx, limit)
}
