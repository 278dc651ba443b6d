// Package interest materializes the set of members interested in an event.
package interest

import (
	"context"
	"fmt"
	"log/slog"

	"discoops/internal/metrics"
	"discoops/internal/models"
	"discoops/internal/platform"
)

// Fetcher turns the platform's interested-user listing into a member set.
type Fetcher struct {
	logger *slog.Logger
	source platform.EventSource
}

// NewFetcher creates a new Fetcher.
func NewFetcher(logger *slog.Logger, source platform.EventSource) *Fetcher {
	return &Fetcher{logger: logger, source: source}
}

// Fetch returns the interested members of an event that are resident in cache.
// Users the cache cannot resolve are dropped and never counted. The result is
// computed fresh on every call; the event's advisory interested count is not used.
// A listing error fails the whole fetch; a partial set is never returned.
func (f *Fetcher) Fetch(ctx context.Context, guildID, eventID string, cache platform.MemberCache) (models.MemberSet, error) {
	set := make(models.MemberSet)
	excluded := 0
	for id, err := range f.source.InterestedUsers(ctx, guildID, eventID) {
		if err != nil {
			return nil, fmt.Errorf("failed to list interested users: %w", err)
		}
		if !cache.Has(id) {
			excluded++
			continue
		}
		set.Add(id)
	}

	if excluded > 0 {
		metrics.InterestedExcluded.Add(float64(excluded))
		f.logger.Debug("Excluded interested users missing from the member cache.", "event", eventID, "excluded", excluded)
	}
	f.logger.Debug("Fetched interested members.", "event", eventID, "count", len(set))
	return set, nil
}
