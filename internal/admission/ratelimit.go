package admission

import (
	"context"
	"fmt"
	"time"

	"autopublish/internal/queue"
)

// HourlyWindow is the trailing window the hourly cap applies to.
const HourlyWindow = time.Hour

// RateLimiter combines the hourly and daily caps into one quota.
type RateLimiter struct {
	published PublishedStore
}

// NewRateLimiter builds a limiter over the published-item store.
func NewRateLimiter(published PublishedStore) *RateLimiter {
	return &RateLimiter{published: published}
}

// RemainingQuota returns how many candidates may still go live now. When the
// quota is zero, reason names the exhausted limit; the daily limit is
// checked first.
func (r *RateLimiter) RemainingQuota(ctx context.Context, settings queue.Settings, now time.Time) (int, string, error) {
	dailyRemaining := settings.DailyCap - settings.PublishedToday
	if dailyRemaining <= 0 {
		return 0, fmt.Sprintf("daily limit reached (%d/%d)", settings.PublishedToday, settings.DailyCap), nil
	}

	recent, err := r.published.PublishedCountSince(ctx, now.Add(-HourlyWindow))
	if err != nil {
		return 0, "", fmt.Errorf("count recent publications: %w", err)
	}
	hourlyRemaining := settings.HourlyCap - recent
	if hourlyRemaining <= 0 {
		return 0, fmt.Sprintf("hourly limit reached (%d/%d)", recent, settings.HourlyCap), nil
	}

	return min(hourlyRemaining, dailyRemaining), "", nil
}
