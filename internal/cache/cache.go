package cache

import (
	"context"
	"time"

	"seller-ops/internal/core"
)

// AvailabilityCache holds the most recent availability snapshot. Computing it
// walks every layer and open order line, so dashboard polling goes through
// here instead of hitting Postgres each time.
type AvailabilityCache interface {
	Get(ctx context.Context, key string) (*core.Availability, bool, error)
	Set(ctx context.Context, key string, value *core.Availability, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}

type NoopAvailabilityCache struct{}

func (NoopAvailabilityCache) Get(_ context.Context, _ string) (*core.Availability, bool, error) {
	return nil, false, nil
}

func (NoopAvailabilityCache) Set(_ context.Context, _ string, _ *core.Availability, _ time.Duration) error {
	return nil
}

func (NoopAvailabilityCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
