package ratelimit

import "context"

// RateLimiter bounds outbound delivery throughput per subscriber endpoint host.
type RateLimiter interface {
	Allow(ctx context.Context, endpoint string) (bool, error)
	Wait(ctx context.Context, endpoint string) error
}
