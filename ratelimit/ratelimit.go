// Package ratelimit counts attempts per key in fixed windows that start with the first
// attempt and expire after the configured window.
package ratelimit

import (
	"context"
	"time"
)

type Policy struct {
	Attempts int
	Window   time.Duration
}

type Decision struct {
	Allowed    bool
	Remaining  int
	RetryAfter time.Duration
}

type Limiter interface {
	Allow(ctx context.Context, key string) (Decision, error)
}

func decide(policy Policy, count int64, ttl time.Duration) Decision {
	d := Decision{
		Allowed:   count <= int64(policy.Attempts),
		Remaining: policy.Attempts - int(count),
	}
	if d.Remaining < 0 {
		d.Remaining = 0
	}
	if !d.Allowed {
		d.RetryAfter = ttl
		if d.RetryAfter <= 0 {
			d.RetryAfter = time.Second
		}
	}
	return d
}
