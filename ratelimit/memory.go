package ratelimit

import (
	"context"
	"errors"
	"time"
)

var ErrClosed = errors.New("ratelimit: limiter closed")

type window struct {
	count   int64
	expires time.Time
}

type memoryReq struct {
	key    string
	result chan<- Decision
}

// MemoryLimiter keeps the counters in process. A single goroutine owns the map; use it
// when no Redis is configured and the service runs as one instance.
type MemoryLimiter struct {
	policy Policy
	now    func() time.Time
	reqs   chan memoryReq
	done   chan struct{}
}

func NewMemoryLimiter(policy Policy) *MemoryLimiter {
	return newMemoryLimiter(policy, time.Now)
}

func newMemoryLimiter(policy Policy, now func() time.Time) *MemoryLimiter {
	if policy.Window <= 0 {
		policy.Window = time.Hour
	}
	l := &MemoryLimiter{
		policy: policy,
		now:    now,
		reqs:   make(chan memoryReq),
		done:   make(chan struct{}),
	}
	go l.run()
	return l
}

func (l *MemoryLimiter) run() {
	windows := make(map[string]*window)
	sweep := time.NewTicker(l.policy.Window)
	defer sweep.Stop()

	for {
		select {
		case req := <-l.reqs:
			now := l.now()
			w := windows[req.key]
			if w == nil || !now.Before(w.expires) {
				w = &window{expires: now.Add(l.policy.Window)}
				windows[req.key] = w
			}
			w.count++
			req.result <- decide(l.policy, w.count, w.expires.Sub(now))

		case <-sweep.C:
			now := l.now()
			for key, w := range windows {
				if !now.Before(w.expires) {
					delete(windows, key)
				}
			}

		case <-l.done:
			return
		}
	}
}

func (l *MemoryLimiter) Allow(ctx context.Context, key string) (Decision, error) {
	result := make(chan Decision, 1)
	select {
	case l.reqs <- memoryReq{key: key, result: result}:
	case <-l.done:
		return Decision{}, ErrClosed
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	}
	return <-result, nil
}

// Close stops the owning goroutine; later calls to Allow fail.
func (l *MemoryLimiter) Close() {
	close(l.done)
}
