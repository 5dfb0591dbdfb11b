// Package throttle provides sliding-window admission control keyed by
// arbitrary strings (tenant, site, or endpoint).
package throttle

import (
	"sync"
	"time"
)

// Limiter admits up to limit operations per key within a trailing window.
// Denial is advisory: a denied caller records a skip and retries on its next
// scheduled run. All methods are thread-safe.
type Limiter struct {
	mu      sync.Mutex
	limit   int
	window  time.Duration
	keys    map[string][]time.Time
	stop    chan struct{}
	stopped sync.Once
	now     func() time.Time
}

// NewLimiter creates a limiter admitting limit operations per window per key.
func NewLimiter(limit int, window time.Duration) *Limiter {
	return &Limiter{
		limit:  limit,
		window: window,
		keys:   make(map[string][]time.Time),
		stop:   make(chan struct{}),
		now:    time.Now,
	}
}

// Allow records an admission for key and returns true, or returns false if
// the key has exhausted its window budget.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	cutoff := now.Add(-l.window)

	stamps := l.keys[key]
	live := stamps[:0]
	for _, ts := range stamps {
		if ts.After(cutoff) {
			live = append(live, ts)
		}
	}

	if len(live) >= l.limit {
		l.keys[key] = live
		return false
	}

	l.keys[key] = append(live, now)
	return true
}

// Remaining returns how many admissions key has left in the current window.
func (l *Limiter) Remaining(key string) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	live := 0
	for _, ts := range l.keys[key] {
		if ts.After(cutoff) {
			live++
		}
	}
	if live >= l.limit {
		return 0
	}
	return l.limit - live
}

// Reset clears all recorded admissions for key.
func (l *Limiter) Reset(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.keys, key)
}

// Start launches the idle-key sweeper. Keys with no admissions inside the
// window are dropped so the map doesn't grow unboundedly with tenant churn.
func (l *Limiter) Start(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				l.sweep()
			case <-l.stop:
				return
			}
		}
	}()
}

// Stop terminates the sweeper goroutine.
func (l *Limiter) Stop() {
	l.stopped.Do(func() { close(l.stop) })
}

func (l *Limiter) sweep() {
	l.mu.Lock()
	defer l.mu.Unlock()

	cutoff := l.now().Add(-l.window)
	for key, stamps := range l.keys {
		live := stamps[:0]
		for _, ts := range stamps {
			if ts.After(cutoff) {
				live = append(live, ts)
			}
		}
		if len(live) == 0 {
			delete(l.keys, key)
		} else {
			l.keys[key] = live
		}
	}
}
