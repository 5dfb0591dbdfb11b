package sync

import (
	"sync"
	"time"
)

// selfWrite records one outbound push so its webhook echo can be recognized.
type selfWrite struct {
	token        string // push correlation token, carried back by the plugin
	remoteMarker string // remote revision marker produced by the push
	stampedAt    time.Time
}

// SelfWrites tracks short-lived "self-write" markers stamped by the push
// service. The webhook ingest path consults them to discard echoes of the
// engine's own writes before they reach conflict detection.
//
// When the companion plugin carries the push's origin token back in its
// webhook payload, matching is exact. Without a token the fallback is the
// remote revision marker within the TTL window.
type SelfWrites struct {
	mu    sync.RWMutex
	ttl   time.Duration
	marks map[string]selfWrite // keyed by content id
	stop  chan struct{}
	once  sync.Once
	now   func() time.Time
}

// NewSelfWrites creates a marker store with the given suppression window.
// The window should be on the order of the round-trip to the remote site
// and back.
func NewSelfWrites(ttl time.Duration) *SelfWrites {
	return &SelfWrites{
		ttl:   ttl,
		marks: make(map[string]selfWrite),
		stop:  make(chan struct{}),
		now:   time.Now,
	}
}

// Stamp records a push for contentID. Overwrites any previous stamp.
func (s *SelfWrites) Stamp(contentID, token, remoteMarker string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.marks[contentID] = selfWrite{
		token:        token,
		remoteMarker: remoteMarker,
		stampedAt:    s.now(),
	}
}

// Match reports whether an inbound change for contentID is an echo of a
// recent push. A non-empty token match is authoritative; otherwise the
// inbound remote marker must equal what was just pushed, inside the window.
func (s *SelfWrites) Match(contentID, token, remoteMarker string) bool {
	s.mu.RLock()
	mark, ok := s.marks[contentID]
	s.mu.RUnlock()

	if !ok || s.now().Sub(mark.stampedAt) > s.ttl {
		return false
	}
	if token != "" && mark.token != "" {
		return token == mark.token
	}
	return remoteMarker != "" && remoteMarker == mark.remoteMarker
}

// Start launches the periodic sweep of expired marks.
func (s *SelfWrites) Start(interval time.Duration) {
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				s.sweep()
			case <-s.stop:
				return
			}
		}
	}()
}

// Stop terminates the sweeper goroutine.
func (s *SelfWrites) Stop() {
	s.once.Do(func() { close(s.stop) })
}

func (s *SelfWrites) sweep() {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := s.now().Add(-s.ttl)
	for id, mark := range s.marks {
		if mark.stampedAt.Before(cutoff) {
			delete(s.marks, id)
		}
	}
}
