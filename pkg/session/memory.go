package session

import (
	"fmt"
	"sync"
	"time"
)

// MemoryStore implements Store with in-process storage.
// Suitable for single-node deployments; RedisStore covers shared-state
// deployments.
//
// Features:
//   - Concurrent-safe access
//   - TTL expiration of idle sessions (default: 1 hour)
//   - Sliding-window transcript trimming
//   - Bounded total session count with oldest-idle eviction
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]*record

	window      int
	riskHistory int
	maxAge      time.Duration
	maxSessions int
	cleanupTTL  time.Duration

	stopCleanup chan struct{}
	cleanupOnce sync.Once
}

type record struct {
	turns       []Turn
	confidences []float64
	createdAt   time.Time
	lastSeen    time.Time
}

// MemoryOption is a functional option for configuring MemoryStore.
type MemoryOption func(*MemoryStore)

// WithWindow sets the transcript window size.
func WithWindow(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.window = n
		}
	}
}

// WithRiskHistory sets the confidence history capacity.
func WithRiskHistory(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.riskHistory = n
		}
	}
}

// WithMaxAge sets how long an idle session survives before expiry.
func WithMaxAge(d time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if d > 0 {
			s.maxAge = d
		}
	}
}

// WithMaxSessions caps the total number of live sessions. When the cap is
// reached the oldest-idle session is evicted to admit the new one.
func WithMaxSessions(n int) MemoryOption {
	return func(s *MemoryStore) {
		if n > 0 {
			s.maxSessions = n
		}
	}
}

// WithCleanupInterval sets how often the expiry sweep runs.
func WithCleanupInterval(d time.Duration) MemoryOption {
	return func(s *MemoryStore) {
		if d > 0 {
			s.cleanupTTL = d
		}
	}
}

// NewMemoryStore creates an in-process session store and starts its
// background expiry sweep. Call Close to stop the sweep.
func NewMemoryStore(opts ...MemoryOption) *MemoryStore {
	s := &MemoryStore{
		sessions:    make(map[string]*record),
		window:      DefaultWindow,
		riskHistory: DefaultRiskHistory,
		maxAge:      1 * time.Hour,
		maxSessions: 10_000,
		cleanupTTL:  5 * time.Minute,
		stopCleanup: make(chan struct{}),
	}

	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()

	return s
}

// AppendTurn implements Store.
func (s *MemoryStore) AppendTurn(sessionID string, t Turn) ([]Turn, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.getOrCreateLocked(sessionID)
	r.turns = append(r.turns, t)
	if len(r.turns) > s.window {
		r.turns = r.turns[len(r.turns)-s.window:]
	}
	r.lastSeen = time.Now()

	return cloneTurns(r.turns), nil
}

// Window implements Store.
func (s *MemoryStore) Window(sessionID string) ([]Turn, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.sessions[sessionID]
	if !ok || s.expired(r) {
		return nil, nil
	}
	return cloneTurns(r.turns), nil
}

// SeedIfNew implements Store.
func (s *MemoryStore) SeedIfNew(sessionID string, turns []Turn) (bool, error) {
	if sessionID == "" {
		return false, fmt.Errorf("session id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if r, ok := s.sessions[sessionID]; ok && !s.expired(r) {
		return false, nil
	}

	r := s.getOrCreateLocked(sessionID)
	r.turns = cloneTurns(turns)
	if len(r.turns) > s.window {
		r.turns = r.turns[len(r.turns)-s.window:]
	}
	r.lastSeen = time.Now()
	return true, nil
}

// AppendConfidence implements Store.
func (s *MemoryStore) AppendConfidence(sessionID string, c float64) ([]float64, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	r := s.getOrCreateLocked(sessionID)
	r.confidences = append(r.confidences, c)
	if len(r.confidences) > s.riskHistory {
		r.confidences = r.confidences[len(r.confidences)-s.riskHistory:]
	}
	r.lastSeen = time.Now()

	out := make([]float64, len(r.confidences))
	copy(out, r.confidences)
	return out, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(sessionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.sessions, sessionID)
	return nil
}

// Close stops the expiry sweep.
func (s *MemoryStore) Close() {
	s.cleanupOnce.Do(func() {
		close(s.stopCleanup)
	})
}

// Stats returns current occupancy.
func (s *MemoryStore) Stats() Stats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st := Stats{SessionCount: len(s.sessions)}
	for _, r := range s.sessions {
		st.TotalMessages += len(r.turns)
	}
	return st
}

// getOrCreateLocked returns the live record for sessionID, creating it (and
// evicting the oldest-idle session at the cap) as needed. Caller holds mu.
func (s *MemoryStore) getOrCreateLocked(sessionID string) *record {
	if r, ok := s.sessions[sessionID]; ok {
		if !s.expired(r) {
			return r
		}
		delete(s.sessions, sessionID)
	}

	if len(s.sessions) >= s.maxSessions {
		s.evictOldestLocked()
	}

	r := &record{createdAt: time.Now(), lastSeen: time.Now()}
	s.sessions[sessionID] = r
	return r
}

func (s *MemoryStore) evictOldestLocked() {
	var oldestID string
	var oldest time.Time
	for id, r := range s.sessions {
		if oldestID == "" || r.lastSeen.Before(oldest) {
			oldestID = id
			oldest = r.lastSeen
		}
	}
	if oldestID != "" {
		delete(s.sessions, oldestID)
	}
}

func (s *MemoryStore) expired(r *record) bool {
	return time.Since(r.lastSeen) > s.maxAge
}

func (s *MemoryStore) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupTTL)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCleanup:
			return
		}
	}
}

func (s *MemoryStore) cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, r := range s.sessions {
		if now.Sub(r.lastSeen) > s.maxAge {
			delete(s.sessions, id)
		}
	}
}

func cloneTurns(turns []Turn) []Turn {
	out := make([]Turn, len(turns))
	copy(out, turns)
	return out
}

// Ensure MemoryStore implements Store.
var _ Store = (*MemoryStore)(nil)
