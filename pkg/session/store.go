// Package session provides the per-conversation memory used by the
// detection pipeline: a bounded ordered transcript plus a bounded recent
// risk-confidence history, keyed by an opaque session id.
//
// Two backends implement Store: MemoryStore for single-node deployments and
// RedisStore for deployments that share session state across restarts of the
// gateway process. Both expose atomic append-and-read operations so callers
// never hold references to internal state across calls.
package session

import "sync"

// Store is the session memory contract consumed by the pipeline.
//
// All operations are atomic with respect to a single session id. Whole-request
// exclusivity (append -> classify -> append must not interleave for one
// session) is layered on top via KeyedMutex.
type Store interface {
	// AppendTurn appends a turn to the session transcript, trims to the
	// transcript window (FIFO, oldest evicted), and returns the current
	// window. The session is created if it does not exist.
	AppendTurn(sessionID string, t Turn) ([]Turn, error)

	// Window returns the current transcript window. A missing session
	// yields an empty window, not an error.
	Window(sessionID string) ([]Turn, error)

	// SeedIfNew initializes a brand-new session's transcript from
	// caller-supplied history. Returns true if the seed was applied,
	// false if the session already existed.
	SeedIfNew(sessionID string, turns []Turn) (bool, error)

	// AppendConfidence appends a classification confidence to the session's
	// bounded risk history and returns the history after the append.
	AppendConfidence(sessionID string, c float64) ([]float64, error)

	// Delete removes a session and its risk history.
	Delete(sessionID string) error

	// Stats reports backend occupancy for monitoring.
	Stats() Stats

	// Close releases background resources held by the backend.
	Close()
}

// Stats reports backend occupancy for monitoring.
type Stats struct {
	SessionCount  int `json:"session_count"`
	TotalMessages int `json:"total_messages"`
}

// Default bounds. The transcript window matches the upstream webhook
// platform's replay depth; the confidence history feeds the risk tracker.
const (
	DefaultWindow      = 10
	DefaultRiskHistory = 5
)

// KeyedMutex provides per-session-id mutual exclusion. One orchestration
// pass runs per session at a time; distinct sessions proceed in parallel.
//
// Entries are reference-counted and removed on final unlock so the map does
// not grow with the session-id space.
type KeyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

// NewKeyedMutex creates an empty keyed mutex.
func NewKeyedMutex() *KeyedMutex {
	return &KeyedMutex{locks: make(map[string]*keyedLock)}
}

// Lock acquires the mutex for key, blocking while another holder owns it.
func (k *KeyedMutex) Lock(key string) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if !ok {
		l = &keyedLock{}
		k.locks[key] = l
	}
	l.refs++
	k.mu.Unlock()

	l.mu.Lock()
}

// Unlock releases the mutex for key.
func (k *KeyedMutex) Unlock(key string) {
	k.mu.Lock()
	l, ok := k.locks[key]
	if ok {
		l.refs--
		if l.refs == 0 {
			delete(k.locks, key)
		}
	}
	k.mu.Unlock()

	if ok {
		l.mu.Unlock()
	}
}
