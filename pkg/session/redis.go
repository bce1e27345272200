package session

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore implements Store on a Redis backend so session state survives
// gateway restarts and can be shared by multiple gateway instances behind a
// sticky-session load balancer.
//
// Per-request exclusivity still comes from the pipeline's KeyedMutex, so the
// supported topology is one writer per session id at a time.
type RedisStore struct {
	client *redis.Client

	window      int
	riskHistory int
	maxAge      time.Duration
	opTimeout   time.Duration
	keyPrefix   string
}

// RedisOption is a functional option for configuring RedisStore.
type RedisOption func(*RedisStore)

// WithRedisWindow sets the transcript window size.
func WithRedisWindow(n int) RedisOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.window = n
		}
	}
}

// WithRedisRiskHistory sets the confidence history capacity.
func WithRedisRiskHistory(n int) RedisOption {
	return func(s *RedisStore) {
		if n > 0 {
			s.riskHistory = n
		}
	}
}

// WithRedisMaxAge sets the per-session key TTL.
func WithRedisMaxAge(d time.Duration) RedisOption {
	return func(s *RedisStore) {
		if d > 0 {
			s.maxAge = d
		}
	}
}

// WithKeyPrefix overrides the key namespace (default "trapline").
func WithKeyPrefix(p string) RedisOption {
	return func(s *RedisStore) {
		if p != "" {
			s.keyPrefix = p
		}
	}
}

// NewRedisStore creates a Redis-backed session store and verifies
// connectivity with a ping.
func NewRedisStore(addr, password string, db int, opts ...RedisOption) (*RedisStore, error) {
	s := &RedisStore{
		client: redis.NewClient(&redis.Options{
			Addr:     addr,
			Password: password,
			DB:       db,
		}),
		window:      DefaultWindow,
		riskHistory: DefaultRiskHistory,
		maxAge:      1 * time.Hour,
		opTimeout:   5 * time.Second,
		keyPrefix:   "trapline",
	}

	for _, opt := range opts {
		opt(s)
	}

	ctx, cancel := s.opCtx()
	defer cancel()
	if err := s.client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return s, nil
}

func (s *RedisStore) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), s.opTimeout)
}

func (s *RedisStore) turnsKey(id string) string {
	return s.keyPrefix + ":sess:" + id + ":turns"
}

func (s *RedisStore) confKey(id string) string {
	return s.keyPrefix + ":sess:" + id + ":conf"
}

// AppendTurn implements Store. The append, window trim, TTL refresh and
// read-back run in one MULTI/EXEC so concurrent sessions never observe a
// half-applied window.
func (s *RedisStore) AppendTurn(sessionID string, t Turn) ([]Turn, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	payload, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("marshal turn: %w", err)
	}

	ctx, cancel := s.opCtx()
	defer cancel()

	key := s.turnsKey(sessionID)
	var window *redis.StringSliceCmd
	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, payload)
		pipe.LTrim(ctx, key, int64(-s.window), -1)
		pipe.Expire(ctx, key, s.maxAge)
		window = pipe.LRange(ctx, key, 0, -1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("append turn: %w", err)
	}

	return decodeTurns(window.Val())
}

// Window implements Store.
func (s *RedisStore) Window(sessionID string) ([]Turn, error) {
	ctx, cancel := s.opCtx()
	defer cancel()

	raw, err := s.client.LRange(ctx, s.turnsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read window: %w", err)
	}
	return decodeTurns(raw)
}

// SeedIfNew implements Store. Session existence is keyed off the transcript
// list itself: a session that has ever seen a turn has a non-empty list.
func (s *RedisStore) SeedIfNew(sessionID string, turns []Turn) (bool, error) {
	if sessionID == "" {
		return false, fmt.Errorf("session id is required")
	}

	ctx, cancel := s.opCtx()
	defer cancel()

	key := s.turnsKey(sessionID)
	exists, err := s.client.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("seed check: %w", err)
	}
	if exists > 0 {
		return false, nil
	}

	if len(turns) > s.window {
		turns = turns[len(turns)-s.window:]
	}
	payloads := make([]interface{}, 0, len(turns))
	for _, t := range turns {
		b, err := json.Marshal(t)
		if err != nil {
			return false, fmt.Errorf("marshal turn: %w", err)
		}
		payloads = append(payloads, b)
	}
	if len(payloads) == 0 {
		return true, nil
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, payloads...)
		pipe.Expire(ctx, key, s.maxAge)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("seed session: %w", err)
	}
	return true, nil
}

// AppendConfidence implements Store.
func (s *RedisStore) AppendConfidence(sessionID string, c float64) ([]float64, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	ctx, cancel := s.opCtx()
	defer cancel()

	key := s.confKey(sessionID)
	var history *redis.StringSliceCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, key, strconv.FormatFloat(c, 'g', -1, 64))
		pipe.LTrim(ctx, key, int64(-s.riskHistory), -1)
		pipe.Expire(ctx, key, s.maxAge)
		history = pipe.LRange(ctx, key, 0, -1)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("append confidence: %w", err)
	}

	raw := history.Val()
	out := make([]float64, 0, len(raw))
	for _, v := range raw {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return nil, fmt.Errorf("decode confidence %q: %w", v, err)
		}
		out = append(out, f)
	}
	return out, nil
}

// Delete implements Store.
func (s *RedisStore) Delete(sessionID string) error {
	ctx, cancel := s.opCtx()
	defer cancel()

	return s.client.Del(ctx, s.turnsKey(sessionID), s.confKey(sessionID)).Err()
}

// Stats scans the keyspace under the store's prefix. Priced for a
// monitoring endpoint, not a hot path.
func (s *RedisStore) Stats() Stats {
	ctx, cancel := s.opCtx()
	defer cancel()

	var st Stats
	iter := s.client.Scan(ctx, 0, s.keyPrefix+":sess:*:turns", 100).Iterator()
	for iter.Next(ctx) {
		st.SessionCount++
		if n, err := s.client.LLen(ctx, iter.Val()).Result(); err == nil {
			st.TotalMessages += int(n)
		}
	}
	return st
}

// Close releases the underlying connection pool.
func (s *RedisStore) Close() {
	_ = s.client.Close()
}

func decodeTurns(raw []string) ([]Turn, error) {
	out := make([]Turn, 0, len(raw))
	for _, v := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(v), &t); err != nil {
			return nil, fmt.Errorf("decode turn: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

// Ensure RedisStore implements Store.
var _ Store = (*RedisStore)(nil)
