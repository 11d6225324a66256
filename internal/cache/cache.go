// Package cache memoizes quote results for a short TTL.
package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/meaningyoung99-cmyk/my-kream-bot/internal/kream"
)

var ErrInvalidTTL = errors.New("cache ttl must be positive")

// Store keeps results for a bounded time. A miss is (nil, false, nil).
type Store interface {
	Name() string
	Get(ctx context.Context, key string) (*kream.Result, bool, error)
	Set(ctx context.Context, key string, result *kream.Result, ttl time.Duration) error
}

// Key derives the memoization key from the normalised model and every
// setting, so any change to the formula or fetch options misses.
func Key(model string, settings kream.Settings) string {
	h := sha256.New()
	h.Write([]byte(kream.NormalizeModel(model)))
	h.Write([]byte("|"))

	// Settings only holds numbers and booleans; Marshal cannot fail.
	b, _ := json.Marshal(settings)
	h.Write(b)

	return hex.EncodeToString(h.Sum(nil))
}

type entry struct {
	result    *kream.Result
	expiresAt time.Time
}

// Memory is an in-process Store. It is safe for concurrent use.
type Memory struct {
	mu         sync.RWMutex
	store      map[string]*entry
	maxEntries int
	now        func() time.Time
}

// NewMemory creates a Memory holding at most maxEntries results. When full,
// expired entries are dropped first and then one arbitrary entry.
func NewMemory(maxEntries int) *Memory {
	if maxEntries <= 0 {
		maxEntries = 1000
	}

	return &Memory{
		store:      make(map[string]*entry),
		maxEntries: maxEntries,
		now:        time.Now,
	}
}

func (m *Memory) Name() string { return "memory" }

func (m *Memory) Get(ctx context.Context, key string) (*kream.Result, bool, error) {
	m.mu.RLock()
	e, ok := m.store[key]
	m.mu.RUnlock()

	if !ok || !m.now().Before(e.expiresAt) {
		return nil, false, nil
	}

	return e.result, true, nil
}

func (m *Memory) Set(ctx context.Context, key string, result *kream.Result, ttl time.Duration) error {
	if ttl <= 0 {
		return ErrInvalidTTL
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	if _, exists := m.store[key]; !exists && len(m.store) >= m.maxEntries {
		m.evictLocked(now)
	}

	m.store[key] = &entry{
		result:    result,
		expiresAt: now.Add(ttl),
	}
	return nil
}

// Len reports the number of stored entries, expired or not.
func (m *Memory) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.store)
}

func (m *Memory) evictLocked(now time.Time) {
	for k, e := range m.store {
		if !now.Before(e.expiresAt) {
			delete(m.store, k)
		}
	}
	if len(m.store) < m.maxEntries {
		return
	}

	// Map iteration order is random.
	for k := range m.store {
		delete(m.store, k)
		break
	}
}
