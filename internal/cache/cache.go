// Package cache holds small in-process caches and their cleanup loop.
package cache

import (
	"context"
	"sync"
	"time"

	"contador/internal/log"
	"contador/internal/ports"
)

// Cache is a keyed store with expiry.
type Cache[K comparable, V any] interface {
	Get(key K) (V, bool)
	Set(key K, value V)
	Delete(key K)
	Size() int
}

// Cleaner is a cache that can purge its expired entries.
type Cleaner interface {
	CleanExpired() int
}

// Manager periodically purges registered caches.
type Manager struct {
	mu       sync.Mutex
	caches   []Cleaner
	stop     chan struct{}
	done     chan struct{}
	started  bool
	stopOnce sync.Once
	logger   *log.Logger
}

func NewManager() *Manager {
	return &Manager{
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: log.For(log.ComponentCache),
	}
}

func (m *Manager) Register(c Cleaner) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.caches = append(m.caches, c)
}

// StartCleanup runs CleanAll every interval until Stop is called.
func (m *Manager) StartCleanup(interval time.Duration) {
	m.mu.Lock()
	if m.started {
		m.mu.Unlock()
		return
	}
	m.started = true
	m.mu.Unlock()

	go func() {
		defer close(m.done)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if n := m.CleanAll(); n > 0 {
					m.logger.Debug("Purged expired cache entries", log.FieldCount, n)
				}
			case <-m.stop:
				return
			}
		}
	}()
}

// CleanAll purges every registered cache once and returns the number of entries removed.
func (m *Manager) CleanAll() int {
	m.mu.Lock()
	caches := append([]Cleaner(nil), m.caches...)
	m.mu.Unlock()

	total := 0
	for _, c := range caches {
		total += c.CleanExpired()
	}
	return total
}

// Stop ends the cleanup loop and waits for it to exit. It is safe to call
// more than once.
func (m *Manager) Stop() {
	m.stopOnce.Do(func() {
		close(m.stop)
		m.mu.Lock()
		started := m.started
		m.mu.Unlock()
		if started {
			<-m.done
		}
	})
}

// MemberCounter caches household sizes in front of another counter.
type MemberCounter struct {
	next  ports.MemberCounter
	cache *LRUCache[int64, int]
}

var _ ports.MemberCounter = (*MemberCounter)(nil)

// NewMemberCounter wraps next with a cache of up to 1024 families.
func NewMemberCounter(next ports.MemberCounter, ttl time.Duration) *MemberCounter {
	return &MemberCounter{next: next, cache: NewLRUCache[int64, int](1024, ttl)}
}

func (c *MemberCounter) CountMembers(ctx context.Context, familyID int64) (int, error) {
	if n, ok := c.cache.Get(familyID); ok {
		return n, nil
	}
	n, err := c.next.CountMembers(ctx, familyID)
	if err != nil {
		return 0, err
	}
	c.cache.Set(familyID, n)
	return n, nil
}

// Invalidate forgets the cached count of a family.
func (c *MemberCounter) Invalidate(familyID int64) {
	c.cache.Delete(familyID)
}

// Cleaner exposes the underlying cache for registration with a Manager.
func (c *MemberCounter) Cleaner() Cleaner {
	return c.cache
}
