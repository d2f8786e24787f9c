package registry

import (
	"container/list"
	"context"
	"sync"
	"time"

	"github.com/raredx/triage/pkg/common/logger"
	"github.com/raredx/triage/pkg/observability/metrics"
	"github.com/raredx/triage/pkg/phenotype"
)

// MemoryRegistry is a process-local Registry bounded by a per-entry TTL and a
// maximum number of sessions; the oldest session is evicted first.
type MemoryRegistry struct {
	ttl         time.Duration
	maxSessions int
	nowFunc     func() time.Time

	mu       sync.Mutex
	entries  map[string]memoryEntry
	sessions map[string]*list.Element
	order    *list.List
}

type memoryEntry struct {
	codes     phenotype.CodeSet
	token     string
	expiresAt time.Time
}

type memorySession struct {
	token string
	keys  map[string]struct{}
}

func NewMemoryRegistry(ttl time.Duration, maxSessions int) *MemoryRegistry {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	if maxSessions <= 0 {
		maxSessions = 10000
	}
	return &MemoryRegistry{
		ttl:         ttl,
		maxSessions: maxSessions,
		nowFunc:     time.Now,
		entries:     make(map[string]memoryEntry),
		sessions:    make(map[string]*list.Element),
		order:       list.New(),
	}
}

func (r *MemoryRegistry) SetMatched(ctx context.Context, token, diseaseName string, codes []string) error {
	key := Key(token, diseaseName)
	set := phenotype.NewCodeSet(codes...)

	r.mu.Lock()
	defer r.mu.Unlock()

	r.entries[key] = memoryEntry{codes: set, token: token, expiresAt: r.nowFunc().Add(r.ttl)}

	elem, ok := r.sessions[token]
	if !ok {
		elem = r.order.PushBack(&memorySession{token: token, keys: make(map[string]struct{})})
		r.sessions[token] = elem
	}
	elem.Value.(*memorySession).keys[key] = struct{}{}

	for r.order.Len() > r.maxSessions {
		r.evictOldest()
	}
	return nil
}

// GetMatched returns a copy of the stored set so callers cannot mutate the
// registry.
func (r *MemoryRegistry) GetMatched(ctx context.Context, token, diseaseName string) (phenotype.CodeSet, bool, error) {
	key := Key(token, diseaseName)

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.entries[key]
	if !ok {
		return nil, false, nil
	}
	if !r.nowFunc().Before(entry.expiresAt) {
		r.removeKey(key, entry.token)
		return nil, false, nil
	}
	out := make(phenotype.CodeSet, len(entry.codes))
	out.Union(entry.codes)
	return out, true, nil
}

// Sweep drops every expired entry and returns how many were removed.
func (r *MemoryRegistry) Sweep() int {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.nowFunc()
	removed := 0
	for key, entry := range r.entries {
		if !now.Before(entry.expiresAt) {
			r.removeKey(key, entry.token)
			removed++
		}
	}
	return removed
}

// Run sweeps on every tick until ctx is done.
func (r *MemoryRegistry) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := r.Sweep(); n > 0 {
				logger.Log.WithField("removed", n).Debug("match registry sweep")
			}
			metrics.ObserveRegistrySize(r.Len(), r.Sessions())
		}
	}
}

// Len is the number of live entries, expired ones included until swept.
func (r *MemoryRegistry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}

func (r *MemoryRegistry) Sessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.order.Len()
}

func (r *MemoryRegistry) evictOldest() {
	front := r.order.Front()
	if front == nil {
		return
	}
	sess := front.Value.(*memorySession)
	for key := range sess.keys {
		delete(r.entries, key)
	}
	delete(r.sessions, sess.token)
	r.order.Remove(front)
	logger.Log.WithField("token", sess.token).Debug("match registry evicted oldest session")
}

func (r *MemoryRegistry) removeKey(key, token string) {
	delete(r.entries, key)
	elem, ok := r.sessions[token]
	if !ok {
		return
	}
	sess := elem.Value.(*memorySession)
	delete(sess.keys, key)
	if len(sess.keys) == 0 {
		delete(r.sessions, token)
		r.order.Remove(elem)
	}
}
