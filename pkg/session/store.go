// Package session keeps resumable result snapshots keyed by prediction
// session token.
package session

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/raredx/triage/pkg/common/models"
)

// ErrSnapshotNotFound covers both missing and expired snapshots.
var ErrSnapshotNotFound = errors.New("session snapshot not found")

const DefaultTTL = 24 * time.Hour

type Store interface {
	Save(ctx context.Context, snapshot models.SessionSnapshot) error
	Load(ctx context.Context, token string) (models.SessionSnapshot, error)
}

// Valid reports whether a snapshot is still inside its validity window.
func Valid(snapshot models.SessionSnapshot, ttl time.Duration, now time.Time) bool {
	if snapshot.Timestamp.IsZero() {
		return false
	}
	return now.Sub(snapshot.Timestamp) < ttl
}

type MemoryStore struct {
	mu        sync.RWMutex
	ttl       time.Duration
	nowFunc   func() time.Time
	snapshots map[string]models.SessionSnapshot
}

func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &MemoryStore{ttl: ttl, nowFunc: time.Now, snapshots: make(map[string]models.SessionSnapshot)}
}

func (s *MemoryStore) Save(_ context.Context, snapshot models.SessionSnapshot) error {
	if strings.TrimSpace(snapshot.Token) == "" {
		return errors.New("snapshot token is required")
	}
	if snapshot.Timestamp.IsZero() {
		snapshot.Timestamp = s.nowFunc()
	}
	s.mu.Lock()
	s.snapshots[snapshot.Token] = snapshot
	s.mu.Unlock()
	return nil
}

func (s *MemoryStore) Load(_ context.Context, token string) (models.SessionSnapshot, error) {
	s.mu.RLock()
	snapshot, ok := s.snapshots[token]
	s.mu.RUnlock()
	if !ok {
		return models.SessionSnapshot{}, ErrSnapshotNotFound
	}
	if !Valid(snapshot, s.ttl, s.nowFunc()) {
		s.mu.Lock()
		delete(s.snapshots, token)
		s.mu.Unlock()
		return models.SessionSnapshot{}, ErrSnapshotNotFound
	}
	return snapshot, nil
}

// Sweep drops expired snapshots and returns how many were removed.
func (s *MemoryStore) Sweep() int {
	now := s.nowFunc()
	s.mu.Lock()
	defer s.mu.Unlock()
	removed := 0
	for token, snapshot := range s.snapshots {
		if !Valid(snapshot, s.ttl, now) {
			delete(s.snapshots, token)
			removed++
		}
	}
	return removed
}
