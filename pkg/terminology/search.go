package terminology

import (
	"context"
	"errors"
	"sync"

	"github.com/raredx/triage/pkg/common/models"
)

// ErrSuperseded is returned to a search that was cancelled because the same
// client started a newer one.
var ErrSuperseded = errors.New("search superseded by a newer request")

type SearchFunc func(ctx context.Context, query string) ([]models.PhenotypeTerm, error)

// Searcher runs catalog searches so that at most one search per client key
// is in flight; starting a new one aborts the previous one.
type Searcher struct {
	search SearchFunc

	mu       sync.Mutex
	seq      uint64
	inflight map[string]inflightSearch
}

type inflightSearch struct {
	id     uint64
	cancel context.CancelFunc
}

func NewSearcher(search SearchFunc) *Searcher {
	return &Searcher{search: search, inflight: make(map[string]inflightSearch)}
}

func (s *Searcher) Search(ctx context.Context, clientKey, query string) ([]models.PhenotypeTerm, error) {
	if clientKey == "" {
		return s.search(ctx, query)
	}

	searchCtx, cancel := context.WithCancel(ctx)
	id := s.begin(clientKey, cancel)
	defer s.finish(clientKey, id, cancel)

	terms, err := s.search(searchCtx, query)
	if err != nil && ctx.Err() == nil && errors.Is(searchCtx.Err(), context.Canceled) {
		return nil, ErrSuperseded
	}
	return terms, err
}

// InFlight reports the number of clients with a running search.
func (s *Searcher) InFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.inflight)
}

func (s *Searcher) begin(key string, cancel context.CancelFunc) uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.inflight[key]; ok {
		prev.cancel()
	}
	s.seq++
	s.inflight[key] = inflightSearch{id: s.seq, cancel: cancel}
	return s.seq
}

func (s *Searcher) finish(key string, id uint64, cancel context.CancelFunc) {
	s.mu.Lock()
	if cur, ok := s.inflight[key]; ok && cur.id == id {
		delete(s.inflight, key)
	}
	s.mu.Unlock()
	cancel()
}
