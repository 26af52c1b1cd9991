// Package dataset holds the loaded membership indices, one per owner
// account. A load replaces the owner's index wholesale: queries already
// holding the old pointer keep reading their snapshot, new queries see the
// new index.
package dataset

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/aaqwq/groupscope/internal/membership"
)

// Info summarises one loaded dataset.
type Info struct {
	Owner   string `json:"owner"`
	Groups  int    `json:"groups"`
	Members int    `json:"members"`
	Edges   int    `json:"edges"`
}

// Store is a concurrency-safe registry of loaded indices keyed by owner.
type Store struct {
	mu      sync.RWMutex
	indices map[string]*membership.Index
	logger  *slog.Logger
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{
		indices: make(map[string]*membership.Index),
		logger:  slog.Default().With("component", "dataset-store"),
	}
}

// Get returns the index loaded for the owner, if any.
func (s *Store) Get(owner string) (*membership.Index, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.indices[owner]
	return idx, ok
}

// Put installs the owner's index, replacing any previous one atomically.
func (s *Store) Put(owner string, idx *membership.Index) {
	s.mu.Lock()
	_, replaced := s.indices[owner]
	s.indices[owner] = idx
	s.mu.Unlock()
	s.logger.Info("dataset loaded",
		"owner", owner,
		"groups", idx.GroupCount(),
		"members", idx.MemberCount(),
		"edges", idx.EdgeCount(),
		"replaced", replaced,
	)
}

// Delete removes the owner's index and reports whether one was present.
func (s *Store) Delete(owner string) bool {
	s.mu.Lock()
	_, ok := s.indices[owner]
	delete(s.indices, owner)
	s.mu.Unlock()
	if ok {
		s.logger.Info("dataset deleted", "owner", owner)
	}
	return ok
}

// List returns a summary of every loaded dataset, sorted by owner.
func (s *Store) List() []Info {
	s.mu.RLock()
	defer s.mu.RUnlock()
	infos := make([]Info, 0, len(s.indices))
	for owner, idx := range s.indices {
		infos = append(infos, Info{
			Owner:   owner,
			Groups:  idx.GroupCount(),
			Members: idx.MemberCount(),
			Edges:   idx.EdgeCount(),
		})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Owner < infos[j].Owner })
	return infos
}

// Len returns the number of loaded datasets.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.indices)
}
