package memory

// Package memory provides an in-memory implementation of the repository and
// writer used by the group service. It backs the dev server and the tests,
// and mirrors the transactional semantics of the postgres store: every Apply
// is atomic and guarded by the group's version.

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/splitledger/splitledger/internal/errs"
	"github.com/splitledger/splitledger/internal/service/group"
	"github.com/splitledger/splitledger/internal/split"
)

// Store keeps all group state behind one RWMutex. Reads return copies so
// callers never observe a torn mix of pre- and post-mutation state.
type Store struct {
	mu       sync.RWMutex
	groups   map[uuid.UUID]split.Group
	expenses map[uuid.UUID]map[uuid.UUID]split.Expense
	edges    map[uuid.UUID][]split.Edge
	audit    map[uuid.UUID][]split.AuditEntry
	invites  map[string]uuid.UUID
}

// New constructs an empty in-memory store.
func New() *Store {
	return &Store{
		groups:   make(map[uuid.UUID]split.Group),
		expenses: make(map[uuid.UUID]map[uuid.UUID]split.Expense),
		edges:    make(map[uuid.UUID][]split.Edge),
		audit:    make(map[uuid.UUID][]split.AuditEntry),
		invites:  make(map[string]uuid.UUID),
	}
}

// Reset clears everything; used between tests.
func (s *Store) Reset() {
	s.mu.Lock()
	s.groups = map[uuid.UUID]split.Group{}
	s.expenses = map[uuid.UUID]map[uuid.UUID]split.Expense{}
	s.edges = map[uuid.UUID][]split.Edge{}
	s.audit = map[uuid.UUID][]split.AuditEntry{}
	s.invites = map[string]uuid.UUID{}
	s.mu.Unlock()
}

// CreateGroup implements group.Writer.
func (s *Store) CreateGroup(_ context.Context, g split.Group) (split.Group, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.groups[g.ID]; ok {
		return split.Group{}, errs.ErrConflict
	}
	g.Version = 1
	s.groups[g.ID] = g
	s.expenses[g.ID] = map[uuid.UUID]split.Expense{}
	s.invites[g.InviteCode] = g.ID
	return g, nil
}

// Apply implements group.Writer: an atomic compare-and-swap mutation.
func (s *Store) Apply(_ context.Context, m group.Mutation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cur, ok := s.groups[m.Group.ID]
	if !ok {
		return errs.ErrNotFound
	}
	if cur.Version != m.ExpectedVersion {
		return errs.ErrConflict
	}
	g := m.Group
	g.Version = m.ExpectedVersion + 1
	s.groups[g.ID] = g
	exps := s.expenses[g.ID]
	if exps == nil {
		exps = map[uuid.UUID]split.Expense{}
		s.expenses[g.ID] = exps
	}
	for _, e := range m.PutExpenses {
		exps[e.ID] = e
	}
	for _, id := range m.DeleteExpenseIDs {
		delete(exps, id)
	}
	if m.ReplaceEdges {
		s.edges[g.ID] = append([]split.Edge(nil), m.Edges...)
	}
	if len(m.Audit) > 0 {
		s.audit[g.ID] = append(s.audit[g.ID], m.Audit...)
	}
	return nil
}

// PurgeGroup implements group.Writer. Unknown ids are a no-op.
func (s *Store) PurgeGroup(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if g, ok := s.groups[id]; ok {
		delete(s.invites, g.InviteCode)
	}
	delete(s.groups, id)
	delete(s.expenses, id)
	delete(s.edges, id)
	delete(s.audit, id)
	return nil
}

// GroupState implements group.Repo: one consistent snapshot under the lock.
func (s *Store) GroupState(_ context.Context, id uuid.UUID) (group.State, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.groups[id]
	if !ok {
		return group.State{}, errs.ErrNotFound
	}
	st := group.State{Group: g}
	for _, e := range s.expenses[id] {
		st.Expenses = append(st.Expenses, e)
	}
	// deterministic order: oldest first, id as tiebreak
	sort.Slice(st.Expenses, func(i, j int) bool {
		if !st.Expenses[i].CreatedAt.Equal(st.Expenses[j].CreatedAt) {
			return st.Expenses[i].CreatedAt.Before(st.Expenses[j].CreatedAt)
		}
		return st.Expenses[i].ID.String() < st.Expenses[j].ID.String()
	})
	st.Edges = append([]split.Edge(nil), s.edges[id]...)
	return st, nil
}

// GroupByInvite implements group.Repo.
func (s *Store) GroupByInvite(_ context.Context, code string) (split.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.invites[code]
	if !ok {
		return split.Group{}, errs.ErrNotFound
	}
	g, ok := s.groups[id]
	if !ok || g.Status == split.StatusDeleted {
		return split.Group{}, errs.ErrNotFound
	}
	return g, nil
}

// ListGroupsByMember returns non-deleted groups the member belongs to,
// newest first.
func (s *Store) ListGroupsByMember(_ context.Context, member string) ([]split.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]split.Group, 0)
	for _, g := range s.groups {
		if g.Status != split.StatusDeleted && g.HasMember(member) {
			out = append(out, g)
		}
	}
	sortGroups(out)
	return out, nil
}

// ListHistoryByMember returns completed and deleted (in-retention) groups.
func (s *Store) ListHistoryByMember(_ context.Context, member string) ([]split.Group, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]split.Group, 0)
	for _, g := range s.groups {
		if (g.Status == split.StatusCompleted || g.Status == split.StatusDeleted) && g.HasMember(member) {
			out = append(out, g)
		}
	}
	sortGroups(out)
	return out, nil
}

// ListDeletedBefore returns ids of deleted groups whose retention expired.
func (s *Store) ListDeletedBefore(_ context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]uuid.UUID, 0)
	for id, g := range s.groups {
		if g.Status == split.StatusDeleted && g.DeletedAt != nil && g.DeletedAt.Before(cutoff) {
			out = append(out, id)
		}
	}
	return out, nil
}

// ListAudit returns a group's audit trail newest-first.
func (s *Store) ListAudit(_ context.Context, groupID uuid.UUID) ([]split.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entries := s.audit[groupID]
	out := make([]split.AuditEntry, 0, len(entries))
	for i := len(entries) - 1; i >= 0; i-- {
		out = append(out, entries[i])
	}
	return out, nil
}

func sortGroups(gs []split.Group) {
	sort.Slice(gs, func(i, j int) bool {
		if !gs[i].UpdatedAt.Equal(gs[j].UpdatedAt) {
			return gs[i].UpdatedAt.After(gs[j].UpdatedAt)
		}
		return gs[i].ID.String() < gs[j].ID.String()
	})
}
