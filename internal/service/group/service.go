// Package group implements the engine's orchestration layer: group lifecycle,
// expense mutations with full debt re-derivation, the per-edge settlement
// state machine, and retention-based purging. Every mutating call loads one
// consistent snapshot, derives the new state with the pure calculators, and
// commits it through a single atomic store write guarded by the group's
// version, so concurrent writers against the same group serialize and losers
// see a retryable conflict.
package group

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/splitledger/splitledger/internal/errs"
	"github.com/splitledger/splitledger/internal/identity"
	"github.com/splitledger/splitledger/internal/meta"
	"github.com/splitledger/splitledger/internal/service/debt"
	"github.com/splitledger/splitledger/internal/service/shares"
	"github.com/splitledger/splitledger/internal/split"
)

// DefaultRetention is how long a deleted group stays readable before purge.
const DefaultRetention = 7 * 24 * time.Hour

// State is one consistent snapshot of a group and everything it owns.
type State struct {
	Group    split.Group
	Expenses []split.Expense
	Edges    []split.Edge
}

// Mutation is one atomic write against a group. The store applies all of it
// or none of it, and rejects it with errs.ErrConflict when the group's
// version no longer matches ExpectedVersion.
type Mutation struct {
	Group            split.Group
	ExpectedVersion  int64
	PutExpenses      []split.Expense
	DeleteExpenseIDs []uuid.UUID
	ReplaceEdges     bool
	Edges            []split.Edge
	Audit            []split.AuditEntry
}

// Repo defines the read operations needed by the service.
type Repo interface {
	GroupState(ctx context.Context, id uuid.UUID) (State, error)
	GroupByInvite(ctx context.Context, code string) (split.Group, error)
	ListGroupsByMember(ctx context.Context, member string) ([]split.Group, error)
	ListHistoryByMember(ctx context.Context, member string) ([]split.Group, error)
	ListDeletedBefore(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
	ListAudit(ctx context.Context, groupID uuid.UUID) ([]split.AuditEntry, error)
}

// Writer defines the write operations needed by the service.
type Writer interface {
	CreateGroup(ctx context.Context, g split.Group) (split.Group, error)
	Apply(ctx context.Context, m Mutation) error
	// PurgeGroup permanently removes a group and everything it owns.
	// Purging an unknown id is a no-op.
	PurgeGroup(ctx context.Context, id uuid.UUID) error
}

// AddExpenseInput carries a new expense submission.
type AddExpenseInput struct {
	GroupID      uuid.UUID
	Name         string
	TotalMinor   int64
	Payer        string
	Participants []shares.Participant
	Policy       shares.Policy
	Actor        string
}

// EditExpenseInput carries an expense edit. A nil Shares slice leaves the
// share set alone; otherwise the expense total is recomputed from the given
// amounts.
type EditExpenseInput struct {
	GroupID   uuid.UUID
	ExpenseID uuid.UUID
	Name      *string
	Shares    []shares.Participant
	Actor     string
}

// ResolveInput names one edge to resolve. KeepActive only matters when the
// named edge is the group's last pending one.
type ResolveInput struct {
	GroupID    uuid.UUID
	From       string
	To         string
	KeepActive bool
}

// ResolveResult reports whether the group became fully resolved and the
// status it ended up in.
type ResolveResult struct {
	AllResolved bool
	Status      split.GroupStatus
}

// PendingGroup is one group with the pending edges touching a member.
type PendingGroup struct {
	Group split.Group
	Edges []split.Edge
}

// Service exposes the engine operations consumed by the HTTP layer.
type Service interface {
	CreateGroup(ctx context.Context, name, currency, actor string, members []string) (split.Group, error)
	GetGroup(ctx context.Context, id uuid.UUID) (State, error)
	ListGroups(ctx context.Context, member string) ([]split.Group, error)
	Join(ctx context.Context, inviteCode, member string) (split.Group, error)
	AddMember(ctx context.Context, groupID uuid.UUID, member string) (split.Group, error)
	RemoveMember(ctx context.Context, groupID uuid.UUID, member string) (split.Group, error)
	AddExpense(ctx context.Context, in AddExpenseInput) (split.Expense, error)
	EditExpense(ctx context.Context, in EditExpenseInput) (split.Expense, error)
	DeleteExpense(ctx context.Context, groupID, expenseID uuid.UUID, actor string) error
	PreviewSplit(ctx context.Context, groupID uuid.UUID, totalMinor int64, payer string, parts []shares.Participant, policy shares.Policy) ([]split.PayeeShare, error)
	Resolve(ctx context.Context, in ResolveInput) (ResolveResult, error)
	DeleteGroup(ctx context.Context, id uuid.UUID, actor string) error
	PurgeExpired(ctx context.Context) (int, error)
	PendingByMember(ctx context.Context, member string) ([]PendingGroup, error)
	HistoryByMember(ctx context.Context, member string) ([]split.Group, error)
	Audit(ctx context.Context, groupID uuid.UUID) ([]split.AuditEntry, error)
}

type service struct {
	repo      Repo
	writer    Writer
	retention time.Duration
	now       func() time.Time
}

// New constructs the service. A non-positive retention falls back to
// DefaultRetention.
func New(repo Repo, writer Writer, retention time.Duration) Service {
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &service{repo: repo, writer: writer, retention: retention, now: func() time.Time { return time.Now().UTC() }}
}

func (s *service) CreateGroup(ctx context.Context, name, currency, actor string, members []string) (split.Group, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return split.Group{}, errs.ErrInvalid
	}
	creator, err := identity.Normalize(actor)
	if err != nil {
		return split.Group{}, err
	}
	ms, err := identity.NormalizeAll(members)
	if err != nil {
		return split.Group{}, err
	}
	if !contains(ms, creator) {
		ms = append([]string{creator}, ms...)
	}
	currency = strings.ToUpper(strings.TrimSpace(currency))
	if currency == "" {
		currency = "USD"
	}
	// the money package is the authority on known currency codes; rejecting
	// here keeps every later FormatMinor call well-defined
	if _, err := money.NewAmountFromMinorUnits(currency, 0); err != nil {
		return split.Group{}, errs.ErrInvalid
	}
	now := s.now()
	g := split.Group{
		ID:         uuid.New(),
		Name:       name,
		Currency:   currency,
		Status:     split.StatusActive,
		Members:    ms,
		InviteCode: identity.NewInviteCode(),
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	return s.writer.CreateGroup(ctx, g)
}

func (s *service) GetGroup(ctx context.Context, id uuid.UUID) (State, error) {
	if id == uuid.Nil {
		return State{}, errs.ErrInvalid
	}
	return s.repo.GroupState(ctx, id)
}

func (s *service) ListGroups(ctx context.Context, member string) ([]split.Group, error) {
	m, err := identity.Normalize(member)
	if err != nil {
		return nil, err
	}
	return s.repo.ListGroupsByMember(ctx, m)
}

func (s *service) Join(ctx context.Context, inviteCode, member string) (split.Group, error) {
	m, err := identity.Normalize(member)
	if err != nil {
		return split.Group{}, err
	}
	code := strings.ToUpper(strings.TrimSpace(inviteCode))
	if code == "" {
		return split.Group{}, errs.ErrInvalid
	}
	g, err := s.repo.GroupByInvite(ctx, code)
	if err != nil {
		return split.Group{}, err
	}
	return s.addMemberTo(ctx, g.ID, m)
}

func (s *service) AddMember(ctx context.Context, groupID uuid.UUID, member string) (split.Group, error) {
	m, err := identity.Normalize(member)
	if err != nil {
		return split.Group{}, err
	}
	return s.addMemberTo(ctx, groupID, m)
}

func (s *service) addMemberTo(ctx context.Context, groupID uuid.UUID, member string) (split.Group, error) {
	st, err := s.repo.GroupState(ctx, groupID)
	if err != nil {
		return split.Group{}, err
	}
	if st.Group.Status == split.StatusDeleted {
		return split.Group{}, errs.ErrGroupDeleted
	}
	if st.Group.HasMember(member) {
		return split.Group{}, errs.ErrMemberExists
	}
	g := st.Group
	g.Members = append(append([]string(nil), g.Members...), member)
	g.UpdatedAt = s.now()
	err = s.writer.Apply(ctx, Mutation{Group: g, ExpectedVersion: st.Group.Version})
	if err != nil {
		return split.Group{}, err
	}
	return g, nil
}

func (s *service) RemoveMember(ctx context.Context, groupID uuid.UUID, member string) (split.Group, error) {
	m, err := identity.Normalize(member)
	if err != nil {
		return split.Group{}, err
	}
	st, err := s.repo.GroupState(ctx, groupID)
	if err != nil {
		return split.Group{}, err
	}
	if st.Group.Status == split.StatusDeleted {
		return split.Group{}, errs.ErrGroupDeleted
	}
	if !st.Group.HasMember(m) {
		return split.Group{}, errs.ErrNotMember
	}
	if memberInUse(st, m) {
		return split.Group{}, errs.ErrMemberInUse
	}
	g := st.Group
	kept := make([]string, 0, len(g.Members)-1)
	for _, x := range g.Members {
		if x != m {
			kept = append(kept, x)
		}
	}
	if len(kept) == 0 {
		return split.Group{}, errs.ErrInvalid
	}
	g.Members = kept
	g.UpdatedAt = s.now()
	if err := s.writer.Apply(ctx, Mutation{Group: g, ExpectedVersion: st.Group.Version}); err != nil {
		return split.Group{}, err
	}
	return g, nil
}

// memberInUse reports whether m still appears on any expense or edge.
func memberInUse(st State, m string) bool {
	for _, e := range st.Expenses {
		if e.Payer == m {
			return true
		}
		for _, sh := range e.Shares {
			if sh.Member == m {
				return true
			}
		}
	}
	for _, e := range st.Edges {
		if e.From == m || e.To == m {
			return true
		}
	}
	return false
}

func (s *service) AddExpense(ctx context.Context, in AddExpenseInput) (split.Expense, error) {
	st, err := s.mutableState(ctx, in.GroupID)
	if err != nil {
		return split.Expense{}, err
	}
	payer, err := identity.Normalize(in.Payer)
	if err != nil {
		return split.Expense{}, err
	}
	parts, err := normalizeParticipants(st.Group, in.Participants)
	if err != nil {
		return split.Expense{}, err
	}
	if !st.Group.HasMember(payer) {
		return split.Expense{}, errs.ErrNotMember
	}
	shs, err := shares.Compute(in.TotalMinor, payer, parts, in.Policy)
	if err != nil {
		return split.Expense{}, err
	}
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return split.Expense{}, errs.ErrInvalid
	}

	now := s.now()
	exp := split.Expense{
		ID:         uuid.New(),
		GroupID:    st.Group.ID,
		Name:       name,
		TotalMinor: in.TotalMinor,
		Payer:      payer,
		Shares:     shs,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	all := append(append([]split.Expense(nil), st.Expenses...), exp)
	edges := reconsolidate(st.Edges, all)

	g := st.Group
	// a new expense reopens a completed group
	g.Status = split.StatusActive
	g.UpdatedAt = now

	entry := s.auditEntry(g, split.ActionAddExpense, in.Actor,
		in.Actor+" added \""+name+"\" ("+split.FormatMinor(g.Currency, in.TotalMinor)+" "+g.Currency+")",
		meta.Details{"expense_id": exp.ID.String()})
	err = s.writer.Apply(ctx, Mutation{
		Group:           g,
		ExpectedVersion: st.Group.Version,
		PutExpenses:     []split.Expense{exp},
		ReplaceEdges:    true,
		Edges:           edges,
		Audit:           []split.AuditEntry{entry},
	})
	if err != nil {
		return split.Expense{}, err
	}
	return exp, nil
}

func (s *service) EditExpense(ctx context.Context, in EditExpenseInput) (split.Expense, error) {
	st, err := s.mutableState(ctx, in.GroupID)
	if err != nil {
		return split.Expense{}, err
	}
	idx := -1
	for i := range st.Expenses {
		if st.Expenses[i].ID == in.ExpenseID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return split.Expense{}, errs.ErrNotFound
	}
	exp := st.Expenses[idx]
	if in.Name != nil {
		n := strings.TrimSpace(*in.Name)
		if n == "" {
			return split.Expense{}, errs.ErrInvalid
		}
		exp.Name = n
	}
	if in.Shares != nil {
		parts, err := normalizeParticipants(st.Group, in.Shares)
		if err != nil {
			return split.Expense{}, err
		}
		// the edited share amounts define the new total
		var total int64
		for _, p := range parts {
			if p.AmountMinor < 0 {
				return split.Expense{}, errs.ErrInvalid
			}
			total += p.AmountMinor
		}
		if total <= 0 {
			return split.Expense{}, errs.ErrInvalid
		}
		shs, err := shares.Compute(total, exp.Payer, parts, shares.PolicyExplicit)
		if err != nil {
			return split.Expense{}, err
		}
		exp.TotalMinor = total
		exp.Shares = shs
	}
	now := s.now()
	exp.UpdatedAt = now

	all := append([]split.Expense(nil), st.Expenses...)
	all[idx] = exp
	edges := reconsolidate(st.Edges, all)

	g := st.Group
	g.UpdatedAt = now
	if g.Status == split.StatusCompleted && !debt.AllResolved(edges) {
		g.Status = split.StatusActive
	}

	entry := s.auditEntry(g, split.ActionEditExpense, in.Actor,
		in.Actor+" edited \""+exp.Name+"\" ("+split.FormatMinor(g.Currency, exp.TotalMinor)+" "+g.Currency+")",
		meta.Details{"expense_id": exp.ID.String()})
	err = s.writer.Apply(ctx, Mutation{
		Group:           g,
		ExpectedVersion: st.Group.Version,
		PutExpenses:     []split.Expense{exp},
		ReplaceEdges:    true,
		Edges:           edges,
		Audit:           []split.AuditEntry{entry},
	})
	if err != nil {
		return split.Expense{}, err
	}
	return exp, nil
}

func (s *service) DeleteExpense(ctx context.Context, groupID, expenseID uuid.UUID, actor string) error {
	st, err := s.mutableState(ctx, groupID)
	if err != nil {
		return err
	}
	var target *split.Expense
	rest := make([]split.Expense, 0, len(st.Expenses))
	for i := range st.Expenses {
		if st.Expenses[i].ID == expenseID {
			e := st.Expenses[i]
			target = &e
			continue
		}
		rest = append(rest, st.Expenses[i])
	}
	if target == nil {
		return errs.ErrNotFound
	}
	now := s.now()
	edges := reconsolidate(st.Edges, rest)

	g := st.Group
	g.UpdatedAt = now
	if g.Status == split.StatusCompleted && !debt.AllResolved(edges) {
		g.Status = split.StatusActive
	}

	entry := s.auditEntry(g, split.ActionDeleteExpense, actor,
		actor+" deleted \""+target.Name+"\" ("+split.FormatMinor(g.Currency, target.TotalMinor)+" "+g.Currency+")",
		meta.Details{"expense_id": target.ID.String()})
	return s.writer.Apply(ctx, Mutation{
		Group:            g,
		ExpectedVersion:  st.Group.Version,
		DeleteExpenseIDs: []uuid.UUID{expenseID},
		ReplaceEdges:     true,
		Edges:            edges,
		Audit:            []split.AuditEntry{entry},
	})
}

func (s *service) PreviewSplit(ctx context.Context, groupID uuid.UUID, totalMinor int64, payer string, parts []shares.Participant, policy shares.Policy) ([]split.PayeeShare, error) {
	st, err := s.repo.GroupState(ctx, groupID)
	if err != nil {
		return nil, err
	}
	p, err := identity.Normalize(payer)
	if err != nil {
		return nil, err
	}
	np, err := normalizeParticipants(st.Group, parts)
	if err != nil {
		return nil, err
	}
	if !st.Group.HasMember(p) {
		return nil, errs.ErrNotMember
	}
	return shares.Compute(totalMinor, p, np, policy)
}

func (s *service) Resolve(ctx context.Context, in ResolveInput) (ResolveResult, error) {
	st, err := s.repo.GroupState(ctx, in.GroupID)
	if err != nil {
		return ResolveResult{}, err
	}
	if st.Group.Status == split.StatusDeleted {
		return ResolveResult{}, errs.ErrGroupDeleted
	}
	if st.Group.Status != split.StatusActive {
		return ResolveResult{}, errs.ErrGroupNotActive
	}
	from, err := identity.Normalize(in.From)
	if err != nil {
		return ResolveResult{}, err
	}
	to, err := identity.Normalize(in.To)
	if err != nil {
		return ResolveResult{}, err
	}

	edges := append([]split.Edge(nil), st.Edges...)
	idx := -1
	for i := range edges {
		if edges[i].From == from && edges[i].To == to {
			idx = i
			break
		}
	}
	if idx < 0 {
		return ResolveResult{}, errs.ErrNotFound
	}
	if edges[idx].Resolved {
		return ResolveResult{}, errs.ErrEdgeNotPending
	}
	now := s.now()
	edges[idx].Resolved = true
	edges[idx].ResolvedAt = &now
	edges[idx].ResolvedMinor = edges[idx].AmountMinor

	all := debt.AllResolved(edges)
	g := st.Group
	g.UpdatedAt = now
	if all && !in.KeepActive {
		g.Status = split.StatusCompleted
	}
	err = s.writer.Apply(ctx, Mutation{
		Group:           g,
		ExpectedVersion: st.Group.Version,
		ReplaceEdges:    true,
		Edges:           edges,
	})
	if err != nil {
		return ResolveResult{}, err
	}
	return ResolveResult{AllResolved: all, Status: g.Status}, nil
}

func (s *service) DeleteGroup(ctx context.Context, id uuid.UUID, actor string) error {
	st, err := s.repo.GroupState(ctx, id)
	if err != nil {
		return err
	}
	if st.Group.Status == split.StatusDeleted {
		return errs.ErrGroupDeleted
	}
	if !st.Group.Status.CanTransition(split.StatusDeleted) {
		return errs.ErrGroupNotActive
	}
	now := s.now()
	g := st.Group
	g.Status = split.StatusDeleted
	g.DeletedAt = &now
	g.UpdatedAt = now
	entry := s.auditEntry(g, split.ActionDeleteGroup, actor, actor+" deleted group \""+g.Name+"\"", nil)
	return s.writer.Apply(ctx, Mutation{
		Group:           g,
		ExpectedVersion: st.Group.Version,
		Audit:           []split.AuditEntry{entry},
	})
}

func (s *service) PurgeExpired(ctx context.Context) (int, error) {
	cutoff := s.now().Add(-s.retention)
	ids, err := s.repo.ListDeletedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	purged := 0
	for _, id := range ids {
		if err := s.writer.PurgeGroup(ctx, id); err != nil {
			return purged, err
		}
		purged++
	}
	return purged, nil
}

func (s *service) PendingByMember(ctx context.Context, member string) ([]PendingGroup, error) {
	m, err := identity.Normalize(member)
	if err != nil {
		return nil, err
	}
	groups, err := s.repo.ListGroupsByMember(ctx, m)
	if err != nil {
		return nil, err
	}
	out := make([]PendingGroup, 0, len(groups))
	for _, g := range groups {
		if g.Status != split.StatusActive {
			continue
		}
		st, err := s.repo.GroupState(ctx, g.ID)
		if err != nil {
			return nil, err
		}
		mine := make([]split.Edge, 0)
		for _, e := range debt.Pending(st.Edges) {
			if e.From == m || e.To == m {
				mine = append(mine, e)
			}
		}
		if len(mine) > 0 {
			out = append(out, PendingGroup{Group: st.Group, Edges: mine})
		}
	}
	return out, nil
}

func (s *service) HistoryByMember(ctx context.Context, member string) ([]split.Group, error) {
	m, err := identity.Normalize(member)
	if err != nil {
		return nil, err
	}
	return s.repo.ListHistoryByMember(ctx, m)
}

func (s *service) Audit(ctx context.Context, groupID uuid.UUID) ([]split.AuditEntry, error) {
	if groupID == uuid.Nil {
		return nil, errs.ErrInvalid
	}
	return s.repo.ListAudit(ctx, groupID)
}

// mutableState loads a snapshot and rejects expense mutations on deleted
// groups. Completed groups pass: adding an expense reopens them.
func (s *service) mutableState(ctx context.Context, id uuid.UUID) (State, error) {
	if id == uuid.Nil {
		return State{}, errs.ErrInvalid
	}
	st, err := s.repo.GroupState(ctx, id)
	if err != nil {
		return State{}, err
	}
	if st.Group.Status == split.StatusDeleted {
		return State{}, errs.ErrGroupDeleted
	}
	return st, nil
}

// reconsolidate re-derives the full edge set from the expense list and
// carries resolved statuses over from the previous edges.
func reconsolidate(prev []split.Edge, expenses []split.Expense) []split.Edge {
	obs := make([]split.Obligation, 0)
	for _, e := range expenses {
		obs = append(obs, e.Obligations()...)
	}
	return debt.CarryResolved(prev, debt.Consolidate(obs))
}

func normalizeParticipants(g split.Group, in []shares.Participant) ([]shares.Participant, error) {
	out := make([]shares.Participant, 0, len(in))
	for _, p := range in {
		m, err := identity.Normalize(p.Member)
		if err != nil {
			return nil, err
		}
		if !g.HasMember(m) {
			return nil, errs.ErrNotMember
		}
		p.Member = m
		out = append(out, p)
	}
	return out, nil
}

func (s *service) auditEntry(g split.Group, action split.AuditAction, actor, desc string, details meta.Details) split.AuditEntry {
	// details beyond the bounds are dropped rather than failing the mutation
	if err := details.Validate(); err != nil {
		details = nil
	}
	return split.AuditEntry{
		ID:          uuid.New(),
		GroupID:     g.ID,
		Action:      action,
		Actor:       actor,
		Description: desc,
		Details:     details,
		At:          s.now(),
	}
}

func contains(xs []string, s string) bool {
	for _, x := range xs {
		if x == s {
			return true
		}
	}
	return false
}
