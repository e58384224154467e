package postgres

// Package postgres provides a pgx-backed storage implementation that
// satisfies the repository and writer interfaces used by the group service.
//
// It is intentionally small and explicit. Migrations that create the expected
// schema live under db/migrations. Every Apply runs in a single transaction
// guarded by the group row's version, which gives the per-group serialization
// the engine requires.

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/splitledger/splitledger/internal/errs"
	"github.com/splitledger/splitledger/internal/meta"
	"github.com/splitledger/splitledger/internal/service/group"
	"github.com/splitledger/splitledger/internal/split"
)

// Store holds a pgx connection pool. All methods are safe for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// Open establishes a pgx pool using the provided connection string.
func Open(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return &Store{pool: pool}, nil
}

// Close releases the underlying pool.
func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Ready pings the pool to verify connectivity.
func (s *Store) Ready(ctx context.Context) error { return s.pool.Ping(ctx) }

// CreateGroup implements group.Writer.
func (s *Store) CreateGroup(ctx context.Context, g split.Group) (split.Group, error) {
	g.Version = 1
	_, err := s.pool.Exec(ctx, `
        insert into groups (id, name, currency, status, members, invite_code, created_at, updated_at, deleted_at, version)
        values ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)
    `, g.ID, g.Name, g.Currency, g.Status, g.Members, g.InviteCode, g.CreatedAt, g.UpdatedAt, g.DeletedAt, g.Version)
	if err != nil {
		return split.Group{}, err
	}
	return g, nil
}

// Apply implements group.Writer: one transaction, compare-and-swap on version.
func (s *Store) Apply(ctx context.Context, m group.Mutation) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	g := m.Group
	ct, err := tx.Exec(ctx, `
        update groups
        set name=$1, currency=$2, status=$3, members=$4, invite_code=$5, updated_at=$6, deleted_at=$7, version=version+1
        where id=$8 and version=$9
    `, g.Name, g.Currency, g.Status, g.Members, g.InviteCode, g.UpdatedAt, g.DeletedAt, g.ID, m.ExpectedVersion)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		var exists bool
		if err := tx.QueryRow(ctx, `select exists(select 1 from groups where id=$1)`, g.ID).Scan(&exists); err != nil {
			return err
		}
		if !exists {
			return errs.ErrNotFound
		}
		return errs.ErrConflict
	}

	for _, e := range m.PutExpenses {
		if err := putExpense(ctx, tx, e); err != nil {
			return err
		}
	}
	for _, id := range m.DeleteExpenseIDs {
		if _, err := tx.Exec(ctx, `delete from payee_shares where expense_id=$1`, id); err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `delete from expenses where id=$1 and group_id=$2`, id, g.ID); err != nil {
			return err
		}
	}
	if m.ReplaceEdges {
		if _, err := tx.Exec(ctx, `delete from edges where group_id=$1`, g.ID); err != nil {
			return err
		}
		for _, e := range m.Edges {
			if _, err := tx.Exec(ctx, `
                insert into edges (group_id, from_member, to_member, amount_minor, resolved, resolved_at, resolved_minor)
                values ($1,$2,$3,$4,$5,$6,$7)
            `, g.ID, e.From, e.To, e.AmountMinor, e.Resolved, e.ResolvedAt, e.ResolvedMinor); err != nil {
				return err
			}
		}
	}
	for _, a := range m.Audit {
		details, _ := a.Details.MarshalStableJSON()
		if _, err := tx.Exec(ctx, `
            insert into audit_entries (id, group_id, action, actor, description, details, at)
            values ($1,$2,$3,$4,$5,$6,$7)
        `, a.ID, a.GroupID, a.Action, a.Actor, a.Description, details, a.At); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// PurgeGroup implements group.Writer. Re-running on a purged id is a no-op.
func (s *Store) PurgeGroup(ctx context.Context, id uuid.UUID) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()
	if _, err := tx.Exec(ctx, `
        delete from payee_shares where expense_id in (select id from expenses where group_id=$1)
    `, id); err != nil {
		return err
	}
	for _, q := range []string{
		`delete from expenses where group_id=$1`,
		`delete from edges where group_id=$1`,
		`delete from audit_entries where group_id=$1`,
		`delete from groups where id=$1`,
	} {
		if _, err := tx.Exec(ctx, q, id); err != nil {
			return err
		}
	}
	return tx.Commit(ctx)
}

// GroupState implements group.Repo: the group, its expenses with shares, and
// its edges read inside one transaction so the snapshot is consistent.
func (s *Store) GroupState(ctx context.Context, id uuid.UUID) (group.State, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return group.State{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	g, err := scanGroup(tx.QueryRow(ctx, `
        select id, name, currency, status, members, invite_code, created_at, updated_at, deleted_at, version
        from groups where id=$1
    `, id))
	if err != nil {
		return group.State{}, err
	}
	st := group.State{Group: g}

	rows, err := tx.Query(ctx, `
        select id, group_id, name, total_minor, payer, created_at, updated_at
        from expenses where group_id=$1
        order by created_at asc, id asc
    `, id)
	if err != nil {
		return group.State{}, err
	}
	byID := make(map[uuid.UUID]int)
	for rows.Next() {
		var e split.Expense
		if err := rows.Scan(&e.ID, &e.GroupID, &e.Name, &e.TotalMinor, &e.Payer, &e.CreatedAt, &e.UpdatedAt); err != nil {
			rows.Close()
			return group.State{}, err
		}
		byID[e.ID] = len(st.Expenses)
		st.Expenses = append(st.Expenses, e)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return group.State{}, err
	}

	if len(st.Expenses) > 0 {
		shareRows, err := tx.Query(ctx, `
            select ps.expense_id, ps.member, ps.amount_minor, ps.is_payer
            from payee_shares ps
            join expenses e on e.id = ps.expense_id
            where e.group_id=$1
            order by ps.expense_id, ps.position
        `, id)
		if err != nil {
			return group.State{}, err
		}
		for shareRows.Next() {
			var expID uuid.UUID
			var sh split.PayeeShare
			if err := shareRows.Scan(&expID, &sh.Member, &sh.AmountMinor, &sh.IsPayer); err != nil {
				shareRows.Close()
				return group.State{}, err
			}
			if i, ok := byID[expID]; ok {
				st.Expenses[i].Shares = append(st.Expenses[i].Shares, sh)
			}
		}
		shareRows.Close()
		if err := shareRows.Err(); err != nil {
			return group.State{}, err
		}
	}

	edgeRows, err := tx.Query(ctx, `
        select from_member, to_member, amount_minor, resolved, resolved_at, resolved_minor
        from edges where group_id=$1
        order by from_member, to_member
    `, id)
	if err != nil {
		return group.State{}, err
	}
	for edgeRows.Next() {
		var e split.Edge
		if err := edgeRows.Scan(&e.From, &e.To, &e.AmountMinor, &e.Resolved, &e.ResolvedAt, &e.ResolvedMinor); err != nil {
			edgeRows.Close()
			return group.State{}, err
		}
		st.Edges = append(st.Edges, e)
	}
	edgeRows.Close()
	if err := edgeRows.Err(); err != nil {
		return group.State{}, err
	}
	if err := tx.Commit(ctx); err != nil {
		return group.State{}, err
	}
	return st, nil
}

// GroupByInvite implements group.Repo.
func (s *Store) GroupByInvite(ctx context.Context, code string) (split.Group, error) {
	return scanGroup(s.pool.QueryRow(ctx, `
        select id, name, currency, status, members, invite_code, created_at, updated_at, deleted_at, version
        from groups where invite_code=$1 and status <> 'deleted'
    `, code))
}

// ListGroupsByMember returns non-deleted groups containing the member.
func (s *Store) ListGroupsByMember(ctx context.Context, member string) ([]split.Group, error) {
	return s.listGroups(ctx, `
        select id, name, currency, status, members, invite_code, created_at, updated_at, deleted_at, version
        from groups where status <> 'deleted' and $1 = any(members)
        order by updated_at desc, id asc
    `, member)
}

// ListHistoryByMember returns completed and retained-deleted groups.
func (s *Store) ListHistoryByMember(ctx context.Context, member string) ([]split.Group, error) {
	return s.listGroups(ctx, `
        select id, name, currency, status, members, invite_code, created_at, updated_at, deleted_at, version
        from groups where status in ('completed','deleted') and $1 = any(members)
        order by updated_at desc, id asc
    `, member)
}

// ListDeletedBefore returns ids of deleted groups past the retention cutoff.
func (s *Store) ListDeletedBefore(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error) {
	rows, err := s.pool.Query(ctx, `
        select id from groups where status='deleted' and deleted_at < $1
    `, cutoff)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]uuid.UUID, 0)
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// ListAudit returns the audit trail newest-first.
func (s *Store) ListAudit(ctx context.Context, groupID uuid.UUID) ([]split.AuditEntry, error) {
	rows, err := s.pool.Query(ctx, `
        select id, group_id, action, actor, description, details, at
        from audit_entries where group_id=$1
        order by at desc, id desc
    `, groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]split.AuditEntry, 0)
	for rows.Next() {
		var a split.AuditEntry
		var details []byte
		if err := rows.Scan(&a.ID, &a.GroupID, &a.Action, &a.Actor, &a.Description, &details, &a.At); err != nil {
			return nil, err
		}
		if len(details) > 0 {
			var d meta.Details
			if err := d.UnmarshalJSON(details); err == nil {
				a.Details = d
			}
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *Store) listGroups(ctx context.Context, query, member string) ([]split.Group, error) {
	rows, err := s.pool.Query(ctx, query, member)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]split.Group, 0)
	for rows.Next() {
		g, err := scanGroupRows(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, g)
	}
	return out, rows.Err()
}

func putExpense(ctx context.Context, tx pgx.Tx, e split.Expense) error {
	if _, err := tx.Exec(ctx, `
        insert into expenses (id, group_id, name, total_minor, payer, created_at, updated_at)
        values ($1,$2,$3,$4,$5,$6,$7)
        on conflict (id) do update set name=excluded.name, total_minor=excluded.total_minor, updated_at=excluded.updated_at
    `, e.ID, e.GroupID, e.Name, e.TotalMinor, e.Payer, e.CreatedAt, e.UpdatedAt); err != nil {
		return err
	}
	if _, err := tx.Exec(ctx, `delete from payee_shares where expense_id=$1`, e.ID); err != nil {
		return err
	}
	for i, sh := range e.Shares {
		if _, err := tx.Exec(ctx, `
            insert into payee_shares (expense_id, member, amount_minor, is_payer, position)
            values ($1,$2,$3,$4,$5)
        `, e.ID, sh.Member, sh.AmountMinor, sh.IsPayer, i); err != nil {
			return fmt.Errorf("insert share: %w", err)
		}
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGroup(row rowScanner) (split.Group, error) {
	var g split.Group
	err := row.Scan(&g.ID, &g.Name, &g.Currency, &g.Status, &g.Members, &g.InviteCode, &g.CreatedAt, &g.UpdatedAt, &g.DeletedAt, &g.Version)
	if errors.Is(err, pgx.ErrNoRows) {
		return split.Group{}, errs.ErrNotFound
	}
	if err != nil {
		return split.Group{}, err
	}
	return g, nil
}

func scanGroupRows(rows pgx.Rows) (split.Group, error) {
	var g split.Group
	if err := rows.Scan(&g.ID, &g.Name, &g.Currency, &g.Status, &g.Members, &g.InviteCode, &g.CreatedAt, &g.UpdatedAt, &g.DeletedAt, &g.Version); err != nil {
		return split.Group{}, err
	}
	return g, nil
}
