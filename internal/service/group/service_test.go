package group_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/splitledger/splitledger/internal/errs"
	"github.com/splitledger/splitledger/internal/service/group"
	"github.com/splitledger/splitledger/internal/service/shares"
	"github.com/splitledger/splitledger/internal/split"
	"github.com/splitledger/splitledger/internal/storage/memory"
)

const (
	alice = "alice@x.io"
	bob   = "bob@x.io"
	carol = "carol@x.io"
	dave  = "dave@x.io"
)

func newService(t *testing.T, retention time.Duration) (group.Service, *memory.Store) {
	t.Helper()
	store := memory.New()
	return group.New(store, store, retention), store
}

func mustCreate(t *testing.T, svc group.Service, members ...string) split.Group {
	t.Helper()
	g, err := svc.CreateGroup(context.Background(), "Trip", "USD", alice, members)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	return g
}

func addEqualExpense(t *testing.T, svc group.Service, g split.Group, name, payer string, total int64, members ...string) split.Expense {
	t.Helper()
	parts := make([]shares.Participant, 0, len(members))
	for _, m := range members {
		parts = append(parts, shares.Participant{Member: m})
	}
	exp, err := svc.AddExpense(context.Background(), group.AddExpenseInput{
		GroupID:      g.ID,
		Name:         name,
		TotalMinor:   total,
		Payer:        payer,
		Participants: parts,
		Policy:       shares.PolicyEqual,
		Actor:        payer,
	})
	if err != nil {
		t.Fatalf("AddExpense %s: %v", name, err)
	}
	return exp
}

func edgeAmount(t *testing.T, edges []split.Edge, from, to string) int64 {
	t.Helper()
	for _, e := range edges {
		if e.From == from && e.To == to {
			return e.AmountMinor
		}
	}
	t.Fatalf("no edge %s -> %s in %+v", from, to, edges)
	return 0
}

func TestCreateGroupNormalizesMembers(t *testing.T) {
	svc, _ := newService(t, 0)
	g, err := svc.CreateGroup(context.Background(), "Trip", "", " Alice@X.IO ", []string{"BOB@x.io", "bob@x.io", carol})
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if g.Currency != "USD" {
		t.Fatalf("currency %q, want default USD", g.Currency)
	}
	if len(g.Members) != 3 || g.Members[0] != alice {
		t.Fatalf("members %v", g.Members)
	}
	if len(g.InviteCode) != 8 {
		t.Fatalf("invite code %q", g.InviteCode)
	}
	if g.Status != split.StatusActive || g.Version != 1 {
		t.Fatalf("status %s version %d", g.Status, g.Version)
	}
}

func TestCreateGroupRejectsUnknownCurrency(t *testing.T) {
	svc, _ := newService(t, 0)
	ctx := context.Background()

	if _, err := svc.CreateGroup(ctx, "Trip", "QQQ", alice, nil); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("unknown currency: want ErrInvalid, got %v", err)
	}
	if _, err := svc.CreateGroup(ctx, "Trip", "XX", alice, nil); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("short currency: want ErrInvalid, got %v", err)
	}

	g, err := svc.CreateGroup(ctx, "Trip", "eur", alice, nil)
	if err != nil {
		t.Fatalf("CreateGroup: %v", err)
	}
	if g.Currency != "EUR" {
		t.Fatalf("currency %q", g.Currency)
	}
	// every amount for an accepted currency formats to a real figure
	if got := split.FormatMinor(g.Currency, 2000); got != "20.00" {
		t.Fatalf("FormatMinor = %q", got)
	}
}

func TestConsolidationAcrossExpenses(t *testing.T) {
	svc, _ := newService(t, 0)
	g := mustCreate(t, svc, bob, carol)

	// alice fronts 90.00 for everyone, bob fronts 30.00 for bob+carol
	addEqualExpense(t, svc, g, "Hotel", alice, 9000, alice, bob, carol)
	addEqualExpense(t, svc, g, "Taxi", bob, 3000, bob, carol)

	st, err := svc.GetGroup(context.Background(), g.ID)
	if err != nil {
		t.Fatalf("GetGroup: %v", err)
	}
	if len(st.Edges) != 3 {
		t.Fatalf("edges %+v", st.Edges)
	}
	if edgeAmount(t, st.Edges, bob, alice) != 3000 {
		t.Fatal("bob should owe alice 30.00")
	}
	if edgeAmount(t, st.Edges, carol, alice) != 3000 {
		t.Fatal("carol should owe alice 30.00")
	}
	if edgeAmount(t, st.Edges, carol, bob) != 1500 {
		t.Fatal("carol should owe bob 15.00")
	}
}

func TestResolveCompletesGroup(t *testing.T) {
	svc, _ := newService(t, 0)
	g := mustCreate(t, svc, bob, carol)
	addEqualExpense(t, svc, g, "Hotel", alice, 9000, alice, bob, carol)

	ctx := context.Background()
	res, err := svc.Resolve(ctx, group.ResolveInput{GroupID: g.ID, From: bob, To: alice})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if res.AllResolved || res.Status != split.StatusActive {
		t.Fatalf("unexpected result %+v", res)
	}

	// resolving twice is rejected
	if _, err := svc.Resolve(ctx, group.ResolveInput{GroupID: g.ID, From: bob, To: alice}); !errors.Is(err, errs.ErrEdgeNotPending) {
		t.Fatalf("want ErrEdgeNotPending, got %v", err)
	}
	// unknown pair is not found
	if _, err := svc.Resolve(ctx, group.ResolveInput{GroupID: g.ID, From: dave, To: alice}); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}

	res, err = svc.Resolve(ctx, group.ResolveInput{GroupID: g.ID, From: carol, To: alice})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !res.AllResolved || res.Status != split.StatusCompleted {
		t.Fatalf("last edge should complete the group: %+v", res)
	}

	// further resolution attempts hit the inactive group
	if _, err := svc.Resolve(ctx, group.ResolveInput{GroupID: g.ID, From: bob, To: alice}); !errors.Is(err, errs.ErrGroupNotActive) {
		t.Fatalf("want ErrGroupNotActive, got %v", err)
	}

	hist, err := svc.HistoryByMember(ctx, carol)
	if err != nil {
		t.Fatalf("HistoryByMember: %v", err)
	}
	if len(hist) != 1 || hist[0].ID != g.ID {
		t.Fatalf("history %+v", hist)
	}
}

func TestResolveKeepActive(t *testing.T) {
	svc, _ := newService(t, 0)
	g := mustCreate(t, svc, bob)
	addEqualExpense(t, svc, g, "Lunch", alice, 2000, alice, bob)

	res, err := svc.Resolve(context.Background(), group.ResolveInput{GroupID: g.ID, From: bob, To: alice, KeepActive: true})
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !res.AllResolved || res.Status != split.StatusActive {
		t.Fatalf("keep_active should leave the group active: %+v", res)
	}
}

func TestCarryOverAcrossRecompute(t *testing.T) {
	svc, _ := newService(t, 0)
	g := mustCreate(t, svc, bob)
	ctx := context.Background()

	addEqualExpense(t, svc, g, "Lunch", alice, 3000, alice, bob)
	if _, err := svc.Resolve(ctx, group.ResolveInput{GroupID: g.ID, From: bob, To: alice, KeepActive: true}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	// bob paying reduces the pair's net: the resolved mark survives
	addEqualExpense(t, svc, g, "Coffee", bob, 1000, alice, bob)
	st, _ := svc.GetGroup(ctx, g.ID)
	if len(st.Edges) != 1 || !st.Edges[0].Resolved || st.Edges[0].AmountMinor != 1000 {
		t.Fatalf("edge should stay resolved at the lower amount: %+v", st.Edges)
	}

	// new debt beyond what was settled reverts the pair to pending
	addEqualExpense(t, svc, g, "Dinner", alice, 4000, alice, bob)
	st, _ = svc.GetGroup(ctx, g.ID)
	if len(st.Edges) != 1 || st.Edges[0].Resolved || st.Edges[0].AmountMinor != 3000 {
		t.Fatalf("edge should be pending at the full amount: %+v", st.Edges)
	}
}

func TestAddExpenseReopensCompleted(t *testing.T) {
	svc, _ := newService(t, 0)
	g := mustCreate(t, svc, bob)
	ctx := context.Background()
	addEqualExpense(t, svc, g, "Lunch", alice, 2000, alice, bob)
	if _, err := svc.Resolve(ctx, group.ResolveInput{GroupID: g.ID, From: bob, To: alice}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}

	addEqualExpense(t, svc, g, "Dinner", alice, 2000, alice, bob)
	st, _ := svc.GetGroup(ctx, g.ID)
	if st.Group.Status != split.StatusActive {
		t.Fatalf("new expense should reopen the group, status %s", st.Group.Status)
	}
}

func TestEditAndDeleteExpense(t *testing.T) {
	svc, _ := newService(t, 0)
	g := mustCreate(t, svc, bob)
	ctx := context.Background()
	exp := addEqualExpense(t, svc, g, "Lunch", alice, 3000, alice, bob)

	// reweight: bob now owes 20.00 of the 30.00
	edited, err := svc.EditExpense(ctx, group.EditExpenseInput{
		GroupID:   g.ID,
		ExpenseID: exp.ID,
		Shares: []shares.Participant{
			{Member: alice, AmountMinor: 1000},
			{Member: bob, AmountMinor: 2000},
		},
		Actor: alice,
	})
	if err != nil {
		t.Fatalf("EditExpense: %v", err)
	}
	if edited.TotalMinor != 3000 {
		t.Fatalf("total %d", edited.TotalMinor)
	}
	st, _ := svc.GetGroup(ctx, g.ID)
	if edgeAmount(t, st.Edges, bob, alice) != 2000 {
		t.Fatalf("edges %+v", st.Edges)
	}

	if err := svc.DeleteExpense(ctx, g.ID, exp.ID, alice); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
	st, _ = svc.GetGroup(ctx, g.ID)
	if len(st.Expenses) != 0 || len(st.Edges) != 0 {
		t.Fatalf("state after delete: %+v", st)
	}
	if err := svc.DeleteExpense(ctx, g.ID, exp.ID, alice); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestMembership(t *testing.T) {
	svc, _ := newService(t, 0)
	g := mustCreate(t, svc, bob)
	ctx := context.Background()

	if _, err := svc.AddMember(ctx, g.ID, bob); !errors.Is(err, errs.ErrMemberExists) {
		t.Fatalf("want ErrMemberExists, got %v", err)
	}
	if _, err := svc.AddMember(ctx, g.ID, carol); err != nil {
		t.Fatalf("AddMember: %v", err)
	}

	addEqualExpense(t, svc, g, "Lunch", alice, 2000, alice, bob)
	if _, err := svc.RemoveMember(ctx, g.ID, bob); !errors.Is(err, errs.ErrMemberInUse) {
		t.Fatalf("want ErrMemberInUse, got %v", err)
	}
	// carol has no expenses or debts and can leave
	if _, err := svc.RemoveMember(ctx, g.ID, carol); err != nil {
		t.Fatalf("RemoveMember: %v", err)
	}
	if _, err := svc.RemoveMember(ctx, g.ID, dave); !errors.Is(err, errs.ErrNotMember) {
		t.Fatalf("want ErrNotMember, got %v", err)
	}
}

func TestJoinByInvite(t *testing.T) {
	svc, _ := newService(t, 0)
	g := mustCreate(t, svc, bob)
	ctx := context.Background()

	joined, err := svc.Join(ctx, g.InviteCode, carol)
	if err != nil {
		t.Fatalf("Join: %v", err)
	}
	if !joined.HasMember(carol) {
		t.Fatalf("members %v", joined.Members)
	}
	if _, err := svc.Join(ctx, g.InviteCode, carol); !errors.Is(err, errs.ErrMemberExists) {
		t.Fatalf("want ErrMemberExists, got %v", err)
	}
	if _, err := svc.Join(ctx, "NOPE1234", dave); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
}

func TestDeleteGroupAndPurge(t *testing.T) {
	svc, _ := newService(t, time.Millisecond)
	g := mustCreate(t, svc, bob)
	ctx := context.Background()
	addEqualExpense(t, svc, g, "Lunch", alice, 2000, alice, bob)

	if err := svc.DeleteGroup(ctx, g.ID, alice); err != nil {
		t.Fatalf("DeleteGroup: %v", err)
	}
	if err := svc.DeleteGroup(ctx, g.ID, alice); !errors.Is(err, errs.ErrGroupDeleted) {
		t.Fatalf("double delete: want ErrGroupDeleted, got %v", err)
	}
	if _, err := svc.AddMember(ctx, g.ID, carol); !errors.Is(err, errs.ErrGroupDeleted) {
		t.Fatalf("want ErrGroupDeleted, got %v", err)
	}
	if _, err := svc.Resolve(ctx, group.ResolveInput{GroupID: g.ID, From: bob, To: alice}); !errors.Is(err, errs.ErrGroupDeleted) {
		t.Fatalf("want ErrGroupDeleted, got %v", err)
	}

	// still readable while retained
	st, err := svc.GetGroup(ctx, g.ID)
	if err != nil {
		t.Fatalf("GetGroup during retention: %v", err)
	}
	if st.Group.Status != split.StatusDeleted || st.Group.DeletedAt == nil {
		t.Fatalf("group %+v", st.Group)
	}

	time.Sleep(5 * time.Millisecond)
	n, err := svc.PurgeExpired(ctx)
	if err != nil {
		t.Fatalf("PurgeExpired: %v", err)
	}
	if n != 1 {
		t.Fatalf("purged %d, want 1", n)
	}
	// purge is idempotent
	if n, err = svc.PurgeExpired(ctx); err != nil || n != 0 {
		t.Fatalf("second purge: n=%d err=%v", n, err)
	}
	if _, err := svc.GetGroup(ctx, g.ID); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound after purge, got %v", err)
	}
}

func TestPendingByMember(t *testing.T) {
	svc, _ := newService(t, 0)
	g := mustCreate(t, svc, bob, carol)
	ctx := context.Background()
	addEqualExpense(t, svc, g, "Hotel", alice, 9000, alice, bob, carol)

	pending, err := svc.PendingByMember(ctx, bob)
	if err != nil {
		t.Fatalf("PendingByMember: %v", err)
	}
	if len(pending) != 1 || len(pending[0].Edges) != 1 {
		t.Fatalf("pending %+v", pending)
	}
	if pending[0].Edges[0].From != bob || pending[0].Edges[0].To != alice {
		t.Fatalf("edge %+v", pending[0].Edges[0])
	}

	if _, err := svc.Resolve(ctx, group.ResolveInput{GroupID: g.ID, From: bob, To: alice}); err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	pending, _ = svc.PendingByMember(ctx, bob)
	if len(pending) != 0 {
		t.Fatalf("nothing should remain pending for bob: %+v", pending)
	}
}

func TestPreviewSplitDoesNotPersist(t *testing.T) {
	svc, _ := newService(t, 0)
	g := mustCreate(t, svc, bob, carol)
	ctx := context.Background()

	shs, err := svc.PreviewSplit(ctx, g.ID, 10000, alice, []shares.Participant{
		{Member: alice}, {Member: bob}, {Member: carol},
	}, shares.PolicyEqual)
	if err != nil {
		t.Fatalf("PreviewSplit: %v", err)
	}
	if len(shs) != 3 {
		t.Fatalf("shares %+v", shs)
	}
	st, _ := svc.GetGroup(ctx, g.ID)
	if len(st.Expenses) != 0 || len(st.Edges) != 0 {
		t.Fatalf("preview must not persist: %+v", st)
	}
}

func TestAuditTrail(t *testing.T) {
	svc, _ := newService(t, 0)
	g := mustCreate(t, svc, bob)
	ctx := context.Background()
	exp := addEqualExpense(t, svc, g, "Lunch", alice, 2000, alice, bob)
	if err := svc.DeleteExpense(ctx, g.ID, exp.ID, bob); err != nil {
		t.Fatalf("DeleteExpense: %v", err)
	}
	if err := svc.DeleteGroup(ctx, g.ID, alice); err != nil {
		t.Fatalf("DeleteGroup: %v", err)
	}

	entries, err := svc.Audit(ctx, g.ID)
	if err != nil {
		t.Fatalf("Audit: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("entries %+v", entries)
	}
	// newest first
	wantActions := []split.AuditAction{split.ActionDeleteGroup, split.ActionDeleteExpense, split.ActionAddExpense}
	for i, a := range entries {
		if a.Action != wantActions[i] {
			t.Fatalf("entry %d action %s, want %s", i, a.Action, wantActions[i])
		}
		if a.Actor == "" || a.Description == "" {
			t.Fatalf("entry %d missing actor or description: %+v", i, a)
		}
	}
	if entries[2].Details["expense_id"] != exp.ID.String() {
		t.Fatalf("add entry details %+v", entries[2].Details)
	}
}

func TestGetGroupUnknown(t *testing.T) {
	svc, _ := newService(t, 0)
	if _, err := svc.GetGroup(context.Background(), uuid.New()); !errors.Is(err, errs.ErrNotFound) {
		t.Fatalf("want ErrNotFound, got %v", err)
	}
	if _, err := svc.GetGroup(context.Background(), uuid.Nil); !errors.Is(err, errs.ErrInvalid) {
		t.Fatalf("want ErrInvalid, got %v", err)
	}
}
