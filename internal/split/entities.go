package split

import (
	"time"

	"github.com/google/uuid"
	"github.com/govalues/money"

	"github.com/splitledger/splitledger/internal/meta"
)

// GroupStatus enumerates the lifecycle of a group ledger.
type GroupStatus string

const (
	// StatusActive accepts new expenses and resolve actions.
	StatusActive GroupStatus = "active"
	// StatusCompleted means every debt edge has been resolved; a new expense
	// reactivates the group.
	StatusCompleted GroupStatus = "completed"
	// StatusDeleted keeps the group readable during the retention window and
	// rejects all mutations.
	StatusDeleted GroupStatus = "deleted"
)

// Valid reports whether s is a known status value.
func (s GroupStatus) Valid() bool {
	switch s {
	case StatusActive, StatusCompleted, StatusDeleted:
		return true
	}
	return false
}

// CanTransition reports whether the lifecycle allows moving from s to next.
// Deleted is terminal; completed reopens only back to active.
func (s GroupStatus) CanTransition(next GroupStatus) bool {
	switch s {
	case StatusActive:
		return next == StatusActive || next == StatusCompleted || next == StatusDeleted
	case StatusCompleted:
		return next == StatusActive || next == StatusDeleted
	default:
		return false
	}
}

// Group is a set of members sharing one running ledger of expenses and debts.
type Group struct {
	ID       uuid.UUID
	Name     string
	Currency string
	Status   GroupStatus
	// Members holds normalized email-like identifiers.
	Members []string
	// InviteCode is a short code other users present to join the group.
	InviteCode string
	CreatedAt  time.Time
	UpdatedAt  time.Time
	// DeletedAt starts the retention window; nil unless Status is deleted.
	DeletedAt *time.Time
	// Version is the optimistic-concurrency token; every committed mutation
	// against the group increments it.
	Version int64
}

// HasMember reports whether m is in the group's member set.
func (g Group) HasMember(m string) bool {
	for _, x := range g.Members {
		if x == m {
			return true
		}
	}
	return false
}

// PayeeShare is one member's owed portion of an expense.
// The payer's own share is informational and never becomes a debt.
type PayeeShare struct {
	Member      string
	AmountMinor int64
	IsPayer     bool
}

// Expense is one recorded spend with a payer and an ordered set of payee shares.
type Expense struct {
	ID         uuid.UUID
	GroupID    uuid.UUID
	Name       string
	TotalMinor int64
	Payer      string
	Shares     []PayeeShare
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Obligation is a single directed debt derived from one payee share.
type Obligation struct {
	Debtor      string
	Creditor    string
	AmountMinor int64
}

// Obligations derives the debts this expense creates: every non-payer share
// with a positive amount owes the payer. Zero-amount shares are equivalent to
// absence.
func (e Expense) Obligations() []Obligation {
	out := make([]Obligation, 0, len(e.Shares))
	for _, sh := range e.Shares {
		if sh.IsPayer || sh.Member == e.Payer || sh.AmountMinor <= 0 {
			continue
		}
		out = append(out, Obligation{Debtor: sh.Member, Creditor: e.Payer, AmountMinor: sh.AmountMinor})
	}
	return out
}

// Edge is a derived net debt between two members after combining all expenses.
// At most one edge exists per (From, To) pair within a group.
type Edge struct {
	From        string
	To          string
	AmountMinor int64
	Resolved    bool
	ResolvedAt  *time.Time
	// ResolvedMinor records the edge amount at the moment it was resolved.
	// A recomputation keeps the edge resolved while the new amount stays at
	// or below this figure.
	ResolvedMinor int64
}

// AuditAction identifies the kind of mutation an audit entry records.
type AuditAction string

const (
	ActionAddExpense    AuditAction = "add_expense"
	ActionEditExpense   AuditAction = "edit_expense"
	ActionDeleteExpense AuditAction = "delete_expense"
	ActionDeleteGroup   AuditAction = "delete_group"
)

// AuditEntry is one append-only record of a mutating action against a group.
type AuditEntry struct {
	ID          uuid.UUID
	GroupID     uuid.UUID
	Action      AuditAction
	Actor       string
	Description string
	Details     meta.Details
	At          time.Time
}

// FormatMinor renders a minor-unit amount as the exact 2-decimal figure for
// the currency, e.g. 4500 -> "45.00". Used at serialization boundaries so no
// binary floating point leaks into responses.
func FormatMinor(currency string, minor int64) string {
	a, err := money.NewAmountFromMinorUnits(currency, minor)
	if err != nil {
		return ""
	}
	return a.Decimal().String()
}
