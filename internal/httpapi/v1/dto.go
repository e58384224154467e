package v1

import (
	"time"

	"github.com/google/uuid"

	"github.com/splitledger/splitledger/internal/service/group"
	"github.com/splitledger/splitledger/internal/split"
)

type createGroupRequest struct {
	Name     string   `json:"name"`
	Currency string   `json:"currency,omitempty"`
	Actor    string   `json:"actor"`
	Members  []string `json:"members,omitempty"`
}

type joinGroupRequest struct {
	InviteCode string `json:"invite_code"`
	Member     string `json:"member"`
}

type addMemberRequest struct {
	Member string `json:"member"`
}

type participantRequest struct {
	Member        string `json:"member"`
	AmountMinor   int64  `json:"amount_minor,omitempty"`
	SubtotalMinor int64  `json:"subtotal_minor,omitempty"`
}

type postExpenseRequest struct {
	Name         string               `json:"name"`
	TotalMinor   int64                `json:"total_minor"`
	Payer        string               `json:"payer"`
	Policy       string               `json:"policy,omitempty"`
	Participants []participantRequest `json:"participants"`
	Actor        string               `json:"actor"`
}

type patchExpenseRequest struct {
	Name   *string              `json:"name,omitempty"`
	Shares []participantRequest `json:"shares,omitempty"`
	Actor  string               `json:"actor"`
}

type previewSplitRequest struct {
	TotalMinor   int64                `json:"total_minor"`
	Payer        string               `json:"payer"`
	Policy       string               `json:"policy,omitempty"`
	Participants []participantRequest `json:"participants"`
}

type resolveRequest struct {
	From       string `json:"from"`
	To         string `json:"to"`
	KeepActive bool   `json:"keep_active,omitempty"`
}

type groupResponse struct {
	ID         uuid.UUID  `json:"id"`
	Name       string     `json:"name"`
	Currency   string     `json:"currency"`
	Status     string     `json:"status"`
	Members    []string   `json:"members"`
	InviteCode string     `json:"invite_code"`
	CreatedAt  time.Time  `json:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at"`
	DeletedAt  *time.Time `json:"deleted_at,omitempty"`
}

type shareResponse struct {
	Member      string `json:"member"`
	AmountMinor int64  `json:"amount_minor"`
	Amount      string `json:"amount"`
	IsPayer     bool   `json:"is_payer,omitempty"`
}

type expenseResponse struct {
	ID         uuid.UUID       `json:"id"`
	GroupID    uuid.UUID       `json:"group_id"`
	Name       string          `json:"name"`
	TotalMinor int64           `json:"total_minor"`
	Total      string          `json:"total"`
	Payer      string          `json:"payer"`
	Shares     []shareResponse `json:"shares"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type edgeResponse struct {
	From        string     `json:"from"`
	To          string     `json:"to"`
	ToName      string     `json:"to_name"`
	AmountMinor int64      `json:"amount_minor"`
	Amount      string     `json:"amount"`
	Resolved    bool       `json:"resolved"`
	ResolvedAt  *time.Time `json:"resolved_at,omitempty"`
}

type groupStateResponse struct {
	Group    groupResponse     `json:"group"`
	Expenses []expenseResponse `json:"expenses"`
	Edges    []edgeResponse    `json:"edges"`
}

type resolveResponse struct {
	AllResolved bool   `json:"all_resolved"`
	Status      string `json:"status"`
}

type pendingGroupResponse struct {
	Group groupResponse  `json:"group"`
	Edges []edgeResponse `json:"edges"`
}

type auditEntryResponse struct {
	ID          uuid.UUID         `json:"id"`
	Action      string            `json:"action"`
	Actor       string            `json:"actor"`
	Description string            `json:"description"`
	Details     map[string]string `json:"details,omitempty"`
	At          time.Time         `json:"at"`
}

func toGroupResponse(g split.Group) groupResponse {
	return groupResponse{
		ID:         g.ID,
		Name:       g.Name,
		Currency:   g.Currency,
		Status:     string(g.Status),
		Members:    g.Members,
		InviteCode: g.InviteCode,
		CreatedAt:  g.CreatedAt,
		UpdatedAt:  g.UpdatedAt,
		DeletedAt:  g.DeletedAt,
	}
}

func toShareResponses(currency string, shs []split.PayeeShare) []shareResponse {
	out := make([]shareResponse, 0, len(shs))
	for _, sh := range shs {
		out = append(out, shareResponse{
			Member:      sh.Member,
			AmountMinor: sh.AmountMinor,
			Amount:      split.FormatMinor(currency, sh.AmountMinor),
			IsPayer:     sh.IsPayer,
		})
	}
	return out
}

func toExpenseResponse(currency string, e split.Expense) expenseResponse {
	return expenseResponse{
		ID:         e.ID,
		GroupID:    e.GroupID,
		Name:       e.Name,
		TotalMinor: e.TotalMinor,
		Total:      split.FormatMinor(currency, e.TotalMinor),
		Payer:      e.Payer,
		Shares:     toShareResponses(currency, e.Shares),
		CreatedAt:  e.CreatedAt,
		UpdatedAt:  e.UpdatedAt,
	}
}

func toEdgeResponses(currency string, edges []split.Edge) []edgeResponse {
	out := make([]edgeResponse, 0, len(edges))
	for _, e := range edges {
		out = append(out, edgeResponse{
			From: e.From,
			To:   e.To,
			// member identifiers double as display names
			ToName:      e.To,
			AmountMinor: e.AmountMinor,
			Amount:      split.FormatMinor(currency, e.AmountMinor),
			Resolved:    e.Resolved,
			ResolvedAt:  e.ResolvedAt,
		})
	}
	return out
}

func toGroupStateResponse(st group.State) groupStateResponse {
	curr := st.Group.Currency
	exps := make([]expenseResponse, 0, len(st.Expenses))
	for _, e := range st.Expenses {
		exps = append(exps, toExpenseResponse(curr, e))
	}
	return groupStateResponse{
		Group:    toGroupResponse(st.Group),
		Expenses: exps,
		Edges:    toEdgeResponses(curr, st.Edges),
	}
}

func toAuditResponses(entries []split.AuditEntry) []auditEntryResponse {
	out := make([]auditEntryResponse, 0, len(entries))
	for _, a := range entries {
		out = append(out, auditEntryResponse{
			ID:          a.ID,
			Action:      string(a.Action),
			Actor:       a.Actor,
			Description: a.Description,
			Details:     a.Details,
			At:          a.At,
		})
	}
	return out
}
