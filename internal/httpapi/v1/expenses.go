package v1

import (
	"encoding/json"
	"net/http"

	"github.com/splitledger/splitledger/internal/dictionary"
	"github.com/splitledger/splitledger/internal/service/group"
	"github.com/splitledger/splitledger/internal/service/shares"
)

func (s *Server) postExpense(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	req, ok := r.Context().Value(ctxKeyPostExpense).(postExpenseRequest)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "internal error", "internal")
		return
	}
	exp, err := s.svc.AddExpense(r.Context(), group.AddExpenseInput{
		GroupID:      id,
		Name:         req.Name,
		TotalMinor:   req.TotalMinor,
		Payer:        req.Payer,
		Participants: toParticipants(req.Participants),
		Policy:       shares.Policy(req.Policy),
		Actor:        req.Actor,
	})
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	expensesRecordedTotal.Inc()
	st, err := s.svc.GetGroup(r.Context(), id)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	toJSON(w, http.StatusCreated, struct {
		Expense expenseResponse `json:"expense"`
		Edges   []edgeResponse  `json:"edges"`
	}{
		Expense: toExpenseResponse(st.Group.Currency, exp),
		Edges:   toEdgeResponses(st.Group.Currency, st.Edges),
	})
}

func (s *Server) patchExpense(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}
	groupID, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	expenseID, ok := parseID(w, r, "expenseID")
	if !ok {
		return
	}
	var req patchExpenseRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	if req.Actor == "" {
		badRequest(w, "actor is required")
		return
	}
	if req.Name == nil && req.Shares == nil {
		badRequest(w, "nothing to update")
		return
	}
	var parts []shares.Participant
	if req.Shares != nil {
		parts = toParticipants(req.Shares)
	}
	exp, err := s.svc.EditExpense(r.Context(), group.EditExpenseInput{
		GroupID:   groupID,
		ExpenseID: expenseID,
		Name:      req.Name,
		Shares:    parts,
		Actor:     req.Actor,
	})
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	expensesEditedTotal.Inc()
	st, err := s.svc.GetGroup(r.Context(), groupID)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toExpenseResponse(st.Group.Currency, exp))
}

func (s *Server) deleteExpense(w http.ResponseWriter, r *http.Request) {
	groupID, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	expenseID, ok := parseID(w, r, "expenseID")
	if !ok {
		return
	}
	actor := r.URL.Query().Get("actor")
	if actor == "" {
		badRequest(w, "actor is required")
		return
	}
	if err := s.svc.DeleteExpense(r.Context(), groupID, expenseID, actor); err != nil {
		writeDomainErr(w, err)
		return
	}
	expensesDeletedTotal.Inc()
	w.WriteHeader(http.StatusNoContent)
}

// previewSplit computes shares without persisting anything.
func (s *Server) previewSplit(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	var req previewSplitRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	if req.Policy == "" {
		req.Policy = string(shares.PolicyEqual)
	}
	if !dictionary.IsKnown(req.Policy) {
		badRequest(w, "unknown policy: "+req.Policy)
		return
	}
	shs, err := s.svc.PreviewSplit(r.Context(), id, req.TotalMinor, req.Payer, toParticipants(req.Participants), shares.Policy(req.Policy))
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	st, err := s.svc.GetGroup(r.Context(), id)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, struct {
		Shares []shareResponse `json:"shares"`
	}{Shares: toShareResponses(st.Group.Currency, shs)})
}
