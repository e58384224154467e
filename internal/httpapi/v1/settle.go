package v1

import (
	"encoding/json"
	"net/http"

	"github.com/splitledger/splitledger/internal/service/group"
	"github.com/splitledger/splitledger/internal/split"
)

// resolveEdge marks one debt edge as settled. Resolving the last pending edge
// completes the group unless keep_active was requested.
func (s *Server) resolveEdge(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	var req resolveRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	if req.From == "" || req.To == "" {
		badRequest(w, "from and to are required")
		return
	}
	res, err := s.svc.Resolve(r.Context(), group.ResolveInput{
		GroupID:    id,
		From:       req.From,
		To:         req.To,
		KeepActive: req.KeepActive,
	})
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	edgesResolvedTotal.Inc()
	if res.Status == split.StatusCompleted {
		groupsCompletedTotal.Inc()
	}
	toJSON(w, http.StatusOK, resolveResponse{AllResolved: res.AllResolved, Status: string(res.Status)})
}

// listPending returns, per active group, the pending edges touching a member.
func (s *Server) listPending(w http.ResponseWriter, r *http.Request) {
	member := r.Context().Value(ctxKeyMemberQuery).(string)
	pending, err := s.svc.PendingByMember(r.Context(), member)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	out := make([]pendingGroupResponse, 0, len(pending))
	for _, p := range pending {
		out = append(out, pendingGroupResponse{
			Group: toGroupResponse(p.Group),
			Edges: toEdgeResponses(p.Group.Currency, p.Edges),
		})
	}
	toJSON(w, http.StatusOK, out)
}
