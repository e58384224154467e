package v1

import "net/http"

// listHistory returns a member's completed and retained-deleted groups.
func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	member := r.Context().Value(ctxKeyMemberQuery).(string)
	groups, err := s.svc.HistoryByMember(r.Context(), member)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	out := make([]groupResponse, 0, len(groups))
	for _, g := range groups {
		out = append(out, toGroupResponse(g))
	}
	toJSON(w, http.StatusOK, out)
}

// getAudit returns a group's audit trail, newest first.
func (s *Server) getAudit(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	// the group must exist, deleted groups keep their trail while retained
	if _, err := s.svc.GetGroup(r.Context(), id); err != nil {
		writeDomainErr(w, err)
		return
	}
	entries, err := s.svc.Audit(r.Context(), id)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toAuditResponses(entries))
}
