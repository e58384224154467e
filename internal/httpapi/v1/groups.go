package v1

import (
	"encoding/json"
	"net/http"

	chi "github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

func (s *Server) postGroup(w http.ResponseWriter, r *http.Request) {
	req, ok := r.Context().Value(ctxKeyCreateGroup).(createGroupRequest)
	if !ok {
		writeErr(w, http.StatusInternalServerError, "internal error", "internal")
		return
	}
	g, err := s.svc.CreateGroup(r.Context(), req.Name, req.Currency, req.Actor, req.Members)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	toJSON(w, http.StatusCreated, toGroupResponse(g))
}

func (s *Server) listGroups(w http.ResponseWriter, r *http.Request) {
	member := r.Context().Value(ctxKeyMemberQuery).(string)
	groups, err := s.svc.ListGroups(r.Context(), member)
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

func (s *Server) getGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	st, err := s.svc.GetGroup(r.Context(), id)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toGroupStateResponse(st))
}

func (s *Server) joinGroup(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}
	var req joinGroupRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	if req.InviteCode == "" || req.Member == "" {
		badRequest(w, "invite_code and member are required")
		return
	}
	g, err := s.svc.Join(r.Context(), req.InviteCode, req.Member)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toGroupResponse(g))
}

func (s *Server) postMember(w http.ResponseWriter, r *http.Request) {
	if !requireJSON(w, r) {
		return
	}
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	var req addMemberRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&req); err != nil {
		badRequest(w, "invalid JSON: "+err.Error())
		return
	}
	if req.Member == "" {
		badRequest(w, "member is required")
		return
	}
	g, err := s.svc.AddMember(r.Context(), id, req.Member)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toGroupResponse(g))
}

func (s *Server) deleteMember(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	member := chi.URLParam(r, "member")
	g, err := s.svc.RemoveMember(r.Context(), id, member)
	if err != nil {
		writeDomainErr(w, err)
		return
	}
	toJSON(w, http.StatusOK, toGroupResponse(g))
}

func (s *Server) deleteGroup(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id")
	if !ok {
		return
	}
	actor := r.URL.Query().Get("actor")
	if actor == "" {
		badRequest(w, "actor is required")
		return
	}
	if err := s.svc.DeleteGroup(r.Context(), id, actor); err != nil {
		writeDomainErr(w, err)
		return
	}
	groupsDeletedTotal.Inc()
	w.WriteHeader(http.StatusNoContent)
}

// parseID reads a uuid path param, writing a 400 on failure.
func parseID(w http.ResponseWriter, r *http.Request, name string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		badRequest(w, "invalid "+name)
		return uuid.Nil, false
	}
	return id, true
}
