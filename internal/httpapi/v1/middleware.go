package v1

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/splitledger/splitledger/internal/dictionary"
	"github.com/splitledger/splitledger/internal/identity"
	"github.com/splitledger/splitledger/internal/service/shares"
)

type ctxKey string

const ctxKeyCreateGroup ctxKey = "validatedCreateGroup"
const ctxKeyPostExpense ctxKey = "validatedPostExpense"
const ctxKeyMemberQuery ctxKey = "validatedMemberQuery"

// validateCreateGroup parses and validates the POST /groups body and stores
// the request struct in the context for the handler to use.
func (s *Server) validateCreateGroup() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !requireJSON(w, r) {
				return
			}
			var req createGroupRequest
			dec := json.NewDecoder(r.Body)
			dec.DisallowUnknownFields()
			if err := dec.Decode(&req); err != nil {
				badRequest(w, "invalid JSON: "+err.Error())
				return
			}
			if req.Name == "" {
				badRequest(w, "name is required")
				return
			}
			if !identity.IsMember(req.Actor) {
				badRequest(w, "actor must be a valid member id")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyCreateGroup, req)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validatePostExpense parses the POST /groups/{id}/expenses body, defaults the
// policy, and rejects unknown policies before the handler runs.
func (s *Server) validatePostExpense() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !requireJSON(w, r) {
				return
			}
			var req postExpenseRequest
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
			if req.Name == "" || req.Payer == "" || req.Actor == "" {
				badRequest(w, "name, payer and actor are required")
				return
			}
			if req.TotalMinor <= 0 {
				badRequest(w, "total_minor must be positive")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyPostExpense, req)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// validateMemberQuery requires a well-formed member query param.
func (s *Server) validateMemberQuery() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := r.URL.Query().Get("member")
			if raw == "" {
				badRequest(w, "member is required")
				return
			}
			m, err := identity.Normalize(raw)
			if err != nil {
				badRequest(w, "invalid member")
				return
			}
			ctx := context.WithValue(r.Context(), ctxKeyMemberQuery, m)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func toParticipants(in []participantRequest) []shares.Participant {
	out := make([]shares.Participant, 0, len(in))
	for _, p := range in {
		out = append(out, shares.Participant{
			Member:        p.Member,
			AmountMinor:   p.AmountMinor,
			SubtotalMinor: p.SubtotalMinor,
		})
	}
	return out
}
