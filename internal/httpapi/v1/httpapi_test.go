package v1

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/splitledger/splitledger/internal/storage/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

type groupResp struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Currency   string   `json:"currency"`
	Status     string   `json:"status"`
	Members    []string `json:"members"`
	InviteCode string   `json:"invite_code"`
}

type edgeResp struct {
	From        string `json:"from"`
	To          string `json:"to"`
	ToName      string `json:"to_name"`
	AmountMinor int64  `json:"amount_minor"`
	Amount      string `json:"amount"`
	Resolved    bool   `json:"resolved"`
}

type stateResp struct {
	Group    groupResp `json:"group"`
	Expenses []struct {
		ID    string `json:"id"`
		Name  string `json:"name"`
		Total string `json:"total"`
	} `json:"expenses"`
	Edges []edgeResp `json:"edges"`
}

type errResp struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func setup(t *testing.T) http.Handler {
	t.Helper()
	store := memory.New()
	return New(store, store, time.Hour, testLogger()).Handler()
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal: %v", err)
		}
		rd = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rec.Body.Bytes(), &v); err != nil {
		t.Fatalf("decode: %v: %s", err, rec.Body.String())
	}
	return v
}

func createGroup(t *testing.T, h http.Handler) groupResp {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/v1/groups", map[string]any{
		"name":    "Road Trip",
		"actor":   "alice@x.io",
		"members": []string{"bob@x.io", "carol@x.io"},
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	return decode[groupResp](t, rec)
}

func addExpense(t *testing.T, h http.Handler, groupID, name, payer string, total int64, members ...string) {
	t.Helper()
	parts := make([]map[string]any, 0, len(members))
	for _, m := range members {
		parts = append(parts, map[string]any{"member": m})
	}
	rec := doJSON(t, h, http.MethodPost, "/v1/groups/"+groupID+"/expenses", map[string]any{
		"name":         name,
		"total_minor":  total,
		"payer":        payer,
		"policy":       "equal",
		"participants": parts,
		"actor":        payer,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
}

func TestGroupLifecycleOverHTTP(t *testing.T) {
	h := setup(t)
	g := createGroup(t, h)
	if g.Currency != "USD" || g.Status != "active" || len(g.Members) != 3 {
		t.Fatalf("group %+v", g)
	}

	// alice fronts 90.00 for everyone, bob fronts 30.00 for bob+carol
	addExpense(t, h, g.ID, "Hotel", "alice@x.io", 9000, "alice@x.io", "bob@x.io", "carol@x.io")
	addExpense(t, h, g.ID, "Taxi", "bob@x.io", 3000, "bob@x.io", "carol@x.io")

	rec := doJSON(t, h, http.MethodGet, "/v1/groups/"+g.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	st := decode[stateResp](t, rec)
	if len(st.Expenses) != 2 || len(st.Edges) != 3 {
		t.Fatalf("state %+v", st)
	}
	want := map[string]string{
		"bob@x.io->alice@x.io":   "30.00",
		"carol@x.io->alice@x.io": "30.00",
		"carol@x.io->bob@x.io":   "15.00",
	}
	for _, e := range st.Edges {
		if e.Resolved {
			t.Fatalf("fresh edge resolved: %+v", e)
		}
		if want[e.From+"->"+e.To] != e.Amount {
			t.Fatalf("edge %+v, want %s", e, want[e.From+"->"+e.To])
		}
	}

	// settle everything
	for _, pair := range [][2]string{
		{"carol@x.io", "bob@x.io"},
		{"bob@x.io", "alice@x.io"},
		{"carol@x.io", "alice@x.io"},
	} {
		rec = doJSON(t, h, http.MethodPost, "/v1/groups/"+g.ID+"/resolve", map[string]any{
			"from": pair[0], "to": pair[1],
		})
		if rec.Code != http.StatusOK {
			t.Fatalf("resolve %v: %d: %s", pair, rec.Code, rec.Body.String())
		}
	}
	res := decode[map[string]any](t, rec)
	if res["all_resolved"] != true || res["status"] != "completed" {
		t.Fatalf("final resolve %+v", res)
	}

	// completed groups show up in history
	rec = doJSON(t, h, http.MethodGet, "/v1/history?member=carol@x.io", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("history: %d", rec.Code)
	}
	hist := decode[[]groupResp](t, rec)
	if len(hist) != 1 || hist[0].ID != g.ID {
		t.Fatalf("history %+v", hist)
	}

	// resolving against a completed group conflicts
	rec = doJSON(t, h, http.MethodPost, "/v1/groups/"+g.ID+"/resolve", map[string]any{
		"from": "bob@x.io", "to": "alice@x.io",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d: %s", rec.Code, rec.Body.String())
	}
	if er := decode[errResp](t, rec); er.Code != "group_not_active" {
		t.Fatalf("error %+v", er)
	}
}

func TestPendingEndpoint(t *testing.T) {
	h := setup(t)
	g := createGroup(t, h)
	addExpense(t, h, g.ID, "Hotel", "alice@x.io", 9000, "alice@x.io", "bob@x.io", "carol@x.io")

	rec := doJSON(t, h, http.MethodGet, "/v1/pending?member=bob@x.io", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("pending: %d: %s", rec.Code, rec.Body.String())
	}
	pending := decode[[]struct {
		Group groupResp  `json:"group"`
		Edges []edgeResp `json:"edges"`
	}](t, rec)
	if len(pending) != 1 || len(pending[0].Edges) != 1 {
		t.Fatalf("pending %+v", pending)
	}
	edge := pending[0].Edges[0]
	if edge.Amount != "30.00" {
		t.Fatalf("edge %+v", edge)
	}
	if edge.ToName != "alice@x.io" {
		t.Fatalf("to_name %q, want the creditor identifier", edge.ToName)
	}

	// member query is mandatory
	rec = doJSON(t, h, http.MethodGet, "/v1/pending", nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}

func TestJoinAndMembersOverHTTP(t *testing.T) {
	h := setup(t)
	g := createGroup(t, h)

	rec := doJSON(t, h, http.MethodPost, "/v1/groups/join", map[string]any{
		"invite_code": g.InviteCode,
		"member":      "dave@x.io",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("join: %d: %s", rec.Code, rec.Body.String())
	}
	joined := decode[groupResp](t, rec)
	if len(joined.Members) != 4 {
		t.Fatalf("members %v", joined.Members)
	}

	// joining twice conflicts
	rec = doJSON(t, h, http.MethodPost, "/v1/groups/join", map[string]any{
		"invite_code": g.InviteCode,
		"member":      "dave@x.io",
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d", rec.Code)
	}

	// dave has no debts and can be removed
	rec = doJSON(t, h, http.MethodDelete, "/v1/groups/"+g.ID+"/members/dave@x.io", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("remove member: %d: %s", rec.Code, rec.Body.String())
	}
}

func TestSplitPreview(t *testing.T) {
	h := setup(t)
	g := createGroup(t, h)

	rec := doJSON(t, h, http.MethodPost, "/v1/groups/"+g.ID+"/split-preview", map[string]any{
		"total_minor": 10000,
		"payer":       "alice@x.io",
		"participants": []map[string]any{
			{"member": "alice@x.io"}, {"member": "bob@x.io"}, {"member": "carol@x.io"},
		},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("preview: %d: %s", rec.Code, rec.Body.String())
	}
	out := decode[struct {
		Shares []struct {
			Member string `json:"member"`
			Amount string `json:"amount"`
		} `json:"shares"`
	}](t, rec)
	if len(out.Shares) != 3 {
		t.Fatalf("shares %+v", out.Shares)
	}
	if out.Shares[0].Member != "alice@x.io" || out.Shares[0].Amount != "33.34" {
		t.Fatalf("first share %+v", out.Shares[0])
	}

	// nothing persisted
	rec = doJSON(t, h, http.MethodGet, "/v1/groups/"+g.ID, nil)
	st := decode[stateResp](t, rec)
	if len(st.Expenses) != 0 {
		t.Fatalf("preview persisted an expense: %+v", st.Expenses)
	}
}

func TestDeleteGroupOverHTTP(t *testing.T) {
	h := setup(t)
	g := createGroup(t, h)

	rec := doJSON(t, h, http.MethodDelete, "/v1/groups/"+g.ID+"?actor=alice@x.io", nil)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("delete: %d: %s", rec.Code, rec.Body.String())
	}

	// retained and readable, but closed for writes
	rec = doJSON(t, h, http.MethodGet, "/v1/groups/"+g.ID, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get after delete: %d", rec.Code)
	}
	if st := decode[stateResp](t, rec); st.Group.Status != "deleted" {
		t.Fatalf("status %s", st.Group.Status)
	}
	rec = doJSON(t, h, http.MethodPost, "/v1/groups/"+g.ID+"/expenses", map[string]any{
		"name": "Late", "total_minor": 100, "payer": "alice@x.io",
		"participants": []map[string]any{{"member": "alice@x.io"}},
		"actor":        "alice@x.io",
	})
	if rec.Code != http.StatusGone {
		t.Fatalf("expected 410, got %d: %s", rec.Code, rec.Body.String())
	}

	// audit trail survives while retained
	rec = doJSON(t, h, http.MethodGet, "/v1/groups/"+g.ID+"/audit", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("audit: %d", rec.Code)
	}
	audit := decode[[]map[string]any](t, rec)
	if len(audit) != 1 || audit[0]["action"] != "delete_group" {
		t.Fatalf("audit %+v", audit)
	}
}

func TestValidationErrors(t *testing.T) {
	h := setup(t)
	g := createGroup(t, h)

	// missing content type
	req := httptest.NewRequest(http.MethodPost, "/v1/groups", bytes.NewReader([]byte(`{}`)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnsupportedMediaType {
		t.Fatalf("expected 415, got %d", rec.Code)
	}

	// unknown policy
	rec = doJSON(t, h, http.MethodPost, "/v1/groups/"+g.ID+"/expenses", map[string]any{
		"name": "X", "total_minor": 100, "payer": "alice@x.io", "policy": "vibes",
		"participants": []map[string]any{{"member": "alice@x.io"}},
		"actor":        "alice@x.io",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", rec.Code, rec.Body.String())
	}

	// shares that do not sum to the total
	rec = doJSON(t, h, http.MethodPost, "/v1/groups/"+g.ID+"/expenses", map[string]any{
		"name": "X", "total_minor": 10000, "payer": "alice@x.io", "policy": "explicit",
		"participants": []map[string]any{
			{"member": "alice@x.io", "amount_minor": 4000},
			{"member": "bob@x.io", "amount_minor": 4000},
		},
		"actor": "alice@x.io",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}
	if er := decode[errResp](t, rec); er.Code != "unbalanced_shares" {
		t.Fatalf("error %+v", er)
	}

	// payer outside the group
	rec = doJSON(t, h, http.MethodPost, "/v1/groups/"+g.ID+"/expenses", map[string]any{
		"name": "X", "total_minor": 100, "payer": "zed@x.io",
		"participants": []map[string]any{{"member": "alice@x.io"}},
		"actor":        "alice@x.io",
	})
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422, got %d: %s", rec.Code, rec.Body.String())
	}

	// unknown group
	rec = doJSON(t, h, http.MethodGet, "/v1/groups/00000000-0000-0000-0000-000000000001", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}

func TestPoliciesEndpoint(t *testing.T) {
	h := setup(t)
	rec := doJSON(t, h, http.MethodGet, "/v1/policies", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("policies: %d", rec.Code)
	}
	defs := decode[[]struct {
		Code    string `json:"code"`
		Default bool   `json:"default"`
	}](t, rec)
	if len(defs) != 3 || defs[0].Code != "equal" || !defs[0].Default {
		t.Fatalf("policies %+v", defs)
	}
}

func TestHealthEndpoints(t *testing.T) {
	h := setup(t)
	for _, path := range []string{"/healthz", "/readyz"} {
		rec := doJSON(t, h, http.MethodGet, path, nil)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: %d", path, rec.Code)
		}
	}
}
