package v1

import (
	"errors"
	"net/http"

	"github.com/splitledger/splitledger/internal/errs"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code,omitempty"`
}

func writeErr(w http.ResponseWriter, status int, msg, code string) {
	toJSON(w, status, errorResponse{Error: msg, Code: code})
}

func badRequest(w http.ResponseWriter, msg string) { writeErr(w, http.StatusBadRequest, msg, "") }
func notFound(w http.ResponseWriter)               { writeErr(w, http.StatusNotFound, "not_found", "not_found") }
func unprocessable(w http.ResponseWriter, msg, code string) {
	writeErr(w, http.StatusUnprocessableEntity, msg, code)
}

// writeDomainErr maps service sentinels to HTTP statuses and stable codes.
// Conflicts are retryable: the client re-reads and resubmits.
func writeDomainErr(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errs.ErrNotFound):
		notFound(w)
	case errors.Is(err, errs.ErrConflict):
		writeErr(w, http.StatusConflict, "concurrent update, retry the request", "conflict")
	case errors.Is(err, errs.ErrGroupDeleted):
		writeErr(w, http.StatusGone, "group has been deleted", "group_deleted")
	case errors.Is(err, errs.ErrGroupNotActive):
		writeErr(w, http.StatusConflict, "group is not active", "group_not_active")
	case errors.Is(err, errs.ErrEdgeNotPending):
		writeErr(w, http.StatusConflict, "edge already resolved", "edge_not_pending")
	case errors.Is(err, errs.ErrMemberExists):
		writeErr(w, http.StatusConflict, "member already in group", "member_exists")
	case errors.Is(err, errs.ErrMemberInUse):
		writeErr(w, http.StatusConflict, "member appears on expenses or debts", "member_in_use")
	case errors.Is(err, errs.ErrNotMember):
		unprocessable(w, "not a member of the group", "not_member")
	case errors.Is(err, errs.ErrUnbalancedShares):
		unprocessable(w, "share amounts do not sum to the total", "unbalanced_shares")
	case errors.Is(err, errs.ErrNoPayees):
		unprocessable(w, "at least one participant is required", "no_payees")
	case errors.Is(err, errs.ErrUnprocessable):
		unprocessable(w, "validation_error", "validation_error")
	case errors.Is(err, errs.ErrInvalid):
		badRequest(w, err.Error())
	default:
		writeErr(w, http.StatusInternalServerError, "internal error", "internal")
	}
}
