package errs

import "errors"

// Common sentinel errors for cross-layer signaling.
var (
	ErrNotFound = errors.New("not_found")
	ErrConflict = errors.New("conflict")
	ErrInvalid  = errors.New("invalid")
	// ErrUnprocessable is used for semantic validation failures (HTTP 422)
	ErrUnprocessable = errors.New("unprocessable")
	// ErrGroupNotActive indicates a mutation against a completed or deleted group
	ErrGroupNotActive = errors.New("group_not_active")
	// ErrGroupDeleted indicates the group is in its retention window and read-only
	ErrGroupDeleted = errors.New("group_deleted")
	// ErrEdgeNotPending indicates a resolve against an edge that is already resolved
	ErrEdgeNotPending = errors.New("edge_not_pending")
	// ErrUnbalancedShares indicates payee shares that do not sum to the expense total
	ErrUnbalancedShares = errors.New("unbalanced_shares")
	// ErrNoPayees indicates an expense with an empty payee set
	ErrNoPayees = errors.New("no_payees")
	// ErrMemberExists indicates an add of a member already in the group
	ErrMemberExists = errors.New("member_exists")
	// ErrNotMember indicates a member identifier outside the group's member set
	ErrNotMember = errors.New("not_member")
	// ErrMemberInUse indicates a member removal while the member still appears
	// on an expense or a pending edge
	ErrMemberInUse = errors.New("member_in_use")
)
