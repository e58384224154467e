package identity

import (
	"regexp"
	"strings"

	"github.com/google/uuid"

	"github.com/splitledger/splitledger/internal/errs"
)

// Members are identified by email-like strings. The engine does not verify
// deliverability; it only needs a canonical, comparable identifier.
var reMember = regexp.MustCompile(`^[a-z0-9][a-z0-9._%+-]{0,63}@[a-z0-9.-]+\.[a-z]{2,}$`)

// IsMember returns true if s is already a canonical member identifier.
func IsMember(s string) bool {
	return reMember.MatchString(s)
}

// Normalize canonicalizes a member identifier: trim, lowercase, validate.
func Normalize(s string) (string, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if !IsMember(s) {
		return "", errs.ErrInvalid
	}
	return s, nil
}

// NormalizeAll canonicalizes a member set, dropping duplicates and keeping
// first-seen order.
func NormalizeAll(in []string) ([]string, error) {
	out := make([]string, 0, len(in))
	seen := make(map[string]struct{}, len(in))
	for _, raw := range in {
		m, err := Normalize(raw)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out, nil
}

// NewInviteCode returns a short, uppercase join code. Derived from a fresh
// UUID so codes are unique enough for the invite flow without a second
// randomness source.
func NewInviteCode() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return strings.ToUpper(raw[:8])
}
