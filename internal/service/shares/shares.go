// Package shares implements the split calculator: given an expense total, a
// payer and a participant set, it produces per-payee owed amounts that sum to
// the total exactly. All arithmetic is in int64 minor units; rounding
// remainders are assigned deterministically to participants in canonical
// (sorted) order.
package shares

import (
	"sort"

	"github.com/splitledger/splitledger/internal/errs"
	"github.com/splitledger/splitledger/internal/split"
)

// Policy selects how an expense total is apportioned across participants.
type Policy string

const (
	// PolicyEqual divides the total evenly, remainder cents going to the
	// first participants in sorted order.
	PolicyEqual Policy = "equal"
	// PolicyExplicit takes caller-supplied per-member amounts that must sum
	// to the total within one cent.
	PolicyExplicit Policy = "explicit"
	// PolicyProportional distributes tax and tip in proportion to each
	// participant's pre-tax subtotal.
	PolicyProportional Policy = "proportional"
)

// Valid reports whether p is a known policy.
func (p Policy) Valid() bool {
	switch p {
	case PolicyEqual, PolicyExplicit, PolicyProportional:
		return true
	}
	return false
}

// Participant is one member's input to the calculator. AmountMinor is read by
// the explicit policy, SubtotalMinor by the proportional policy; the equal
// policy uses only Member.
type Participant struct {
	Member        string
	AmountMinor   int64
	SubtotalMinor int64
}

// Compute produces the payee shares for an expense.
// Guarantees on success: the share amounts sum to totalMinor exactly, every
// amount is >= 0, and the payer's share (if the payer participates) carries
// IsPayer.
func Compute(totalMinor int64, payer string, parts []Participant, policy Policy) ([]split.PayeeShare, error) {
	if totalMinor <= 0 {
		return nil, errs.ErrInvalid
	}
	if len(parts) == 0 {
		return nil, errs.ErrNoPayees
	}
	seen := make(map[string]struct{}, len(parts))
	for _, p := range parts {
		if p.Member == "" {
			return nil, errs.ErrInvalid
		}
		if _, dup := seen[p.Member]; dup {
			return nil, errs.ErrInvalid
		}
		seen[p.Member] = struct{}{}
	}

	var out []split.PayeeShare
	var err error
	switch policy {
	case PolicyEqual:
		out = equal(totalMinor, members(parts))
	case PolicyExplicit:
		out, err = explicit(totalMinor, parts)
	case PolicyProportional:
		out, err = proportional(totalMinor, parts)
	default:
		return nil, errs.ErrInvalid
	}
	if err != nil {
		return nil, err
	}
	for i := range out {
		out[i].IsPayer = out[i].Member == payer
	}
	return out, nil
}

func members(parts []Participant) []string {
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		out = append(out, p.Member)
	}
	return out
}

// equal divides totalMinor by len(ms) and gives the remainder cents to the
// first members in sorted order so the sum is exact.
func equal(totalMinor int64, ms []string) []split.PayeeShare {
	sorted := append([]string(nil), ms...)
	sort.Strings(sorted)
	n := int64(len(sorted))
	base := totalMinor / n
	rem := totalMinor % n
	out := make([]split.PayeeShare, 0, len(sorted))
	for i, m := range sorted {
		amt := base
		if int64(i) < rem {
			amt++
		}
		out = append(out, split.PayeeShare{Member: m, AmountMinor: amt})
	}
	return out
}

// explicit validates caller-supplied amounts. A one-cent rounding gap is
// tolerated and folded into the first participant in sorted order; anything
// larger is rejected.
func explicit(totalMinor int64, parts []Participant) ([]split.PayeeShare, error) {
	var sum int64
	for _, p := range parts {
		if p.AmountMinor < 0 {
			return nil, errs.ErrInvalid
		}
		sum += p.AmountMinor
	}
	diff := totalMinor - sum
	if diff > 1 || diff < -1 {
		return nil, errs.ErrUnbalancedShares
	}
	out := make([]split.PayeeShare, 0, len(parts))
	for _, p := range parts {
		out = append(out, split.PayeeShare{Member: p.Member, AmountMinor: p.AmountMinor})
	}
	if diff != 0 {
		idx := firstSortedIndex(out)
		if out[idx].AmountMinor+diff < 0 {
			return nil, errs.ErrUnbalancedShares
		}
		out[idx].AmountMinor += diff
	}
	return out, nil
}

// proportional adds each participant's pre-tax subtotal to a proportional
// slice of the tax+tip remainder. Participants with a zero subtotal carry no
// weight; when every subtotal is zero the whole total is split equally.
func proportional(totalMinor int64, parts []Participant) ([]split.PayeeShare, error) {
	var subSum int64
	for _, p := range parts {
		if p.SubtotalMinor < 0 {
			return nil, errs.ErrInvalid
		}
		subSum += p.SubtotalMinor
	}
	taxTip := totalMinor - subSum
	if taxTip < 0 {
		return nil, errs.ErrUnbalancedShares
	}
	if subSum == 0 {
		return equal(totalMinor, members(parts)), nil
	}

	sorted := append([]Participant(nil), parts...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Member < sorted[j].Member })

	out := make([]split.PayeeShare, 0, len(sorted))
	var allocated int64
	for _, p := range sorted {
		tax := taxTip * p.SubtotalMinor / subSum
		allocated += tax
		out = append(out, split.PayeeShare{Member: p.Member, AmountMinor: p.SubtotalMinor + tax})
	}
	// leftover cents from flooring go to the first weighted members in order
	rem := taxTip - allocated
	for i := 0; rem > 0 && i < len(out); i++ {
		if sorted[i].SubtotalMinor == 0 {
			continue
		}
		out[i].AmountMinor++
		rem--
	}
	return out, nil
}

func firstSortedIndex(shares []split.PayeeShare) int {
	idx := 0
	for i := 1; i < len(shares); i++ {
		if shares[i].Member < shares[idx].Member {
			idx = i
		}
	}
	return idx
}
