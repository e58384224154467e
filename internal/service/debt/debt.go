// Package debt consolidates a group's obligations into a minimal set of net
// directed edges via pairwise netting, and carries resolved statuses across
// recomputation. Both operations are pure and deterministic: the same
// obligation multiset yields the same edge set regardless of input order.
package debt

import (
	"sort"

	"github.com/splitledger/splitledger/internal/split"
)

type pair struct{ debtor, creditor string }

// Consolidate nets the obligation list into at most one edge per unordered
// member pair. If X owes Y `a` and Y owes X `b`, the result is a single edge
// of |a-b| directed from whichever owes more; zero nets are dropped. The
// total amount across edges equals the net total of the obligations, so no
// money appears or vanishes.
func Consolidate(obs []split.Obligation) []split.Edge {
	owed := make(map[pair]int64)
	for _, o := range obs {
		if o.AmountMinor <= 0 || o.Debtor == o.Creditor {
			continue
		}
		owed[pair{o.Debtor, o.Creditor}] += o.AmountMinor
	}

	edges := make([]split.Edge, 0, len(owed))
	done := make(map[pair]struct{}, len(owed))
	for k, a := range owed {
		if _, ok := done[k]; ok {
			continue
		}
		rev := pair{k.creditor, k.debtor}
		done[k] = struct{}{}
		done[rev] = struct{}{}
		b := owed[rev]
		switch {
		case a > b:
			edges = append(edges, split.Edge{From: k.debtor, To: k.creditor, AmountMinor: a - b})
		case b > a:
			edges = append(edges, split.Edge{From: k.creditor, To: k.debtor, AmountMinor: b - a})
		}
	}

	sort.Slice(edges, func(i, j int) bool {
		if edges[i].From != edges[j].From {
			return edges[i].From < edges[j].From
		}
		return edges[i].To < edges[j].To
	})
	return edges
}

// CarryResolved applies the settlement statuses of prev to a freshly
// consolidated edge set. For a (from,to) pair resolved in prev, the new edge
// stays resolved while its amount is at or below the amount that was resolved;
// a larger amount means new debt between the pair, so the edge reverts to
// pending at the full new amount. Pairs without a prior edge are pending.
func CarryResolved(prev, next []split.Edge) []split.Edge {
	resolved := make(map[pair]split.Edge, len(prev))
	for _, e := range prev {
		if e.Resolved {
			resolved[pair{e.From, e.To}] = e
		}
	}
	out := make([]split.Edge, len(next))
	copy(out, next)
	for i := range out {
		p, ok := resolved[pair{out[i].From, out[i].To}]
		if !ok {
			continue
		}
		if out[i].AmountMinor <= p.ResolvedMinor {
			out[i].Resolved = true
			out[i].ResolvedAt = p.ResolvedAt
			out[i].ResolvedMinor = p.ResolvedMinor
		}
	}
	return out
}

// Pending returns the subset of edges still awaiting resolution.
func Pending(edges []split.Edge) []split.Edge {
	out := make([]split.Edge, 0, len(edges))
	for _, e := range edges {
		if !e.Resolved {
			out = append(out, e)
		}
	}
	return out
}

// AllResolved reports whether no pending edge remains.
func AllResolved(edges []split.Edge) bool {
	for _, e := range edges {
		if !e.Resolved {
			return false
		}
	}
	return true
}
