// Package dictionary holds the curated catalog of split policies exposed to
// clients. The codes are stable API surface; labels are display hints.
package dictionary

import "github.com/splitledger/splitledger/internal/service/shares"

type PolicyDef struct {
	Code        string `json:"code"`
	Label       string `json:"label"`
	Description string `json:"description"`
	Default     bool   `json:"default"`
}

var curated = []PolicyDef{
	{
		Code:        string(shares.PolicyEqual),
		Label:       "Equal",
		Description: "Divide the total evenly; leftover cents go to the first members in sorted order.",
		Default:     true,
	},
	{
		Code:        string(shares.PolicyExplicit),
		Label:       "Explicit",
		Description: "Caller supplies each member's amount; the amounts must sum to the total.",
	},
	{
		Code:        string(shares.PolicyProportional),
		Label:       "Proportional",
		Description: "Tax and tip are shared in proportion to each member's pre-tax subtotal.",
	},
}

// Policies returns the catalog in a stable order.
func Policies() []PolicyDef {
	out := make([]PolicyDef, len(curated))
	copy(out, curated)
	return out
}

// IsKnown reports whether code names a catalogued policy.
func IsKnown(code string) bool {
	for _, p := range curated {
		if p.Code == code {
			return true
		}
	}
	return false
}
