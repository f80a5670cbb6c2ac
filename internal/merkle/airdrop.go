package merkle

import (
	"fmt"

	"proofdrop/pkg/domain"
	dErrors "proofdrop/pkg/domain-errors"
)

// Entry is one airdrop allocation.
type Entry struct {
	Index   domain.Amount  `json:"index"`
	Account domain.Address `json:"account"`
	Amount  domain.Amount  `json:"amount"`
}

// Allocation is an Entry together with its proof against the built root.
type Allocation struct {
	Entry
	Leaf  domain.Hash   `json:"leaf"`
	Proof []domain.Hash `json:"proof"`
}

// Distribution is the result of building a tree over a recipient list.
type Distribution struct {
	Root        domain.Hash   `json:"root"`
	Total       domain.Amount `json:"total"`
	Allocations []Allocation  `json:"allocations"`
}

// BuildDistribution builds the tree over entries in the given order. Zero
// accounts and duplicate leaves are rejected: either would make a claim
// unreachable or ambiguous.
func BuildDistribution(entries []Entry) (*Distribution, error) {
	if len(entries) == 0 {
		return nil, dErrors.New(dErrors.CodeInvalidInput, "distribution needs at least one entry")
	}
	leaves := make([]domain.Hash, len(entries))
	seen := make(map[domain.Hash]int, len(entries))
	var total domain.Amount
	for i, e := range entries {
		if e.Account.IsZero() {
			return nil, dErrors.New(dErrors.CodeZeroAddress, fmt.Sprintf("entry %d has zero account", i))
		}
		leaf := Leaf(e.Index, e.Account, e.Amount)
		if prev, dup := seen[leaf]; dup {
			return nil, dErrors.New(dErrors.CodeInvalidInput, fmt.Sprintf("entries %d and %d produce the same leaf", prev, i))
		}
		seen[leaf] = i
		leaves[i] = leaf

		var err error
		if total, err = total.Add(e.Amount); err != nil {
			return nil, err
		}
	}

	tree, err := Build(leaves)
	if err != nil {
		return nil, err
	}

	out := &Distribution{Root: tree.Root(), Total: total, Allocations: make([]Allocation, len(entries))}
	for i, e := range entries {
		proof, err := tree.Proof(i)
		if err != nil {
			return nil, err
		}
		out.Allocations[i] = Allocation{Entry: e, Leaf: leaves[i], Proof: proof}
	}
	return out, nil
}
