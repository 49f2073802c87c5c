// Copyright 2025 Certen Protocol
package consensusadapter

import "github.com/certen/authority-core/pkg/objtype"

// Validator is one committee member as the adapter sees it: identity and
// voting weight, nothing more (stake source and distribution are out of
// scope, consumed as already-resolved input).
type Validator struct {
	ID    objtype.Address
	Stake uint64
}

// Committee is the adapter's view of the current epoch's validator set.
type Committee struct {
	Self    objtype.Address
	Members []Validator
}

func (c Committee) totalStake() uint64 {
	var total uint64
	for _, m := range c.Members {
		total += m.Stake
	}
	return total
}

func (c Committee) selfIndex() int {
	for i, m := range c.Members {
		if m.ID == c.Self {
			return i
		}
	}
	return -1
}
