// Copyright 2025 Certen Protocol
//
// Submission-position algorithm: spec.md §4.5 step 2, "a pseudo-random
// permutation of the committee is derived deterministically from the
// digest, weighted by stake; filtered by connectivity and reputation;
// amplified by gas price". Ported from Sui's consensus_adapter.rs
// submission_position/check_position, since neither the teacher nor any
// other pack repo has an analogous concept — this is genuinely new
// domain logic, not an adaptation of existing Go code.
package consensusadapter

import (
	"crypto/sha256"
	"encoding/binary"
	"math"
	"sort"

	"github.com/certen/authority-core/pkg/objtype"
)

// weightedKey derives a deterministic Efraimidis-Spirakis sampling key
// for validator against digest: a stake-weighted random permutation that
// every honest validator computes identically without coordination.
func weightedKey(digest objtype.TxDigest, validator objtype.Address, stake uint64) float64 {
	h := sha256.New()
	h.Write(digest[:])
	h.Write(validator[:])
	sum := h.Sum(nil)

	// Map the first 8 bytes of sha256(digest || validator) to a uniform
	// float in (0, 1).
	u := float64(binary.BigEndian.Uint64(sum[:8])>>11) / float64(1<<53)
	if u <= 0 {
		u = 1e-18
	}
	if stake == 0 {
		stake = 1
	}
	return math.Pow(u, 1.0/float64(stake))
}

// deterministicOrder returns committee members ranked by weightedKey,
// highest key first: the priority order every validator derives
// identically from digest.
func deterministicOrder(committee Committee, digest objtype.TxDigest) []Validator {
	order := make([]Validator, len(committee.Members))
	copy(order, committee.Members)
	sort.Slice(order, func(i, j int) bool {
		ki := weightedKey(digest, order[i].ID, order[i].Stake)
		kj := weightedKey(digest, order[j].ID, order[j].Stake)
		return ki > kj
	})
	return order
}

// submissionPosition computes self's submission position for digest: the
// count of qualifying (connected, not low-performing) validators ranked
// ahead of self in the deterministic order, then amplified by gasPrice.
// Position 0 means "submit immediately, no deference to a better-placed
// peer"; higher positions defer by an increasing delay (see
// computeDelay).
func (a *Adapter) submissionPosition(digest objtype.TxDigest, gasPrice uint64) int {
	order := deterministicOrder(a.committee, digest)

	if a.scores != nil && a.scores.IsLowPerforming(a.self) {
		return len(order)
	}

	position := 0
	for _, v := range order {
		if v.ID == a.self {
			break
		}
		if a.conn != nil && !a.conn.IsConnected(v.ID) {
			continue
		}
		if a.scores != nil && a.scores.IsLowPerforming(v.ID) {
			continue
		}
		position++
	}

	return a.amplify(position, gasPrice)
}

// amplify implements spec.md §4.5 step 4: a submitter paying
// AmplificationThreshold times (or more) the reference gas price earns
// an earlier position, saturating at zero.
func (a *Adapter) amplify(position int, gasPrice uint64) int {
	if gasPrice == 0 || a.cfg.ReferenceGasPrice == 0 {
		return position
	}
	multiplier := float64(gasPrice) / float64(a.cfg.ReferenceGasPrice)
	if multiplier < a.cfg.AmplificationThreshold {
		return position
	}
	shift := int(multiplier)
	position -= shift
	if position < 0 {
		position = 0
	}
	return position
}
