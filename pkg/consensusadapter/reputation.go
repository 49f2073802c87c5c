// Copyright 2025 Certen Protocol
//
// ReputationTracker is a bounded, LRU-evicted default implementation of
// ReputationScores. The pack carries github.com/hashicorp/golang-lru/v2
// in go.mod (AKJUS-bsc-erigon's dependency list; no concrete usage file
// was retrieved alongside it) for exactly this shape of problem: a
// score map keyed by a large, attacker-influenced identity set
// (validators across many epochs) that must never grow unbounded the way
// a plain map would.
package consensusadapter

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/certen/authority-core/pkg/objtype"
)

const (
	defaultReputationCacheSize  = 4096
	defaultLowPerformingFailures = 5
)

// ReputationTracker scores committee members by consecutive submission
// failures observed locally (timed-out or garbage-collected consensus
// submissions), independent of any cross-validator gossip. It satisfies
// ReputationScores.
type ReputationTracker struct {
	mu        sync.Mutex
	cache     *lru.Cache[objtype.Address, int]
	threshold int
}

// NewReputationTracker builds a tracker bounded to size entries, marking
// a validator low-performing once its consecutive-failure count reaches
// threshold. size <= 0 and threshold <= 0 fall back to the package
// defaults.
func NewReputationTracker(size, threshold int) *ReputationTracker {
	if size <= 0 {
		size = defaultReputationCacheSize
	}
	if threshold <= 0 {
		threshold = defaultLowPerformingFailures
	}
	cache, err := lru.New[objtype.Address, int](size)
	if err != nil {
		// size is always a positive int constructed above; lru.New only
		// errors for size <= 0, which cannot happen here.
		panic(err)
	}
	return &ReputationTracker{cache: cache, threshold: threshold}
}

// RecordFailure bumps validator's consecutive-failure count.
func (r *ReputationTracker) RecordFailure(validator objtype.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, _ := r.cache.Get(validator)
	r.cache.Add(validator, n+1)
}

// RecordSuccess resets validator's consecutive-failure count, forgiving
// past failures once it completes a submission cleanly.
func (r *ReputationTracker) RecordSuccess(validator objtype.Address) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cache.Add(validator, 0)
}

// IsLowPerforming reports whether validator's tracked failure count has
// reached the configured threshold. A validator never observed to fail
// is never low-performing.
func (r *ReputationTracker) IsLowPerforming(validator objtype.Address) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	n, ok := r.cache.Get(validator)
	return ok && n >= r.threshold
}
