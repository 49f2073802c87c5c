package lockservice

import (
	"hash/fnv"
	"sort"
	"sync"

	"github.com/certen/authority-core/pkg/objtype"
)

// shardCount is the default number of mutex shards (spec.md §5: "default
// 4096 shards keyed by a hash of the object digest").
const shardCount = 4096

type shardMutex struct {
	mu sync.Mutex
}

func shardIndex(id objtype.ID) int {
	h := fnv.New32a()
	_, _ = h.Write(id[:])
	return int(h.Sum32() % shardCount)
}

// lockShardsFor acquires the mutex shards covering every distinct object
// ID among refs, in ascending shard-index order, so two calls touching
// overlapping objects always acquire their shards in the same order and
// cannot deadlock. It returns a function that releases them.
func (s *Service) lockShardsFor(refs []objtype.Ref) func() {
	indices := make(map[int]struct{}, len(refs))
	for _, ref := range refs {
		indices[shardIndex(ref.ID)] = struct{}{}
	}
	sorted := make([]int, 0, len(indices))
	for idx := range indices {
		sorted = append(sorted, idx)
	}
	sort.Ints(sorted)

	for _, idx := range sorted {
		s.shards[idx].mu.Lock()
	}
	return func() {
		for i := len(sorted) - 1; i >= 0; i-- {
			s.shards[sorted[i]].mu.Unlock()
		}
	}
}

// LockShardsFor is the exported form used by store.UpdateState, which
// must hold the same per-object exclusion across its own bbolt
// transaction (spec.md §4.1 step 8: "performed under a set of per-object
// mutexes that serialize mutations of the same object across concurrent
// executions").
func (s *Service) LockShardsFor(ids []objtype.ID) func() {
	refs := make([]objtype.Ref, len(ids))
	for i, id := range ids {
		refs[i] = objtype.Ref{ID: id}
	}
	return s.lockShardsFor(refs)
}
