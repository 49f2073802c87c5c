// Copyright 2025 Certen Protocol
package consensusadapter

import (
	"testing"

	"github.com/certen/authority-core/pkg/objtype"
)

func mkAddr(b byte) objtype.Address {
	var a objtype.Address
	a[0] = b
	return a
}

func mkDigest(b byte) objtype.TxDigest {
	var d objtype.TxDigest
	d[0] = b
	return d
}

func testCommittee(self objtype.Address) Committee {
	return Committee{
		Self: self,
		Members: []Validator{
			{ID: mkAddr(1), Stake: 10},
			{ID: mkAddr(2), Stake: 10},
			{ID: mkAddr(3), Stake: 10},
			{ID: mkAddr(4), Stake: 10},
		},
	}
}

type fakeConn struct{ connected map[objtype.Address]bool }

func (f fakeConn) IsConnected(v objtype.Address) bool { return f.connected[v] }

type fakeScores struct{ low map[objtype.Address]bool }

func (f fakeScores) IsLowPerforming(v objtype.Address) bool { return f.low[v] }

func newTestAdapter(self objtype.Address, conn ConnectionMonitor, scores ReputationScores) *Adapter {
	cfg := DefaultProtocolConfig()
	return New(self, testCommittee(self), nil, conn, scores, cfg)
}

func TestDeterministicOrderIsStableAcrossCalls(t *testing.T) {
	committee := testCommittee(mkAddr(1))
	digest := mkDigest(7)

	first := deterministicOrder(committee, digest)
	second := deterministicOrder(committee, digest)

	if len(first) != len(second) {
		t.Fatalf("order length mismatch: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i].ID != second[i].ID {
			t.Fatalf("order diverged at index %d: %x vs %x", i, first[i].ID, second[i].ID)
		}
	}
}

func TestDeterministicOrderVariesByDigest(t *testing.T) {
	committee := testCommittee(mkAddr(1))
	orderA := deterministicOrder(committee, mkDigest(1))
	orderB := deterministicOrder(committee, mkDigest(2))

	identical := true
	for i := range orderA {
		if orderA[i].ID != orderB[i].ID {
			identical = false
			break
		}
	}
	if identical {
		t.Fatalf("expected different digests to produce different orderings")
	}
}

func TestSubmissionPositionSkipsDisconnectedAndLowPerforming(t *testing.T) {
	self := mkAddr(4)
	conn := fakeConn{connected: map[objtype.Address]bool{
		mkAddr(1): false, mkAddr(2): true, mkAddr(3): true, mkAddr(4): true,
	}}
	scores := fakeScores{low: map[objtype.Address]bool{mkAddr(2): true}}
	a := newTestAdapter(self, conn, scores)

	digest := mkDigest(9)
	order := deterministicOrder(a.committee, digest)

	qualifying := 0
	for _, v := range order {
		if v.ID == self {
			break
		}
		if conn.IsConnected(v.ID) && !scores.IsLowPerforming(v.ID) {
			qualifying++
		}
	}

	got := a.submissionPosition(digest, 0)
	if got != qualifying {
		t.Fatalf("submissionPosition = %d, want %d", got, qualifying)
	}
}

func TestSubmissionPositionLowPerformingSelfIsLast(t *testing.T) {
	self := mkAddr(1)
	conn := fakeConn{connected: map[objtype.Address]bool{
		mkAddr(1): true, mkAddr(2): true, mkAddr(3): true, mkAddr(4): true,
	}}
	scores := fakeScores{low: map[objtype.Address]bool{mkAddr(1): true}}
	a := newTestAdapter(self, conn, scores)

	digest := mkDigest(3)
	order := deterministicOrder(a.committee, digest)
	got := a.submissionPosition(digest, 0)
	if got != len(order) {
		t.Fatalf("submissionPosition for low-performing self = %d, want %d (len(order))", got, len(order))
	}
}

func TestAmplifyReducesPositionAboveThreshold(t *testing.T) {
	self := mkAddr(1)
	conn := fakeConn{connected: map[objtype.Address]bool{
		mkAddr(1): true, mkAddr(2): true, mkAddr(3): true, mkAddr(4): true,
	}}
	a := newTestAdapter(self, conn, fakeScores{})

	got := a.amplify(3, 5000) // 5000/1000 = 5x >= 2.0x threshold
	if got >= 3 {
		t.Fatalf("amplify(3, high gas price) = %d, want reduction below 3", got)
	}
}

func TestAmplifyLeavesPositionUnchangedBelowThreshold(t *testing.T) {
	self := mkAddr(1)
	conn := fakeConn{connected: map[objtype.Address]bool{
		mkAddr(1): true, mkAddr(2): true, mkAddr(3): true, mkAddr(4): true,
	}}
	a := newTestAdapter(self, conn, fakeScores{})

	got := a.amplify(3, 1000) // exactly reference price, multiplier 1x
	if got != 3 {
		t.Fatalf("amplify(3, reference gas price) = %d, want 3 (unchanged)", got)
	}
}

func TestAmplifySaturatesAtZero(t *testing.T) {
	self := mkAddr(1)
	conn := fakeConn{connected: map[objtype.Address]bool{mkAddr(1): true}}
	a := newTestAdapter(self, conn, fakeScores{})

	got := a.amplify(1, 100_000)
	if got < 0 {
		t.Fatalf("amplify must never return negative, got %d", got)
	}
}
