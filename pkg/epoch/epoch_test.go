// Copyright 2025 Certen Protocol
package epoch

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/certen/authority-core/pkg/consensusadapter"
	"github.com/certen/authority-core/pkg/consensusclient"
	"github.com/certen/authority-core/pkg/objtype"
	"github.com/certen/authority-core/pkg/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), "authority.db")
	s, err := store.Open(path)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

type nopClient struct{}

func (nopClient) Submit(ctx context.Context, txs []consensusclient.Transaction, _ consensusclient.EpochStore) (consensusclient.BlockStatusReceiver, error) {
	ch := make(chan consensusclient.BlockStatus, 1)
	ch <- consensusclient.BlockStatus{Kind: consensusclient.Sequenced}
	close(ch)
	return ch, nil
}

type alwaysConnected struct{}

func (alwaysConnected) IsConnected(objtype.Address) bool     { return true }
func (alwaysConnected) IsLowPerforming(objtype.Address) bool { return false }

func testAdapter(self objtype.Address) *consensusadapter.Adapter {
	committee := consensusadapter.Committee{
		Self:    self,
		Members: []consensusadapter.Validator{{ID: self, Stake: 1}},
	}
	return consensusadapter.New(self, committee, nopClient{}, alwaysConnected{}, alwaysConnected{}, consensusadapter.DefaultProtocolConfig())
}

// fakeQuiescer implements ExecutionQuiescer over a fixed, caller-supplied
// outstanding set, for exercising CloseEpoch without a real execution
// driver.
type fakeQuiescer struct {
	outstanding []PendingCertificate
	quiesceErr  error
}

func (f *fakeQuiescer) Outstanding() []PendingCertificate { return f.outstanding }
func (f *fakeQuiescer) Quiesce(ctx context.Context) error { return f.quiesceErr }

func mkDigest(b byte) objtype.TxDigest {
	var d objtype.TxDigest
	d[0] = b
	return d
}

func TestCloseEpochAdvancesCommitteeWithNoOutstandingWork(t *testing.T) {
	s := openTestStore(t)
	self := objtype.Address{}
	adapter := testAdapter(self)
	q := &fakeQuiescer{}
	m := New(s, adapter, q)

	next := store.EpochInfo{Epoch: 1, Committee: map[objtype.Address]uint64{self: 1}, StartedAt: time.Now()}
	if err := m.CloseEpoch(context.Background(), next); err != nil {
		t.Fatalf("CloseEpoch: %v", err)
	}

	got, ok, err := s.GetLastEpochInfo()
	if err != nil {
		t.Fatalf("GetLastEpochInfo: %v", err)
	}
	if !ok || got.Epoch != 1 {
		t.Fatalf("expected epoch 1 recorded, got %+v (ok=%v)", got, ok)
	}
	if adapter.ReconfigState().AcceptingUserCerts() != true {
		t.Fatalf("expected StartNewEpoch to leave the adapter accepting certs for the new epoch")
	}
}

func TestCloseEpochLeavesNeverExecutedCertificateWithoutEffects(t *testing.T) {
	s := openTestStore(t)
	self := objtype.Address{}
	adapter := testAdapter(self)

	owner := objtype.NewAddressOwner(mkAddr(1))
	obj := objtype.Object{
		Ref:     objtype.Ref{ID: mkID(9), Version: objtype.ObjectStartVersion, Digest: objtype.Digest{9}},
		Owner:   owner,
		TypeTag: "test::Coin",
	}
	if err := s.InsertGenesisObject(obj); err != nil {
		t.Fatalf("InsertGenesisObject: %v", err)
	}

	cert := store.Certificate{
		TxDigest: mkDigest(1),
		Data: store.TransactionData{
			Sender:      mkAddr(1),
			OwnedInputs: []objtype.Ref{obj.Ref},
		},
	}

	q := &fakeQuiescer{outstanding: []PendingCertificate{{Cert: cert, HasEffects: false}}}
	m := New(s, adapter, q, WithQuiesceTimeout(50*time.Millisecond))

	next := store.EpochInfo{Epoch: 2, Committee: map[objtype.Address]uint64{self: 1}}
	if err := m.CloseEpoch(context.Background(), next); err != nil {
		t.Fatalf("CloseEpoch: %v", err)
	}

	exists, err := s.EffectsExists(cert.TxDigest)
	if err != nil {
		t.Fatalf("EffectsExists: %v", err)
	}
	if exists {
		t.Fatalf("expected no effects record for a certificate that never finished executing")
	}
}

func mkID(b byte) objtype.ID {
	var id objtype.ID
	id[0] = b
	return id
}

func mkAddr(b byte) objtype.Address {
	var a objtype.Address
	a[0] = b
	return a
}
