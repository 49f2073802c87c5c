package execution

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/certen/authority-core/pkg/objtype"
	"github.com/certen/authority-core/pkg/sharedseq"
	"github.com/certen/authority-core/pkg/store"
	"github.com/certen/authority-core/pkg/vm"
)

type incrementBackend struct{}

func (incrementBackend) Execute(ctx context.Context, cert store.Certificate, inputs map[objtype.ID]objtype.Object, packages vm.PackageStore) (vm.Result, error) {
	ts := vm.NewTemporaryStore(inputs)
	for id, obj := range inputs {
		next := obj
		next.Ref.Version = obj.Ref.Version.Increment()
		next.PrevTxn = cert.TxDigest
		ts.Written[id] = next
	}
	return vm.Result{Store: ts, Status: store.EffectsSuccess}, nil
}

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "authority.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestDriverProcessesOwnedObjectCertificate(t *testing.T) {
	s := openTestStore(t)
	sequencer := sharedseq.New(s)

	var owner objtype.Address
	owner[0] = 1
	id := objtype.ID{5}
	obj := objtype.Object{Ref: objtype.Ref{ID: id, Version: objtype.ObjectStartVersion, Digest: objtype.Digest{5, 1}}, Owner: objtype.NewAddressOwner(owner)}
	if err := s.InsertGenesisObject(obj); err != nil {
		t.Fatalf("InsertGenesisObject: %v", err)
	}
	if err := s.Locks().InitializeLocks([]objtype.Ref{obj.Ref}, false); err != nil {
		t.Fatalf("InitializeLocks: %v", err)
	}

	var digest objtype.TxDigest
	digest[0] = 0x77
	data := store.TransactionData{OwnedInputs: []objtype.Ref{obj.Ref}}
	if err := s.LockAndWriteTransaction(store.Envelope{Digest: digest, Data: data}); err != nil {
		t.Fatalf("LockAndWriteTransaction: %v", err)
	}
	cert := store.Certificate{TxDigest: digest, Data: data}
	if err := s.AddPendingCertificates([]store.Certificate{cert}); err != nil {
		t.Fatalf("AddPendingCertificates: %v", err)
	}

	d := New(s, sequencer, incrementBackend{}, nil, 1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	deadline := time.Now().Add(2 * time.Second)
	for {
		exists, err := s.EffectsExists(digest)
		if err != nil {
			t.Fatalf("EffectsExists: %v", err)
		}
		if exists {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for certificate %s to execute", digest)
		}
		time.Sleep(5 * time.Millisecond)
	}

	d.SignalEpochEnd()
	cancel()
	<-done

	pending, err := s.GetPendingCertificates()
	if err != nil {
		t.Fatalf("GetPendingCertificates: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("len(pending) = %d, want 0", len(pending))
	}

	got, err := s.GetObject(id)
	if err != nil {
		t.Fatalf("GetObject: %v", err)
	}
	if got.Ref.Version != objtype.ObjectStartVersion.Increment() {
		t.Fatalf("object version = %d, want %d", got.Ref.Version, objtype.ObjectStartVersion.Increment())
	}
}
