package sharedseq

import (
	"path/filepath"
	"testing"

	"github.com/certen/authority-core/pkg/objtype"
	"github.com/certen/authority-core/pkg/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "authority.db"))
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestPersistCertificateAssignsStartVersionFirstTime(t *testing.T) {
	s := openTestStore(t)
	q := New(s)

	sharedID := objtype.ID{1}
	var digest objtype.TxDigest
	digest[0] = 0x11
	cert := store.Certificate{TxDigest: digest, Data: store.TransactionData{SharedInputs: []objtype.ID{sharedID}}}

	if err := q.PersistCertificateAndLockSharedObjects(cert, store.ConsensusIndex{Round: 1}); err != nil {
		t.Fatalf("PersistCertificateAndLockSharedObjects: %v", err)
	}

	versions, oks, err := q.Sequenced(digest, []objtype.ID{sharedID})
	if err != nil {
		t.Fatalf("Sequenced: %v", err)
	}
	if !oks[0] {
		t.Fatalf("expected sequenced assignment to exist")
	}
	if versions[0] != objtype.ObjectStartVersion {
		t.Fatalf("versions[0] = %d, want %d", versions[0], objtype.ObjectStartVersion)
	}
}

func TestPersistCertificateAdvancesScheduleAcrossCommits(t *testing.T) {
	s := openTestStore(t)
	q := New(s)
	sharedID := objtype.ID{2}

	var d1, d2 objtype.TxDigest
	d1[0], d2[0] = 0x21, 0x22
	cert1 := store.Certificate{TxDigest: d1, Data: store.TransactionData{SharedInputs: []objtype.ID{sharedID}}}
	cert2 := store.Certificate{TxDigest: d2, Data: store.TransactionData{SharedInputs: []objtype.ID{sharedID}}}

	if err := q.PersistCertificateAndLockSharedObjects(cert1, store.ConsensusIndex{Round: 1}); err != nil {
		t.Fatalf("commit 1: %v", err)
	}
	if err := q.PersistCertificateAndLockSharedObjects(cert2, store.ConsensusIndex{Round: 2}); err != nil {
		t.Fatalf("commit 2: %v", err)
	}

	v1, _, err := q.Sequenced(d1, []objtype.ID{sharedID})
	if err != nil {
		t.Fatalf("Sequenced d1: %v", err)
	}
	v2, _, err := q.Sequenced(d2, []objtype.ID{sharedID})
	if err != nil {
		t.Fatalf("Sequenced d2: %v", err)
	}
	if v2[0] <= v1[0] {
		t.Fatalf("second commit's assigned version %d must exceed first's %d", v2[0], v1[0])
	}
}

func TestRemoveSharedObjectsLocksDropsSequencedEntry(t *testing.T) {
	s := openTestStore(t)
	q := New(s)
	sharedID := objtype.ID{3}
	var digest objtype.TxDigest
	digest[0] = 0x33
	cert := store.Certificate{TxDigest: digest, Data: store.TransactionData{SharedInputs: []objtype.ID{sharedID}}}

	if err := q.PersistCertificateAndLockSharedObjects(cert, store.ConsensusIndex{Round: 1}); err != nil {
		t.Fatalf("PersistCertificateAndLockSharedObjects: %v", err)
	}
	if err := q.RemoveSharedObjectsLocks(digest, []objtype.ID{sharedID}); err != nil {
		t.Fatalf("RemoveSharedObjectsLocks: %v", err)
	}

	_, oks, err := q.Sequenced(digest, []objtype.ID{sharedID})
	if err != nil {
		t.Fatalf("Sequenced: %v", err)
	}
	if oks[0] {
		t.Fatalf("expected sequenced entry to be removed")
	}
}
