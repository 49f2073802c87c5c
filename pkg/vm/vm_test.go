package vm

import (
	"context"
	"testing"

	"github.com/certen/authority-core/pkg/objtype"
	"github.com/certen/authority-core/pkg/store"
)

type echoBackend struct{}

func (echoBackend) Execute(ctx context.Context, cert store.Certificate, inputs map[objtype.ID]objtype.Object, packages PackageStore) (Result, error) {
	ts := NewTemporaryStore(inputs)
	for id, obj := range inputs {
		next := obj
		next.Ref.Version = obj.Ref.Version.Increment()
		ts.Written[id] = next
	}
	return Result{Store: ts, Status: store.EffectsSuccess}, nil
}

func TestBackendExecuteRoundTrip(t *testing.T) {
	id := objtype.ID{1}
	input := objtype.Object{Ref: objtype.Ref{ID: id, Version: objtype.ObjectStartVersion}}

	var backend Backend = echoBackend{}
	res, err := backend.Execute(context.Background(), store.Certificate{}, map[objtype.ID]objtype.Object{id: input}, nil)
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if res.Status != store.EffectsSuccess {
		t.Fatalf("Status = %v, want EffectsSuccess", res.Status)
	}
	written, ok := res.Store.Written[id]
	if !ok {
		t.Fatalf("expected written entry for %s", id)
	}
	if written.Ref.Version != objtype.ObjectStartVersion.Increment() {
		t.Fatalf("written version = %d, want %d", written.Ref.Version, objtype.ObjectStartVersion.Increment())
	}
}
