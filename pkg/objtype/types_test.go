package objtype

import "testing"

func TestIDFromBytes(t *testing.T) {
	b := make([]byte, 32)
	b[0] = 0xab
	id, err := IDFromBytes(b)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if id[0] != 0xab {
		t.Fatalf("expected first byte 0xab, got %x", id[0])
	}

	if _, err := IDFromBytes(b[:31]); err == nil {
		t.Fatalf("expected error for short byte slice")
	}
}

func TestDigestIsTombstone(t *testing.T) {
	cases := []struct {
		name string
		d    Digest
		want bool
	}{
		{"deleted", DigestDeleted, true},
		{"wrapped", DigestWrapped, true},
		{"zero", Digest{}, false},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			if got := c.d.IsTombstone(); got != c.want {
				t.Fatalf("IsTombstone() = %v, want %v", got, c.want)
			}
		})
	}
}

func TestOwnerPredicates(t *testing.T) {
	addrOwner := NewAddressOwner(Address{1})
	if !addrOwner.IsOwned() || addrOwner.IsShared() {
		t.Fatalf("address owner classified incorrectly: %+v", addrOwner)
	}

	objOwner := NewObjectOwner(ID{2})
	if !objOwner.IsOwned() || objOwner.IsShared() {
		t.Fatalf("object owner classified incorrectly: %+v", objOwner)
	}

	shared := NewSharedOwner(ObjectStartVersion)
	if shared.IsOwned() || !shared.IsShared() {
		t.Fatalf("shared owner classified incorrectly: %+v", shared)
	}

	if ImmutableOwner.IsOwned() || ImmutableOwner.IsShared() {
		t.Fatalf("immutable owner classified incorrectly: %+v", ImmutableOwner)
	}
}

func TestVersionIncrement(t *testing.T) {
	v := ObjectStartVersion
	if v.Increment() != ObjectStartVersion+1 {
		t.Fatalf("Increment() = %d, want %d", v.Increment(), ObjectStartVersion+1)
	}
}
