package serialize

import "testing"

func TestBigEndianUint64RoundTrip(t *testing.T) {
	for _, v := range []uint64{0, 1, 255, 256, 1 << 40} {
		b := BigEndianUint64(v)
		got, err := ParseBigEndianUint64(b)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != v {
			t.Fatalf("round trip mismatch: got %d, want %d", got, v)
		}
	}
}

func TestBigEndianUint64Ordering(t *testing.T) {
	a := BigEndianUint64(1)
	b := BigEndianUint64(2)
	if string(a) >= string(b) {
		t.Fatalf("expected lexicographic order to match numeric order")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	type payload struct {
		A int
		B string
	}
	in := payload{A: 7, B: "x"}
	b, err := JSON(in)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var out payload
	if err := FromJSON(b, &out); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out != in {
		t.Fatalf("round trip mismatch: got %+v, want %+v", out, in)
	}
}

func TestConcat(t *testing.T) {
	got := Concat([]byte("a"), []byte("bc"), []byte("d"))
	if string(got) != "abcd" {
		t.Fatalf("Concat() = %q, want %q", got, "abcd")
	}
}
