package encoding

import "testing"

func TestFixedRoundTrip(t *testing.T) {
	buf := make([]byte, 8)
	EncodeFixed64(buf, 0x0102030405060708)
	if got := DecodeFixed64(buf); got != 0x0102030405060708 {
		t.Fatalf("DecodeFixed64 = %#x", got)
	}

	EncodeFixed32(buf[:4], 0xdeadbeef)
	if got := DecodeFixed32(buf[:4]); got != 0xdeadbeef {
		t.Fatalf("DecodeFixed32 = %#x", got)
	}
}

func TestVarintRoundTrip(t *testing.T) {
	values := []uint64{0, 1, 127, 128, 16384, 1 << 32, 1<<64 - 1}
	for _, v := range values {
		var buf [MaxVarint64Length]byte
		n := EncodeVarint64(buf[:], v)
		got, read, err := DecodeVarint64(buf[:n])
		if err != nil {
			t.Fatalf("DecodeVarint64(%d): %v", v, err)
		}
		if got != v || read != n {
			t.Fatalf("DecodeVarint64(%d) = (%d, %d), want (%d, %d)", v, got, read, v, n)
		}
	}
}

func TestLengthPrefixedSliceRoundTrip(t *testing.T) {
	dst := AppendLengthPrefixedSlice(nil, []byte("hello world"))
	got, n, err := DecodeLengthPrefixedSlice(dst)
	if err != nil {
		t.Fatalf("DecodeLengthPrefixedSlice: %v", err)
	}
	if string(got) != "hello world" || n != len(dst) {
		t.Fatalf("got (%q, %d), want (%q, %d)", got, n, "hello world", len(dst))
	}
}

func TestSlice(t *testing.T) {
	data := AppendFixed32(AppendVarint64(nil, 99), 7)
	s := NewSlice(data)
	v, ok := s.GetVarint64()
	if !ok || v != 99 {
		t.Fatalf("GetVarint64 = (%d, %v), want (99, true)", v, ok)
	}
	f, ok := s.GetFixed32()
	if !ok || f != 7 {
		t.Fatalf("GetFixed32 = (%d, %v), want (7, true)", f, ok)
	}
	if s.Remaining() != 0 {
		t.Fatalf("Remaining() = %d, want 0", s.Remaining())
	}
}
