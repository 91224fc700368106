package physmem

import "testing"

func TestWriteReadRoundTrip(t *testing.T) {
	m := New()
	payload := []byte{0x7F, 'E', 'L', 'F', 1, 2, 3, 4}

	if err := m.Write(0x800000, payload); err != nil {
		t.Fatalf("Write: %v", err)
	}

	buf := make([]byte, len(payload))
	if err := m.Read(0x800000, buf); err != nil {
		t.Fatalf("Read: %v", err)
	}
	for i := range payload {
		if buf[i] != payload[i] {
			t.Fatalf("byte %d: got %#x, want %#x", i, buf[i], payload[i])
		}
	}
}

func TestWriteRejectsOutOfRange(t *testing.T) {
	m := New()
	if err := m.Write(Size-1, []byte{1, 2}); err == nil {
		t.Fatal("expected an out-of-range write to fail")
	}
}

func TestZeroClears(t *testing.T) {
	m := New()
	m.Write(0, []byte{1, 2, 3, 4})
	if err := m.Zero(0, 4); err != nil {
		t.Fatalf("Zero: %v", err)
	}
	buf := make([]byte, 4)
	m.Read(0, buf)
	for _, b := range buf {
		if b != 0 {
			t.Fatalf("expected zeroed bytes, got %v", buf)
		}
	}
}
