package trap

import "testing"

func TestNameForKnownVector(t *testing.T) {
	if got := NameFor(13); got != "General Protection" {
		t.Fatalf("got %q, want %q", got, "General Protection")
	}
}

func TestNameForReservedRange(t *testing.T) {
	if got := NameFor(25); got != "Reserved" {
		t.Fatalf("got %q, want %q", got, "Reserved")
	}
}

func TestNameForUnknownVector(t *testing.T) {
	if got := NameFor(200); got != "Unknown Exception" {
		t.Fatalf("got %q, want %q", got, "Unknown Exception")
	}
}

func TestRaiseClearsScreenAndHalts(t *testing.T) {
	cleared := false
	h := NewHandler(func() { cleared = true })

	h.Raise(14)

	if !cleared {
		t.Fatal("expected clearScreen to be called")
	}
	if !h.Halted() {
		t.Fatal("expected the handler to report halted")
	}
	fault, ok := h.Fault()
	if !ok || fault.Vector != 14 || fault.Name != "Page Fault" {
		t.Fatalf("got (%+v, %v), want Page Fault vector 14", fault, ok)
	}
}

func TestRaiseIgnoresSecondFault(t *testing.T) {
	calls := 0
	h := NewHandler(func() { calls++ })

	h.Raise(0)
	h.Raise(6)

	if calls != 1 {
		t.Fatalf("got %d clearScreen calls, want 1", calls)
	}
	fault, _ := h.Fault()
	if fault.Vector != 0 {
		t.Fatalf("second Raise must not overwrite the first fault, got vector %d", fault.Vector)
	}
}

func TestNewHandlerAllowsNilClearScreen(t *testing.T) {
	h := NewHandler(nil)
	h.Raise(8)
	if !h.Halted() {
		t.Fatal("expected the handler to report halted")
	}
}
