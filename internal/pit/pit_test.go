package pit

import (
	"testing"
	"time"
)

func TestDivisor(t *testing.T) {
	if got := Divisor(100); got != OscillatorHz/100 {
		t.Fatalf("got %d", got)
	}
	if got := Divisor(0); got != 0 {
		t.Fatalf("got %d, want 0 for non-positive rate", got)
	}
}

func TestTicksOnlyFlowWhenRunning(t *testing.T) {
	timer := New(1000) // fast rate to keep the test quick
	defer timer.Shutdown()

	select {
	case <-timer.Ticks():
		t.Fatal("timer should not tick before Start")
	case <-time.After(20 * time.Millisecond):
	}

	timer.Start()
	select {
	case <-timer.Ticks():
	case <-time.After(200 * time.Millisecond):
		t.Fatal("timer should tick after Start")
	}

	timer.Stop()
}
