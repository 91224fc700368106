package rtc

import (
	"sync"
	"testing"
	"time"
)

func TestDefaultRate(t *testing.T) {
	d := New()
	if d.RateHz() != DefaultRateHz {
		t.Fatalf("got %d, want %d", d.RateHz(), DefaultRateHz)
	}
}

func TestSetRateRejectsNonPowerOfTwo(t *testing.T) {
	d := New()
	if err := d.SetRate(3); err == nil {
		t.Fatal("3 is not a power of two, SetRate should fail")
	}
	if d.RateHz() != DefaultRateHz {
		t.Fatal("a rejected rate must not change the current rate")
	}
}

func TestSetRateAcceptsPowersOfTwoInRange(t *testing.T) {
	d := New()
	for _, hz := range []int{2, 4, 8, 16, 1024} {
		if err := d.SetRate(hz); err != nil {
			t.Fatalf("SetRate(%d): %v", hz, err)
		}
		if d.RateHz() != hz {
			t.Fatalf("got %d, want %d", d.RateHz(), hz)
		}
	}
	if err := d.SetRate(2048); err == nil {
		t.Fatal("2048 exceeds MaxRateHz, should fail")
	}
}

func TestResetRate(t *testing.T) {
	d := New()
	_ = d.SetRate(512)
	d.ResetRate()
	if d.RateHz() != DefaultRateHz {
		t.Fatalf("got %d, want %d after reset", d.RateHz(), DefaultRateHz)
	}
}

func TestWaitUnblocksOnTick(t *testing.T) {
	d := New()
	var wg sync.WaitGroup
	wg.Add(1)
	woke := false
	go func() {
		defer wg.Done()
		d.Wait()
		woke = true
	}()

	// Give the goroutine a chance to block before ticking.
	time.Sleep(10 * time.Millisecond)
	d.Tick()
	wg.Wait()

	if !woke {
		t.Fatal("Wait should return after Tick")
	}
}
