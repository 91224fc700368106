/*
   Real-time clock: programmable periodic rate, blocking read.

   Copyright (c) 2026, the pmk project contributors

   Permission is hereby granted, free of charge, to any person obtaining a
   copy of this software and associated documentation files (the "Software"),
   to deal in the Software without restriction, including without limitation
   the rights to use, copy, modify, merge, publish, distribute, sublicense,
   and/or sell copies of the Software, and to permit persons to whom the
   Software is furnished to do so, subject to the following conditions:

   The above copyright notice and this permission notice shall be included in
   all copies or substantial portions of the Software.

   THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
   IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
   FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT.  IN NO EVENT SHALL
   THE AUTHORS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER LIABILITY, WHETHER
   IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM, OUT OF OR IN
   CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE SOFTWARE.
*/

// Package rtc models the real-time clock: a programmable periodic rate and
// a blocking read that wakes on the next tick (§4.3, §4.6).
package rtc

import (
	"fmt"
	"sync"
)

// DefaultRateHz is the rate rtc_open resets to (§4.3).
const DefaultRateHz = 2

// MinRateHz and MaxRateHz bound the power-of-two rates the hardware
// register accepts (§3, §4.3: "power of two in 2..1024").
const (
	MinRateHz = 2
	MaxRateHz = 1024
)

// Device is the single real-time clock. Real 8254-family RTCs only have
// one periodic-interrupt rate for the whole machine, so this is process-wide
// state, exactly like pid_slot and curr_terminal (§5).
type Device struct {
	mu      sync.Mutex
	cond    *sync.Cond
	rateHz  int
	ticks   uint64
}

// New returns an RTC device already running at DefaultRateHz.
func New() *Device {
	d := &Device{rateHz: DefaultRateHz}
	d.cond = sync.NewCond(&d.mu)
	return d
}

// IsPowerOfTwoInRange reports whether hz is a valid RTC rate (§4.3).
func IsPowerOfTwoInRange(hz int) bool {
	if hz < MinRateHz || hz > MaxRateHz {
		return false
	}
	return hz&(hz-1) == 0
}

// SetRate reprograms the rate to hz (the RTC descriptor's write decodes it
// from the 4-byte little-endian integer write(2) hands the kernel, §4.3).
// Rejects anything that is not a power of two in [2,1024] and leaves the
// rate unchanged.
func (d *Device) SetRate(hz int) error {
	if !IsPowerOfTwoInRange(hz) {
		return fmt.Errorf("rtc: rate %d is not a power of two in [%d,%d]", hz, MinRateHz, MaxRateHz)
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.rateHz = hz
	return nil
}

// ResetRate restores the 2 Hz default, as rtc_open does (§4.3).
func (d *Device) ResetRate() {
	d.mu.Lock()
	d.rateHz = DefaultRateHz
	d.mu.Unlock()
}

// RateHz reports the currently programmed rate.
func (d *Device) RateHz() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rateHz
}

// Tick fires the periodic interrupt, waking every blocked reader exactly
// once (the machine's RTC loop calls it at the programmed rate; tests call
// it directly).
func (d *Device) Tick() {
	d.mu.Lock()
	d.ticks++
	d.mu.Unlock()
	d.cond.Broadcast()
}

// Wait blocks until the next Tick (§4.3: rtc_read blocks until the next
// timer tick). This is the "spins with IF set" contract of §5, modeled as
// a condition-variable wait instead of a busy loop.
func (d *Device) Wait() {
	d.mu.Lock()
	defer d.mu.Unlock()
	seen := d.ticks
	for d.ticks == seen {
		d.cond.Wait()
	}
}
