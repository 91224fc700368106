/*
   Programmable interval timer, driving the scheduler's quantum.

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

// Package pit models the programmable interval timer: a free-running
// ticker programmed to ~100 Hz rate-generator mode, delivering one quantum
// tick at a time to whoever is listening (§4.6).
package pit

import (
	"log/slog"
	"sync"
	"time"
)

// OscillatorHz is the PIT's base oscillator frequency (§4.6 divisor math:
// 1 193 180 / rateHz).
const OscillatorHz = 1193180

// DefaultRateHz is the scheduler quantum rate (§4.6: "≈100 Hz").
const DefaultRateHz = 100

// Timer is a free-running interval timer delivering ticks on a channel,
// adapted from the same start/stop/shutdown shape used for the emulator's
// periodic clock device.
type Timer struct {
	wg      sync.WaitGroup
	running bool
	ticks   chan struct{}
	enable  chan bool
	done    chan struct{}
	ticker  *time.Ticker
	rateHz  int
}

// New returns a Timer programmed to rateHz, not yet running.
func New(rateHz int) *Timer {
	if rateHz <= 0 {
		rateHz = DefaultRateHz
	}
	t := &Timer{
		rateHz: rateHz,
		ticks:  make(chan struct{}, 1),
		enable: make(chan bool, 1),
		done:   make(chan struct{}),
	}
	t.wg.Add(1)
	go t.run()
	return t
}

// Ticks is the channel one tick is posted to per quantum (§4.6: "the PIT
// fires at a fixed rate").
func (t *Timer) Ticks() <-chan struct{} {
	return t.ticks
}

// Start enables tick delivery.
func (t *Timer) Start() {
	t.enable <- true
}

// Stop disables tick delivery without tearing down the goroutine.
func (t *Timer) Stop() {
	t.enable <- false
}

// Divisor returns the PIT reload value for rateHz (§4.6, §6: PIT command
// at 0x43, channel 0 at 0x40).
func Divisor(rateHz int) int {
	if rateHz <= 0 {
		return 0
	}
	return OscillatorHz / rateHz
}

// Shutdown stops the background goroutine, waiting up to a second.
func (t *Timer) Shutdown() {
	close(t.done)
	done := make(chan struct{})
	go func() {
		t.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		slog.Warn("pit: timed out waiting for timer goroutine to exit")
	}
}

func (t *Timer) run() {
	defer t.wg.Done()
	interval := time.Second / time.Duration(t.rateHz)
	t.ticker = time.NewTicker(interval)
	defer t.ticker.Stop()

	for {
		select {
		case <-t.ticker.C:
			if t.running {
				select {
				case t.ticks <- struct{}{}:
				default:
				}
			}
		case t.running = <-t.enable:
		case <-t.done:
			return
		}
	}
}
