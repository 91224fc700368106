/*
   I/O port space and cascaded 8259 PIC pair.

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

// Package ports models the x86 I/O port space and the cascaded 8259 PIC
// pair that the rest of the kernel masks, unmasks and EOIs.
package ports

import "sync"

// Port addresses for the devices this kernel cares about (§6).
const (
	PIC1Command = 0x20
	PIC1Data    = 0x21
	PIC2Command = 0xA0
	PIC2Data    = 0xA1
	PITCommand  = 0x43
	PITChannel0 = 0x40
	RTCIndex    = 0x70
	RTCData     = 0x71
	KBDData     = 0x60
	KBDStatus   = 0x64
)

// IRQ lines (§5: PIT is IRQ0, keyboard IRQ1, RTC IRQ8 through the slave).
const (
	IRQTimer    = 0
	IRQKeyboard = 1
	IRQCascade  = 2
	IRQRTC      = 8
)

const maxIRQ = 15

// Bus is a minimal in/out port space: a byte-addressable map standing in
// for real port I/O, plus the cascaded master/slave 8259 mask state.
type Bus struct {
	mu     sync.Mutex
	ports  map[uint16]uint8
	masked [maxIRQ + 1]bool
}

// NewBus returns a Bus with both PICs fully masked, matching post-reset
// hardware state before the kernel programs them.
func NewBus() *Bus {
	b := &Bus{ports: make(map[uint16]uint8)}
	for irq := 0; irq <= maxIRQ; irq++ {
		b.masked[irq] = true
	}
	return b
}

// Out writes a byte to a port.
func (b *Bus) Out(port uint16, value uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ports[port] = value
}

// In reads the last byte written to a port (0 if never written).
func (b *Bus) In(port uint16) uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.ports[port]
}

// Unmask enables delivery of the given IRQ line. Out-of-range lines are
// silently ignored (§7: "IRQ out of range in the PIC helpers").
func (b *Bus) Unmask(irq int) {
	if irq < 0 || irq > maxIRQ {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.masked[irq] = false
	if irq >= 8 {
		b.masked[IRQCascade] = false
	}
}

// Mask disables delivery of the given IRQ line.
func (b *Bus) Mask(irq int) {
	if irq < 0 || irq > maxIRQ {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.masked[irq] = true
}

// Masked reports whether the given IRQ line is currently masked.
func (b *Bus) Masked(irq int) bool {
	if irq < 0 || irq > maxIRQ {
		return true
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.masked[irq]
}

// EOI acknowledges an in-service interrupt. No state is kept beyond what
// Masked already tracks: the model never re-enters a handler for the same
// IRQ before EOI, so there is nothing else to clear.
func (b *Bus) EOI(irq int) {
	if irq < 0 || irq > maxIRQ {
		return
	}
}
