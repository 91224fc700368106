/*
   Fatal-exception backstop: report the vector name, then halt.

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

// Package trap is the fatal-exception backstop (§7): the kernel does not
// attempt recovery from a CPU exception, it reports the name and halts.
package trap

import "fmt"

// Names covers the fault vectors this kernel distinguishes by name before
// halting. Vectors 20..31 are architecturally reserved by Intel but the
// source wires the same fatal handler to them anyway (§9 open question);
// that behavior is preserved here under the Reserved name.
var Names = map[int]string{
	0:  "Divide Error",
	1:  "Debug Exception",
	2:  "NMI Interrupt",
	3:  "Breakpoint",
	4:  "Overflow",
	5:  "BOUND Range Exceeded",
	6:  "Invalid Opcode",
	7:  "Device Not Available",
	8:  "Double Fault",
	9:  "Coprocessor Segment Overrun",
	10: "Invalid TSS",
	11: "Segment Not Present",
	12: "Stack-Segment Fault",
	13: "General Protection",
	14: "Page Fault",
	15: "Intel Reserved",
	16:"x87 Floating-Point Error",
	17: "Alignment Check",
	18: "Machine Check",
	19: "SIMD Floating-Point Exception",
}

// Fault is a reported fatal exception: the vector and the resolved name.
type Fault struct {
	Vector int
	Name   string
}

func (f Fault) Error() string {
	return fmt.Sprintf("fatal exception %d (%s)", f.Vector, f.Name)
}

// NameFor resolves a vector to its exception name, or "Reserved" for the
// undefined-but-preserved 20..31 range (§9).
func NameFor(vector int) string {
	if name, ok := Names[vector]; ok {
		return name
	}
	if vector >= 20 && vector <= 31 {
		return "Reserved"
	}
	return "Unknown Exception"
}

// Handler is the process-wide fatal-fault sink: it clears the screen,
// records the fault, and stops taking further CPU time (§7 "halt the CPU
// in a busy loop. The kernel does not attempt recovery."). It does not
// print the exception name itself; the name is available through Fault.
type Handler struct {
	halted bool
	fault  Fault
	clear  func()
}

// NewHandler returns a handler that calls clearScreen once a fault lands.
func NewHandler(clearScreen func()) *Handler {
	if clearScreen == nil {
		clearScreen = func() {}
	}
	return &Handler{clear: clearScreen}
}

// Raise reports a fatal exception and marks the machine halted. Once
// halted, further Raise calls are no-ops — there is no nested dispatch
// (§5).
func (h *Handler) Raise(vector int) {
	if h.halted {
		return
	}
	h.fault = Fault{Vector: vector, Name: NameFor(vector)}
	h.clear()
	h.halted = true
}

// Halted reports whether the machine has taken a fatal fault.
func (h *Handler) Halted() bool {
	return h.halted
}

// Fault returns the fault that halted the machine, if any.
func (h *Handler) Fault() (Fault, bool) {
	return h.fault, h.halted
}
