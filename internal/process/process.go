/*
   Process control block model and the fixed-size pid arena.

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

// Package process holds the process control block model: one PCB per live
// process, and the pid table that hands out and reclaims the six available
// pids (§3, §5).
package process

import (
	"errors"

	"github.com/kernellab/pmk/internal/fd"
)

// MaxProcesses is how many processes can be live at once (§3: pid 1..6).
const MaxProcesses = 6

// ArgBufferSize is the fixed argument-string buffer every PCB carries (§3).
const ArgBufferSize = 128

var ErrTableFull = errors.New("process: pid table full")

// SavedContext is what switch_to saves and restores across a context
// switch: the caller's kernel stack pointer/base, and the TSS kernel-stack
// fields for the next process to trap back to ring 0 (§3, §9). Modeled as
// plain values instead of real register contents.
type SavedContext struct {
	StackPointer uintptr
	BasePointer  uintptr
	TSSStackTop  uintptr
}

// PCB is one process control block (§3). It lives at the "top of its
// kernel stack slot" in the source; here the slot is simply index Pid-1 in
// the Arena.
type PCB struct {
	Pid       int
	ParentPid int
	Parent    *PCB

	Saved SavedContext

	Files *fd.Table

	args    [ArgBufferSize]byte
	argLen  int
	hasArgs bool

	RTCInUse bool

	// TerminalSlot is the terminal slot (0..2) whose quantum this
	// process currently owns (§3 sched_pid).
	TerminalSlot int

	// EntryPoint is the simulated ring-3 entry: a closure standing in
	// for "IRET to the user program's entry point" (§4.4, §9).
	EntryPoint func()
}

// SetArgs stores the argument string execute() parsed out of the command
// line, truncated to ArgBufferSize-1 bytes plus a NUL (§3, §4.4 getargs).
func (p *PCB) SetArgs(args string) {
	n := len(args)
	if n > ArgBufferSize-1 {
		n = ArgBufferSize - 1
	}
	copy(p.args[:], args[:n])
	p.args[n] = 0
	p.argLen = n
	p.hasArgs = n > 0
}

// GetArgs implements getargs(buf,n) (§4.4): copies the NUL-terminated
// argument string into buf. Fails if no args are present, n is negative,
// or the string (plus NUL) does not fit in n bytes.
func (p *PCB) GetArgs(buf []byte, n int) (int, error) {
	if !p.hasArgs {
		return -1, errors.New("process: no arguments present")
	}
	if n < 0 {
		return -1, errors.New("process: negative length")
	}
	need := p.argLen + 1
	if need > n || need > len(buf) {
		return -1, errors.New("process: argument buffer too small")
	}
	copy(buf, p.args[:need])
	return need, nil
}

// Arena owns the fixed pool of PCB slots and the pid_slot liveness bitmap.
type Arena struct {
	slots [MaxProcesses]*PCB
}

// NewArena returns an empty process table.
func NewArena() *Arena {
	return &Arena{}
}

// Alloc reserves the first free pid (1..6), matching "first zero bit in
// pid_slot" (§4.4 execute). Returns ErrTableFull if all six are live.
func (a *Arena) Alloc() (*PCB, error) {
	for i := 0; i < MaxProcesses; i++ {
		if a.slots[i] == nil {
			pcb := &PCB{Pid: i + 1}
			a.slots[i] = pcb
			return pcb, nil
		}
	}
	return nil, ErrTableFull
}

// Free releases pid's slot (§4.4 halt).
func (a *Arena) Free(pid int) {
	if pid < 1 || pid > MaxProcesses {
		return
	}
	a.slots[pid-1] = nil
}

// Get returns the live PCB for pid, or nil.
func (a *Arena) Get(pid int) *PCB {
	if pid < 1 || pid > MaxProcesses {
		return nil
	}
	return a.slots[pid-1]
}

// Live reports whether pid currently has a live PCB — the pid_slot
// invariant in §8 ("pid_slot[i]==1 iff some live PCB has pid==i+1").
func (a *Arena) Live(pid int) bool {
	return a.Get(pid) != nil
}

// Count returns how many processes are currently live.
func (a *Arena) Count() int {
	n := 0
	for _, s := range a.slots {
		if s != nil {
			n++
		}
	}
	return n
}

// Pids returns the live pids in ascending order, for an operator console's
// process listing.
func (a *Arena) Pids() []int {
	pids := make([]int, 0, MaxProcesses)
	for i, s := range a.slots {
		if s != nil {
			pids = append(pids, i+1)
		}
	}
	return pids
}
