/*
   Round-robin scheduler ring ticked by the PIT.

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

// Package scheduler drives the three-terminal round-robin quantum ring off
// PIT ticks: lazily booting a shell into each unseeded slot, then rotating
// fixed quanta across whichever pids own each slot (§4.6).
package scheduler

import (
	"sync"

	"github.com/kernellab/pmk/internal/paging"
	"github.com/kernellab/pmk/internal/process"
	"github.com/kernellab/pmk/internal/terminal"
)

// ShellLauncher lazily seeds a still-empty terminal slot with a freshly
// executed "shell" process (§4.6). Declared here, implemented by the
// syscall layer's Dispatcher, so this package never imports syscall.
type ShellLauncher interface {
	LaunchShell(terminalSlot int) (pid int, err error)
}

// Scheduler owns curr_process and sched_pid (§3) plus the one page-table
// space and terminal multiplexer every context switch touches.
type Scheduler struct {
	mu sync.Mutex

	arena    *process.Arena
	mux      *terminal.Multiplexer
	space    *paging.Space
	launcher ShellLauncher

	slotPid [terminal.Count]int // sched_pid: 0 means "not yet seeded"
	current int                 // curr_process; -1 before the first tick
	ticks   int
}

// New returns a scheduler with no terminal slot seeded yet.
func New(arena *process.Arena, mux *terminal.Multiplexer, space *paging.Space, launcher ShellLauncher) *Scheduler {
	return &Scheduler{
		arena:    arena,
		mux:      mux,
		space:    space,
		launcher: launcher,
		current:  -1,
	}
}

// Tick runs one scheduler transition (§4.6): rotate to the next terminal
// slot, lazily launch its base shell if it has never been seeded, then
// reprogram the user address space and video mapping for whichever pid
// now owns that slot's quantum.
func (s *Scheduler) Tick() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.ticks++
	target := (s.current + 1) % terminal.Count

	if s.slotPid[target] == 0 {
		pid, err := s.launcher.LaunchShell(target)
		if err != nil {
			return err
		}
		s.slotPid[target] = pid
		if pcb := s.arena.Get(pid); pcb != nil {
			pcb.TerminalSlot = target
		}
	}

	s.current = target
	pid := s.slotPid[target]

	s.space.SwitchAddressSpace(pid)
	foreground := s.mux.Foreground() == target
	s.space.RemapTerminalVideo(foreground, s.mux.BackingPage(target))

	return nil
}

// Current returns the pid and terminal slot currently holding the
// quantum, or (0, -1) before the first tick has run.
func (s *Scheduler) Current() (pid int, terminalSlot int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.current < 0 {
		return 0, -1
	}
	return s.slotPid[s.current], s.current
}

// PidForSlot returns the pid owning slot's quantum, or 0 if unseeded.
func (s *Scheduler) PidForSlot(slot int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.slotPid[slot]
}

// RebindSlot installs pid as the new owner of slot's quantum — used by
// halt() when a base shell re-executes itself after "exiting" (§4.4).
func (s *Scheduler) RebindSlot(slot int, pid int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.slotPid[slot] = pid
}

// Ticks reports how many PIT ticks have been delivered, shown by the
// operator console's ps listing.
func (s *Scheduler) Ticks() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ticks
}

// AllSlotsSeeded reports whether every terminal slot has a shell bound.
func (s *Scheduler) AllSlotsSeeded() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, pid := range s.slotPid {
		if pid == 0 {
			return false
		}
	}
	return true
}
