/*
   Trap-0x80 dispatch table: execute, halt, read, write, open, close,
   getargs, vidmap.

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

// Package syscall implements the trap-0x80 dispatch table: execute, halt,
// read, write, open, close, getargs and vidmap (§4.4). It is the one
// package that reaches across every other subsystem, exactly as the real
// handler does from ring 0.
package syscall

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/kernellab/pmk/internal/fd"
	"github.com/kernellab/pmk/internal/fsimage"
	"github.com/kernellab/pmk/internal/paging"
	"github.com/kernellab/pmk/internal/physmem"
	"github.com/kernellab/pmk/internal/process"
	"github.com/kernellab/pmk/internal/rtc"
	"github.com/kernellab/pmk/internal/scheduler"
	"github.com/kernellab/pmk/internal/terminal"
)

var elfMagic = [4]byte{0x7F, 'E', 'L', 'F'}

// entryOffset is the file offset of the little-endian 32-bit entry point
// (§4.4, §6).
const entryOffset = 24

var (
	ErrUnknownCommand  = errors.New("syscall: missing or unknown executable name")
	ErrBadMagic        = errors.New("syscall: executable missing ELF magic prefix")
	ErrNoSuchProcess   = errors.New("syscall: caller pid not live")
	ErrNullBuffer      = errors.New("syscall: null buffer")
	ErrOutOfUserSpace  = errors.New("syscall: out_ptr does not lie in user space")
)

// ProgramFunc stands in for a loaded executable's ring-3 entry point: the
// kernel cannot run real x86 images, so each file that passes the ELF
// check is backed by one of these (§9 "enter_user(entry,user_stack)").
// Implementations call back into the Dispatcher for every syscall they
// issue (Execute, Read, Write, ...) and optionally end early with Halt.
type ProgramFunc func(d *Dispatcher, pcb *process.PCB, args string) int

// haltSignal unwinds a ProgramFunc early, modeling halt(status) as a
// control transfer that — like the real trap — never returns to its
// caller (§4.4 halt()).
type haltSignal struct{ status int }

// Dispatcher is the trap-0x80 handler: it owns no state of its own beyond
// the bookkeeping execute()/halt() need, and delegates everything else to
// the subsystem it was wired against.
type Dispatcher struct {
	mu sync.Mutex

	arena  *process.Arena
	space  *paging.Space
	mux    *terminal.Multiplexer
	fs     *fsimage.Image
	rtcDev *rtc.Device
	sched  *scheduler.Scheduler
	mem    *physmem.Memory

	programs map[string]ProgramFunc

	slotBaseShell [terminal.Count]int // immortal base-shell pid per slot
	slotDepth     [terminal.Count]int // active (non-base) descendants per slot
}

// New returns a dispatcher wired to the subsystems execute()/halt() touch.
// The scheduler is supplied later via SetScheduler, since the scheduler's
// constructor needs the Dispatcher as its ShellLauncher first.
func New(arena *process.Arena, space *paging.Space, mux *terminal.Multiplexer, fs *fsimage.Image, rtcDev *rtc.Device, mem *physmem.Memory) *Dispatcher {
	return &Dispatcher{
		arena:    arena,
		space:    space,
		mux:      mux,
		fs:       fs,
		rtcDev:   rtcDev,
		mem:      mem,
		programs: make(map[string]ProgramFunc),
	}
}

// SetScheduler completes the two-phase wiring: the scheduler holds a
// Dispatcher as its ShellLauncher, and the Dispatcher holds the scheduler
// back so a relaunched base shell can rebind the slot's scheduled pid.
func (d *Dispatcher) SetScheduler(s *scheduler.Scheduler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sched = s
}

// RegisterProgram installs fn as the entry point run whenever name passes
// the ELF-magic check (§9). Tests and cmd/ wire up "shell" and any other
// builtin program this way.
func (d *Dispatcher) RegisterProgram(name string, fn ProgramFunc) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.programs[name] = fn
}

// parseCommand splits a command line into an executable name and the
// remaining argument string (§4.4 execute(): "whitespace-separated").
func parseCommand(cmdLine string) (name, args string, err error) {
	trimmed := strings.TrimSpace(cmdLine)
	if trimmed == "" {
		return "", "", ErrUnknownCommand
	}
	fields := strings.SplitN(trimmed, " ", 2)
	name = fields[0]
	if len(fields) == 2 {
		args = strings.TrimSpace(fields[1])
	}
	return name, args, nil
}

// resolveExecutable validates the magic prefix, reads the entry point at
// file offset 24 (§4.4, §6) and finds the registered program standing in for
// the on-disk image. Only the 4-byte magic and the entry word are honored
// (§9 "Keep this relaxed contract").
func (d *Dispatcher) resolveExecutable(name string) (ProgramFunc, fsimage.Dentry, error) {
	dentry, err := d.fs.LookupByName(name)
	if err != nil || dentry.Type != fsimage.TypeRegular {
		return nil, fsimage.Dentry{}, ErrUnknownCommand
	}

	var magic [4]byte
	if n := d.fs.ReadInode(dentry.Inode, 0, magic[:]); n != 4 || magic != elfMagic {
		return nil, fsimage.Dentry{}, ErrBadMagic
	}

	var entryBuf [4]byte
	d.fs.ReadInode(dentry.Inode, entryOffset, entryBuf[:])
	_ = binary.LittleEndian.Uint32(entryBuf[:]) // read, not otherwise used

	d.mu.Lock()
	fn, ok := d.programs[name]
	d.mu.Unlock()
	if !ok {
		return nil, fsimage.Dentry{}, fmt.Errorf("syscall: %q has no runnable program image", name)
	}
	return fn, dentry, nil
}

// loadImage copies the executable's on-disk bytes into the physical
// memory backing pid's 4 MiB user slot, as execute() does before reading
// the entry point (§4.4 "copy the entire program image to virtual
// 0x08048000"). A nil Memory (as in tests that only exercise dispatch
// logic) makes this a no-op.
func (d *Dispatcher) loadImage(dentry fsimage.Dentry, pid int) error {
	if d.mem == nil {
		return nil
	}
	length, err := d.fs.InodeLength(dentry.Inode)
	if err != nil {
		return err
	}
	buf := make([]byte, length)
	d.fs.ReadInode(dentry.Inode, 0, buf)
	return d.mem.Write(paging.UserSlotPhysical(pid), buf)
}

// invoke runs fn to completion, treating an explicit Halt call the same as
// a normal return: both yield the status execute() hands to the parent.
func (d *Dispatcher) invoke(fn ProgramFunc, pcb *process.PCB, args string) (status int) {
	defer func() {
		if r := recover(); r != nil {
			if h, ok := r.(haltSignal); ok {
				status = h.status
				return
			}
			panic(r)
		}
	}()
	var captured int
	pcb.EntryPoint = func() {
		captured = fn(d, pcb, args)
	}
	pcb.EntryPoint()
	return captured
}

// Halt implements halt(status) (§4.4) for a program that wants to stop
// before its ProgramFunc body returns on its own. Never returns to the
// caller — exactly like the real trap handler reusing the parent's saved
// stack instead of this call's.
func (d *Dispatcher) Halt(status int) {
	panic(haltSignal{status: status})
}

// Execute implements execute(cmd) (§4.4), running the command as an
// ordinary (non-base-shell) child. The calling pid, base shell or not,
// must be live; the new process inherits its terminal slot. Blocks until the child halts and returns its status.
func (d *Dispatcher) Execute(callerPid int, cmdLine string) (int, error) {
	d.mu.Lock()
	caller := d.arena.Get(callerPid)
	if caller == nil {
		d.mu.Unlock()
		return -1, ErrNoSuchProcess
	}
	slot := caller.TerminalSlot
	d.mu.Unlock()

	name, args, err := parseCommand(cmdLine)
	if err != nil {
		return -1, err
	}

	fn, dentry, err := d.resolveExecutable(name)
	if err != nil {
		return -1, err
	}

	d.mu.Lock()
	pcb, err := d.arena.Alloc()
	if err != nil {
		d.mu.Unlock()
		return -1, process.ErrTableFull
	}
	d.slotDepth[slot]++
	priorActive := d.slotDepth[slot] - 1
	if priorActive < 3 {
		pcb.ParentPid = d.slotBaseShell[slot]
	} else {
		pcb.ParentPid = callerPid
	}
	pcb.Parent = d.arena.Get(pcb.ParentPid)
	pcb.TerminalSlot = slot
	pcb.Files = fd.NewTable(d.fs, d.rtcDev)
	pcb.Files.InstallStdio(d.mux.Terminal(slot))
	pcb.SetArgs(args)
	d.space.SwitchAddressSpace(pcb.Pid)
	if err := d.loadImage(dentry, pcb.Pid); err != nil {
		d.arena.Free(pcb.Pid)
		d.slotDepth[slot]--
		d.mu.Unlock()
		return -1, err
	}
	d.mu.Unlock()

	status := d.invoke(fn, pcb, args)

	d.mu.Lock()
	pcb.Files.CloseAll()
	d.arena.Free(pcb.Pid)
	d.slotDepth[slot]--
	d.space.SwitchAddressSpace(callerPid)
	d.mu.Unlock()

	return status, nil
}

// LaunchShell implements scheduler.ShellLauncher: it is how the scheduler
// lazily seeds an unvisited terminal slot with its immortal base shell
// (§4.6). The shell runs in its own goroutine — a process is a goroutine
// in this model — so a shell that blocks forever on terminal input never
// blocks the scheduler tick that launched it.
func (d *Dispatcher) LaunchShell(terminalSlot int) (int, error) {
	fn, dentry, err := d.resolveExecutable("shell")
	if err != nil {
		return 0, err
	}

	pcb, err := d.bootShellPCB(terminalSlot)
	if err != nil {
		return 0, err
	}
	if err := d.loadImage(dentry, pcb.Pid); err != nil {
		return 0, err
	}

	go d.runBaseShell(fn, dentry, pcb, terminalSlot)

	return pcb.Pid, nil
}

func (d *Dispatcher) bootShellPCB(terminalSlot int) (*process.PCB, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pcb, err := d.arena.Alloc()
	if err != nil {
		return nil, process.ErrTableFull
	}
	pcb.ParentPid = 0
	pcb.TerminalSlot = terminalSlot
	pcb.Files = fd.NewTable(d.fs, d.rtcDev)
	pcb.Files.InstallStdio(d.mux.Terminal(terminalSlot))
	d.slotBaseShell[terminalSlot] = pcb.Pid

	return pcb, nil
}

// runBaseShell is halt()'s "never truly exits" contract for pid ≤ 3 (§4.4,
// §5 "the three base shells are immortal"): whenever the shell's program
// returns or calls Halt, a fresh one is re-executed into the same slot.
func (d *Dispatcher) runBaseShell(fn ProgramFunc, dentry fsimage.Dentry, pcb *process.PCB, terminalSlot int) {
	for {
		d.invoke(fn, pcb, "")

		d.mu.Lock()
		d.arena.Free(pcb.Pid)
		d.mu.Unlock()

		next, err := d.bootShellPCB(terminalSlot)
		if err != nil {
			return
		}
		if err := d.loadImage(dentry, next.Pid); err != nil {
			return
		}
		if d.sched != nil {
			d.sched.RebindSlot(terminalSlot, next.Pid)
		}
		pcb = next
	}
}

// Read implements read(fd,buf,n) (§4.4, §4.5). Stdin is a terminal
// descriptor whose reads block (spin, per §5) until the enter flag is
// set, the buffer is non-empty, and the process's terminal is foreground.
func (d *Dispatcher) Read(pcb *process.PCB, fdNum int, buf []byte) (int, error) {
	if buf == nil {
		return -1, ErrNullBuffer
	}
	if fdNum == fd.StdinFD {
		term := d.mux.Terminal(pcb.TerminalSlot)
		for !(term.EnterPending() && term.InputLen() > 0 && d.mux.Foreground() == pcb.TerminalSlot) {
			time.Sleep(time.Millisecond)
		}
	}
	n, err := pcb.Files.Read(fdNum, buf)
	if err != nil {
		return -1, err
	}
	return n, nil
}

// Write implements write(fd,buf,n) (§4.4).
func (d *Dispatcher) Write(pcb *process.PCB, fdNum int, buf []byte) (int, error) {
	if buf == nil {
		return -1, ErrNullBuffer
	}
	n, err := pcb.Files.Write(fdNum, buf)
	if err != nil {
		return -1, err
	}
	return n, nil
}

// Open implements open(name) (§4.3, §4.4). Opening the RTC device sets
// RTCInUse, mirroring the source's pcb_current->rtc_flag.
func (d *Dispatcher) Open(pcb *process.PCB, name string) (int, error) {
	fdNum, err := pcb.Files.Open(name)
	pcb.RTCInUse = pcb.Files.HasRTCOpen()
	return fdNum, err
}

// Close implements close(fd) (§4.3, §4.4). Unlike the source, which never
// clears rtc_flag once set, this clears RTCInUse once the process holds
// no more open RTC descriptors.
func (d *Dispatcher) Close(pcb *process.PCB, fdNum int) error {
	err := pcb.Files.Close(fdNum)
	pcb.RTCInUse = pcb.Files.HasRTCOpen()
	return err
}

// Getargs implements getargs(buf,n) (§4.4).
func (d *Dispatcher) Getargs(pcb *process.PCB, buf []byte, n int) (int, error) {
	return pcb.GetArgs(buf, n)
}

// Vidmap implements vidmap(out_ptr) (§4.1, §4.4): validates that out_ptr
// lies in user space, installs the 1 GiB window over the running
// process's terminal video page, and reports the value that would be
// written through out_ptr.
func (d *Dispatcher) Vidmap(pcb *process.PCB, outPtr uint32) (uint32, error) {
	if !paging.InUserSpace(outPtr) {
		return 0, ErrOutOfUserSpace
	}
	phys := d.mux.BackingPage(pcb.TerminalSlot)
	addr := d.space.InstallVidmap(phys)
	return addr, nil
}
