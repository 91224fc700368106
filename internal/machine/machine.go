/*
   Assembles every subsystem into one running kernel instance.

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

// Package machine wires every subsystem into one running kernel: the PIT
// drives the scheduler, the keyboard drives the foreground terminal, the
// RTC drives its own periodic wake-ups, and syscall.Dispatcher answers
// trap 0x80. The goroutine+channel run loop is adapted from the teacher's
// core CPU loop (start/stop/shutdown over a done channel).
package machine

import (
	"log/slog"
	"sync"
	"time"

	"github.com/kernellab/pmk/internal/fsimage"
	"github.com/kernellab/pmk/internal/keyboard"
	"github.com/kernellab/pmk/internal/paging"
	"github.com/kernellab/pmk/internal/physmem"
	"github.com/kernellab/pmk/internal/pit"
	"github.com/kernellab/pmk/internal/ports"
	"github.com/kernellab/pmk/internal/process"
	"github.com/kernellab/pmk/internal/rtc"
	"github.com/kernellab/pmk/internal/scheduler"
	"github.com/kernellab/pmk/internal/syscall"
	"github.com/kernellab/pmk/internal/terminal"
	"github.com/kernellab/pmk/internal/trap"
)

// Machine is the assembled kernel: every subsystem plus the run loop that
// delivers PIT ticks and keyboard scan codes the way real IRQs would.
type Machine struct {
	wg   sync.WaitGroup
	done chan struct{}

	Bus       *ports.Bus
	PIT       *pit.Timer
	Arena     *process.Arena
	Space     *paging.Space
	Terminals *terminal.Multiplexer
	FS        *fsimage.Image
	RTC       *rtc.Device
	Memory    *physmem.Memory
	Keyboard  *keyboard.Controller
	Scheduler *scheduler.Scheduler
	Syscalls  *syscall.Dispatcher
	Trap      *trap.Handler

	scanCodes chan byte
}

// Config is what main's boot sequence fills in before calling New.
type Config struct {
	FS       *fsimage.Image
	RateHz   int // PIT quantum rate (§4.6, default pit.DefaultRateHz)
	OnFatal  func()
}

// New assembles every subsystem and registers the PIC lines this kernel
// actually unmasks (§5 ordering: PIT, keyboard, RTC through the cascade).
func New(cfg Config) *Machine {
	arena := process.NewArena()
	space := paging.NewSpace()
	mux := terminal.NewMultiplexer()
	rtcDev := rtc.New()
	bus := ports.NewBus()
	timer := pit.New(cfg.RateHz)
	mem := physmem.New()

	dispatcher := syscall.New(arena, space, mux, cfg.FS, rtcDev, mem)
	sched := scheduler.New(arena, mux, space, dispatcher)
	dispatcher.SetScheduler(sched)

	m := &Machine{
		done:      make(chan struct{}),
		Bus:       bus,
		PIT:       timer,
		Arena:     arena,
		Space:     space,
		Terminals: mux,
		FS:        cfg.FS,
		RTC:       rtcDev,
		Memory:    mem,
		Keyboard:  keyboard.New(),
		Scheduler: sched,
		Syscalls:  dispatcher,
		Trap:      trap.NewHandler(cfg.OnFatal),
		scanCodes: make(chan byte, 16),
	}

	bus.Unmask(ports.IRQTimer)
	bus.Unmask(ports.IRQKeyboard)
	bus.Unmask(ports.IRQRTC)

	return m
}

// RegisterProgram exposes Dispatcher.RegisterProgram so main can install
// the builtin shell (and any other program images) before Start.
func (m *Machine) RegisterProgram(name string, fn syscall.ProgramFunc) {
	m.Syscalls.RegisterProgram(name, fn)
}

// PostScanCode feeds one PS/2 scan code into the keyboard IRQ path. The
// console's input source (a real terminal, telnet, or a test) calls this
// instead of touching the keyboard controller directly.
func (m *Machine) PostScanCode(code byte) {
	select {
	case m.scanCodes <- code:
	default:
		slog.Warn("machine: scan code dropped, keyboard queue full")
	}
}

// Start brings the machine up: the PIT begins ticking and the run loop
// starts consuming PIT ticks, scan codes and the RTC's own periodic wake.
func (m *Machine) Start() {
	m.PIT.Start()
	m.wg.Add(2)
	go m.runLoop()
	go m.runRTC()
}

// Stop halts the PIT and run loop, waiting up to a second for both
// goroutines to exit (mirrors the teacher's core.Stop shutdown contract).
func (m *Machine) Stop() {
	m.PIT.Shutdown()
	close(m.done)

	waited := make(chan struct{})
	go func() {
		m.wg.Wait()
		close(waited)
	}()

	select {
	case <-waited:
	case <-time.After(time.Second):
		slog.Warn("machine: timed out waiting for run loop to exit")
	}
}

func (m *Machine) runLoop() {
	defer m.wg.Done()
	for {
		select {
		case <-m.done:
			return
		case <-m.PIT.Ticks():
			m.Bus.EOI(ports.IRQTimer)
			if m.Trap.Halted() {
				continue
			}
			if err := m.Scheduler.Tick(); err != nil {
				slog.Error("machine: scheduler tick failed", "error", err)
			}
		case code := <-m.scanCodes:
			m.Bus.EOI(ports.IRQKeyboard)
			if m.Trap.Halted() {
				continue
			}
			m.Keyboard.Handle(code, m.Terminals, m.Space)
		}
	}
}

// runRTC delivers the RTC's own periodic wake-up at whatever rate it is
// currently programmed to (§4.3: rtc_write reprograms the rate; §4.6
// frames this as IRQ8 through the slave PIC).
func (m *Machine) runRTC() {
	defer m.wg.Done()
	for {
		hz := m.RTC.RateHz()
		if hz <= 0 {
			hz = rtc.DefaultRateHz
		}
		select {
		case <-m.done:
			return
		case <-time.After(time.Second / time.Duration(hz)):
			m.Bus.EOI(ports.IRQRTC)
			m.RTC.Tick()
		}
	}
}

// RaiseFault routes a fatal CPU exception to the trap handler (§7). The
// run loop keeps draining ticks and scan codes afterward but stops acting
// on them, matching "halt the CPU in a busy loop" without actually
// spinning the process.
func (m *Machine) RaiseFault(vector int) {
	m.Trap.Raise(vector)
}
