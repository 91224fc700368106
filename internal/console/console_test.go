package console

import (
	"strings"
	"testing"

	"github.com/kernellab/pmk/internal/paging"
	"github.com/kernellab/pmk/internal/physmem"
	"github.com/kernellab/pmk/internal/process"
	"github.com/kernellab/pmk/internal/scheduler"
	"github.com/kernellab/pmk/internal/terminal"
)

type stubLauncher struct{}

func (stubLauncher) LaunchShell(slot int) (int, error) { return 0, nil }

func newTestConsole(t *testing.T) (*Console, *strings.Builder) {
	t.Helper()
	arena := process.NewArena()
	mux := terminal.NewMultiplexer()
	space := paging.NewSpace()
	sched := scheduler.New(arena, mux, space, stubLauncher{})
	mem := physmem.New()
	var out strings.Builder
	return New(arena, sched, mux, mem, &out), &out
}

func TestPsListsLiveProcesses(t *testing.T) {
	c, out := newTestConsole(t)
	pcb, err := c.arena.Alloc()
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	pcb.ParentPid = 0
	pcb.TerminalSlot = 1

	if quit, err := c.dispatch("ps"); quit || err != nil {
		t.Fatalf("dispatch(ps): quit=%v err=%v", quit, err)
	}
	if !strings.Contains(out.String(), "1") {
		t.Fatalf("expected pid 1 in output, got %q", out.String())
	}
}

func TestDumpRejectsUnknownPid(t *testing.T) {
	c, _ := newTestConsole(t)
	if _, err := c.dispatch("dump 3"); err == nil {
		t.Fatal("expected an error for a non-live pid")
	}
}

func TestDumpReadsPhysicalMemory(t *testing.T) {
	c, out := newTestConsole(t)
	pcb, err := c.arena.Alloc()
	if err != nil {
		t.Fatalf("Alloc: %v", err)
	}
	base := paging.UserSlotPhysical(pcb.Pid)
	if err := c.mem.Write(base, []byte{0xDE, 0xAD, 0xBE, 0xEF}); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if _, err := c.dispatch("dump 1 4"); err != nil {
		t.Fatalf("dispatch(dump): %v", err)
	}
	if !strings.Contains(out.String(), "DE AD BE EF") {
		t.Fatalf("expected hex dump of written bytes, got %q", out.String())
	}
}

func TestQuitStopsTheLoop(t *testing.T) {
	c, _ := newTestConsole(t)
	quit, err := c.dispatch("quit")
	if err != nil || !quit {
		t.Fatalf("dispatch(quit): quit=%v err=%v", quit, err)
	}
}

func TestTermRejectsOutOfRangeSlot(t *testing.T) {
	c, _ := newTestConsole(t)
	if _, err := c.dispatch("term 9"); err == nil {
		t.Fatal("expected an error for an out-of-range terminal slot")
	}
}
