package scheduler

import (
	"testing"

	"github.com/kernellab/pmk/internal/paging"
	"github.com/kernellab/pmk/internal/process"
	"github.com/kernellab/pmk/internal/terminal"
)

type fakeLauncher struct {
	arena *process.Arena
	calls []int
}

func (f *fakeLauncher) LaunchShell(slot int) (int, error) {
	f.calls = append(f.calls, slot)
	pcb, err := f.arena.Alloc()
	if err != nil {
		return 0, err
	}
	return pcb.Pid, nil
}

func TestThreeShellsExistAfterThreeTicks(t *testing.T) {
	arena := process.NewArena()
	mux := terminal.NewMultiplexer()
	space := paging.NewSpace()
	launcher := &fakeLauncher{arena: arena}
	sched := New(arena, mux, space, launcher)

	for i := 0; i < 3; i++ {
		if err := sched.Tick(); err != nil {
			t.Fatalf("tick %d: %v", i, err)
		}
	}

	if !sched.AllSlotsSeeded() {
		t.Fatal("all three terminal slots should be seeded after three ticks")
	}
	if arena.Count() != 3 {
		t.Fatalf("expected 3 live PCBs, got %d", arena.Count())
	}
	if len(launcher.calls) != 3 || launcher.calls[0] != 0 || launcher.calls[1] != 1 || launcher.calls[2] != 2 {
		t.Fatalf("expected shells launched into slots 0,1,2 in order, got %v", launcher.calls)
	}
}

func TestFourthTickDoesNotRelaunch(t *testing.T) {
	arena := process.NewArena()
	mux := terminal.NewMultiplexer()
	space := paging.NewSpace()
	launcher := &fakeLauncher{arena: arena}
	sched := New(arena, mux, space, launcher)

	for i := 0; i < 4; i++ {
		sched.Tick()
	}
	if len(launcher.calls) != 3 {
		t.Fatalf("the 4th tick should rotate back to slot 0 without relaunching, got %d launches", len(launcher.calls))
	}
	pid, slot := sched.Current()
	if slot != 0 {
		t.Fatalf("after 4 ticks current slot should be 0, got %d", slot)
	}
	if pid != sched.PidForSlot(0) {
		t.Fatal("current pid must match the slot's owner")
	}
}

func TestForegroundVideoMappingFollowsScheduledSlot(t *testing.T) {
	arena := process.NewArena()
	mux := terminal.NewMultiplexer()
	space := paging.NewSpace()
	launcher := &fakeLauncher{arena: arena}
	sched := New(arena, mux, space, launcher)

	sched.Tick() // slot 0, foreground
	if space.VideoPagePhysical() != paging.VGAPhysical {
		t.Fatal("scheduling the foreground terminal must map the real VGA buffer")
	}

	sched.Tick() // slot 1, background
	if space.VideoPagePhysical() != mux.BackingPage(1) {
		t.Fatal("scheduling a background terminal must map its own off-screen page")
	}
}
