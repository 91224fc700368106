// Package console is the operator's REPL onto a running machine: process
// listing, terminal snapshots, and a physical memory dump. Adapted from the
// teacher's liner-based command reader (prompt loop + completer + history);
// the large command/parser grammar behind it (device attach/detach/set/show)
// has no analog here, so this package carries a much smaller, hand-rolled
// command table instead.
package console

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strconv"
	"strings"

	"github.com/peterh/liner"

	"github.com/kernellab/pmk/internal/paging"
	"github.com/kernellab/pmk/internal/physmem"
	"github.com/kernellab/pmk/internal/process"
	"github.com/kernellab/pmk/internal/scheduler"
	"github.com/kernellab/pmk/internal/terminal"
)

var commandNames = []string{"ps", "term", "dump", "help", "quit"}

// Console reads operator commands from stdin and reports on the live
// machine: the process table, a terminal's text page, and raw physical
// memory.
type Console struct {
	arena *process.Arena
	sched *scheduler.Scheduler
	mux   *terminal.Multiplexer
	mem   *physmem.Memory
	out   io.Writer
}

// New returns a console wired to the subsystems it reports on.
func New(arena *process.Arena, sched *scheduler.Scheduler, mux *terminal.Multiplexer, mem *physmem.Memory, out io.Writer) *Console {
	return &Console{arena: arena, sched: sched, mux: mux, mem: mem, out: out}
}

// Run drives the prompt loop until the operator types "quit" or closes
// stdin (Ctrl-D/Ctrl-C), mirroring the teacher's ConsoleReader shape.
func (c *Console) Run() {
	line := liner.NewLiner()
	defer line.Close()

	line.SetCtrlCAborts(true)
	line.SetCompleter(func(partial string) []string {
		var out []string
		for _, name := range commandNames {
			if strings.HasPrefix(name, partial) {
				out = append(out, name)
			}
		}
		return out
	})

	for {
		cmd, err := line.Prompt("pmk> ")
		if err != nil {
			if errors.Is(err, liner.ErrPromptAborted) {
				return
			}
			slog.Error("console: error reading line", "error", err)
			return
		}
		line.AppendHistory(cmd)

		quit, err := c.dispatch(cmd)
		if err != nil {
			fmt.Fprintln(c.out, "error:", err)
		}
		if quit {
			return
		}
	}
}

func (c *Console) dispatch(line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	switch fields[0] {
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprintln(c.out, "commands: ps, term <0-2>, dump <pid> [len], quit")
		return false, nil
	case "ps":
		c.ps()
		return false, nil
	case "term":
		return false, c.term(fields[1:])
	case "dump":
		return false, c.dump(fields[1:])
	default:
		return false, fmt.Errorf("unknown command %q", fields[0])
	}
}

func (c *Console) ps() {
	pids := c.arena.Pids()
	sort.Ints(pids)
	curPid, curSlot := c.sched.Current()
	fmt.Fprintln(c.out, "PID  PARENT  TERM  RTC  STATE")
	for _, pid := range pids {
		pcb := c.arena.Get(pid)
		if pcb == nil {
			continue
		}
		state := ""
		if pid == curPid {
			state = "running"
		}
		rtc := ""
		if pcb.RTCInUse {
			rtc = "open"
		}
		fmt.Fprintf(c.out, "%-4d %-7d %-5d %-4s %s\n", pid, pcb.ParentPid, pcb.TerminalSlot, rtc, state)
	}
	fmt.Fprintf(c.out, "scheduler: %d ticks, running terminal slot %d\n", c.sched.Ticks(), curSlot)
}

func (c *Console) term(args []string) error {
	if len(args) != 1 {
		return errors.New("usage: term <0-2>")
	}
	slot, err := strconv.Atoi(args[0])
	if err != nil || slot < 0 || slot >= terminal.Count {
		return fmt.Errorf("terminal slot must be 0..%d", terminal.Count-1)
	}

	page := c.mux.Terminal(slot).Snapshot()
	for row := 0; row < terminal.Rows; row++ {
		line := page[row*terminal.Columns : (row+1)*terminal.Columns]
		blank := true
		for _, ch := range line {
			if ch != 0 {
				blank = false
				break
			}
		}
		if blank {
			continue
		}
		out := make([]byte, terminal.Columns)
		for i, ch := range line {
			if ch == 0 {
				ch = ' '
			}
			out[i] = ch
		}
		fmt.Fprintln(c.out, string(out))
	}
	return nil
}

// dump hex-dumps a process's user image out of physical memory, 16 bytes
// per line, the way a debugger's "x" command would.
func (c *Console) dump(args []string) error {
	if len(args) < 1 {
		return errors.New("usage: dump <pid> [len]")
	}
	pid, err := strconv.Atoi(args[0])
	if err != nil {
		return fmt.Errorf("bad pid %q", args[0])
	}
	if !c.arena.Live(pid) {
		return fmt.Errorf("pid %d is not live", pid)
	}

	length := 128
	if len(args) >= 2 {
		length, err = strconv.Atoi(args[1])
		if err != nil || length <= 0 {
			return fmt.Errorf("bad length %q", args[1])
		}
	}
	if c.mem == nil {
		return errors.New("no physical memory backing attached")
	}

	base := paging.UserSlotPhysical(pid)
	buf := make([]byte, length)
	if err := c.mem.Read(base, buf); err != nil {
		return err
	}

	var b strings.Builder
	for off := 0; off < len(buf); off += 16 {
		end := off + 16
		if end > len(buf) {
			end = len(buf)
		}
		fmt.Fprintf(&b, "%08X  ", base+uint32(off))
		formatBytes(&b, buf[off:end])
		b.WriteByte('\n')
	}
	fmt.Fprint(c.out, b.String())
	return nil
}

var hexDigits = "0123456789ABCDEF"

// formatBytes writes each byte as two hex digits separated by a space, the
// same per-byte loop the teacher's hex formatting table uses for its own
// field dumps.
func formatBytes(b *strings.Builder, data []byte) {
	for _, by := range data {
		b.WriteByte(hexDigits[(by>>4)&0xf])
		b.WriteByte(hexDigits[by&0xf])
		b.WriteByte(' ')
	}
}
