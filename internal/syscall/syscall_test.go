package syscall

import (
	"encoding/binary"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kernellab/pmk/internal/fsimage"
	"github.com/kernellab/pmk/internal/paging"
	"github.com/kernellab/pmk/internal/physmem"
	"github.com/kernellab/pmk/internal/process"
	"github.com/kernellab/pmk/internal/rtc"
	"github.com/kernellab/pmk/internal/terminal"
)

type execFile struct {
	name    string
	badELF  bool
	payload []byte // anything beyond the 28-byte header, may be empty
}

// buildImage constructs a boot-block image with one regular dentry per
// entry in files, each prefixed with the ELF magic and a throwaway entry
// point at offset 24, unless badELF is set.
func buildImage(t *testing.T, files []execFile) *fsimage.Image {
	t.Helper()

	const blockSize = 4096
	inodeCount := len(files)

	headers := make([][]byte, inodeCount)
	for i, f := range files {
		body := make([]byte, 28+len(f.payload))
		if !f.badELF {
			copy(body[0:4], []byte{0x7F, 'E', 'L', 'F'})
		}
		binary.LittleEndian.PutUint32(body[24:28], 0x08048000)
		copy(body[28:], f.payload)
		headers[i] = body
	}

	buf := make([]byte, blockSize*(1+inodeCount+inodeCount))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(inodeCount))
	binary.LittleEndian.PutUint32(buf[4:8], uint32(inodeCount))
	binary.LittleEndian.PutUint32(buf[8:12], uint32(inodeCount))

	dents := buf[64:blockSize]
	for i, f := range files {
		off := i * 64
		copy(dents[off:off+32], f.name)
		dents[off+32] = fsimage.TypeRegular
		binary.LittleEndian.PutUint32(dents[off+36:off+40], uint32(i))
	}

	for i := range files {
		blk := buf[blockSize*(1+i) : blockSize*(2+i)]
		binary.LittleEndian.PutUint32(blk[0:4], uint32(len(headers[i])))
		binary.LittleEndian.PutUint32(blk[4:8], uint32(i)) // one data block per file
	}

	dataBase := blockSize * (1 + inodeCount)
	for i, h := range headers {
		copy(buf[dataBase+i*blockSize:], h)
	}

	img, err := fsimage.Load(buf)
	if err != nil {
		t.Fatalf("buildImage: %v", err)
	}
	return img
}

func newHarness(t *testing.T, files []execFile) (*Dispatcher, *process.Arena, *terminal.Multiplexer) {
	t.Helper()
	arena := process.NewArena()
	mux := terminal.NewMultiplexer()
	space := paging.NewSpace()
	fs := buildImage(t, files)
	rtcDev := rtc.New()
	return New(arena, space, mux, fs, rtcDev, physmem.New()), arena, mux
}

func bootCaller(t *testing.T, d *Dispatcher, arena *process.Arena, slot int) *process.PCB {
	t.Helper()
	pcb, err := d.bootShellPCB(slot)
	if err != nil {
		t.Fatalf("bootShellPCB: %v", err)
	}
	d.slotBaseShell[slot] = pcb.Pid
	return pcb
}

func TestExecuteRunsRegisteredProgramAndReturnsStatus(t *testing.T) {
	d, arena, _ := newHarness(t, []execFile{{name: "echo"}})
	caller := bootCaller(t, d, arena, 0)

	d.RegisterProgram("echo", func(d *Dispatcher, pcb *process.PCB, args string) int {
		d.Write(pcb, 1, []byte(args))
		return 7
	})

	status, err := d.Execute(caller.Pid, "echo hello")
	if err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if status != 7 {
		t.Fatalf("got status %d, want 7", status)
	}
	if arena.Count() != 1 {
		t.Fatalf("child pcb should be freed after halt, live count %d", arena.Count())
	}
}

func TestExecuteRejectsBadMagic(t *testing.T) {
	d, arena, _ := newHarness(t, []execFile{{name: "bogus", badELF: true}})
	caller := bootCaller(t, d, arena, 0)

	status, err := d.Execute(caller.Pid, "bogus")
	if status != -1 || err != ErrBadMagic {
		t.Fatalf("got (%d,%v), want (-1, ErrBadMagic)", status, err)
	}
}

func TestExecuteRejectsUnknownCommand(t *testing.T) {
	d, arena, _ := newHarness(t, []execFile{{name: "echo"}})
	caller := bootCaller(t, d, arena, 0)

	status, err := d.Execute(caller.Pid, "")
	if status != -1 || err != ErrUnknownCommand {
		t.Fatalf("got (%d,%v), want (-1, ErrUnknownCommand)", status, err)
	}

	status, err = d.Execute(caller.Pid, "nope")
	if status != -1 || err != ErrUnknownCommand {
		t.Fatalf("got (%d,%v), want (-1, ErrUnknownCommand) for missing file", status, err)
	}
}

func TestHaltPropagatesThroughExplicitCall(t *testing.T) {
	d, arena, _ := newHarness(t, []execFile{{name: "quitter"}})
	caller := bootCaller(t, d, arena, 0)

	d.RegisterProgram("quitter", func(d *Dispatcher, pcb *process.PCB, args string) int {
		d.Halt(42)
		return -1
	})

	status, err := d.Execute(caller.Pid, "quitter")
	if err != nil || status != 42 {
		t.Fatalf("got (%d,%v), want (42,nil)", status, err)
	}
}

func TestBaseShellRelaunchesAfterHalt(t *testing.T) {
	d, arena, _ := newHarness(t, []execFile{{name: "shell"}})

	var invocation int32
	calls := make(chan int, 4)
	block := make(chan struct{})

	d.RegisterProgram("shell", func(d *Dispatcher, pcb *process.PCB, args string) int {
		calls <- pcb.Pid
		if atomic.AddInt32(&invocation, 1) == 1 {
			d.Halt(0)
		}
		<-block
		return 0
	})

	pid1, err := d.LaunchShell(0)
	if err != nil {
		t.Fatalf("LaunchShell: %v", err)
	}

	first := <-calls
	if first != pid1 {
		t.Fatalf("first invocation pid %d, want %d", first, pid1)
	}

	var second int
	select {
	case second = <-calls:
	case <-time.After(time.Second):
		t.Fatal("base shell was never relaunched after halt")
	}
	if second == pid1 {
		t.Fatal("relaunch should allocate a fresh pid")
	}
	if arena.Get(pid1) != nil {
		t.Fatal("the halted base shell's pid should be freed")
	}
	if arena.Get(second) == nil {
		t.Fatal("the relaunched base shell's pid should be live")
	}
	close(block)
}

func TestReadBlocksUntilEnterAndForeground(t *testing.T) {
	d, arena, mux := newHarness(t, []execFile{{name: "shell"}})
	caller := bootCaller(t, d, arena, 0)

	result := make(chan int, 1)
	buf := make([]byte, 16)
	go func() {
		n, err := d.Read(caller, 0, buf)
		if err != nil {
			t.Errorf("Read: %v", err)
		}
		result <- n
	}()

	select {
	case <-result:
		t.Fatal("read returned before Enter was pressed")
	case <-time.After(20 * time.Millisecond):
	}

	term := mux.Terminal(0)
	for _, c := range []byte("hi") {
		term.AppendInput(c)
	}
	term.Enter()

	select {
	case n := <-result:
		if n != 2 || string(buf[:2]) != "hi" {
			t.Fatalf("got n=%d buf=%q, want 2 \"hi\"", n, buf[:n])
		}
	case <-time.After(time.Second):
		t.Fatal("read never unblocked after Enter")
	}
}

func TestVidmapRejectsKernelAddress(t *testing.T) {
	d, arena, _ := newHarness(t, []execFile{{name: "shell"}})
	caller := bootCaller(t, d, arena, 0)

	if _, err := d.Vidmap(caller, paging.KernelBase); err != ErrOutOfUserSpace {
		t.Fatalf("got %v, want ErrOutOfUserSpace", err)
	}

	addr, err := d.Vidmap(caller, paging.VidmapVirtual+4096)
	if err != nil {
		t.Fatalf("Vidmap: %v", err)
	}
	if addr != paging.VidmapVirtual {
		t.Fatalf("got %#x, want %#x", addr, paging.VidmapVirtual)
	}
}

func TestGetargsRoundTrip(t *testing.T) {
	d, arena, _ := newHarness(t, []execFile{{name: "shell"}})
	caller := bootCaller(t, d, arena, 0)
	caller.SetArgs("world")

	buf := make([]byte, 16)
	n, err := d.Getargs(caller, buf, len(buf))
	if err != nil {
		t.Fatalf("Getargs: %v", err)
	}
	if string(buf[:n-1]) != "world" {
		t.Fatalf("got %q, want \"world\"", buf[:n-1])
	}
}

func TestOpenAndCloseTrackRTCInUse(t *testing.T) {
	d, arena, _ := newHarness(t, []execFile{{name: "shell"}})
	caller := bootCaller(t, d, arena, 0)

	if caller.RTCInUse {
		t.Fatal("RTCInUse must start false")
	}

	fdNum, err := d.Open(caller, "rtc")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !caller.RTCInUse {
		t.Fatal("expected RTCInUse after opening the RTC device")
	}

	if err := d.Close(caller, fdNum); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if caller.RTCInUse {
		t.Fatal("expected RTCInUse to clear once no RTC descriptor remains open")
	}
}
