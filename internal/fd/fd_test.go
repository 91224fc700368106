package fd

import (
	"encoding/binary"
	"testing"

	"github.com/kernellab/pmk/internal/fsimage"
	"github.com/kernellab/pmk/internal/rtc"
	"github.com/kernellab/pmk/internal/terminal"
)

func buildImage(t *testing.T) *fsimage.Image {
	t.Helper()
	payload := []byte("0123456789")
	buf := make([]byte, 4096*3)
	binary.LittleEndian.PutUint32(buf[0:4], 1)
	binary.LittleEndian.PutUint32(buf[4:8], 1)
	binary.LittleEndian.PutUint32(buf[8:12], 1)
	dents := buf[64:4096]
	copy(dents[0:32], "ls")
	dents[32] = fsimage.TypeRegular
	binary.LittleEndian.PutUint32(dents[36:40], 0)
	inodeBlk := buf[4096:8192]
	binary.LittleEndian.PutUint32(inodeBlk[0:4], uint32(len(payload)))
	binary.LittleEndian.PutUint32(inodeBlk[4:8], 0)
	copy(buf[8192:], payload)

	img, err := fsimage.Load(buf)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return img
}

func TestStdioPreBound(t *testing.T) {
	term := terminal.NewMultiplexer().Terminal(0)
	table := NewTable(buildImage(t), rtc.New())
	table.InstallStdio(term)

	if !table.descs[StdinFD].InUse() || !table.descs[StdoutFD].InUse() {
		t.Fatal("fd 0 and fd 1 must be installed")
	}
	if _, err := table.Write(StdinFD, []byte("x")); err != ErrReadOnly {
		t.Fatalf("writing stdin should fail, got %v", err)
	}
	if _, err := table.Read(StdoutFD, make([]byte, 1)); err != ErrWriteOnly {
		t.Fatalf("reading stdout should fail, got %v", err)
	}
}

func TestOpenCloseAreInverse(t *testing.T) {
	table := NewTable(buildImage(t), rtc.New())
	table.InstallStdio(terminal.NewMultiplexer().Terminal(0))

	fdNum, err := table.Open("ls")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if fdNum != 2 {
		t.Fatalf("first open should land on fd 2, got %d", fdNum)
	}

	buf := make([]byte, 4)
	n, err := table.Read(fdNum, buf)
	if err != nil || n != 4 {
		t.Fatalf("Read: n=%d err=%v", n, err)
	}

	if err := table.Close(fdNum); err != nil {
		t.Fatalf("Close: %v", err)
	}

	fdNum2, err := table.Open("ls")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if fdNum2 != 2 {
		t.Fatalf("reopened fd should reuse slot 2, got %d", fdNum2)
	}
	n, _ = table.Read(fdNum2, buf)
	if n != 4 || string(buf[:n]) != "0123" {
		t.Fatal("reopened file must start at position 0")
	}
}

func TestCloseRefusesStdioAndFree(t *testing.T) {
	table := NewTable(buildImage(t), rtc.New())
	table.InstallStdio(terminal.NewMultiplexer().Terminal(0))
	if err := table.Close(StdinFD); err != ErrBadFD {
		t.Fatal("closing fd 0 must fail")
	}
	if err := table.Close(2); err != ErrBadFD {
		t.Fatal("closing an already-free fd must fail")
	}
	if err := table.Close(99); err != ErrBadFD {
		t.Fatal("closing an out-of-range fd must fail")
	}
}

func TestOpenUnknownNameFails(t *testing.T) {
	table := NewTable(buildImage(t), rtc.New())
	if _, err := table.Open("nope"); err != ErrUnknown {
		t.Fatalf("got %v, want ErrUnknown", err)
	}
}

func TestTableFull(t *testing.T) {
	table := NewTable(buildImage(t), rtc.New())
	for i := 0; i < Count-2; i++ {
		if _, err := table.Open("ls"); err != nil {
			t.Fatalf("open %d: %v", i, err)
		}
	}
	if _, err := table.Open("ls"); err != ErrTableFull {
		t.Fatalf("got %v, want ErrTableFull", err)
	}
}

func TestRTCWriteRejectsNonPowerOfTwo(t *testing.T) {
	table := NewTable(buildImage(t), rtc.New())
	fdNum, err := table.Open("rtc")
	if err != nil {
		t.Fatalf("open rtc: %v", err)
	}
	rateBuf := make([]byte, 4)
	binary.LittleEndian.PutUint32(rateBuf, 16)
	if n, err := table.Write(fdNum, rateBuf); err != nil || n != 4 {
		t.Fatalf("n=%d err=%v", n, err)
	}

	binary.LittleEndian.PutUint32(rateBuf, 3)
	if _, err := table.Write(fdNum, rateBuf); err == nil {
		t.Fatal("rate 3 is not a power of two, should fail")
	}
}

func TestRegularReadShortRead(t *testing.T) {
	table := NewTable(buildImage(t), rtc.New())
	fdNum, _ := table.Open("ls")
	buf := make([]byte, 100)
	n, err := table.Read(fdNum, buf)
	if err != nil || n != 10 {
		t.Fatalf("n=%d err=%v, want 10", n, err)
	}
	n, _ = table.Read(fdNum, buf)
	if n != 0 {
		t.Fatalf("next read should return 0 at EOF, got %d", n)
	}
}
