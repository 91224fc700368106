// Package hostterm bridges the host's own stdin/stdout to terminal slot 0,
// so a local interactive run needs neither netcat nor telnet to drive the
// kernel. Adapted from the teacher pack's TerminalHost (raw mode + a
// non-blocking byte-at-a-time read goroutine); the kernel's own line
// discipline (§4.5) replaces the MMIO device that terminal_host.go fed.
package hostterm

import (
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/term"

	"github.com/kernellab/pmk/internal/keyboard"
	"github.com/kernellab/pmk/internal/terminal"
)

// ScanCoder is the subset of Machine this package needs.
type ScanCoder interface {
	PostScanCode(code byte)
}

// Host puts the controlling terminal into raw mode, feeds typed bytes to
// terminal slot 0's keyboard path, and periodically redraws its video page
// to stdout.
type Host struct {
	keys ScanCoder
	term *terminal.Terminal

	fd       int
	oldState *term.State

	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// New returns a host bridge for terminal slot 0 of mux.
func New(keys ScanCoder, mux *terminal.Multiplexer) *Host {
	return &Host{
		keys: keys,
		term: mux.Terminal(0),
		stop: make(chan struct{}),
		done: make(chan struct{}),
	}
}

// Start switches the host terminal to raw mode and begins pumping stdin
// bytes into the keyboard path and terminal 0's video page to stdout.
// Returns an error (and leaves the terminal mode untouched) if the host
// fd is not a real terminal.
func (h *Host) Start() error {
	h.fd = int(os.Stdin.Fd())
	oldState, err := term.MakeRaw(h.fd)
	if err != nil {
		return fmt.Errorf("hostterm: %w", err)
	}
	h.oldState = oldState

	go h.pumpInput()
	go h.pumpOutput()
	return nil
}

// Stop restores the host terminal's original mode after waiting for the
// output pump to exit. The input pump is not waited for: it exits on its
// next stdin read that returns an error.
func (h *Host) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	<-h.done
	if h.oldState != nil {
		_ = term.Restore(h.fd, h.oldState)
	}
}

func (h *Host) pumpInput() {
	buf := make([]byte, 1)
	for {
		select {
		case <-h.stop:
			return
		default:
		}
		n, err := os.Stdin.Read(buf)
		if n > 0 {
			b := buf[0]
			if b == '\r' {
				b = '\n'
			}
			keyboard.PostByte(h.keys.PostScanCode, b)
		}
		if err != nil {
			return
		}
	}
}

func (h *Host) pumpOutput() {
	defer close(h.done)
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var last [terminal.Rows * terminal.Columns]byte
	for {
		select {
		case <-h.stop:
			return
		case <-ticker.C:
			page := h.term.Snapshot()
			if page == last {
				continue
			}
			last = page
			fmt.Print("\x1b[H\x1b[2J")
			for row := 0; row < terminal.Rows; row++ {
				line := page[row*terminal.Columns : (row+1)*terminal.Columns]
				for _, c := range line {
					if c == 0 {
						c = ' '
					}
					fmt.Print(string(c))
				}
				fmt.Print("\r\n")
			}
		}
	}
}
