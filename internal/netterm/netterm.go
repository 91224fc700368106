// Package netterm exposes each of the kernel's three logical terminals
// (§3, §4.5) on its own TCP listener, so a plain `nc` or telnet client can
// act as one of the three physical consoles a real build would attach to
// serial ports. Adapted from the teacher's telnet listener (accept loop +
// shutdown-channel + per-connection goroutine); the IAC option negotiation
// the teacher's telnet.go performs has no equivalent here — clients get a
// raw byte stream, not full telnet protocol support.
package netterm

import (
	"bufio"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/kernellab/pmk/internal/keyboard"
	"github.com/kernellab/pmk/internal/terminal"
)

// breakBit marks a PS/2 break code (make code with bit 7 set).
const breakBit = 0x80

// ScanCoder feeds scan codes into the running machine's keyboard path;
// keyboard.PostByte turns each typed byte into those codes.
type ScanCoder interface {
	PostScanCode(code byte)
}

// Server listens on one port per terminal slot and bridges each accepted
// connection to that terminal's input/output.
type Server struct {
	wg        sync.WaitGroup
	listeners []net.Listener
	shutdown  chan struct{}
	mux       *terminal.Multiplexer
	keys      ScanCoder
	basePort  int
}

// New returns a server that will listen on basePort+0, basePort+1,
// basePort+2 for terminal slots 0, 1, 2.
func New(mux *terminal.Multiplexer, keys ScanCoder, basePort int) *Server {
	return &Server{
		shutdown: make(chan struct{}),
		mux:      mux,
		keys:     keys,
		basePort: basePort,
	}
}

// Start opens one listener per terminal slot and begins accepting.
func (s *Server) Start() error {
	for slot := 0; slot < terminal.Count; slot++ {
		addr := fmt.Sprintf(":%d", s.basePort+slot)
		l, err := net.Listen("tcp", addr)
		if err != nil {
			s.Stop()
			return fmt.Errorf("netterm: listen on %s: %w", addr, err)
		}
		s.listeners = append(s.listeners, l)
		slog.Info("netterm: terminal listening", "slot", slot, "addr", addr)

		s.wg.Add(1)
		go s.accept(l, slot)
	}
	return nil
}

// Stop closes every listener and waits for in-flight connections to drain.
func (s *Server) Stop() {
	close(s.shutdown)
	for _, l := range s.listeners {
		l.Close()
	}

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		slog.Warn("netterm: timed out waiting for connections to close")
	}
}

func (s *Server) accept(l net.Listener, slot int) {
	defer s.wg.Done()
	for {
		conn, err := l.Accept()
		if err != nil {
			select {
			case <-s.shutdown:
				return
			default:
				continue
			}
		}
		go s.serve(conn, slot)
	}
}

// serve pumps keystrokes from conn into the keyboard path and periodically
// pushes the terminal's video page back out, since nothing in this model
// pushes write events to an observer (§4.5's video page is polled, not
// published).
func (s *Server) serve(conn net.Conn, slot int) {
	defer conn.Close()

	clientDone := make(chan struct{})
	go func() {
		defer close(clientDone)
		reader := bufio.NewReader(conn)
		for {
			b, err := reader.ReadByte()
			if err != nil {
				return
			}
			keyboard.PostByte(s.keys.PostScanCode, b)
		}
	}()

	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var last [terminal.Rows * terminal.Columns]byte
	term := s.mux.Terminal(slot)

	for {
		select {
		case <-s.shutdown:
			return
		case <-clientDone:
			return
		case <-ticker.C:
			page := term.Snapshot()
			if page != last {
				if _, err := conn.Write(renderDelta(page)); err != nil {
					return
				}
				last = page
			}
		}
	}
}

// renderDelta turns a raw video page into a CRLF-terminated screen dump.
// A real build would track cursor moves; this redraws the whole page,
// which is plenty for a plain telnet/netcat client.
func renderDelta(page [terminal.Rows * terminal.Columns]byte) []byte {
	out := make([]byte, 0, len(page)+terminal.Rows*2+4)
	out = append(out, "\x1b[H\x1b[2J"...)
	for row := 0; row < terminal.Rows; row++ {
		line := page[row*terminal.Columns : (row+1)*terminal.Columns]
		for _, c := range line {
			if c == 0 {
				c = ' '
			}
			out = append(out, c)
		}
		out = append(out, '\r', '\n')
	}
	return out
}
