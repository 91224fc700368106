/*
   Three-terminal multiplexer over one VGA-shaped text buffer.

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

// Package terminal implements the three logical consoles multiplexed over
// one physical VGA text buffer (§3, §4.5). Exactly one is foreground at a
// time; the other two render into off-screen 4 KiB backing pages.
package terminal

import "sync"

const (
	// Count is the number of logical terminals (§1, §3).
	Count = 3
	// InputBufferSize is the per-terminal line-input buffer (§3: 127 bytes).
	InputBufferSize = 127
	// Columns is the width at which terminal_write auto-wraps (§4.5: 73).
	Columns = 73
	// Rows is the VGA text buffer's visible row count.
	Rows = 25
)

// Terminal is one logical console: cursor, input line buffer, enter flag
// and the physical video page it renders into (§3).
type Terminal struct {
	mu sync.Mutex

	row, col int
	visible  bool

	input     [InputBufferSize]byte
	inputLen  int
	enterFlag bool

	videoPage [Rows * Columns]byte // off-screen / foreground backing store
	videoRow  int                  // current write cursor into videoPage, by row
	videoCol  int
	backingID uint32 // physical page identity, for paging's RemapTerminalVideo
}

// Multiplexer owns all terminals and tracks which one is foreground.
type Multiplexer struct {
	mu         sync.Mutex
	terms      [Count]*Terminal
	foreground int
}

// NewMultiplexer builds three terminals, each given a distinct backing page
// identity; terminal 0 starts foreground.
func NewMultiplexer() *Multiplexer {
	m := &Multiplexer{}
	for i := range m.terms {
		m.terms[i] = &Terminal{backingID: uint32(0x1000 + i*0x1000)}
	}
	m.terms[0].visible = true
	return m
}

// Terminal returns terminal i (0..2).
func (m *Multiplexer) Terminal(i int) *Terminal {
	return m.terms[i]
}

// Foreground returns the index of the currently foreground terminal.
func (m *Multiplexer) Foreground() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.foreground
}

// BackingPage returns the physical page identity backing terminal i.
func (m *Multiplexer) BackingPage(i int) uint32 {
	return m.terms[i].backingID
}

// SwitchForeground moves the visible flag from the outgoing terminal to the
// incoming one (Alt+F1..F3, §4.5). Each terminal keeps its own cursor and
// video page, so nothing else is copied. Returns false if to is already
// foreground (no-op).
func (m *Multiplexer) SwitchForeground(to int) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	if to == m.foreground {
		return false
	}

	out := m.terms[m.foreground]
	out.mu.Lock()
	out.visible = false
	out.mu.Unlock()

	in := m.terms[to]
	in.mu.Lock()
	in.visible = true
	in.mu.Unlock()

	m.foreground = to
	return true
}

// ClearForeground implements Ctrl+L (§4.5): clears the foreground
// terminal's screen and its pending input buffer.
func (m *Multiplexer) ClearForeground() {
	t := m.terms[m.Foreground()]
	t.mu.Lock()
	defer t.mu.Unlock()
	t.videoPage = [Rows * Columns]byte{}
	t.videoRow, t.videoCol = 0, 0
	t.row, t.col = 0, 0
	t.inputLen = 0
	t.enterFlag = false
}

// AppendInput appends one character to the terminal's input line buffer,
// bounded by InputBufferSize (§4.5). Returns false if the buffer is full.
func (t *Terminal) AppendInput(c byte) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inputLen >= InputBufferSize {
		return false
	}
	t.input[t.inputLen] = c
	t.inputLen++
	return true
}

// Backspace removes the last buffered input character, if any (§4.5).
func (t *Terminal) Backspace() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inputLen == 0 {
		return false
	}
	t.inputLen--
	return true
}

// Enter appends '\n' to the input buffer and sets the enter flag (§4.5).
func (t *Terminal) Enter() {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.inputLen < InputBufferSize {
		t.input[t.inputLen] = '\n'
		t.inputLen++
	}
	t.enterFlag = true
}

// EnterPending reports whether Enter has been pressed and not yet consumed.
func (t *Terminal) EnterPending() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enterFlag
}

// InputLen reports how many bytes are currently buffered.
func (t *Terminal) InputLen() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inputLen
}

// Visible reports whether this terminal currently owns the VGA buffer.
func (t *Terminal) Visible() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.visible
}

// Read implements terminal_read (§4.5): copies up to n (max 127) buffered
// bytes, stopping before the trailing newline, then clears the buffer and
// enter flag. Returns the byte count. Callers (the syscall layer) are
// responsible for the blocking wait (enter flag set, buffer non-empty,
// process on the foreground terminal) before calling Read.
func (t *Terminal) Read(buf []byte) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	n := t.inputLen
	if n > InputBufferSize {
		n = InputBufferSize
	}
	// Stop before the trailing newline Enter() appended.
	copyLen := n
	if copyLen > 0 && t.input[copyLen-1] == '\n' {
		copyLen--
	}
	if len(buf) < copyLen {
		copyLen = len(buf)
	}
	copy(buf, t.input[:copyLen])

	t.inputLen = 0
	t.enterFlag = false
	return copyLen
}

// Write implements terminal_write (§4.5): appends n bytes to this
// terminal's video page, wrapping at Columns and scrolling when the page
// fills. A '\n' flushes the current line.
func (t *Terminal) Write(data []byte) int {
	t.mu.Lock()
	defer t.mu.Unlock()

	for _, c := range data {
		if c == '\n' {
			t.videoRow++
			t.videoCol = 0
		} else {
			if t.videoCol >= Columns {
				t.videoRow++
				t.videoCol = 0
			}
			t.putc(c)
			t.videoCol++
		}
		if t.videoRow >= Rows {
			t.scroll()
			t.videoRow = Rows - 1
		}
	}
	return len(data)
}

func (t *Terminal) putc(c byte) {
	idx := t.videoRow*Columns + t.videoCol
	if idx >= 0 && idx < len(t.videoPage) {
		t.videoPage[idx] = c
	}
}

func (t *Terminal) scroll() {
	copy(t.videoPage[:], t.videoPage[Columns:])
	for i := len(t.videoPage) - Columns; i < len(t.videoPage); i++ {
		t.videoPage[i] = 0
	}
}

// Snapshot returns a copy of the raw video page, for the operator console.
func (t *Terminal) Snapshot() [Rows * Columns]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.videoPage
}
