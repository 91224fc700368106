/*
   PS/2 scan-code translation and line editing.

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

// Package keyboard turns PS/2 scan codes into characters and line-editing
// events against the foreground terminal (§4.5, §9).
package keyboard

import (
	"github.com/kernellab/pmk/internal/paging"
	"github.com/kernellab/pmk/internal/terminal"
)

// Scan Set 1 make codes for the keys this kernel cares about. Break codes
// are the make code with bit 7 set.
const (
	scanEsc       = 0x01
	scanBackspace = 0x0E
	scanTab       = 0x0F
	scanEnter     = 0x1C
	scanLCtrl     = 0x1D
	scanLShift    = 0x2A
	scanRShift    = 0x36
	scanLAlt      = 0x38
	scanSpace     = 0x39
	scanCapsLock  = 0x3A
	scanF1        = 0x3B
	scanF2        = 0x3C
	scanF3        = 0x3D
	scanL         = 0x26
	breakBit      = 0x80
)

// regular holds the unshifted character for each printable scan code;
// shifted holds the Shift-pressed variant. Index is the scan code itself.
var regular = buildRegularTable()
var shifted = buildShiftedTable()
var byteToScan = buildReverseTable()
var shiftedByteToScan = buildShiftedReverseTable()

func buildReverseTable() map[byte]byte {
	m := make(map[byte]byte, len(regular))
	for code, ch := range regular {
		m[ch] = code
	}
	return m
}

func buildShiftedReverseTable() map[byte]byte {
	m := make(map[byte]byte, len(shifted))
	for code, ch := range shifted {
		m[ch] = code
	}
	return m
}

// ScanCodeForByte reverses the scan-code tables for an external input
// source (netterm) that only has the typed byte, not a PS/2 device to
// read the original make code from. shifted reports whether the caller
// must bracket code with a Shift make/break pair to reproduce it. Enter
// and Backspace are mapped to their dedicated make codes.
func ScanCodeForByte(b byte) (code byte, shifted bool, ok bool) {
	switch b {
	case '\r', '\n':
		return scanEnter, false, true
	case 0x7f, '\b':
		return scanBackspace, false, true
	}
	if code, ok = byteToScan[b]; ok {
		return code, false, true
	}
	if code, ok = shiftedByteToScan[b]; ok {
		return code, true, true
	}
	return 0, false, false
}

// PostByte feeds one ASCII byte to post (typically Machine.PostScanCode) as
// a full PS/2 make/break sequence, bracketing it with a Shift press when
// the byte needs one. Used by the host-facing terminal bridges (netterm,
// hostterm) that only see raw bytes, never real scan codes.
func PostByte(post func(byte), b byte) {
	code, shifted, ok := ScanCodeForByte(b)
	if !ok {
		return
	}
	if shifted {
		post(scanLShift)
	}
	post(code)
	post(code | breakBit)
	if shifted {
		post(scanLShift | breakBit)
	}
}

func buildRegularTable() map[byte]byte {
	m := map[byte]byte{
		0x02: '1', 0x03: '2', 0x04: '3', 0x05: '4', 0x06: '5',
		0x07: '6', 0x08: '7', 0x09: '8', 0x0A: '9', 0x0B: '0',
		0x0C: '-', 0x0D: '=',
		0x10: 'q', 0x11: 'w', 0x12: 'e', 0x13: 'r', 0x14: 't',
		0x15: 'y', 0x16: 'u', 0x17: 'i', 0x18: 'o', 0x19: 'p',
		0x1A: '[', 0x1B: ']',
		0x1E: 'a', 0x1F: 's', 0x20: 'd', 0x21: 'f', 0x22: 'g',
		0x23: 'h', 0x24: 'j', 0x25: 'k', scanL: 'l',
		0x27: ';', 0x28: '\'', 0x29: '`',
		0x2B: '\\',
		0x2C: 'z', 0x2D: 'x', 0x2E: 'c', 0x2F: 'v', 0x30: 'b',
		0x31: 'n', 0x32: 'm',
		0x33: ',', 0x34: '.', 0x35: '/',
		scanSpace: ' ',
		scanTab:   '\t',
	}
	return m
}

func buildShiftedTable() map[byte]byte {
	m := map[byte]byte{
		0x02: '!', 0x03: '@', 0x04: '#', 0x05: '$', 0x06: '%',
		0x07: '^', 0x08: '&', 0x09: '*', 0x0A: '(', 0x0B: ')',
		0x0C: '_', 0x0D: '+',
		0x10: 'Q', 0x11: 'W', 0x12: 'E', 0x13: 'R', 0x14: 'T',
		0x15: 'Y', 0x16: 'U', 0x17: 'I', 0x18: 'O', 0x19: 'P',
		0x1A: '{', 0x1B: '}',
		0x1E: 'A', 0x1F: 'S', 0x20: 'D', 0x21: 'F', 0x22: 'G',
		0x23: 'H', 0x24: 'J', 0x25: 'K', scanL: 'L',
		0x27: ':', 0x28: '"', 0x29: '~',
		0x2B: '|',
		0x2C: 'Z', 0x2D: 'X', 0x2E: 'C', 0x2F: 'V', 0x30: 'B',
		0x31: 'N', 0x32: 'M',
		0x33: '<', 0x34: '>', 0x35: '?',
		scanSpace: ' ',
		scanTab:   '\t',
	}
	return m
}

// isLetter reports whether a scan code maps to an alphabetic key, the only
// keys CapsLock affects independently of Shift.
func isLetter(code byte) bool {
	return code >= 0x10 && code <= 0x19 ||
		code >= 0x1E && code <= scanL ||
		code >= 0x2C && code <= 0x32
}

// Controller tracks modifier state and feeds characters into the
// foreground terminal of a Multiplexer.
type Controller struct {
	shift    bool
	ctrl     bool
	alt      bool
	capsLock bool
}

// New returns a controller with no modifiers held.
func New() *Controller {
	return &Controller{}
}

// mode is the 2-bit index from §9: bit 0 is CapsLock (toggled, independent
// of key state), bit 1 is Shift (set/cleared with the key). Four modes:
// regular, caps, shift, caps+shift — and caps+shift inverts letter case
// relative to caps alone, which is why letters and punctuation are looked
// up differently below.
func (c *Controller) mode() int {
	m := 0
	if c.capsLock {
		m ^= 1
	}
	if c.shift {
		m |= 2
	}
	return m
}

// charFor resolves a scan code to the character this mode produces, or 0
// if the key has no printable mapping.
func (c *Controller) charFor(code byte) byte {
	m := c.mode()
	useShiftTable := m == 2 || m == 3 // shift alone, or caps+shift
	if isLetter(code) {
		// CapsLock alone uppercases; CapsLock+Shift un-uppercases again
		// (the "caps+shift inverts case" contract in §9).
		switch m {
		case 0:
			return regular[code]
		case 1:
			return shifted[code]
		case 2:
			return shifted[code]
		case 3:
			return regular[code]
		}
	}
	if useShiftTable {
		return shifted[code]
	}
	return regular[code]
}

// Handle processes one scan code byte against mux (the foreground terminal
// receives line-editing events) and space (Alt+F switches rewrite the
// video page mapping, §4.1/§4.5). It returns the terminal switched to, or
// -1 if this scan code did not trigger a switch.
func (c *Controller) Handle(code byte, mux *terminal.Multiplexer, space *paging.Space) int {
	release := code&breakBit != 0
	key := code &^ breakBit

	switch key {
	case scanLShift, scanRShift:
		c.shift = !release
		return -1
	case scanLCtrl:
		c.ctrl = !release
		return -1
	case scanLAlt:
		c.alt = !release
		return -1
	case scanCapsLock:
		if !release {
			c.capsLock = !c.capsLock
		}
		return -1
	}

	if release {
		return -1
	}

	switch key {
	case scanF1, scanF2, scanF3:
		if !c.alt {
			return -1
		}
		target := int(key - scanF1)
		if mux.SwitchForeground(target) {
			space.RemapTerminalVideo(true, mux.BackingPage(target))
		}
		return target
	}

	fg := mux.Terminal(mux.Foreground())

	if c.ctrl && key == scanL {
		mux.ClearForeground()
		return -1
	}

	switch key {
	case scanBackspace:
		fg.Backspace()
		return -1
	case scanEnter:
		fg.Enter()
		fg.Write([]byte{'\n'})
		return -1
	}

	if ch := c.charFor(key); ch != 0 && fg.AppendInput(ch) {
		fg.Write([]byte{ch})
	}
	return -1
}
