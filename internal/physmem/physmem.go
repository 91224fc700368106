/*
   Simulated physical RAM backing the page tables.

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

// Package physmem is the kernel's simulated physical RAM: a flat
// byte-addressable array standing in for the real DRAM a protected-mode
// kernel's page tables ultimately point into. Adapted from the teacher's
// flat word-addressable store, dropping the storage-protection key byte
// per 2 KiB frame (an S/370 channel concept with no analog here) in favor
// of a plain bounds-checked byte slice sized to cover the kernel identity
// mapping, all six user program slots, and the off-screen terminal pages.
package physmem

import "fmt"

// Size is large enough to hold the static kernel region plus
// process.MaxProcesses 4 MiB user slots (§4.1, §6).
const Size = 32 * 1024 * 1024

// Memory is the one block of simulated physical storage the kernel's
// address space descriptions (paging.Space) are rewritten to point into.
type Memory struct {
	bytes [Size]byte
}

// New returns a zeroed physical memory block.
func New() *Memory {
	return &Memory{}
}

// Write copies data into physical memory starting at addr. Returns an
// error instead of silently truncating, unlike the teacher's unchecked
// PutWord — there is no channel-level retry path here to paper over it.
func (m *Memory) Write(addr uint32, data []byte) error {
	if uint64(addr)+uint64(len(data)) > Size {
		return fmt.Errorf("physmem: write [%#x,%#x) exceeds %d byte store", addr, uint64(addr)+uint64(len(data)), Size)
	}
	copy(m.bytes[addr:], data)
	return nil
}

// Read copies len(buf) bytes starting at addr into buf.
func (m *Memory) Read(addr uint32, buf []byte) error {
	if uint64(addr)+uint64(len(buf)) > Size {
		return fmt.Errorf("physmem: read [%#x,%#x) exceeds %d byte store", addr, uint64(addr)+uint64(len(buf)), Size)
	}
	copy(buf, m.bytes[addr:])
	return nil
}

// Zero clears n bytes starting at addr.
func (m *Memory) Zero(addr uint32, n int) error {
	if uint64(addr)+uint64(n) > Size {
		return fmt.Errorf("physmem: zero [%#x,%#x) exceeds %d byte store", addr, uint64(addr)+uint64(n), Size)
	}
	clear(m.bytes[addr : addr+uint32(n)])
	return nil
}
