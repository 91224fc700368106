/*
   Single page directory: static layout plus the user/video remap slots.

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

// Package paging models the kernel's single page directory: a static
// layout with one dynamic 4 MiB user slot and one dynamic 4 KiB video
// window, rewritten on every context switch and every vidmap call (§4.1).
package paging

const (
	// PageSize4K is the size of the VGA/terminal video page.
	PageSize4K = 4096
	// PageSize4M is the size of the kernel identity mapping and each
	// per-process user slot.
	PageSize4M = 4 * 1024 * 1024

	// KernelBase is where the 4 MiB kernel identity mapping starts.
	KernelBase = PageSize4M
	// UserSlotBase is the physical base of pid 1's 4 MiB program slot;
	// pid n lives at UserSlotBase + (n-1)*PageSize4M.
	UserSlotBase = 2 * PageSize4M
	// UserVirtual is the fixed virtual address every process is linked
	// to run at (§4.1, §6).
	UserVirtual = 128 * 1024 * 1024
	// VidmapVirtual is the vidmap window's virtual address (§4.1, §6).
	VidmapVirtual = 1024 * 1024 * 1024
	// VGAPhysical is the physical address of the real VGA text buffer.
	VGAPhysical = 0xB8000
)

// Entry is one page-directory/page-table slot: a physical base plus the
// user/read-write bits the CPU would check on a fault.
type Entry struct {
	Physical uint32
	Present  bool
	User     bool
	Write    bool
}

// Space is the kernel's one and only address space description. There is
// exactly one page directory in this kernel (§4.1); "switching address
// spaces" means rewriting its one dynamic 4 MiB entry and flushing.
type Space struct {
	userSlot    Entry // virtual [128MiB, 132MiB)
	vidLowPage  Entry // the one present 4K page below 4MiB (the VGA alias)
	vidmap      Entry // virtual [1GiB, 1GiB+4K), installed lazily
	vidmapValid bool
	flushes     int // number of TLB flushes issued, exposed for tests
}

// NewSpace returns a space with nothing but the static kernel identity
// mapping assumed (callers never need to see it: it never changes).
func NewSpace() *Space {
	return &Space{}
}

// UserSlotPhysical returns the physical base a pid's 4 MiB slot uses.
func UserSlotPhysical(pid int) uint32 {
	return UserSlotBase + uint32(pid-1)*PageSize4M
}

// SwitchAddressSpace rewrites the dynamic user 4 MiB entry to back pid's
// program image and flushes the TLB (§4.1 switch_address_space contract).
func (s *Space) SwitchAddressSpace(pid int) {
	s.userSlot = Entry{
		Physical: UserSlotPhysical(pid),
		Present:  true,
		User:     true,
		Write:    true,
	}
	s.flushTLB()
}

// UserSlot reports the currently mapped user 4 MiB entry.
func (s *Space) UserSlot() Entry {
	return s.userSlot
}

// RemapTerminalVideo rewrites the low 4K video page so that the VGA
// virtual alias backs physical VGA memory when slot is the foreground
// terminal, or the terminal's own off-screen page otherwise (§4.1, §4.5).
func (s *Space) RemapTerminalVideo(foreground bool, backingPage uint32) {
	phys := backingPage
	if foreground {
		phys = VGAPhysical
	}
	s.vidLowPage = Entry{Physical: phys, Present: true, User: true, Write: true}
	s.flushTLB()
}

// VideoPagePhysical reports what physical page the VGA virtual alias
// currently points at.
func (s *Space) VideoPagePhysical() uint32 {
	return s.vidLowPage.Physical
}

// InstallVidmap installs the 1 GiB window over terminalVideoPage, the
// physical page backing the terminal the running process is on (§4.4
// vidmap, §4.1). Returns the virtual address the caller should report.
func (s *Space) InstallVidmap(terminalVideoPage uint32) uint32 {
	s.vidmap = Entry{Physical: terminalVideoPage, Present: true, User: true, Write: true}
	s.vidmapValid = true
	s.flushTLB()
	return VidmapVirtual
}

// VidmapInstalled reports whether vidmap() has been called for this space.
func (s *Space) VidmapInstalled() bool {
	return s.vidmapValid
}

func (s *Space) flushTLB() {
	s.flushes++
}

// Flushes exposes the flush counter for tests; production code never reads it.
func (s *Space) Flushes() int {
	return s.flushes
}

// InUserSpace reports whether a virtual address falls outside the static
// kernel identity mapping [4MiB, 8MiB) — the vidmap() argument-validation
// contract in §4.4 ("out_ptr lies in user space, not in kernel page").
func InUserSpace(addr uint32) bool {
	return addr < KernelBase || addr >= KernelBase+PageSize4M
}
