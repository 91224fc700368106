/*
   Per-process file-descriptor table and polymorphic file operations.

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

// Package fd implements the per-process file-descriptor table and the
// polymorphic file operations backing each descriptor (§3, §4.3).
package fd

import (
	"errors"

	"github.com/kernellab/pmk/internal/fsimage"
	"github.com/kernellab/pmk/internal/rtc"
	"github.com/kernellab/pmk/internal/terminal"
)

// Kind tags which file operations a descriptor dispatches through — the
// tagged-variant re-expression of the source's function-pointer vectors
// (§9 "Polymorphic fops").
type Kind int

const (
	KindFree Kind = iota
	KindRegular
	KindDirectory
	KindRTC
	KindTerminal
)

const (
	// Count is the number of descriptor slots per process (§3: 8).
	Count = 8
	// StdinFD and StdoutFD are pre-bound at execute time (§3, §4.3).
	StdinFD  = 0
	StdoutFD = 1
)

var (
	ErrBadFD     = errors.New("fd: descriptor out of range or not open")
	ErrInUse     = errors.New("fd: descriptor already in use")
	ErrTableFull = errors.New("fd: descriptor table full")
	ErrUnknown   = errors.New("fd: unknown file name")
	ErrWriteOnly = errors.New("fd: write not permitted on this descriptor")
	ErrReadOnly  = errors.New("fd: read not permitted on this descriptor")
)

// Descriptor is one file-descriptor slot: the ops vector tag plus whatever
// fields that kind of file needs (§3).
type Descriptor struct {
	kind  Kind
	inode int
	pos   int

	fs   *fsimage.Image
	rtc  *rtc.Device
	term *terminal.Terminal
}

// InUse reports whether this slot currently holds an open file.
func (d *Descriptor) InUse() bool { return d.kind != KindFree }

// Position returns the descriptor's file position (bytes consumed).
func (d *Descriptor) Position() int { return d.pos }

// Table is the fixed 8-entry descriptor table carried in each PCB (§3).
type Table struct {
	descs [Count]Descriptor
	fs    *fsimage.Image
	rtc   *rtc.Device
}

// NewTable returns an empty table bound to the file system image and RTC
// device it will serve opens against.
func NewTable(fs *fsimage.Image, rtcDev *rtc.Device) *Table {
	return &Table{fs: fs, rtc: rtcDev}
}

// InstallStdio binds fd 0 (stdin) and fd 1 (stdout) to term, as execute
// does before entering the new program (§4.3, §4.4).
func (t *Table) InstallStdio(term *terminal.Terminal) {
	t.descs[StdinFD] = Descriptor{kind: KindTerminal, term: term}
	t.descs[StdoutFD] = Descriptor{kind: KindTerminal, term: term}
}

// Open resolves name against the file system, selects file ops by dentry
// type, and installs the result into the first free slot in [2,7] (§4.3).
func (t *Table) Open(name string) (int, error) {
	slot := -1
	for i := 2; i < Count; i++ {
		if !t.descs[i].InUse() {
			slot = i
			break
		}
	}
	if slot == -1 {
		return -1, ErrTableFull
	}

	if name == "rtc" {
		t.rtc.ResetRate()
		t.descs[slot] = Descriptor{kind: KindRTC, rtc: t.rtc}
		return slot, nil
	}

	dentry, err := t.fs.LookupByName(name)
	if err != nil {
		return -1, ErrUnknown
	}

	switch dentry.Type {
	case fsimage.TypeDirectory:
		t.descs[slot] = Descriptor{kind: KindDirectory, fs: t.fs}
	case fsimage.TypeRegular:
		t.descs[slot] = Descriptor{kind: KindRegular, fs: t.fs, inode: dentry.Inode}
	case fsimage.TypeRTC:
		t.rtc.ResetRate()
		t.descs[slot] = Descriptor{kind: KindRTC, rtc: t.rtc}
	default:
		return -1, ErrUnknown
	}
	return slot, nil
}

// Close frees fd. Refuses fd 0, fd 1, out-of-range, or an already-free
// slot (§4.3).
func (t *Table) Close(fdNum int) error {
	if fdNum == StdinFD || fdNum == StdoutFD {
		return ErrBadFD
	}
	if fdNum < 0 || fdNum >= Count || !t.descs[fdNum].InUse() {
		return ErrBadFD
	}
	t.descs[fdNum] = Descriptor{}
	return nil
}

// CloseAll frees descriptors 2..7, as halt does (§4.3, §4.4). fd 0/1 are
// left bound; they are discarded along with the PCB.
func (t *Table) CloseAll() {
	for i := 2; i < Count; i++ {
		t.descs[i] = Descriptor{}
	}
}

// HasRTCOpen reports whether any slot in the table currently holds an open
// RTC descriptor, the Go-native expression of the source's per-PCB
// rtc_flag (set by open() when the dentry resolves to the RTC device).
func (t *Table) HasRTCOpen() bool {
	for i := range t.descs {
		if t.descs[i].kind == KindRTC {
			return true
		}
	}
	return false
}

// Read dispatches to fd's read operation and, for regular files, advances
// the file position by the bytes returned (§4.4 read()).
func (t *Table) Read(fdNum int, buf []byte) (int, error) {
	d, err := t.lookup(fdNum)
	if err != nil {
		return -1, err
	}
	if fdNum == StdoutFD {
		return -1, ErrWriteOnly
	}

	switch d.kind {
	case KindTerminal:
		return d.term.Read(buf), nil
	case KindRTC:
		d.rtc.Wait()
		return 0, nil
	case KindRegular:
		n := d.fs.ReadInode(d.inode, d.pos, buf)
		if n < 0 {
			return -1, errors.New("fd: invalid inode")
		}
		d.pos += n
		return n, nil
	case KindDirectory:
		dentry, err := d.fs.LookupByIndex(d.pos)
		if err != nil {
			return 0, nil
		}
		n := copy(buf, dentry.Name)
		d.pos++
		return n, nil
	default:
		return -1, ErrBadFD
	}
}

// Write dispatches to fd's write operation (§4.4 write()).
func (t *Table) Write(fdNum int, buf []byte) (int, error) {
	d, err := t.lookup(fdNum)
	if err != nil {
		return -1, err
	}
	if fdNum == StdinFD {
		return -1, ErrReadOnly
	}

	switch d.kind {
	case KindTerminal:
		return d.term.Write(buf), nil
	case KindRTC:
		if len(buf) < 4 {
			return -1, errors.New("fd: rtc write needs a 4-byte rate")
		}
		hz := int(buf[0]) | int(buf[1])<<8 | int(buf[2])<<16 | int(buf[3])<<24
		if err := d.rtc.SetRate(hz); err != nil {
			return -1, err
		}
		return 4, nil
	case KindRegular, KindDirectory:
		return -1, t.fs.WriteInode(d.inode, d.pos, buf)
	default:
		return -1, ErrBadFD
	}
}

func (t *Table) lookup(fdNum int) (*Descriptor, error) {
	if fdNum < 0 || fdNum >= Count || !t.descs[fdNum].InUse() {
		return nil, ErrBadFD
	}
	return &t.descs[fdNum], nil
}
