/*
   Read-only on-disk file-system image parser and lookup.

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

// Package fsimage parses and serves the kernel's read-only on-disk file
// system image: a boot block, a flat array of inodes, and 4 KiB data
// blocks, exactly as laid out in §3 and §6.
package fsimage

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	blockSize     = 4096
	maxDentries   = 63
	dentrySize    = 64
	nameFieldSize = 32
	maxDataBlocks = 1023
)

// File types a dentry can name (§3).
const (
	TypeRTC       = 0
	TypeDirectory = 1
	TypeRegular   = 2
)

var (
	// ErrNotFound is returned by LookupByName for an unknown filename.
	ErrNotFound = errors.New("fsimage: no such file")
	// ErrOutOfRange is returned by LookupByIndex beyond the dentry count.
	ErrOutOfRange = errors.New("fsimage: dentry index out of range")
	// ErrInvalidInode flags reads of an inode number the boot block
	// never vouched for.
	ErrInvalidInode = errors.New("fsimage: invalid inode")
	// ErrReadOnly is returned by any attempted write.
	ErrReadOnly = errors.New("fsimage: file system image is read-only")
)

// Dentry is one directory entry (§3): a name up to 32 bytes (not
// NUL-terminated at exactly 32), a file type, and an inode index.
type Dentry struct {
	Name  string
	Type  int
	Inode int
}

// Image is a parsed, read-only file system image held entirely in memory.
type Image struct {
	dentries   []Dentry
	inodeCount int
	inodes     [][]uint32 // inodes[i][0] = length in bytes, rest = block indices
	data       [][blockSize]byte
}

// Load parses a raw file system image per the §6 on-disk layout:
// block 0 is the boot block (3 counts + 52 reserved bytes + up to 63
// 64-byte dentries), followed by inodeCount inode blocks, followed by
// dataCount 4 KiB data blocks.
func Load(raw []byte) (*Image, error) {
	if len(raw) < blockSize {
		return nil, fmt.Errorf("fsimage: image shorter than one block (%d bytes)", len(raw))
	}

	dirCount := binary.LittleEndian.Uint32(raw[0:4])
	inodeCount := binary.LittleEndian.Uint32(raw[4:8])
	dataCount := binary.LittleEndian.Uint32(raw[8:12])

	if dirCount > maxDentries {
		return nil, fmt.Errorf("fsimage: boot block claims %d dentries, max %d", dirCount, maxDentries)
	}

	img := &Image{inodeCount: int(inodeCount)}

	boot := raw[64:blockSize]
	for i := uint32(0); i < dirCount; i++ {
		off := i * dentrySize
		raw := boot[off : off+dentrySize]
		name := trimName(raw[0:nameFieldSize])
		typ := int(raw[nameFieldSize])
		inode := int(binary.LittleEndian.Uint32(raw[nameFieldSize+4 : nameFieldSize+8]))
		img.dentries = append(img.dentries, Dentry{Name: name, Type: typ, Inode: inode})
	}

	want := blockSize * (1 + int(inodeCount) + int(dataCount))
	if len(raw) < want {
		return nil, fmt.Errorf("fsimage: image truncated, want %d bytes have %d", want, len(raw))
	}

	for i := uint32(0); i < inodeCount; i++ {
		blk := raw[blockSize*(1+int(i)) : blockSize*(2+int(i))]
		words := make([]uint32, 1+maxDataBlocks)
		for w := range words {
			words[w] = binary.LittleEndian.Uint32(blk[w*4 : w*4+4])
		}
		img.inodes = append(img.inodes, words)
	}

	base := blockSize * (1 + int(inodeCount))
	for i := uint32(0); i < dataCount; i++ {
		var blk [blockSize]byte
		copy(blk[:], raw[base+int(i)*blockSize:base+int(i+1)*blockSize])
		img.data = append(img.data, blk)
	}

	return img, nil
}

func trimName(b []byte) string {
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return string(b[:n])
}

// LookupByName scans the boot-block dentries for an exact filename match
// (§4.2). Empty names and names longer than 32 bytes always fail.
func (img *Image) LookupByName(name string) (Dentry, error) {
	if name == "" || len(name) > nameFieldSize {
		return Dentry{}, ErrNotFound
	}
	for _, d := range img.dentries {
		if d.Name == name {
			return d, nil
		}
	}
	return Dentry{}, ErrNotFound
}

// LookupByIndex returns the i-th dentry, bounded by the directory count
// (§4.2). Used by the directory file-ops read to enumerate one name per call.
func (img *Image) LookupByIndex(i int) (Dentry, error) {
	if i < 0 || i >= len(img.dentries) {
		return Dentry{}, ErrOutOfRange
	}
	return img.dentries[i], nil
}

// DentryCount returns how many directory entries the boot block holds.
func (img *Image) DentryCount() int {
	return len(img.dentries)
}

// InodeLength returns the byte length recorded for the given inode.
func (img *Image) InodeLength(inode int) (int, error) {
	if inode < 0 || inode >= img.inodeCount {
		return 0, ErrInvalidInode
	}
	return int(img.inodes[inode][0]), nil
}

// ReadInode copies bytes from inode's data blocks starting at offset into
// buf, stopping at len(buf) or the inode's length, whichever comes first
// (§4.2). Returns the number of bytes copied, 0 at EOF, -1 on invalid inode.
func (img *Image) ReadInode(inode int, offset int, buf []byte) int {
	if inode < 0 || inode >= img.inodeCount {
		return -1
	}
	words := img.inodes[inode]
	length := int(words[0])
	if offset >= length {
		return 0
	}

	n := len(buf)
	if offset+n > length {
		n = length - offset
	}

	copied := 0
	for copied < n {
		blockNum := (offset + copied) / blockSize
		blockOff := (offset + copied) % blockSize
		if blockNum >= maxDataBlocks {
			break
		}
		dataIdx := int(words[1+blockNum])
		if dataIdx < 0 || dataIdx >= len(img.data) {
			break
		}
		avail := blockSize - blockOff
		remain := n - copied
		take := avail
		if remain < take {
			take = remain
		}
		copy(buf[copied:copied+take], img.data[dataIdx][blockOff:blockOff+take])
		copied += take
	}
	return copied
}

// WriteInode always fails: the image is read-only (§4.2).
func (img *Image) WriteInode(int, int, []byte) error {
	return ErrReadOnly
}
