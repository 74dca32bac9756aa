// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// A memory-only implementation of ByteDevice.

package bleb

import (
	"bytes"
	"io"

	"github.com/cznic/mathutil"
)

const (
	memPageBits = 12
	memPageSize = 1 << memPageBits
	memPageMask = memPageSize - 1
)

var zeroMemPage [memPageSize]byte

var _ ByteDevice = (*MemByteDevice)(nil)

// MemByteDevice is a memory-backed ByteDevice, organized in sparse,
// zero-filled pages the way lldb.MemFiler is. It can optionally cap its
// growth: when capacity is non-zero and allowExpansion is false, writes
// that would grow the device past capacity fail instead of growing it,
// reproducing the original bleb test harness's VectorByteIO semantics
// (include/bleb/byteio_vector.hpp).
type MemByteDevice struct {
	pages    map[int64]*[memPageSize]byte
	size     int64
	capacity int64
	expand   bool
}

// NewMemByteDevice returns an unbounded, freely growing MemByteDevice.
func NewMemByteDevice() *MemByteDevice {
	return &MemByteDevice{pages: map[int64]*[memPageSize]byte{}, expand: true}
}

// NewBoundedMemByteDevice returns a MemByteDevice whose size is capped at
// capacity bytes unless allowExpansion is set.
func NewBoundedMemByteDevice(capacity int64, allowExpansion bool) *MemByteDevice {
	return &MemByteDevice{pages: map[int64]*[memPageSize]byte{}, capacity: capacity, expand: allowExpansion}
}

// Size implements ByteDevice.
func (d *MemByteDevice) Size() uint64 { return uint64(d.size) }

// Close implements ByteDevice.
func (d *MemByteDevice) Close() error { return nil }

// ReadAt implements ByteDevice.
func (d *MemByteDevice) ReadAt(buf []byte, pos uint64) (n int, err error) {
	off := int64(pos)
	avail := d.size - off
	if avail < 0 {
		avail = 0
	}

	pgI := off >> memPageBits
	pgO := int(off & memPageMask)
	rem := len(buf)
	if int64(rem) > avail {
		rem = int(avail)
		err = io.EOF
	}

	for rem != 0 {
		pg := d.pages[pgI]
		if pg == nil {
			pg = &zeroMemPage
		}
		nc := copy(buf[:mathutil.Min(rem, memPageSize-pgO)], pg[pgO:])
		pgI++
		pgO = 0
		rem -= nc
		n += nc
		buf = buf[nc:]
	}
	return
}

// WriteAt implements ByteDevice.
func (d *MemByteDevice) WriteAt(buf []byte, pos uint64) (n int, err error) {
	off := int64(pos)
	end := off + int64(len(buf))

	if d.capacity != 0 && end > d.capacity && !d.expand {
		return 0, &ErrWriteFailed{Off: int64(pos), Err: io.ErrShortWrite}
	}

	pgI := off >> memPageBits
	pgO := int(off & memPageMask)
	n = len(buf)
	rem := n

	for rem != 0 {
		chunk := mathutil.Min(rem, memPageSize-pgO)
		if pgO == 0 && rem >= memPageSize && bytes.Equal(buf[:memPageSize], zeroMemPage[:]) {
			delete(d.pages, pgI)
			chunk = memPageSize
		} else {
			pg := d.pages[pgI]
			if pg == nil {
				pg = new([memPageSize]byte)
				d.pages[pgI] = pg
			}
			copy(pg[pgO:pgO+chunk], buf[:chunk])
		}
		pgI++
		pgO = 0
		rem -= chunk
		buf = buf[chunk:]
	}

	if end > d.size {
		d.size = end
	}
	return
}

// ClearAt implements ByteDevice.
func (d *MemByteDevice) ClearAt(pos, count uint64) error {
	if count == 0 {
		return nil
	}
	const chunkCap = 1 << 20
	zeros := make([]byte, mathutil.MinInt64(int64(count), chunkCap))
	for count > 0 {
		n := uint64(len(zeros))
		if n > count {
			n = count
		}
		if _, err := d.WriteAt(zeros[:n], pos); err != nil {
			return err
		}
		pos += n
		count -= n
	}
	return nil
}
