// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// An os.File backed implementation of ByteDevice.

package bleb

import (
	"io"
	"os"

	"github.com/cznic/mathutil"
)

// OSFile is an os.File-like minimal set of methods allowing a FileByteDevice
// to be built on top of anything that behaves like one (a real *os.File, a
// tempfile wrapper, etc.), mirroring lldb.OSFile.
type OSFile interface {
	io.Closer
	io.ReaderAt
	io.WriterAt
}

var _ ByteDevice = (*FileByteDevice)(nil)

// FileByteDevice is an OSFile backed ByteDevice. It caches the device size
// instead of stat-ing the file on every call, the way lldb.SimpleFileFiler
// does.
type FileByteDevice struct {
	f    OSFile
	size int64
}

// NewFileByteDevice wraps f, an already-open file of the given current
// size, as a ByteDevice.
func NewFileByteDevice(f OSFile, size int64) *FileByteDevice {
	return &FileByteDevice{f: f, size: size}
}

// OpenFileByteDevice opens (creating if allowCreate and the file does not
// exist) path and returns a FileByteDevice over it.
func OpenFileByteDevice(path string, allowCreate bool) (*FileByteDevice, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0666)
	if err != nil {
		if !os.IsNotExist(err) || !allowCreate {
			return nil, err
		}
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0666)
		if err != nil {
			return nil, err
		}
	}

	fi, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, err
	}

	return NewFileByteDevice(f, fi.Size()), nil
}

// Size implements ByteDevice.
func (d *FileByteDevice) Size() uint64 { return uint64(d.size) }

// Close implements ByteDevice.
func (d *FileByteDevice) Close() error { return d.f.Close() }

// ReadAt implements ByteDevice.
func (d *FileByteDevice) ReadAt(buf []byte, pos uint64) (n int, err error) {
	return d.f.ReadAt(buf, int64(pos))
}

// WriteAt implements ByteDevice.
func (d *FileByteDevice) WriteAt(buf []byte, pos uint64) (n int, err error) {
	n, err = d.f.WriteAt(buf, int64(pos))
	d.size = mathutil.MaxInt64(d.size, int64(pos)+int64(n))
	return
}

// ClearAt implements ByteDevice.
func (d *FileByteDevice) ClearAt(pos, count uint64) error {
	const chunkCap = 1 << 16
	var zeros [chunkCap]byte

	for count > 0 {
		n := uint64(len(zeros))
		if n > count {
			n = count
		}
		if _, err := d.WriteAt(zeros[:n], pos); err != nil {
			return &ErrWriteFailed{Off: int64(pos), Err: err}
		}
		pos += n
		count -= n
	}
	return nil
}
