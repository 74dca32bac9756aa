// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bleb

// A ByteDevice is a []byte-like model of a random-access store: a file,
// an in-memory buffer, or any equivalent. In contrast to a file stream, a
// ByteDevice is not sequentially accessible; ReadAt and WriteAt are always
// addressed by an absolute offset.
//
// A ByteDevice is not safe for concurrent access. It's designed for
// consumption by the rest of this package, which uses a ByteDevice from
// one goroutine only (or serialized by the caller via a mutex).
type ByteDevice interface {
	// Size reports the current size of the device in bytes.
	Size() uint64

	// ReadAt reads len(buf) bytes starting at pos. It returns the number
	// of bytes actually read and a non-nil error if fewer than len(buf)
	// bytes could be read (including at end of device).
	ReadAt(buf []byte, pos uint64) (n int, err error)

	// WriteAt writes len(buf) bytes starting at pos, extending the
	// device if pos+len(buf) exceeds its current size (subject to the
	// implementation's own capacity limits).
	WriteAt(buf []byte, pos uint64) (n int, err error)

	// ClearAt writes count zero bytes starting at pos.
	ClearAt(pos, count uint64) error

	// Close releases any resources held by the device.
	Close() error
}

// retrieveStruct reads a fixed-size, little-endian encoded struct from dev
// at pos using decode.
func retrieveStruct(dev ByteDevice, pos uint64, size int, decode func([]byte)) error {
	buf := make([]byte, size)
	n, err := dev.ReadAt(buf, pos)
	if n != size {
		return &ErrReadFailed{Off: int64(pos), Err: err}
	}
	decode(buf)
	return nil
}

// storeStruct serializes a fixed-size struct via encode and writes it to
// dev at pos.
func storeStruct(dev ByteDevice, pos uint64, size int, encode func([]byte)) error {
	buf := make([]byte, size)
	encode(buf)
	n, err := dev.WriteAt(buf, pos)
	if n != size {
		return &ErrWriteFailed{Off: int64(pos), Err: err}
	}
	return nil
}
