// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bleb

import "io"

// Stream is a seekable byte stream over an object's payload, returned by
// Repository.OpenStream. It implements io.ReadWriteSeeker and io.Closer;
// callers must Close a Stream to flush its descriptor back to the
// directory, the way lldb.Filer implementations must be Closed to release
// their resources.
type Stream struct {
	s *repositoryStream
}

var (
	_ io.ReadWriteSeeker = (*Stream)(nil)
	_ io.Closer          = (*Stream)(nil)
)

// Size reports the stream's current logical length.
func (st *Stream) Size() uint64 { return st.s.size() }

// SetLength truncates or extends the stream's logical length without
// touching its bytes. Shrinking does not release any spans (spec.md
// §4.2/§9).
func (st *Stream) SetLength(length uint64) { st.s.setLength(length) }

// Read implements io.Reader, reading from the stream's current position.
func (st *Stream) Read(p []byte) (int, error) {
	n, err := st.s.read(p)
	if n < len(p) && err == nil {
		err = io.EOF
	}
	return n, err
}

// Write implements io.Writer, writing at the stream's current position.
func (st *Stream) Write(p []byte) (int, error) {
	return st.s.write(p)
}

// Seek implements io.Seeker.
func (st *Stream) Seek(offset int64, whence int) (int64, error) {
	var target int64

	switch whence {
	case io.SeekStart:
		target = offset
	case io.SeekCurrent:
		target = int64(st.s.pos) + offset
	case io.SeekEnd:
		target = int64(st.s.size()) + offset
	default:
		return 0, &ErrInternal{Msg: "invalid whence"}
	}

	if target < 0 {
		return 0, &ErrInternal{Msg: "negative seek position"}
	}

	st.s.setPos(uint64(target))
	return target, nil
}

// Close flushes the stream's descriptor back to its directory entry.
func (st *Stream) Close() error {
	return st.s.Close()
}
