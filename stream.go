// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bleb

import (
	"github.com/sirupsen/logrus"
)

// repositoryStream is a seekable byte-oriented view over a chain of spans,
// anchored by a streamDescriptor held at descrPos in descrIO (a
// streamDeviceAdapter over the directory's stream, when the descriptor
// sits inside a directory entry, or the device directly, for the content
// directory's own descriptor at offset 16).
type repositoryStream struct {
	alloc *spanAllocator
	dev   ByteDevice
	log   *logrus.Logger

	descrIO  ByteDevice
	descrPos uint64
	descr    streamDescriptor
	dirty    bool

	// initialLengthHint seeds the span sizing policy the first time this
	// stream allocates its first span.
	initialLengthHint uint64

	pos uint64

	haveCurrentSpan       bool
	firstSpan, currentSpan spanHeader
	currentSpanLocation    uint64
	currentSpanPosInStream uint64
	posInCurrentSpan       uint32
}

// openRepositoryStream attaches to an already-existing (possibly
// unallocated) stream anchored at descrPos.
func openRepositoryStream(alloc *spanAllocator, dev ByteDevice, log *logrus.Logger, descrIO ByteDevice, descrPos uint64) (*repositoryStream, error) {
	s := &repositoryStream{alloc: alloc, dev: dev, log: log, descrIO: descrIO, descrPos: descrPos}

	if err := retrieveStruct(descrIO, descrPos, streamDescriptorSize, s.descr.decode); err != nil {
		return nil, err
	}

	if s.descr.location != 0 {
		if err := retrieveStruct(dev, s.descr.location, spanHeaderSize, s.firstSpan.decode); err != nil {
			return nil, err
		}
		s.setCurrentSpan(s.firstSpan, s.descr.location, 0)
	}

	return s, nil
}

// createRepositoryStream creates a brand-new stream (length 0) anchored at
// descrPos, optionally pre-allocating a first span sized by reserveLength
// (a hint for the immediate write) and expectedSize (a hint for the
// stream's eventual total length).
func createRepositoryStream(alloc *spanAllocator, dev ByteDevice, log *logrus.Logger, descrIO ByteDevice, descrPos uint64, reserveLength uint32, expectedSize uint64) (*repositoryStream, error) {
	s := &repositoryStream{alloc: alloc, dev: dev, log: log, descrIO: descrIO, descrPos: descrPos, dirty: true}

	var firstSpanLocation uint64
	if reserveLength > 0 {
		loc, hdr, err := alloc.allocate(expectedSize, uint64(reserveLength))
		if err != nil {
			return nil, err
		}
		firstSpanLocation = loc
		s.firstSpan = hdr
	}

	s.descr = streamDescriptor{location: firstSpanLocation, length: 0}

	if firstSpanLocation != 0 {
		s.setCurrentSpan(s.firstSpan, firstSpanLocation, 0)
	}

	return s, nil
}

// size returns the stream's logical length.
func (s *repositoryStream) size() uint64 { return s.descr.length }

// setLength sets the stream's logical length directly. Per spec.md §4.2,
// shrinking does not release any spans; invariant I3 is then relaxed to
// sum(usedLength) >= descriptor.length, per spec.md's Open Questions.
func (s *repositoryStream) setLength(length uint64) {
	s.descr.length = length
	s.dirty = true
}

// setCurrentSpan updates the cached "current span" state.
func (s *repositoryStream) setCurrentSpan(span spanHeader, location, posInStream uint64) {
	s.currentSpan = span
	s.currentSpanLocation = location
	s.currentSpanPosInStream = posInStream
	s.posInCurrentSpan = 0
	s.haveCurrentSpan = true
}

// setPos records the logical position; if pos falls outside the cached
// current span, the cache is invalidated and the next read/write reseeks.
func (s *repositoryStream) setPos(pos uint64) {
	if s.pos == pos {
		return
	}
	s.pos = pos

	if s.haveCurrentSpan && pos >= s.currentSpanPosInStream && pos < s.currentSpanPosInStream+uint64(s.currentSpan.reservedLength) {
		s.posInCurrentSpan = uint32(pos - s.currentSpanPosInStream)
	} else {
		s.haveCurrentSpan = false
	}
}

// gotoRightSpan walks the chain from the first span until pos falls
// within the current span.
func (s *repositoryStream) gotoRightSpan() error {
	if s.descr.location == 0 {
		return &ErrUnexpectedEOF{Pos: int64(s.pos)}
	}

	if s.pos > s.descr.length {
		return &ErrUnexpectedEOF{Pos: int64(s.pos)}
	}

	s.setCurrentSpan(s.firstSpan, s.descr.location, 0)

	for s.pos != s.currentSpanPosInStream {
		if s.currentSpanPosInStream > s.descr.length {
			return &ErrCorruption{Hint: "span position beyond stream length", Off: int64(s.currentSpanLocation)}
		}

		if s.pos <= s.currentSpanPosInStream+uint64(s.currentSpan.reservedLength) {
			s.posInCurrentSpan = uint32(s.pos - s.currentSpanPosInStream)
			break
		}

		nextLoc := s.currentSpan.nextSpanLocation
		if nextLoc == 0 {
			return &ErrUnexpectedEOF{Pos: int64(s.pos)}
		}

		var next spanHeader
		if err := retrieveStruct(s.dev, nextLoc, spanHeaderSize, next.decode); err != nil {
			return err
		}

		s.setCurrentSpan(next, nextLoc, s.currentSpanPosInStream+uint64(s.currentSpan.reservedLength))
	}

	return nil
}

// read copies up to len(buf) bytes starting at the stream's current
// position and returns the number of bytes actually read.
func (s *repositoryStream) read(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	readTotal := 0

	if !s.haveCurrentSpan {
		if err := s.gotoRightSpan(); err != nil {
			return 0, err
		}
	}

	for len(buf) > 0 {
		remainingInSpan := uint64(s.currentSpan.reservedLength) - uint64(s.posInCurrentSpan)

		if remainingInSpan > 0 {
			if s.currentSpan.nextSpanLocation != 0 && s.currentSpan.usedLength < s.currentSpan.reservedLength {
				return readTotal, &ErrCorruption{Hint: "span not fully utilized", Off: int64(s.currentSpanLocation)}
			}

			n := uint64(len(buf))
			if n > remainingInSpan {
				n = remainingInSpan
			}

			got, err := s.dev.ReadAt(buf[:n], s.currentSpanLocation+spanHeaderSize+uint64(s.posInCurrentSpan))
			if uint64(got) != n {
				return readTotal, &ErrReadFailed{Off: int64(s.currentSpanLocation + spanHeaderSize + uint64(s.posInCurrentSpan)), Err: err}
			}

			s.posInCurrentSpan += uint32(n)
			s.pos += n
			readTotal += int(n)

			buf = buf[n:]
		}

		if len(buf) > 0 {
			nextLoc := s.currentSpan.nextSpanLocation
			if nextLoc == 0 {
				return readTotal, &ErrUnexpectedEOF{Pos: int64(s.pos)}
			}

			var next spanHeader
			if err := retrieveStruct(s.dev, nextLoc, spanHeaderSize, next.decode); err != nil {
				return readTotal, err
			}

			s.setCurrentSpan(next, nextLoc, s.currentSpanPosInStream+uint64(s.currentSpan.reservedLength))
		}
	}

	return readTotal, nil
}

// write copies up to len(buf) bytes to the stream's current position,
// allocating new spans as needed, and returns the number of bytes
// actually written.
func (s *repositoryStream) write(buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}

	writtenTotal := 0

	if !s.haveCurrentSpan {
		if s.descr.location == 0 {
			loc, hdr, err := s.alloc.allocate(s.initialLengthHint, uint64(len(buf)))
			if err != nil {
				return 0, err
			}
			s.firstSpan = hdr
			s.setCurrentSpan(hdr, loc, 0)
			s.descr.location = loc
			s.dirty = true
		} else {
			if err := s.gotoRightSpan(); err != nil {
				return 0, err
			}
		}
	}

	for len(buf) > 0 {
		remainingInSpan := uint64(s.currentSpan.reservedLength) - uint64(s.posInCurrentSpan)

		if remainingInSpan > 0 {
			n := uint64(len(buf))
			if n > remainingInSpan {
				n = remainingInSpan
			}

			got, err := s.dev.WriteAt(buf[:n], s.currentSpanLocation+spanHeaderSize+uint64(s.posInCurrentSpan))
			if uint64(got) != n {
				return writtenTotal, &ErrWriteFailed{Off: int64(s.currentSpanLocation + spanHeaderSize + uint64(s.posInCurrentSpan)), Err: err}
			}

			s.posInCurrentSpan += uint32(n)
			s.pos += n
			writtenTotal += int(n)

			if s.pos > s.descr.length {
				s.descr.length = s.pos
				s.dirty = true
			}

			buf = buf[n:]

			if s.posInCurrentSpan > s.currentSpan.usedLength {
				s.currentSpan.usedLength = s.posInCurrentSpan
			}
			if err := storeStruct(s.dev, s.currentSpanLocation, spanHeaderSize, s.currentSpan.encode); err != nil {
				return writtenTotal, err
			}

			if s.currentSpanPosInStream == 0 {
				s.firstSpan = s.currentSpan
			}
		}

		if len(buf) > 0 {
			nextLoc := s.currentSpan.nextSpanLocation
			var next spanHeader

			if nextLoc != 0 {
				if err := retrieveStruct(s.dev, nextLoc, spanHeaderSize, next.decode); err != nil {
					return writtenTotal, err
				}
			} else {
				loc, hdr, err := s.alloc.allocate(s.descr.length, uint64(len(buf)))
				if err != nil {
					return writtenTotal, err
				}

				nextLoc = loc
				next = hdr

				s.currentSpan.nextSpanLocation = nextLoc
				if err := storeStruct(s.dev, s.currentSpanLocation, spanHeaderSize, s.currentSpan.encode); err != nil {
					return writtenTotal, err
				}

				if s.currentSpanPosInStream == 0 {
					s.firstSpan = s.currentSpan
				}
			}

			s.setCurrentSpan(next, nextLoc, s.currentSpanPosInStream+uint64(s.currentSpan.reservedLength))
		}
	}

	return writtenTotal, nil
}

// clearAt writes count zero bytes starting at pos, exactly as
// repository_stream.cpp does: a loop of single-byte writes through write().
func (s *repositoryStream) clearAt(pos, count uint64) error {
	s.setPos(pos)

	var zero [1]byte
	for count > 0 {
		n, err := s.write(zero[:])
		if n != 1 {
			return err
		}
		count--
	}
	return nil
}

// getBytesAt reads count bytes at pos, satisfying it fully or returning an
// error.
func (s *repositoryStream) getBytesAt(pos uint64, buf []byte) error {
	s.setPos(pos)
	n, err := s.read(buf)
	if n != len(buf) {
		if err == nil {
			err = &ErrUnexpectedEOF{Pos: int64(pos)}
		}
		return err
	}
	return nil
}

// setBytesAt writes buf at pos, satisfying it fully or returning an error.
func (s *repositoryStream) setBytesAt(pos uint64, buf []byte) error {
	s.setPos(pos)
	n, err := s.write(buf)
	if n != len(buf) {
		if err == nil {
			err = &ErrWriteFailed{Off: int64(pos)}
		}
		return err
	}
	return nil
}

// flush persists the stream descriptor if it is dirty. Go has no
// destructors, so callers must call flush (directly, or via Close)
// instead of relying on scope exit the way the C++ RepositoryStream does.
func (s *repositoryStream) flush() error {
	if !s.dirty {
		return nil
	}
	if err := storeStruct(s.descrIO, s.descrPos, streamDescriptorSize, s.descr.encode); err != nil {
		return err
	}
	s.dirty = false
	return nil
}

// Close flushes the stream's descriptor. It implements io.Closer so that
// user-opened object streams (Repository.OpenStream) can be used with
// `defer stream.Close()`.
func (s *repositoryStream) Close() error {
	return s.flush()
}

// retrieveStreamStruct reads a fixed-size struct from a repositoryStream at
// pos, mirroring retrieveStruct's role for a plain ByteDevice.
func retrieveStreamStruct(s *repositoryStream, pos uint64, size int, decode func([]byte)) error {
	buf := make([]byte, size)
	if err := s.getBytesAt(pos, buf); err != nil {
		return err
	}
	decode(buf)
	return nil
}

// storeStreamStruct serializes and writes a fixed-size struct to a
// repositoryStream at pos.
func storeStreamStruct(s *repositoryStream, pos uint64, size int, encode func([]byte)) error {
	buf := make([]byte, size)
	encode(buf)
	return s.setBytesAt(pos, buf)
}

// streamDeviceAdapter presents a repositoryStream as a ByteDevice, so that a
// stream descriptor living inside a directory entry (itself stored in the
// directory's own backing stream, not the raw repository device) can be
// opened with openRepositoryStream/createRepositoryStream, which both take
// their descrIO as a ByteDevice.
type streamDeviceAdapter struct {
	s *repositoryStream
}

var _ ByteDevice = streamDeviceAdapter{}

func (a streamDeviceAdapter) Size() uint64 { return a.s.size() }

func (a streamDeviceAdapter) ReadAt(buf []byte, pos uint64) (int, error) {
	if err := a.s.getBytesAt(pos, buf); err != nil {
		return 0, err
	}
	return len(buf), nil
}

func (a streamDeviceAdapter) WriteAt(buf []byte, pos uint64) (int, error) {
	if err := a.s.setBytesAt(pos, buf); err != nil {
		return 0, err
	}
	return len(buf), nil
}

func (a streamDeviceAdapter) ClearAt(pos, count uint64) error {
	return a.s.clearAt(pos, count)
}

func (a streamDeviceAdapter) Close() error { return nil }
