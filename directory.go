// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bleb

import (
	"github.com/sirupsen/logrus"
)

// SetContentsOptions controls how Repository.SetObjectContents stores a
// new payload.
type SetContentsOptions struct {
	// PreferInlinePayload requests inline storage (payload bytes stored
	// directly in the directory entry) when the entry would still fit
	// under the 15-bit entry length limit. Otherwise, and whenever the
	// payload is too big to inline, a stream-descriptor-backed entry is
	// used instead.
	PreferInlinePayload bool
}

// StreamMode controls Repository.OpenStream's behavior when an object
// does or does not already exist.
type StreamMode int

const (
	// StreamOpenExisting requires the object to already exist.
	StreamOpenExisting StreamMode = 0
	// StreamCreate creates the object if it does not already exist.
	StreamCreate StreamMode = 1 << 0
	// StreamTruncate resets the stream's length to 0 before returning it.
	StreamTruncate StreamMode = 1 << 1
)

// repositoryDirectory maps object names to entries packed into a single
// backing repositoryStream (spec.md §4.3).
type repositoryDirectory struct {
	repo   *Repository
	stream *repositoryStream
	log    *logrus.Logger
}

func newRepositoryDirectory(repo *Repository, stream *repositoryStream) *repositoryDirectory {
	return &repositoryDirectory{repo: repo, stream: stream, log: repo.log}
}

// findResult is the outcome of findObjectByName.
type findResult struct {
	found   bool
	pos     uint64
	header  objectEntryPrologueHeader
	newPos  uint64 // valid only when newEntrySize != 0 was requested
}

// findObjectByName walks the directory stream from offset 0 looking for an
// entry named name. If newEntrySize is non-zero, it additionally tracks
// the smallest invalidated entry at least newEntrySize bytes long as a
// reuse candidate, falling back to the end of the directory stream if none
// is found.
func (d *repositoryDirectory) findObjectByName(name string, newEntrySize uint16) (findResult, error) {
	nameBytes := []byte(name)

	var pickedSize uint32 = 1<<32 - 1
	haveCandidate := false
	var candidatePos uint64

	var pos uint64
	size := d.stream.size()

	for pos < size {
		var h objectEntryPrologueHeader
		if err := retrieveStreamStruct(d.stream, pos, objectEntryPrologueHeaderSize, h.decode); err != nil {
			return findResult{}, err
		}

		paddedLen := align16(h.byteLength())

		if h.isInvalidated() {
			if newEntrySize != 0 {
				unmasked := uint32(h.byteLength())
				if unmasked >= uint32(newEntrySize) && unmasked < pickedSize {
					pickedSize = unmasked
					candidatePos = pos
					haveCandidate = true
				}
			}
		} else {
			if h.byteLength() < 6 {
				return findResult{}, &ErrCorruption{Hint: "entry with invalid length (length < 6)", Off: int64(pos)}
			}

			if int(h.nameLength) == len(nameBytes) {
				nameBuf := make([]byte, h.nameLength)
				if err := d.stream.getBytesAt(pos+objectEntryPrologueHeaderSize, nameBuf); err != nil {
					return findResult{}, err
				}

				if string(nameBuf) == name {
					return findResult{found: true, pos: pos, header: h}, nil
				}
			}
		}

		pos += uint64(paddedLen)
	}

	r := findResult{found: false}
	if newEntrySize != 0 {
		if haveCandidate {
			r.newPos = candidatePos
		} else {
			r.newPos = pos
		}
	}
	return r, nil
}

// getObjectContents retrieves an object's payload in full. A missing
// object is reported as (nil, nil) per spec.md §7's "user-visible
// behaviour": only actual I/O failures return an error.
func (d *repositoryDirectory) getObjectContents(name string) ([]byte, error) {
	r, err := d.findObjectByName(name, 0)
	if err != nil {
		return nil, err
	}
	if !r.found {
		return nil, nil
	}

	offset := uint64(objectEntryPrologueHeaderSize) + uint64(r.header.nameLength)

	switch {
	case r.header.flags&objFlagHasStreamDescr != 0:
		objStream, err := openRepositoryStream(d.repo.alloc, d.repo.dev, d.log, streamDeviceAdapter{d.stream}, r.pos+offset)
		if err != nil {
			return nil, err
		}

		if objStream.size() > maxInt {
			return nil, &ErrNotEnoughMemory{Length: objStream.size()}
		}

		buf := make([]byte, objStream.size())
		if _, err := objStream.read(buf); err != nil {
			return nil, err
		}
		return buf, nil

	case r.header.flags&objFlagHasInlinePayload != 0:
		length := uint64(r.header.byteLength()) - offset
		buf := make([]byte, length)
		if err := d.stream.getBytesAt(r.pos+offset, buf); err != nil {
			return nil, err
		}
		return buf, nil

	default:
		return nil, &ErrCorruption{Hint: "object doesn't have any kind of payload", Off: int64(r.pos)}
	}
}

// setObjectContents stores contents under name, overwriting any existing
// entry (reusing its stream if it has one, reusing or invalidating its
// directory slot otherwise).
func (d *repositoryDirectory) setObjectContents(name string, contents []byte, opts SetContentsOptions, objectFlags uint16) error {
	nameBytes := []byte(name)
	prologueLen := objectEntryPrologueLength(len(nameBytes))

	useInline := false
	if opts.PreferInlinePayload && uint32(prologueLen)+uint32(len(contents)) < entryLengthMask {
		useInline = true
	}

	var entryLen uint16
	if useInline {
		objectFlags |= objFlagHasInlinePayload
		entryLen = prologueLen + uint16(len(contents))
	} else {
		objectFlags |= objFlagHasStreamDescr
		entryLen = prologueLen + streamDescriptorSize
	}

	r, err := d.findObjectByName(name, entryLen)
	if err != nil {
		return err
	}

	entryPos := r.newPos

	if r.found {
		entryPos = r.pos

		if r.header.flags&objFlagHasStreamDescr != 0 {
			offset := uint64(objectEntryPrologueHeaderSize) + uint64(r.header.nameLength)

			objStream, err := openRepositoryStream(d.repo.alloc, d.repo.dev, d.log, streamDeviceAdapter{d.stream}, r.pos+offset)
			if err != nil {
				return err
			}

			objStream.setPos(0)
			if _, err := objStream.write(contents); err != nil {
				objStream.Close()
				return err
			}
			objStream.setLength(uint64(len(contents)))
			return objStream.Close()
		}

		paddedNew := align16(entryLen)
		paddedOld := align16(r.header.byteLength())

		if paddedOld < paddedNew {
			if err := d.invalidateEntryAt(r.pos, r.header); err != nil {
				return err
			}
			entryPos = d.stream.size()
		}
	}

	entry := make([]byte, entryLen)
	pos := 0

	hdr := objectEntryPrologueHeader{length: entryLen, flags: objectFlags, nameLength: uint16(len(nameBytes))}
	hdr.encode(entry[pos:])
	pos += objectEntryPrologueHeaderSize

	copy(entry[pos:], nameBytes)
	pos += len(nameBytes)

	var streamDescrOffset int
	if !useInline {
		streamDescrOffset = pos
		var empty streamDescriptor
		empty.encode(entry[pos:])
		pos += streamDescriptorSize
	} else {
		copy(entry[pos:], contents)
		pos += len(contents)
	}

	if err := d.overwriteObjectEntryAt(entryPos, entry); err != nil {
		return err
	}

	if !useInline {
		objStream, err := createRepositoryStream(d.repo.alloc, d.repo.dev, d.log, streamDeviceAdapter{d.stream}, entryPos+uint64(streamDescrOffset), uint32(len(contents)), uint64(len(contents)))
		if err != nil {
			return err
		}
		if _, err := objStream.write(contents); err != nil {
			objStream.Close()
			return err
		}
		return objStream.Close()
	}

	return nil
}

// openStream opens (and, per mode, creates or truncates) the object named
// name as a seekable Stream. A missing object with mode lacking
// StreamCreate returns (nil, nil): no error, no stream.
func (d *repositoryDirectory) openStream(name string, mode StreamMode, reserveLength uint32) (*Stream, error) {
	nameBytes := []byte(name)
	prologueLen := objectEntryPrologueLength(len(nameBytes))
	entryLen := prologueLen + streamDescriptorSize
	objectFlags := uint16(objFlagHasStreamDescr)

	r, err := d.findObjectByName(name, entryLen)
	if err != nil {
		return nil, err
	}

	var preserved []byte
	entryPos := r.newPos

	if r.found {
		entryPos = r.pos
		offset := uint64(objectEntryPrologueHeaderSize) + uint64(r.header.nameLength)

		switch {
		case r.header.flags&objFlagHasStreamDescr != 0:
			s, err := openRepositoryStream(d.repo.alloc, d.repo.dev, d.log, streamDeviceAdapter{d.stream}, r.pos+offset)
			if err != nil {
				return nil, err
			}
			if mode&StreamTruncate != 0 {
				s.setLength(0)
			}
			return &Stream{s: s}, nil

		case r.header.flags&objFlagHasInlinePayload != 0:
			if mode&StreamTruncate == 0 {
				length := uint64(r.header.byteLength()) - offset
				preserved = make([]byte, length)
				if err := d.stream.getBytesAt(r.pos+offset, preserved); err != nil {
					return nil, err
				}
			}

			paddedNew := align16(entryLen)
			paddedOld := align16(r.header.byteLength())

			if paddedOld < paddedNew {
				if err := d.invalidateEntryAt(r.pos, r.header); err != nil {
					return nil, err
				}
				entryPos = d.stream.size()
			}

		default:
			return nil, &ErrCorruption{Hint: "object doesn't have any kind of payload", Off: int64(r.pos)}
		}
	} else if mode&StreamCreate == 0 {
		return nil, nil
	}

	entry := make([]byte, entryLen)
	pos := 0

	hdr := objectEntryPrologueHeader{length: entryLen, flags: objectFlags, nameLength: uint16(len(nameBytes))}
	hdr.encode(entry[pos:])
	pos += objectEntryPrologueHeaderSize

	copy(entry[pos:], nameBytes)
	pos += len(nameBytes)

	streamDescrOffset := pos
	var empty streamDescriptor
	empty.encode(entry[pos:])

	if err := d.overwriteObjectEntryAt(entryPos, entry); err != nil {
		return nil, err
	}

	objStream, err := createRepositoryStream(d.repo.alloc, d.repo.dev, d.log, streamDeviceAdapter{d.stream}, entryPos+uint64(streamDescrOffset), reserveLength, uint64(reserveLength))
	if err != nil {
		return nil, err
	}

	if len(preserved) > 0 {
		if _, err := objStream.write(preserved); err != nil {
			objStream.Close()
			return nil, err
		}
		objStream.setPos(0)
	}

	return &Stream{s: objStream}, nil
}

// invalidateEntryAt ORs the invalidated bit into the entry's length field
// and rewrites its 6-byte prologue header.
func (d *repositoryDirectory) invalidateEntryAt(pos uint64, h objectEntryPrologueHeader) error {
	h.length |= entryInvalidatedBit
	return storeStreamStruct(d.stream, pos, objectEntryPrologueHeaderSize, h.encode)
}

// overwriteObjectEntryAt writes entry at pos, zero-padding up to a
// 16-byte boundary, and if an older (bigger) entry previously occupied
// that position, appends a single invalidated prologue covering the
// leftover gap so it can be reclaimed by a later setObjectContents or
// openStream.
func (d *repositoryDirectory) overwriteObjectEntryAt(pos uint64, entry []byte) error {
	entryLen := uint16(len(entry))
	paddedLen := align16(entryLen)

	oldEntryExists := pos < d.stream.size()

	var oldHeader objectEntryPrologueHeader
	if oldEntryExists {
		if err := retrieveStreamStruct(d.stream, pos, objectEntryPrologueHeaderSize, oldHeader.decode); err != nil {
			return err
		}
	}

	if err := d.stream.setBytesAt(pos, entry); err != nil {
		return err
	}

	offset := uint64(entryLen)
	if err := d.stream.clearAt(pos+offset, uint64(paddedLen-entryLen)); err != nil {
		return err
	}

	if !oldEntryExists {
		return nil
	}

	offset += uint64(paddedLen - entryLen)

	paddedOldLen := align16(oldHeader.byteLength())

	if paddedLen < paddedOldLen {
		invalidated := objectEntryPrologueHeader{
			length: (paddedOldLen - paddedLen) | entryInvalidatedBit,
			flags:  0,
			nameLength: 0,
		}
		if err := storeStreamStruct(d.stream, pos+offset, objectEntryPrologueHeaderSize, invalidated.encode); err != nil {
			return err
		}
	}

	return nil
}

// DirectoryIterator yields the names of every currently-valid object in a
// directory, in on-disk order.
type DirectoryIterator struct {
	dir  *repositoryDirectory
	pos  uint64
	name string
	err  error
	done bool
}

func newDirectoryIterator(dir *repositoryDirectory) *DirectoryIterator {
	return &DirectoryIterator{dir: dir}
}

// Next advances the iterator to the next valid entry and reports whether
// one was found. It returns false when iteration is finished (whether
// because the directory was exhausted or an error was encountered; call
// Err to distinguish the two).
func (it *DirectoryIterator) Next() bool {
	if it.done || it.err != nil {
		return false
	}
	return it.advance()
}

// Name returns the name of the entry at the iterator's current position.
// Valid only immediately after a Next call that returned true.
func (it *DirectoryIterator) Name() string { return it.name }

// Err returns the first error encountered during iteration, if any.
func (it *DirectoryIterator) Err() error { return it.err }

// advance scans forward from it.pos for the next valid entry, setting
// it.name and leaving it.pos just past it on success.
func (it *DirectoryIterator) advance() bool {
	stream := it.dir.stream

	for it.pos < stream.size() {
		var h objectEntryPrologueHeader
		if err := retrieveStreamStruct(stream, it.pos, objectEntryPrologueHeaderSize, h.decode); err != nil {
			it.err = err
			it.done = true
			return false
		}

		paddedLen := align16(h.byteLength())

		if !h.isInvalidated() {
			if h.byteLength() < 6 {
				it.err = &ErrCorruption{Hint: "entry with invalid length (length < 6)", Off: int64(it.pos)}
				it.done = true
				return false
			}

			nameBuf := make([]byte, h.nameLength)
			if err := stream.getBytesAt(it.pos+objectEntryPrologueHeaderSize, nameBuf); err != nil {
				it.err = err
				it.done = true
				return false
			}

			it.name = string(nameBuf)
			it.pos += uint64(paddedLen)
			return true
		}

		it.pos += uint64(paddedLen)
	}

	it.done = true
	return false
}

const maxInt = 1<<63 - 1
