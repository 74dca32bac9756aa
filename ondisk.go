// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bleb

import "encoding/binary"

// Prologue occupies the first 16 bytes of a repository. Layout:
//
//	offset 0: magic[7]     89 'b' 'l' 'e' 'b' 0D 0A
//	offset 7: formatVersion u8
//	offset 8: flags        u32
//	offset 12: infoFlags   u32
const prologueSize = 16

var prologueMagic = [7]byte{0x89, 'b', 'l', 'e', 'b', 0x0D, 0x0A}

const currentFormatVersion = 1

type prologue struct {
	magic         [7]byte
	formatVersion uint8
	flags         uint32
	infoFlags     uint32
}

func (p *prologue) decode(b []byte) {
	copy(p.magic[:], b[0:7])
	p.formatVersion = b[7]
	p.flags = binary.LittleEndian.Uint32(b[8:12])
	p.infoFlags = binary.LittleEndian.Uint32(b[12:16])
}

func (p *prologue) encode(b []byte) {
	copy(b[0:7], p.magic[:])
	b[7] = p.formatVersion
	binary.LittleEndian.PutUint32(b[8:12], p.flags)
	binary.LittleEndian.PutUint32(b[12:16], p.infoFlags)
}

// streamDescriptor anchors a span chain: the device offset of its first
// span (0 = unallocated) and its current logical length.
//
//	offset 0: location u64
//	offset 8: length   u64
const streamDescriptorSize = 16

type streamDescriptor struct {
	location uint64
	length   uint64
}

func (s *streamDescriptor) decode(b []byte) {
	s.location = binary.LittleEndian.Uint64(b[0:8])
	s.length = binary.LittleEndian.Uint64(b[8:16])
}

func (s *streamDescriptor) encode(b []byte) {
	binary.LittleEndian.PutUint64(b[0:8], s.location)
	binary.LittleEndian.PutUint64(b[8:16], s.length)
}

// spanHeader sits at the start of every span.
//
//	offset 0: reservedLength  u32
//	offset 4: usedLength      u32
//	offset 8: nextSpanLocation u64
const spanHeaderSize = 16

type spanHeader struct {
	reservedLength   uint32
	usedLength       uint32
	nextSpanLocation uint64
}

func (s *spanHeader) decode(b []byte) {
	s.reservedLength = binary.LittleEndian.Uint32(b[0:4])
	s.usedLength = binary.LittleEndian.Uint32(b[4:8])
	s.nextSpanLocation = binary.LittleEndian.Uint64(b[8:16])
}

func (s *spanHeader) encode(b []byte) {
	binary.LittleEndian.PutUint32(b[0:4], s.reservedLength)
	binary.LittleEndian.PutUint32(b[4:8], s.usedLength)
	binary.LittleEndian.PutUint64(b[8:16], s.nextSpanLocation)
}

// objectEntryPrologueHeader is the fixed 6-byte prefix of every directory
// entry.
//
//	offset 0: length     u16 (low 15 bits = byte length including this header; high bit = invalidated)
//	offset 2: flags      u16
//	offset 4: nameLength u16
const objectEntryPrologueHeaderSize = 6

const (
	entryLengthMask       = 0x7FFF
	entryInvalidatedBit   = 0x8000
)

// Object flags, as carried in objectEntryPrologueHeader.flags.
const (
	objFlagIsDirectory     = 0x0001
	objFlagHasStreamDescr  = 0x0002
	objFlagHasStorageDescr = 0x0004 // reserved, unused
	objFlagHasHash128      = 0x0008 // reserved, unused
	objFlagHasInlinePayload = 0x0010
	objFlagIsText          = 0x1001
)

type objectEntryPrologueHeader struct {
	length     uint16 // includes the kIsInvalidated high bit
	flags      uint16
	nameLength uint16
}

func (h *objectEntryPrologueHeader) decode(b []byte) {
	h.length = binary.LittleEndian.Uint16(b[0:2])
	h.flags = binary.LittleEndian.Uint16(b[2:4])
	h.nameLength = binary.LittleEndian.Uint16(b[4:6])
}

func (h *objectEntryPrologueHeader) encode(b []byte) {
	binary.LittleEndian.PutUint16(b[0:2], h.length)
	binary.LittleEndian.PutUint16(b[2:4], h.flags)
	binary.LittleEndian.PutUint16(b[4:6], h.nameLength)
}

func (h *objectEntryPrologueHeader) isInvalidated() bool {
	return h.length&entryInvalidatedBit != 0
}

func (h *objectEntryPrologueHeader) byteLength() uint16 {
	return h.length & entryLengthMask
}

// align16 rounds n up to the next multiple of 16.
func align16(n uint16) uint16 {
	return (n + 15) &^ 15
}

// align rounds n up to the next multiple of unit (unit must be a power of two).
func align(n, unit uint64) uint64 {
	return (n + unit - 1) &^ (unit - 1)
}

// objectEntryPrologueLength returns the length, in bytes, of an entry's
// prologue header plus its name. The stream descriptor or inline payload
// starts immediately after it; only the entry as a whole is padded.
func objectEntryPrologueLength(nameLength int) uint16 {
	return uint16(objectEntryPrologueHeaderSize + nameLength)
}
