// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// The storage space management: a span allocator that hands out freshly
// zeroed spans from the tail of a ByteDevice. Unlike lldb's Allocator
// (falloc.go), there is no free list and no reclaim: a bleb repository
// never reuses span space, only directory entry space (see directory.go).

package bleb

import (
	"math/bits"

	"github.com/sirupsen/logrus"
)

// defaultAllocationGranularity is the minimum rounding unit used by the
// span sizing policy when a streamLengthHint is small or absent.
const defaultAllocationGranularity = 32

// spanAllocator owns the tail of a ByteDevice and allocates freshly
// zeroed spans from it.
type spanAllocator struct {
	dev                   ByteDevice
	allocationGranularity uint64
	log                   *logrus.Logger
}

func newSpanAllocator(dev ByteDevice, log *logrus.Logger) *spanAllocator {
	return &spanAllocator{dev: dev, allocationGranularity: defaultAllocationGranularity, log: log}
}

// nextPowerOfTwo rounds n up to the next power of two, saturating at 2^63.
func nextPowerOfTwo(n uint64) uint64 {
	if n <= 1 {
		return 1
	}
	if n > 1<<63 {
		return 1 << 63
	}
	return 1 << uint(64-bits.LeadingZeros64(n-1))
}

// spanPayloadSize implements spec.md §4.1's sizing policy: round
// max(streamLengthHint, spanLength) up to the next power of two, take
// unit = max(that/8, allocationGranularity), then round spanLength up to
// a multiple of unit.
func (a *spanAllocator) spanPayloadSize(streamLengthHint, spanLength uint64) uint64 {
	h := streamLengthHint
	if spanLength > h {
		h = spanLength
	}
	h = nextPowerOfTwo(h)

	unit := h / 8
	if unit < a.allocationGranularity {
		unit = a.allocationGranularity
	}

	return align(spanLength, unit)
}

// allocate appends a new, freshly zeroed span to the tail of the device
// sized to hold at least spanLength bytes (rounded per spanPayloadSize
// using streamLengthHint), and returns its on-device location and
// initialized header.
func (a *spanAllocator) allocate(streamLengthHint, spanLength uint64) (location uint64, header spanHeader, err error) {
	payloadSize := a.spanPayloadSize(streamLengthHint, spanLength)
	if payloadSize > 0xFFFFFFFF {
		return 0, spanHeader{}, &ErrInternal{Msg: "span payload size overflows u32"}
	}

	pos := a.dev.Size()

	if a.log != nil {
		a.log.WithFields(logrus.Fields{"pos": pos, "payload": payloadSize}).Debug("bleb: allocating span")
	}

	header = spanHeader{reservedLength: uint32(payloadSize), usedLength: 0, nextSpanLocation: 0}

	if err := storeStruct(a.dev, pos, spanHeaderSize, header.encode); err != nil {
		return 0, spanHeader{}, err
	}

	if err := a.dev.ClearAt(pos+spanHeaderSize, payloadSize); err != nil {
		return 0, spanHeader{}, &ErrWriteFailed{Off: int64(pos + spanHeaderSize), Err: err}
	}

	return pos, header, nil
}
