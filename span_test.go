// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bleb

import "testing"

func TestNextPowerOfTwo(t *testing.T) {
	cases := []struct{ in, want uint64 }{
		{0, 1},
		{1, 1},
		{2, 2},
		{3, 4},
		{4, 4},
		{5, 8},
		{1023, 1024},
		{1024, 1024},
		{1025, 2048},
	}

	for _, c := range cases {
		if g := nextPowerOfTwo(c.in); g != c.want {
			t.Errorf("nextPowerOfTwo(%d) = %d, want %d", c.in, g, c.want)
		}
	}
}

func TestSpanPayloadSize(t *testing.T) {
	a := newSpanAllocator(NewMemByteDevice(), nil)

	cases := []struct {
		hint, length uint64
		want         uint64
	}{
		// small requests always round to the allocation granularity.
		{0, 1, defaultAllocationGranularity},
		{0, defaultAllocationGranularity, defaultAllocationGranularity},
		// hint dominates unit selection once big enough: H=1024 -> unit=128.
		{1024, 100, 128},
		{1024, 200, 256},
	}

	for _, c := range cases {
		if g := a.spanPayloadSize(c.hint, c.length); g != c.want {
			t.Errorf("spanPayloadSize(%d, %d) = %d, want %d", c.hint, c.length, g, c.want)
		}
	}
}

func TestAllocatorAllocateAppendsAtTail(t *testing.T) {
	dev := NewMemByteDevice()
	a := newSpanAllocator(dev, nil)

	loc1, hdr1, err := a.allocate(0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if loc1 != 0 {
		t.Fatalf("first span location = %d, want 0", loc1)
	}
	if hdr1.usedLength != 0 {
		t.Fatalf("fresh span usedLength = %d, want 0", hdr1.usedLength)
	}

	end1 := dev.Size()

	loc2, _, err := a.allocate(0, 10)
	if err != nil {
		t.Fatal(err)
	}
	if loc2 != end1 {
		t.Fatalf("second span location = %d, want %d (tail of device)", loc2, end1)
	}

	// Payload region must be zeroed.
	buf := make([]byte, hdr1.reservedLength)
	if _, err := dev.ReadAt(buf, loc1+spanHeaderSize); err != nil {
		t.Fatal(err)
	}
	for i, b := range buf {
		if b != 0 {
			t.Fatalf("span payload not zeroed at byte %d: %#x", i, b)
		}
	}
}
