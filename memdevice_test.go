// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bleb

import (
	"bytes"
	"io"
	"math/rand"
	"testing"
)

func TestMemByteDeviceWriteAt(t *testing.T) {
	d := NewMemByteDevice()

	if _, err := d.WriteAt([]byte{1}, 0); err != nil {
		t.Fatal(err)
	}

	if g, e := len(d.pages), 1; g != e {
		t.Fatal(g, e)
	}

	if _, err := d.WriteAt([]byte{2}, memPageSize); err != nil {
		t.Fatal(err)
	}

	if g, e := len(d.pages), 2; g != e {
		t.Fatal(g, e)
	}

	// Overwriting page 0 with all zeros should release it (hole).
	if _, err := d.WriteAt(make([]byte, memPageSize), 0); err != nil {
		t.Fatal(err)
	}

	if g, e := len(d.pages), 1; g != e {
		t.Logf("%#v", d.pages)
		t.Fatal(g, e)
	}
}

func TestMemByteDeviceRoundTrip(t *testing.T) {
	const max = 1e5
	var b [max]byte
	rng := rand.New(rand.NewSource(42))

	for sz := 0; sz < max; sz += 2053 {
		for i := range b[:sz] {
			b[i] = byte(rng.Int())
		}

		d := NewMemByteDevice()
		if n, err := d.WriteAt(b[:sz], 0); n != sz || err != nil {
			t.Fatal(n, err)
		}

		got := make([]byte, sz)
		if n, err := d.ReadAt(got, 0); n != sz || (err != nil && err != io.EOF) {
			t.Fatal(n, err)
		}

		if !bytes.Equal(b[:sz], got) {
			t.Fatal("content differs")
		}
	}
}

func TestMemByteDeviceReadPastEOF(t *testing.T) {
	d := NewMemByteDevice()
	if _, err := d.WriteAt([]byte("hello"), 0); err != nil {
		t.Fatal(err)
	}

	buf := make([]byte, 10)
	n, err := d.ReadAt(buf, 0)
	if n != 5 || err != io.EOF {
		t.Fatal(n, err)
	}
}

// TestMemByteDeviceBoundedNoExpansion covers spec.md's boundary scenario
// B2: a bounded backing store with expansion disallowed fails writes that
// would grow past capacity.
func TestMemByteDeviceBoundedNoExpansion(t *testing.T) {
	d := NewBoundedMemByteDevice(32, false)

	if _, err := d.WriteAt(make([]byte, 32), 0); err != nil {
		t.Fatal(err)
	}

	if _, err := d.WriteAt([]byte{1}, 32); err == nil {
		t.Fatal("expected write beyond capacity to fail")
	}
}

func TestMemByteDeviceBoundedWithExpansion(t *testing.T) {
	d := NewBoundedMemByteDevice(32, true)

	if _, err := d.WriteAt(make([]byte, 64), 0); err != nil {
		t.Fatal(err)
	}

	if g, e := d.Size(), uint64(64); g != e {
		t.Fatal(g, e)
	}
}

func TestMemByteDeviceClearAt(t *testing.T) {
	d := NewMemByteDevice()

	if _, err := d.WriteAt(bytes.Repeat([]byte{0xFF}, 100), 0); err != nil {
		t.Fatal(err)
	}

	if err := d.ClearAt(10, 50); err != nil {
		t.Fatal(err)
	}

	got := make([]byte, 100)
	if _, err := d.ReadAt(got, 0); err != nil {
		t.Fatal(err)
	}

	for i := 10; i < 60; i++ {
		if got[i] != 0 {
			t.Fatalf("byte %d not cleared: %#x", i, got[i])
		}
	}
	for i := 60; i < 100; i++ {
		if got[i] != 0xFF {
			t.Fatalf("byte %d unexpectedly cleared", i)
		}
	}
}
