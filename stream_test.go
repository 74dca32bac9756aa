// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bleb

import (
	"bytes"
	"testing"
)

func newTestStreamDescrDevice(t *testing.T) ByteDevice {
	t.Helper()
	dev := NewMemByteDevice()
	if err := dev.ClearAt(0, streamDescriptorSize); err != nil {
		t.Fatal(err)
	}
	return dev
}

func TestRepositoryStreamWriteReadRoundTrip(t *testing.T) {
	// The data device starts non-empty so the first span is not placed at
	// location 0, which a reopened descriptor reads as "unallocated".
	dev := newTestStreamDescrDevice(t)
	descrDev := newTestStreamDescrDevice(t)
	alloc := newSpanAllocator(dev, nil)

	s, err := createRepositoryStream(alloc, dev, nil, descrDev, 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	data := bytes.Repeat([]byte("0123456789"), 1000) // fits one 10240-byte span

	if n, err := s.write(data); n != len(data) || err != nil {
		t.Fatal(n, err)
	}

	if err := s.flush(); err != nil {
		t.Fatal(err)
	}

	if g, e := s.size(), uint64(len(data)); g != e {
		t.Fatal(g, e)
	}

	// Re-open from the descriptor and verify the bytes read back.
	s2, err := openRepositoryStream(alloc, dev, nil, descrDev, 0)
	if err != nil {
		t.Fatal(err)
	}

	got := make([]byte, len(data))
	s2.setPos(0)
	if n, err := s2.read(got); n != len(got) || err != nil {
		t.Fatal(n, err)
	}

	if !bytes.Equal(got, data) {
		t.Fatal("content differs across reopen")
	}
}

func TestRepositoryStreamSeekAndOverwrite(t *testing.T) {
	dev := NewMemByteDevice()
	descrDev := newTestStreamDescrDevice(t)
	alloc := newSpanAllocator(dev, nil)

	s, err := createRepositoryStream(alloc, dev, nil, descrDev, 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.write([]byte("hello world")); err != nil {
		t.Fatal(err)
	}

	s.setPos(6)
	if _, err := s.write([]byte("there")); err != nil {
		t.Fatal(err)
	}

	s.setPos(0)
	got := make([]byte, 11)
	if _, err := s.read(got); err != nil {
		t.Fatal(err)
	}

	if g, e := string(got), "hello there"; g != e {
		t.Fatalf("got %q, want %q", g, e)
	}
}

func TestRepositoryStreamGetSetBytesAt(t *testing.T) {
	dev := NewMemByteDevice()
	descrDev := newTestStreamDescrDevice(t)
	alloc := newSpanAllocator(dev, nil)

	s, err := createRepositoryStream(alloc, dev, nil, descrDev, 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	if err := s.setBytesAt(0, []byte("abcdef")); err != nil {
		t.Fatal(err)
	}

	got := make([]byte, 3)
	if err := s.getBytesAt(2, got); err != nil {
		t.Fatal(err)
	}

	if g, e := string(got), "cde"; g != e {
		t.Fatalf("got %q, want %q", g, e)
	}
}

func TestRepositoryStreamReadPastEndIsUnexpectedEOF(t *testing.T) {
	dev := NewMemByteDevice()
	descrDev := newTestStreamDescrDevice(t)
	alloc := newSpanAllocator(dev, nil)

	s, err := createRepositoryStream(alloc, dev, nil, descrDev, 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.write([]byte("short")); err != nil {
		t.Fatal(err)
	}

	s.setPos(0)
	buf := make([]byte, 100)
	if _, err := s.read(buf); err == nil {
		t.Fatal("expected an error reading past the end of the span chain")
	}
}

func TestRepositoryStreamFlushOnlyWhenDirty(t *testing.T) {
	dev := NewMemByteDevice()
	descrDev := newTestStreamDescrDevice(t)
	alloc := newSpanAllocator(dev, nil)

	s, err := createRepositoryStream(alloc, dev, nil, descrDev, 0, 0, 0)
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.write([]byte("x")); err != nil {
		t.Fatal(err)
	}

	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	if s.dirty {
		t.Fatal("stream still marked dirty after Close")
	}

	// A second flush with no further writes must be a cheap no-op.
	if err := s.flush(); err != nil {
		t.Fatal(err)
	}
}
