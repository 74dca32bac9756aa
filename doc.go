// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

/*

Package bleb implements a single-file object container: a flat, named set
of binary objects stored inside one backing byte store ("repository").

A repository behaves like a tiny filesystem. Objects have a name and an
arbitrary-length byte payload and can be created, overwritten, enumerated
and read either as a whole or through a seekable stream. The backing store
is abstracted by ByteDevice, so the on-disk layout is independent of any
host filesystem; a repository can live in an *os.File, an in-memory
buffer, or any other random-access byte store.

The format is a prologue followed by a content directory: a packed
sequence of named entries, each either carrying its payload inline or
pointing at a chain of spans holding the payload out of line. Spans are
allocated from the tail of the byte device and never reclaimed; directory
entries can be invalidated and their space reused by a later
SetObjectContents or OpenStream.

The package does not implement transactions, crash consistency,
compression, encryption or concurrent multi-writer access. Callers that
need to share a Repository across goroutines must serialize access
themselves.

*/
package bleb
