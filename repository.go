// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package bleb

import (
	"github.com/sirupsen/logrus"
)

// contentDirectoryDescrPos is the fixed offset of the content directory's
// stream descriptor: it sits immediately after the 16-byte prologue.
const contentDirectoryDescrPos = prologueSize

// Defaults for the content directory's own backing stream, per spec.md
// §4.4. These differ from the values used by the original C++
// implementation (240/4096); spec.md is authoritative here.
const (
	defaultContentDirectoryReserveLength = 192
	defaultContentDirectoryExpectedSize  = 192
)

// Repository is a single open bleb container: a prologue, a span
// allocator, and a content directory, all layered over one ByteDevice.
// A Repository is not safe for concurrent use by multiple goroutines
// (spec.md §5): callers needing concurrent access must serialize their
// own calls.
type Repository struct {
	dev   ByteDevice
	alloc *spanAllocator
	log   *logrus.Logger

	contentDirectory *repositoryDirectory

	lastErr error
}

// OpenOptions controls Open's behavior.
type OpenOptions struct {
	// AllowCreate permits Open to initialize a brand-new, empty
	// repository when dev reports a size of 0. Without it, an empty
	// device is reported as ErrNotAllowed.
	AllowCreate bool

	// Log receives diagnostic messages about allocator and repository
	// activity. A nil Log disables logging.
	Log *logrus.Logger
}

// Open attaches a Repository to dev, either validating an existing
// repository's prologue or, per opts.AllowCreate, initializing a new one
// on an empty device.
func Open(dev ByteDevice, opts OpenOptions) (*Repository, error) {
	r := &Repository{dev: dev, log: opts.Log}
	r.alloc = newSpanAllocator(dev, r.log)

	if dev.Size() == 0 {
		if !opts.AllowCreate {
			return nil, &ErrNotAllowed{}
		}

		if err := r.initEmpty(); err != nil {
			return nil, err
		}
	} else {
		if err := r.openExisting(); err != nil {
			return nil, err
		}
	}

	return r, nil
}

func (r *Repository) initEmpty() error {
	p := prologue{magic: prologueMagic, formatVersion: currentFormatVersion, flags: 0, infoFlags: 0}

	if err := storeStruct(r.dev, 0, prologueSize, p.encode); err != nil {
		return err
	}

	if err := r.dev.ClearAt(contentDirectoryDescrPos, streamDescriptorSize); err != nil {
		return &ErrWriteFailed{Off: int64(contentDirectoryDescrPos), Err: err}
	}

	cds, err := createRepositoryStream(r.alloc, r.dev, r.log, r.dev, contentDirectoryDescrPos,
		defaultContentDirectoryReserveLength, defaultContentDirectoryExpectedSize)
	if err != nil {
		return err
	}

	r.contentDirectory = newRepositoryDirectory(r, cds)

	if r.log != nil {
		r.log.Info("bleb: initialized new repository")
	}

	return nil
}

func (r *Repository) openExisting() error {
	var p prologue
	if err := retrieveStruct(r.dev, 0, prologueSize, p.decode); err != nil {
		return err
	}

	if p.magic != prologueMagic {
		return &ErrNotABlebRepository{}
	}

	if p.formatVersion > currentFormatVersion {
		return &ErrNotSupported{Msg: "unrecognized format version"}
	}

	if p.flags != 0 {
		return &ErrNotSupported{Msg: "unrecognized flags"}
	}

	cds, err := openRepositoryStream(r.alloc, r.dev, r.log, r.dev, contentDirectoryDescrPos)
	if err != nil {
		return err
	}

	r.contentDirectory = newRepositoryDirectory(r, cds)

	if r.log != nil {
		r.log.WithField("formatVersion", p.formatVersion).Info("bleb: opened existing repository")
	}

	return nil
}

// Close flushes the content directory's stream descriptor, then closes the
// underlying ByteDevice regardless of whether the flush succeeded.
func (r *Repository) Close() error {
	flushErr := r.contentDirectory.stream.Close()
	closeErr := r.dev.Close()

	if flushErr != nil {
		r.lastErr = flushErr
		return flushErr
	}
	if closeErr != nil {
		r.lastErr = closeErr
		return closeErr
	}
	return nil
}

// LastError returns the most recent error recorded by a Repository
// operation, or nil. It mirrors the original implementation's
// getLastError() accessor for callers that prefer to check errors out of
// band rather than from every call's return value.
func (r *Repository) LastError() error { return r.lastErr }

func (r *Repository) setLastError(err error) error {
	r.lastErr = err
	return err
}

// GetObjectContents retrieves the full contents of the named object. A
// missing object is reported as (nil, nil): callers distinguish "does not
// exist" from a read failure by checking the error.
func (r *Repository) GetObjectContents(name string) ([]byte, error) {
	buf, err := r.contentDirectory.getObjectContents(name)
	if err != nil {
		return nil, r.setLastError(err)
	}
	return buf, nil
}

// SetObjectContents stores contents under name, creating the object if it
// does not already exist and overwriting it if it does. An existing
// stream-backed object keeps its stream; an existing inline entry is
// overwritten in place when the new entry fits its slot, and is otherwise
// invalidated and replaced by a new entry at the end of the directory.
func (r *Repository) SetObjectContents(name string, contents []byte, opts SetContentsOptions) error {
	flags := uint16(0)
	if err := r.contentDirectory.setObjectContents(name, contents, opts, flags); err != nil {
		return r.setLastError(err)
	}
	return nil
}

// OpenStream opens the named object as a seekable Stream. With mode
// StreamOpenExisting, a missing object yields (nil, nil). With
// StreamCreate, a missing object is created empty first. reserveLength
// hints the size of the object's first span, the way lldb.Allocator's
// callers hint sizes to Alloc.
func (r *Repository) OpenStream(name string, mode StreamMode, reserveLength uint32) (*Stream, error) {
	s, err := r.contentDirectory.openStream(name, mode, reserveLength)
	if err != nil {
		return nil, r.setLastError(err)
	}
	return s, nil
}

// Enumerate returns an iterator over every valid object name currently in
// the repository's content directory.
func (r *Repository) Enumerate() *DirectoryIterator {
	return newDirectoryIterator(r.contentDirectory)
}
