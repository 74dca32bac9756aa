// Copyright 2013 The Go Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()

	cmd := rootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

func TestPutThenGetRoundTrip(t *testing.T) {
	repo := filepath.Join(t.TempDir(), "repo.bleb")

	_, err := run(t, "put", "greeting", "-R", repo, "-T", "hello there")
	require.NoError(t, err)

	out, err := run(t, "get", "greeting", "-R", repo)
	require.NoError(t, err)
	assert.Equal(t, "hello there", out)
}

func TestPutFromFile(t *testing.T) {
	dir := t.TempDir()
	repo := filepath.Join(dir, "repo.bleb")
	input := filepath.Join(dir, "input.txt")

	require.NoError(t, os.WriteFile(input, []byte("file contents"), 0644))

	_, err := run(t, "put", "doc", "-R", repo, "-i", input)
	require.NoError(t, err)

	out, err := run(t, "get", "doc", "-R", repo)
	require.NoError(t, err)
	assert.Equal(t, "file contents", out)
}

func TestGetMissingObjectFails(t *testing.T) {
	repo := filepath.Join(t.TempDir(), "repo.bleb")

	_, err := run(t, "put", "exists", "-R", repo, "-T", "x")
	require.NoError(t, err)

	_, err = run(t, "get", "missing", "-R", repo)
	assert.Error(t, err)
}

func TestGetFailsWhenRepositoryDoesNotExist(t *testing.T) {
	repo := filepath.Join(t.TempDir(), "nonexistent.bleb")

	_, err := run(t, "get", "name", "-R", repo)
	assert.Error(t, err)
}

func TestMergeCopiesObjectsUnderPrefix(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src.bleb")
	dst := filepath.Join(dir, "dst.bleb")

	_, err := run(t, "put", "a", "-R", src, "-T", "alpha")
	require.NoError(t, err)
	_, err = run(t, "put", "b", "-R", src, "-T", "beta")
	require.NoError(t, err)

	_, err = run(t, "merge", src, "-R", dst, "-p", "imported-")
	require.NoError(t, err)

	out, err := run(t, "get", "imported-a", "-R", dst)
	require.NoError(t, err)
	assert.Equal(t, "alpha", out)

	out, err = run(t, "get", "imported-b", "-R", dst)
	require.NoError(t, err)
	assert.Equal(t, "beta", out)
}

func TestPutNoInlineStillRoundTrips(t *testing.T) {
	repo := filepath.Join(t.TempDir(), "repo.bleb")

	_, err := run(t, "put", "x", "-R", repo, "-T", "small but out-of-line", "--no-inline")
	require.NoError(t, err)

	out, err := run(t, "get", "x", "-R", repo)
	require.NoError(t, err)
	assert.Equal(t, "small but out-of-line", out)
}
