package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
)

// AtomicWriter stages output in a temp file next to the target and
// promotes it with a rename on Commit. Readers of the target path never
// observe a partially written file, and an aborted or crashed write
// leaves any previous file untouched.
type AtomicWriter struct {
	path    string
	tmpPath string
	file    *os.File
	buf     *bufio.Writer
	done    bool
}

// NewAtomicWriter creates the target's directory if needed and opens a
// temp file in it. The temp file must live on the same filesystem as the
// target for the rename to be atomic.
func NewAtomicWriter(path string) (*AtomicWriter, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, &StorageError{Op: "mkdir", Entity: "file", ID: path, Err: err}
	}

	f, err := os.CreateTemp(dir, ".ytcomments-*.tmp")
	if err != nil {
		return nil, &StorageError{Op: "create", Entity: "file", ID: path, Err: err}
	}

	return &AtomicWriter{
		path:    path,
		tmpPath: f.Name(),
		file:    f,
		buf:     bufio.NewWriter(f),
	}, nil
}

// Write buffers data destined for the temp file. Comment streams write
// one small JSON line at a time, so writes are batched before hitting
// the file.
func (w *AtomicWriter) Write(p []byte) (int, error) {
	if w.done {
		return 0, fmt.Errorf("write after commit or abort")
	}
	return w.buf.Write(p)
}

// Commit flushes, syncs, and renames the temp file over the target.
func (w *AtomicWriter) Commit() error {
	if w.done {
		return nil
	}
	w.done = true

	if err := w.buf.Flush(); err != nil {
		w.discard()
		return &StorageError{Op: "flush", Entity: "file", ID: w.path, Err: err}
	}
	if err := w.file.Sync(); err != nil {
		w.discard()
		return &StorageError{Op: "sync", Entity: "file", ID: w.path, Err: err}
	}
	if err := w.file.Close(); err != nil {
		os.Remove(w.tmpPath)
		return &StorageError{Op: "close", Entity: "file", ID: w.path, Err: err}
	}
	if err := os.Rename(w.tmpPath, w.path); err != nil {
		os.Remove(w.tmpPath)
		return &StorageError{Op: "rename", Entity: "file", ID: w.path, Err: err}
	}
	return nil
}

// Abort drops the temp file, leaving any existing target as it was.
// Calling Abort after Commit is a no-op.
func (w *AtomicWriter) Abort() error {
	if w.done {
		return nil
	}
	w.done = true
	w.discard()
	return nil
}

func (w *AtomicWriter) discard() {
	w.file.Close()
	os.Remove(w.tmpPath)
}
