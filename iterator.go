package harha

// Iterator bundles an owning VFS, the Dir being iterated, and backend-
// private state. Basenames returned by Next always satisfy Validate; a
// backend that would emit an unsafe name skips it instead. Order is
// backend-defined but stable across Reset within one Iterator's lifetime.
type Iterator struct {
	vfs   *VFS
	dir   Dir
	inner BackendIterator
}

// Dir returns the directory this Iterator walks.
func (it *Iterator) Dir() Dir {
	return it.dir
}

// Next returns the next entry, or ok == false when iteration is exhausted.
// An error from the backend is surfaced verbatim; the iterator remains
// usable and a subsequent Next call may still succeed (e.g. a transient
// per-entry stat failure).
func (it *Iterator) Next() (entry Entry, ok bool, err error) {
	return it.inner.Next()
}

// Reset repositions the Iterator to the beginning; the underlying state
// remains valid.
func (it *Iterator) Reset() error {
	return it.inner.Reset()
}

// Deinit releases the Iterator's backend state. It does not close the Dir
// being iterated — callers that opened dir themselves must still call
// VFS.CloseDir.
func (it *Iterator) Deinit() {
	it.inner.Deinit()
}
