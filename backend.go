package harha

// Backend is the polymorphic dispatch surface every concrete filesystem
// implementation satisfies: passthrough, overlay, multiplexer and archive
// all implement it, and VFS dispatches every public operation onto one.
// A composing backend (overlay, multiplexer) holds other VFS instances as
// children and forwards onto their own Backend after translating the
// handle/path, so the same capability-gated dispatch applies recursively.
type Backend interface {
	// Capabilities reports the permission set this backend instance
	// advertises. VFS uses this as the default Permissions at
	// construction time when the caller does not override it.
	Capabilities() Permissions

	OpenDir(parent Dir, sub SafePath, opts DirOpenOptions) (Dir, error)
	CloseDir(dir Dir)
	DeleteDir(parent Dir, sub SafePath, opts DirDeleteOptions) error
	Stat(parent Dir, sub SafePath) (Stat, error)
	Iterate(dir Dir) (BackendIterator, error)

	OpenFile(parent Dir, sub SafePath, opts FileOpenOptions) (File, error)
	CloseFile(file File)
	DeleteFile(parent Dir, sub SafePath) error

	Seek(file File, offset uint64, whence Whence) (uint64, error)
	Readv(file File, bufs [][]byte) (int, error)
	Preadv(file File, bufs [][]byte, offset uint64) (int, error)
	Writev(file File, bufs [][]byte) (int, error)
	Pwritev(file File, bufs [][]byte, offset uint64) (int, error)

	// Deinit releases every resource the backend holds, closing any
	// outstanding handles first rather than leaking them.
	Deinit() error
}

// BackendIterator is the backend-private iteration state a Backend.Iterate
// call returns; Iterator (in iterator.go) wraps one of these with the
// owning VFS and Dir to form the public contract.
type BackendIterator interface {
	// Next returns the next entry, or ok == false at end of iteration.
	Next() (entry Entry, ok bool, err error)
	// Reset repositions to the beginning; the iterator remains valid.
	Reset() error
	// Deinit releases the iterator's backend state. It must not close
	// the Dir being iterated.
	Deinit()
}
