// Package passthrough implements the C4 backend: a VFS over a real host
// directory tree, using directory-fd relative operations from
// internal/hostfs so every lookup is race-free with respect to concurrent
// renames of ancestor components.
package passthrough

import (
	"github.com/sorvi-platform/harha"
	"github.com/sorvi-platform/harha/internal/hostfs"
	"github.com/sorvi-platform/harha/log"
)

const maxBatch = 16

// Backend is a passthrough VFS backend over a host directory tree. It owns
// no goroutines and is not safe for concurrent use without external
// serialization, matching the rest of the package.
type Backend struct {
	harha.Noop

	root      hostfs.Handle
	closeRoot bool
	perms     harha.Permissions
	logger    *log.Logger

	dirs    map[harha.Dir]dirEntry
	nextDir harha.Dir

	files    map[harha.File]fileEntry
	nextFile harha.File
}

type dirEntry struct {
	h hostfs.Handle
}

type fileEntry struct {
	h      hostfs.Handle
	cursor uint64
}

// Option configures a Backend at construction time.
type Option func(*Backend)

// WithLogger attaches a logger; omitted, the backend logs nowhere.
func WithLogger(l *log.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// WithReadOnly restricts the backend's advertised capabilities to
// read/iterate/stat, rejecting create/delete/write at the facade before
// any host call is attempted.
func WithReadOnly() Option {
	return func(b *Backend) { b.perms = harha.ReadOnlyPermissions() }
}

func newBackend(root hostfs.Handle, closeRoot bool, opts []Option) *Backend {
	b := &Backend{
		root:      root,
		closeRoot: closeRoot,
		perms:     harha.AllPermissions(),
		logger:    log.Discard(),
		dirs:      make(map[harha.Dir]dirEntry),
		files:     make(map[harha.File]fileEntry),
		nextDir:   1,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// New wraps an already-open host directory handle. The backend does not
// own root and will not close it on Deinit.
func New(root hostfs.Handle, opts ...Option) *Backend {
	return newBackend(root, false, opts)
}

// NewPath opens sub relative to parent as the backend's root, owning the
// result: it is closed on Deinit.
func NewPath(parent hostfs.Handle, sub harha.SafePath, opts ...Option) (*Backend, error) {
	root, err := hostfs.OpenDirAt(parent, sub.Relative(), false)
	if err != nil {
		return nil, err
	}
	return newBackend(root, true, opts), nil
}

// NewFromOSPath opens an absolute (or process-relative) host path as the
// backend's root, owning the result.
func NewFromOSPath(path string, opts ...Option) (*Backend, error) {
	root, err := hostfs.OpenRoot(path)
	if err != nil {
		return nil, err
	}
	return newBackend(root, true, opts), nil
}

func (b *Backend) Capabilities() harha.Permissions { return b.perms }

func (b *Backend) resolveDir(dir harha.Dir) (hostfs.Handle, error) {
	if dir == harha.RootDir {
		return b.root, nil
	}
	e, ok := b.dirs[dir]
	if !ok {
		return hostfs.Handle{}, harha.ErrFileNotFound
	}
	return e.h, nil
}

func (b *Backend) allocDir() harha.Dir {
	b.nextDir++
	if b.nextDir == harha.RootDir {
		b.nextDir = 1
	}
	id := b.nextDir
	return id
}

func (b *Backend) allocFile() harha.File {
	id := b.nextFile
	b.nextFile++
	return id
}

func (b *Backend) OpenDir(parent harha.Dir, sub harha.SafePath, opts harha.DirOpenOptions) (harha.Dir, error) {
	base, err := b.resolveDir(parent)
	if err != nil {
		return 0, err
	}

	var h hostfs.Handle
	if sub.IsEmpty() {
		h, err = hostfs.Dup(base)
	} else {
		h, err = hostfs.OpenDirAt(base, sub.Relative(), opts.Create)
	}
	if err != nil {
		return 0, err
	}

	id := b.allocDir()
	b.dirs[id] = dirEntry{h: h}
	b.logger.Debug("passthrough: opened dir %q as %d", sub.String(), id)
	return id, nil
}

func (b *Backend) CloseDir(dir harha.Dir) {
	if dir == harha.RootDir {
		return
	}
	e, ok := b.dirs[dir]
	if !ok {
		return
	}
	hostfs.Close(e.h)
	delete(b.dirs, dir)
}

func (b *Backend) DeleteDir(parent harha.Dir, sub harha.SafePath, opts harha.DirDeleteOptions) error {
	base, err := b.resolveDir(parent)
	if err != nil {
		return err
	}
	if opts.Recursive {
		return hostfs.RemoveAllAt(base, sub.Relative())
	}
	return hostfs.UnlinkAt(base, sub.Relative(), true)
}

func (b *Backend) Stat(parent harha.Dir, sub harha.SafePath) (harha.Stat, error) {
	base, err := b.resolveDir(parent)
	if err != nil {
		return harha.Stat{}, err
	}
	if sub.IsEmpty() {
		return hostfs.Stat(base)
	}
	return hostfs.StatAt(base, sub.Relative())
}

func (b *Backend) Iterate(dir harha.Dir) (harha.BackendIterator, error) {
	base, err := b.resolveDir(dir)
	if err != nil {
		return nil, err
	}
	stream, err := hostfs.OpenStream(base)
	if err != nil {
		return nil, err
	}
	return &dirIterator{parent: base, stream: stream}, nil
}

func (b *Backend) OpenFile(parent harha.Dir, sub harha.SafePath, opts harha.FileOpenOptions) (harha.File, error) {
	base, err := b.resolveDir(parent)
	if err != nil {
		return 0, err
	}
	h, isDir, err := hostfs.OpenFileAt(base, sub.Relative(), opts)
	if err != nil {
		return 0, err
	}
	if isDir {
		hostfs.Close(h)
		return 0, harha.ErrIsDir
	}
	id := b.allocFile()
	b.files[id] = fileEntry{h: h}
	return id, nil
}

func (b *Backend) CloseFile(file harha.File) {
	e, ok := b.files[file]
	if !ok {
		return
	}
	hostfs.Close(e.h)
	delete(b.files, file)
}

func (b *Backend) DeleteFile(parent harha.Dir, sub harha.SafePath) error {
	base, err := b.resolveDir(parent)
	if err != nil {
		return err
	}
	return hostfs.UnlinkAt(base, sub.Relative(), false)
}

func (b *Backend) Seek(file harha.File, offset uint64, whence harha.Whence) (uint64, error) {
	e, ok := b.files[file]
	if !ok {
		return 0, harha.ErrFileNotFound
	}

	var next uint64
	switch whence {
	case harha.WhenceSet:
		next = offset
	case harha.WhenceForward:
		next = saturatingAdd(e.cursor, offset)
	case harha.WhenceBackward:
		next = saturatingSub(e.cursor, offset)
	case harha.WhenceFromEnd:
		st, err := hostfs.Stat(e.h)
		if err != nil {
			return 0, err
		}
		next = saturatingSub(st.Size, offset)
	default:
		return 0, harha.ErrUnsupported
	}

	e.cursor = next
	b.files[file] = e
	return next, nil
}

func (b *Backend) Readv(file harha.File, bufs [][]byte) (int, error) {
	e, ok := b.files[file]
	if !ok {
		return 0, harha.ErrFileNotFound
	}
	n, err := batchedPreadv(e.h, bufs, int64(e.cursor))
	e.cursor += uint64(n)
	b.files[file] = e
	return n, err
}

func (b *Backend) Preadv(file harha.File, bufs [][]byte, offset uint64) (int, error) {
	e, ok := b.files[file]
	if !ok {
		return 0, harha.ErrFileNotFound
	}
	return batchedPreadv(e.h, bufs, int64(offset))
}

func (b *Backend) Writev(file harha.File, bufs [][]byte) (int, error) {
	e, ok := b.files[file]
	if !ok {
		return 0, harha.ErrFileNotFound
	}
	n, err := batchedPwritev(e.h, bufs, int64(e.cursor))
	e.cursor += uint64(n)
	b.files[file] = e
	return n, err
}

func (b *Backend) Pwritev(file harha.File, bufs [][]byte, offset uint64) (int, error) {
	e, ok := b.files[file]
	if !ok {
		return 0, harha.ErrFileNotFound
	}
	return batchedPwritev(e.h, bufs, int64(offset))
}

func (b *Backend) Deinit() error {
	for id, e := range b.files {
		hostfs.Close(e.h)
		delete(b.files, id)
	}
	for id, e := range b.dirs {
		hostfs.Close(e.h)
		delete(b.dirs, id)
	}
	if b.closeRoot {
		hostfs.Close(b.root)
	}
	return nil
}

// batchedPreadv/batchedPwritev split bufs into groups of at most maxBatch
// iovecs per host call, returning early on any short batch.
func batchedPreadv(h hostfs.Handle, bufs [][]byte, offset int64) (int, error) {
	total := 0
	for i := 0; i < len(bufs); {
		end := min(i+maxBatch, len(bufs))
		batch := bufs[i:end]
		n, err := hostfs.Preadv(h, batch, offset+int64(total))
		total += n
		if err != nil {
			return total, err
		}
		if n < bufLen(batch) {
			return total, nil
		}
		i = end
	}
	return total, nil
}

func batchedPwritev(h hostfs.Handle, bufs [][]byte, offset int64) (int, error) {
	total := 0
	for i := 0; i < len(bufs); {
		end := min(i+maxBatch, len(bufs))
		batch := bufs[i:end]
		n, err := hostfs.Pwritev(h, batch, offset+int64(total))
		total += n
		if err != nil {
			return total, err
		}
		if n < bufLen(batch) {
			return total, nil
		}
		i = end
	}
	return total, nil
}

func bufLen(bufs [][]byte) int {
	n := 0
	for _, b := range bufs {
		n += len(b)
	}
	return n
}

type dirIterator struct {
	parent hostfs.Handle
	stream *hostfs.DirStream
}

func (it *dirIterator) Next() (harha.Entry, bool, error) {
	for {
		name, ok, err := it.stream.Next()
		if err != nil {
			return harha.Entry{}, false, err
		}
		if !ok {
			return harha.Entry{}, false, nil
		}
		if name == "." || name == ".." {
			continue
		}
		if harha.Validate(name) != nil {
			continue
		}
		st, err := hostfs.StatAt(it.parent, name)
		if err != nil {
			if err == harha.ErrFileNotFound {
				continue
			}
			return harha.Entry{}, false, err
		}
		return harha.Entry{Basename: name, Stat: st}, true, nil
	}
}

func (it *dirIterator) Reset() error { return it.stream.Reset() }
func (it *dirIterator) Deinit()      { it.stream.Close() }

func saturatingAdd(a, b uint64) uint64 {
	sum := a + b
	if sum < a {
		return ^uint64(0)
	}
	return sum
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
