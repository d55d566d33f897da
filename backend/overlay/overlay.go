// Package overlay implements the C5 backend: an ordered mount table
// routing by longest-prefix (in reverse insertion order) across borrowed
// child VFS instances.
package overlay

import (
	"fmt"
	"strings"

	"github.com/tidwall/btree"

	"github.com/sorvi-platform/harha"
	"github.com/sorvi-platform/harha/log"
)

type mountEntry struct {
	vfs *harha.VFS
}

// Backend is the overlay VFS backend. It borrows every mounted VFS: it
// never calls their Deinit, only closes the handles it opened into them.
type Backend struct {
	harha.Noop

	logger *log.Logger
	perms  harha.Permissions

	mounts *btree.Map[string, *mountEntry]
	order  []string

	dirs    map[harha.Dir]dirHandle
	nextDir harha.Dir

	files    map[harha.File]fileHandle
	nextFile harha.File
}

type dirHandle struct {
	vfs  *harha.VFS
	dir  harha.Dir
	path string
}

type fileHandle struct {
	vfs  *harha.VFS
	file harha.File
}

// Option configures a Backend at construction time.
type Option func(*Backend)

// WithLogger attaches a logger; omitted, the backend logs nowhere.
func WithLogger(l *log.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// WithPermissions overrides the capability set the overlay itself
// advertises; per-operation gating still happens again on the routed
// child's own VFS, so this mainly controls whether the outer facade even
// attempts to dispatch.
func WithPermissions(p harha.Permissions) Option {
	return func(b *Backend) { b.perms = p }
}

// New returns an empty overlay backend with no mounts.
func New(opts ...Option) *Backend {
	b := &Backend{
		logger:   log.Discard(),
		perms:    harha.AllPermissions(),
		mounts: btree.NewMap[string, *mountEntry](0),
		dirs:   make(map[harha.Dir]dirHandle),
		files:  make(map[harha.File]fileHandle),
		nextDir: 1,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) Capabilities() harha.Permissions { return b.perms }

// Mount installs fs at path. path must be absolute; fs must not already be
// mounted anywhere in this overlay, and path must not already be a mount
// point.
func (b *Backend) Mount(fs *harha.VFS, path string) error {
	if path == "" || path[0] != '/' {
		return fmt.Errorf("overlay: mount path %q must be absolute: %w", path, harha.ErrInvalidPath)
	}
	if _, ok := b.mounts.Get(path); ok {
		return harha.ErrAlreadyMounted
	}

	var duplicate bool
	b.mounts.Scan(func(_ string, e *mountEntry) bool {
		if e.vfs == fs {
			duplicate = true
			return false
		}
		return true
	})
	if duplicate {
		return harha.ErrAlreadyMounted
	}

	b.mounts.Set(path, &mountEntry{vfs: fs})
	b.order = append(b.order, path)
	b.logger.Debug("overlay: mounted %q", path)
	return nil
}

// Unmount removes the mount at path and closes every dangling dir/file
// handle this overlay had open into it — the only path that closes
// handles into a child without the caller closing them first.
func (b *Backend) Unmount(path string) error {
	entry, ok := b.mounts.Get(path)
	if !ok {
		return harha.ErrNotMounted
	}
	b.mounts.Delete(path)
	for i, p := range b.order {
		if p == path {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}

	for id, e := range b.dirs {
		if e.vfs == entry.vfs {
			e.vfs.CloseDir(e.dir)
			delete(b.dirs, id)
		}
	}
	for id, e := range b.files {
		if e.vfs == entry.vfs {
			e.vfs.CloseFile(e.file)
			delete(b.files, id)
		}
	}

	b.logger.Debug("overlay: unmounted %q", path)
	return nil
}

func (b *Backend) resolve(dir harha.Dir) (*harha.VFS, harha.Dir, string, error) {
	if dir == harha.RootDir {
		return nil, harha.RootDir, "", nil
	}
	e, ok := b.dirs[dir]
	if !ok {
		return nil, 0, "", harha.ErrFileNotFound
	}
	return e.vfs, e.dir, e.path, nil
}

func joinPath(base, rel string) string {
	switch {
	case rel == "":
		return base
	case base == "":
		return "/" + rel
	default:
		return base + "/" + rel
	}
}

// vfsForPath scans mount points in reverse insertion order, returning the
// first whose key is a prefix of path: later mounts win on a shared prefix,
// which is how a nested mount overrides an ancestor's own claim on the same
// tree.
func (b *Backend) vfsForPath(path string) (*harha.VFS, string, bool) {
	for i := len(b.order) - 1; i >= 0; i-- {
		mp := b.order[i]
		if !strings.HasPrefix(path, mp) {
			continue
		}
		rest := path[len(mp):]
		if rest != "" && rest[0] != '/' && !strings.HasSuffix(mp, "/") {
			continue
		}
		e, _ := b.mounts.Get(mp)
		return e.vfs, strings.TrimPrefix(rest, "/"), true
	}
	return nil, "", false
}

func (b *Backend) allocDir() harha.Dir {
	b.nextDir++
	if b.nextDir == harha.RootDir {
		b.nextDir = 1
	}
	return b.nextDir
}

func (b *Backend) allocFile() harha.File {
	id := b.nextFile
	b.nextFile++
	return id
}

func (b *Backend) OpenDir(parent harha.Dir, sub harha.SafePath, opts harha.DirOpenOptions) (harha.Dir, error) {
	_, _, ppath, err := b.resolve(parent)
	if err != nil {
		return 0, err
	}
	composed := joinPath(ppath, sub.Relative())

	if composed == "" {
		id := b.allocDir()
		b.dirs[id] = dirHandle{path: ""}
		return id, nil
	}

	child, remainder, ok := b.vfsForPath(composed)
	if !ok {
		return 0, harha.ErrFileNotFound
	}
	rel, err := harha.Resolve(remainder)
	if err != nil {
		return 0, err
	}
	childDir, err := child.OpenDir(harha.RootDir, rel, opts)
	if err != nil {
		return 0, err
	}

	id := b.allocDir()
	b.dirs[id] = dirHandle{vfs: child, dir: childDir, path: composed}
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
	if e.vfs != nil {
		e.vfs.CloseDir(e.dir)
	}
	delete(b.dirs, dir)
}

func (b *Backend) DeleteDir(parent harha.Dir, sub harha.SafePath, opts harha.DirDeleteOptions) error {
	_, _, ppath, err := b.resolve(parent)
	if err != nil {
		return err
	}
	composed := joinPath(ppath, sub.Relative())
	if composed == "" {
		return harha.ErrUnsupported
	}
	child, remainder, ok := b.vfsForPath(composed)
	if !ok {
		return harha.ErrFileNotFound
	}
	rel, err := harha.Resolve(remainder)
	if err != nil {
		return err
	}
	return child.DeleteDir(harha.RootDir, rel, opts)
}

func (b *Backend) Stat(parent harha.Dir, sub harha.SafePath) (harha.Stat, error) {
	_, _, ppath, err := b.resolve(parent)
	if err != nil {
		return harha.Stat{}, err
	}
	composed := joinPath(ppath, sub.Relative())
	if composed == "" {
		return harha.Stat{Kind: harha.KindDir}, nil
	}
	child, remainder, ok := b.vfsForPath(composed)
	if !ok {
		// A path that only exists because it is an ancestor of a deeper
		// mount point has no backing entry anywhere.
		return harha.Stat{}, harha.ErrFileNotFound
	}
	rel, err := harha.Resolve(remainder)
	if err != nil {
		return harha.Stat{}, err
	}
	return child.Stat(harha.RootDir, rel)
}

// Iterate forwards to the routed child's own Iterate, which re-applies the
// child's capability gate. Iterating the overlay's own root is
// unsupported, since no child backs it. A synthetic mount-point ancestor
// cannot be iterated either: OpenDir on it reports ErrFileNotFound.
func (b *Backend) Iterate(dir harha.Dir) (harha.BackendIterator, error) {
	vfs, childDir, _, err := b.resolve(dir)
	if err != nil {
		return nil, err
	}
	if vfs == nil {
		return nil, harha.ErrUnsupported
	}
	return vfs.Iterate(childDir)
}

func (b *Backend) OpenFile(parent harha.Dir, sub harha.SafePath, opts harha.FileOpenOptions) (harha.File, error) {
	_, _, ppath, err := b.resolve(parent)
	if err != nil {
		return 0, err
	}
	composed := joinPath(ppath, sub.Relative())
	if composed == "" {
		return 0, harha.ErrIsDir
	}
	child, remainder, ok := b.vfsForPath(composed)
	if !ok {
		return 0, harha.ErrFileNotFound
	}
	rel, err := harha.Resolve(remainder)
	if err != nil {
		return 0, err
	}
	childFile, err := child.OpenFile(harha.RootDir, rel, opts)
	if err != nil {
		return 0, err
	}

	id := b.allocFile()
	b.files[id] = fileHandle{vfs: child, file: childFile}
	return id, nil
}

func (b *Backend) CloseFile(file harha.File) {
	e, ok := b.files[file]
	if !ok {
		return
	}
	e.vfs.CloseFile(e.file)
	delete(b.files, file)
}

func (b *Backend) DeleteFile(parent harha.Dir, sub harha.SafePath) error {
	_, _, ppath, err := b.resolve(parent)
	if err != nil {
		return err
	}
	composed := joinPath(ppath, sub.Relative())
	if composed == "" {
		return harha.ErrIsDir
	}
	child, remainder, ok := b.vfsForPath(composed)
	if !ok {
		return harha.ErrFileNotFound
	}
	rel, err := harha.Resolve(remainder)
	if err != nil {
		return err
	}
	return child.DeleteFile(harha.RootDir, rel)
}

func (b *Backend) fileVFS(file harha.File) (*harha.VFS, harha.File, error) {
	e, ok := b.files[file]
	if !ok {
		return nil, 0, harha.ErrFileNotFound
	}
	return e.vfs, e.file, nil
}

func (b *Backend) Seek(file harha.File, offset uint64, whence harha.Whence) (uint64, error) {
	vfs, f, err := b.fileVFS(file)
	if err != nil {
		return 0, err
	}
	return vfs.Seek(f, offset, whence)
}

func (b *Backend) Readv(file harha.File, bufs [][]byte) (int, error) {
	vfs, f, err := b.fileVFS(file)
	if err != nil {
		return 0, err
	}
	return vfs.Readv(f, bufs)
}

func (b *Backend) Preadv(file harha.File, bufs [][]byte, offset uint64) (int, error) {
	vfs, f, err := b.fileVFS(file)
	if err != nil {
		return 0, err
	}
	return vfs.Preadv(f, bufs, offset)
}

func (b *Backend) Writev(file harha.File, bufs [][]byte) (int, error) {
	vfs, f, err := b.fileVFS(file)
	if err != nil {
		return 0, err
	}
	return vfs.Writev(f, bufs)
}

func (b *Backend) Pwritev(file harha.File, bufs [][]byte, offset uint64) (int, error) {
	vfs, f, err := b.fileVFS(file)
	if err != nil {
		return 0, err
	}
	return vfs.Pwritev(f, bufs, offset)
}

// Deinit releases every dir/file handle this overlay opened into its
// children, but never deinits the children themselves — they are borrowed
// from whoever constructed the mount table and remain theirs to release.
func (b *Backend) Deinit() error {
	for id, e := range b.files {
		if e.vfs != nil {
			e.vfs.CloseFile(e.file)
		}
		delete(b.files, id)
	}
	for id, e := range b.dirs {
		if e.vfs != nil {
			e.vfs.CloseDir(e.dir)
		}
		delete(b.dirs, id)
	}
	return nil
}
