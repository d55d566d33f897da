package harha

import (
	"github.com/google/uuid"

	"github.com/sorvi-platform/harha/log"
)

// VFS is the capability-gated facade wrapping a single Backend. Every
// public method here performs, in order: (a) a permission check against
// the relevant bit, returning ErrPermission without touching the backend
// if unset; (b) root rebinding — substituting the VFS's current logical
// root for the caller's Dir when that Dir is RootDir or the given path is
// absolute; (c) dispatch to the backend with the path's relative() form.
type VFS struct {
	id      uuid.UUID
	backend Backend
	perms   Permissions
	root    Dir
	logger  *log.Logger
}

// ID returns the VFS instance's unique identifier, used to correlate log
// lines across a composition of multiple VFS instances (overlay mounts,
// multiplexer slots) that otherwise share the same logger sink.
func (v *VFS) ID() uuid.UUID { return v.id }

// Option configures a VFS at construction time.
type Option func(*VFS)

// WithLogger attaches a logger; omitted, a VFS logs nowhere.
func WithLogger(l *log.Logger) Option {
	return func(v *VFS) { v.logger = l }
}

// WithPermissions overrides the Permissions the VFS gates operations with,
// independent of what the backend itself advertises via Capabilities. This
// is how a read-only wrapper over an otherwise read-write backend is built.
func WithPermissions(p Permissions) Option {
	return func(v *VFS) { v.perms = p }
}

// New wraps backend in a capability-gated facade. Permissions default to
// backend.Capabilities() unless overridden with WithPermissions.
func New(backend Backend, opts ...Option) *VFS {
	v := &VFS{
		id:      uuid.New(),
		backend: backend,
		perms:   backend.Capabilities(),
		root:    RootDir,
		logger:  log.Discard(),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.logger = v.logger.Named(v.id.String()[:8])
	return v
}

// Backend returns the wrapped Backend, for composing VFSes (overlay,
// multiplexer) that need to dispatch directly onto a child's backend.
func (v *VFS) Backend() Backend {
	return v.backend
}

// Permissions returns the capability set this VFS gates operations with.
func (v *VFS) Permissions() Permissions {
	return v.perms
}

// rebind substitutes the VFS's current logical root for dir when the
// caller passed the root sentinel or an absolute path.
func (v *VFS) rebind(dir Dir, path SafePath) Dir {
	if dir == RootDir || path.IsAbsolute() {
		return v.root
	}
	return dir
}

// Chroot installs subpath (opened relative to dir, or to the previous root
// if subpath is absolute) as the VFS's logical root, requiring the Iterate
// permission. An empty subpath reverts the root to the sentinel. Any
// previously installed non-sentinel root is closed first.
func (v *VFS) Chroot(dir Dir, subpath SafePath) error {
	if subpath.IsEmpty() {
		if v.root != RootDir {
			v.backend.CloseDir(v.root)
		}
		v.root = RootDir
		return nil
	}

	if !v.perms.Iterate {
		return ErrPermission
	}

	effective := v.rebind(dir, subpath)
	next, err := v.backend.OpenDir(effective, subpath, DirOpenOptions{})
	if err != nil {
		return err
	}

	if v.root != RootDir {
		v.backend.CloseDir(v.root)
	}
	v.root = next
	v.logger.Debug("chroot installed at %q", subpath.String())
	return nil
}

// OpenDir opens sub relative to dir (or the logical root, per rebind
// rules). opts.Create requires the Create permission; otherwise OpenDir
// requires no permission bit.
func (v *VFS) OpenDir(dir Dir, sub SafePath, opts DirOpenOptions) (Dir, error) {
	if opts.Create && !v.perms.Create {
		return 0, ErrPermission
	}
	return v.backend.OpenDir(v.rebind(dir, sub), sub, opts)
}

// CloseDir releases dir. Closing an unknown or already-closed handle is a
// safe no-op.
func (v *VFS) CloseDir(dir Dir) {
	v.backend.CloseDir(dir)
}

// DeleteDir removes sub relative to dir. Requires the Delete permission.
func (v *VFS) DeleteDir(dir Dir, sub SafePath, opts DirDeleteOptions) error {
	if !v.perms.Delete {
		return ErrPermission
	}
	return v.backend.DeleteDir(v.rebind(dir, sub), sub, opts)
}

// Stat returns information about sub relative to dir. Requires the Stat
// permission.
func (v *VFS) Stat(dir Dir, sub SafePath) (Stat, error) {
	if !v.perms.Stat {
		return Stat{}, ErrPermission
	}
	return v.backend.Stat(v.rebind(dir, sub), sub)
}

// Iterate returns an Iterator over dir's entries. Requires the Iterate
// permission.
func (v *VFS) Iterate(dir Dir) (*Iterator, error) {
	if !v.perms.Iterate {
		return nil, ErrPermission
	}
	effective := v.rebind(dir, RootPath)
	inner, err := v.backend.Iterate(effective)
	if err != nil {
		return nil, err
	}
	return &Iterator{vfs: v, dir: effective, inner: inner}, nil
}

// OpenFile opens sub relative to dir with the given options. opts.Create
// requires Create; opts.Mode of ModeReadOnly/ModeReadWrite requires Read;
// ModeWriteOnly/ModeReadWrite requires Write.
func (v *VFS) OpenFile(dir Dir, sub SafePath, opts FileOpenOptions) (File, error) {
	if opts.Create && !v.perms.Create {
		return 0, ErrPermission
	}
	if (opts.Mode == ModeReadOnly || opts.Mode == ModeReadWrite) && !v.perms.Read {
		return 0, ErrPermission
	}
	if (opts.Mode == ModeWriteOnly || opts.Mode == ModeReadWrite) && !v.perms.Write {
		return 0, ErrPermission
	}
	return v.backend.OpenFile(v.rebind(dir, sub), sub, opts)
}

// CloseFile releases file. Closing an unknown or already-closed handle is
// a safe no-op.
func (v *VFS) CloseFile(file File) {
	v.backend.CloseFile(file)
}

// DeleteFile removes sub relative to dir. Requires the Delete permission.
func (v *VFS) DeleteFile(dir Dir, sub SafePath) error {
	if !v.perms.Delete {
		return ErrPermission
	}
	return v.backend.DeleteFile(v.rebind(dir, sub), sub)
}

// Seek repositions file's cursor. Requires the Stat permission rather than
// Read or Write, since WhenceFromEnd needs to query size the same way Stat
// does and every backend gates that the same way.
func (v *VFS) Seek(file File, offset uint64, whence Whence) (uint64, error) {
	if !v.perms.Stat {
		return 0, ErrPermission
	}
	return v.backend.Seek(file, offset, whence)
}

// Readv reads into bufs starting at file's current cursor, advancing it by
// the total bytes read. Requires the Read permission.
func (v *VFS) Readv(file File, bufs [][]byte) (int, error) {
	if !v.perms.Read {
		return 0, ErrPermission
	}
	return v.backend.Readv(file, bufs)
}

// Preadv reads into bufs at offset without touching file's cursor.
// Requires the Read permission.
func (v *VFS) Preadv(file File, bufs [][]byte, offset uint64) (int, error) {
	if !v.perms.Read {
		return 0, ErrPermission
	}
	return v.backend.Preadv(file, bufs, offset)
}

// Writev writes bufs starting at file's current cursor, advancing it by
// the total bytes accepted. Requires the Write permission.
func (v *VFS) Writev(file File, bufs [][]byte) (int, error) {
	if !v.perms.Write {
		return 0, ErrPermission
	}
	return v.backend.Writev(file, bufs)
}

// Pwritev writes bufs at offset without touching file's cursor. Requires
// the Write permission.
func (v *VFS) Pwritev(file File, bufs [][]byte, offset uint64) (int, error) {
	if !v.perms.Write {
		return 0, ErrPermission
	}
	return v.backend.Pwritev(file, bufs, offset)
}

// Deinit releases the backend, closing any handle this VFS still has
// installed as a chroot root.
func (v *VFS) Deinit() error {
	if v.root != RootDir {
		v.backend.CloseDir(v.root)
		v.root = RootDir
	}
	return v.backend.Deinit()
}

// Walk returns a Walker performing automatic depth-first pre-order
// descent starting at dir.
func (v *VFS) Walk(dir Dir) (*Walker, error) {
	it, err := v.Iterate(dir)
	if err != nil {
		return nil, err
	}
	return newWalker(v, it), nil
}

// WalkSelectively returns a SelectiveWalker: like Walker, but the caller
// must call Enter to descend into a subdirectory explicitly.
func (v *VFS) WalkSelectively(dir Dir) (*SelectiveWalker, error) {
	it, err := v.Iterate(dir)
	if err != nil {
		return nil, err
	}
	return &SelectiveWalker{w: newWalker(v, it)}, nil
}
