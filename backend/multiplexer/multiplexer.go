// Package multiplexer implements the C6 backend: a fixed set of child
// VFSes sharing one handle space by bit-packing a mount tag into every
// Dir/File value, so dispatch never allocates.
package multiplexer

import (
	"errors"
	"fmt"

	"github.com/sorvi-platform/harha"
	"github.com/sorvi-platform/harha/log"
)

// ErrTagOutOfRange is returned when a tag value falls outside 0..N-1 for
// the backend's configured mount count.
var ErrTagOutOfRange = errors.New("multiplexer: tag out of range")

// Backend multiplexes N child VFS instances behind one handle space, tagged
// by E, whose underlying values must form the contiguous range 0..N-1.
// Every method here forwards to a child's own *harha.VFS, so capability
// gating and chroot rebinding are inherited automatically rather than
// reimplemented at the tag-forwarding layer.
type Backend[E ~int] struct {
	harha.Noop

	logger *log.Logger
	perms  harha.Permissions

	n         int
	indexBits uint
	tagMask   uint32
	mnt       []*harha.VFS
}

// Option configures a Backend at construction time.
type Option[E ~int] func(*Backend[E])

// WithLogger attaches a logger; omitted, the backend logs nowhere.
func WithLogger[E ~int](l *log.Logger) Option[E] {
	return func(b *Backend[E]) { b.logger = l }
}

// WithPermissions overrides the capability set the multiplexer itself
// advertises.
func WithPermissions[E ~int](p harha.Permissions) Option[E] {
	return func(b *Backend[E]) { b.perms = p }
}

// New returns a Backend with n unmounted slots, tagged 0..n-1.
func New[E ~int](n int, opts ...Option[E]) (*Backend[E], error) {
	if n < 1 {
		return nil, fmt.Errorf("multiplexer: n must be at least 1, got %d", n)
	}
	indexBits := ceilLog2(n + 1)
	if indexBits >= 32 {
		return nil, fmt.Errorf("multiplexer: n=%d leaves no room for an inner handle", n)
	}

	b := &Backend[E]{
		logger:    log.Discard(),
		perms:     harha.AllPermissions(),
		n:         n,
		indexBits: indexBits,
		tagMask:   uint32(1)<<indexBits - 1,
		mnt:       make([]*harha.VFS, n),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b, nil
}

func ceilLog2(n int) uint {
	bits, v := uint(0), 1
	for v < n {
		v <<= 1
		bits++
	}
	return bits
}

func (b *Backend[E]) Capabilities() harha.Permissions { return b.perms }

// Encode packs tag and inner into a single handle value. Tag occupies the
// low IndexBits bits so that Encode(tag, 0) equals tag's own integer value;
// RootDir relies on this.
func (b *Backend[E]) Encode(tag E, inner uint32) harha.Dir {
	return harha.Dir((inner << b.indexBits) | (uint32(tag) & b.tagMask))
}

// DecodeDir splits a Dir handle back into its tag and inner components.
func (b *Backend[E]) DecodeDir(d harha.Dir) (E, uint32) {
	v := uint32(d)
	return E(v & b.tagMask), v >> b.indexBits
}

// EncodeFile is Encode for File handles.
func (b *Backend[E]) EncodeFile(tag E, inner uint32) harha.File {
	return harha.File((inner << b.indexBits) | (uint32(tag) & b.tagMask))
}

// DecodeFile splits a File handle back into its tag and inner components.
func (b *Backend[E]) DecodeFile(f harha.File) (E, uint32) {
	v := uint32(f)
	return E(v & b.tagMask), v >> b.indexBits
}

// RootDir returns the Dir handle denoting tag's own root.
func (b *Backend[E]) RootDir(tag E) harha.Dir {
	return b.Encode(tag, 0)
}

// Mount installs vfs at tag. Returns ErrAlreadyMounted if tag already holds
// a child.
func (b *Backend[E]) Mount(tag E, vfs *harha.VFS) error {
	i := int(tag)
	if i < 0 || i >= b.n {
		return ErrTagOutOfRange
	}
	if b.mnt[i] != nil {
		return harha.ErrAlreadyMounted
	}
	b.mnt[i] = vfs
	b.logger.Debug("multiplexer: mounted tag %d", i)
	return nil
}

// Unmount clears tag's slot.
func (b *Backend[E]) Unmount(tag E) error {
	i := int(tag)
	if i < 0 || i >= b.n {
		return ErrTagOutOfRange
	}
	if b.mnt[i] == nil {
		return harha.ErrNotMounted
	}
	b.mnt[i] = nil
	return nil
}

func (b *Backend[E]) child(tag E) (*harha.VFS, error) {
	i := int(tag)
	if i < 0 || i >= b.n {
		return nil, ErrTagOutOfRange
	}
	vfs := b.mnt[i]
	if vfs == nil {
		return nil, harha.ErrNotMounted
	}
	return vfs, nil
}

func (b *Backend[E]) OpenDir(parent harha.Dir, sub harha.SafePath, opts harha.DirOpenOptions) (harha.Dir, error) {
	tag, inner := b.DecodeDir(parent)
	vfs, err := b.child(tag)
	if err != nil {
		return 0, err
	}
	childDir, err := vfs.OpenDir(harha.Dir(inner), sub, opts)
	if err != nil {
		return 0, err
	}
	return b.Encode(tag, uint32(childDir)), nil
}

func (b *Backend[E]) CloseDir(dir harha.Dir) {
	tag, inner := b.DecodeDir(dir)
	vfs, err := b.child(tag)
	if err != nil {
		return
	}
	vfs.CloseDir(harha.Dir(inner))
}

func (b *Backend[E]) DeleteDir(parent harha.Dir, sub harha.SafePath, opts harha.DirDeleteOptions) error {
	tag, inner := b.DecodeDir(parent)
	vfs, err := b.child(tag)
	if err != nil {
		return err
	}
	return vfs.DeleteDir(harha.Dir(inner), sub, opts)
}

func (b *Backend[E]) Stat(parent harha.Dir, sub harha.SafePath) (harha.Stat, error) {
	tag, inner := b.DecodeDir(parent)
	vfs, err := b.child(tag)
	if err != nil {
		return harha.Stat{}, err
	}
	return vfs.Stat(harha.Dir(inner), sub)
}

func (b *Backend[E]) Iterate(dir harha.Dir) (harha.BackendIterator, error) {
	tag, inner := b.DecodeDir(dir)
	vfs, err := b.child(tag)
	if err != nil {
		return nil, err
	}
	return vfs.Iterate(harha.Dir(inner))
}

func (b *Backend[E]) OpenFile(parent harha.Dir, sub harha.SafePath, opts harha.FileOpenOptions) (harha.File, error) {
	tag, inner := b.DecodeDir(parent)
	vfs, err := b.child(tag)
	if err != nil {
		return 0, err
	}
	childFile, err := vfs.OpenFile(harha.Dir(inner), sub, opts)
	if err != nil {
		return 0, err
	}
	return b.EncodeFile(tag, uint32(childFile)), nil
}

func (b *Backend[E]) CloseFile(file harha.File) {
	tag, inner := b.DecodeFile(file)
	vfs, err := b.child(tag)
	if err != nil {
		return
	}
	vfs.CloseFile(harha.File(inner))
}

func (b *Backend[E]) DeleteFile(parent harha.Dir, sub harha.SafePath) error {
	tag, inner := b.DecodeDir(parent)
	vfs, err := b.child(tag)
	if err != nil {
		return err
	}
	return vfs.DeleteFile(harha.Dir(inner), sub)
}

func (b *Backend[E]) Seek(file harha.File, offset uint64, whence harha.Whence) (uint64, error) {
	tag, inner := b.DecodeFile(file)
	vfs, err := b.child(tag)
	if err != nil {
		return 0, err
	}
	return vfs.Seek(harha.File(inner), offset, whence)
}

func (b *Backend[E]) Readv(file harha.File, bufs [][]byte) (int, error) {
	tag, inner := b.DecodeFile(file)
	vfs, err := b.child(tag)
	if err != nil {
		return 0, err
	}
	return vfs.Readv(harha.File(inner), bufs)
}

func (b *Backend[E]) Preadv(file harha.File, bufs [][]byte, offset uint64) (int, error) {
	tag, inner := b.DecodeFile(file)
	vfs, err := b.child(tag)
	if err != nil {
		return 0, err
	}
	return vfs.Preadv(harha.File(inner), bufs, offset)
}

func (b *Backend[E]) Writev(file harha.File, bufs [][]byte) (int, error) {
	tag, inner := b.DecodeFile(file)
	vfs, err := b.child(tag)
	if err != nil {
		return 0, err
	}
	return vfs.Writev(harha.File(inner), bufs)
}

func (b *Backend[E]) Pwritev(file harha.File, bufs [][]byte, offset uint64) (int, error) {
	tag, inner := b.DecodeFile(file)
	vfs, err := b.child(tag)
	if err != nil {
		return 0, err
	}
	return vfs.Pwritev(harha.File(inner), bufs, offset)
}

// Deinit is a no-op: the multiplexer tracks no handle table of its own (it
// is a stateless bit-packing forward, the cost of the zero-allocation
// requirement), and it borrows its children rather than owning them.
func (b *Backend[E]) Deinit() error {
	return nil
}
