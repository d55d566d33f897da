// Package archive implements the C7 backend: a read-only VFS over a
// parsed archivefmt.Archive, serving file contents by positional read from
// a single shared backing file.
package archive

import (
	"fmt"
	"os"
	"strings"

	"github.com/sorvi-platform/harha"
	"github.com/sorvi-platform/harha/internal/archivefmt"
	"github.com/sorvi-platform/harha/internal/hostfs"
	"github.com/sorvi-platform/harha/log"
)

const (
	genBits = 11
	idxBits = 20
	genMask = 1<<genBits - 1
	idxMask = 1<<idxBits - 1
	maxBatch = 16
)

type indexEntry struct {
	stat   harha.Stat
	offset uint64
}

type fileHandleState struct {
	pathIndex uint32
	cursor    uint64
}

// Backend is a read-only archive VFS backend. Its handles pack a kind bit,
// a 20-bit path index and an 11-bit generation counter; dir resolution
// ignores the generation, file resolution tracks per-handle state keyed by
// the full packed value so two opens of the same path never
// collide.
type Backend struct {
	harha.Noop

	logger *log.Logger
	perms  harha.Permissions

	file      *os.File
	closeFile bool

	paths   []string
	pathIdx map[string]uint32
	index   map[string]*indexEntry

	files   map[harha.File]*fileHandleState
	nextGen uint16
}

// Option configures a Backend at construction time.
type Option func(*Backend)

// WithLogger attaches a logger; omitted, the backend logs nowhere.
func WithLogger(l *log.Logger) Option {
	return func(b *Backend) { b.logger = l }
}

// WithPermissions further restricts the backend's capabilities below the
// default read/iterate/stat set. Write-side capabilities cannot be
// meaningfully granted — the archive file is never mutated.
func WithPermissions(p harha.Permissions) Option {
	return func(b *Backend) { b.perms = p }
}

// New parses f as an archive. The backend does not own f and will not
// close it on Deinit.
func New(f *os.File, opts ...Option) (*Backend, error) {
	return newFromFile(f, false, opts)
}

// NewFromOSPath opens and parses the archive at path, owning the file.
func NewFromOSPath(path string, opts ...Option) (*Backend, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, harha.ErrFileNotFound
	}
	return newFromFile(f, true, opts)
}

// NewPath opens and parses the archive at sub relative to parent, owning
// the resulting file.
func NewPath(parent hostfs.Handle, sub harha.SafePath, opts ...Option) (*Backend, error) {
	h, isDir, err := hostfs.OpenFileAt(parent, sub.Relative(), harha.FileOpenOptions{Mode: harha.ModeReadOnly})
	if err != nil {
		return nil, err
	}
	if isDir {
		hostfs.Close(h)
		return nil, harha.ErrIsDir
	}
	return newFromFile(os.NewFile(uintptr(h.FD), sub.String()), true, opts)
}

func newFromFile(f *os.File, owns bool, opts []Option) (*Backend, error) {
	parsed, err := archivefmt.Parse(f)
	if err != nil {
		if owns {
			f.Close()
		}
		return nil, fmt.Errorf("archive: %w", err)
	}

	b := &Backend{
		logger:    log.Discard(),
		perms:     harha.ReadOnlyPermissions(),
		file:      f,
		closeFile: owns,
		pathIdx:   make(map[string]uint32),
		index:     make(map[string]*indexEntry),
		files:     make(map[harha.File]*fileHandleState),
	}
	for _, opt := range opts {
		opt(b)
	}

	b.addPath("", &indexEntry{stat: harha.Stat{Kind: harha.KindDir}})

	for _, e := range parsed.Entries {
		b.addPath(e.Path, &indexEntry{
			stat: harha.Stat{
				Kind:       harha.KindFile,
				Size:       e.Size,
				ModTime:    e.ModTime,
				ChangeTime: e.ModTime,
			},
			offset: e.DataOffset,
		})
	}

	for _, e := range parsed.Entries {
		segs := strings.Split(e.Path, "/")
		for i := 1; i < len(segs); i++ {
			dirPath := strings.Join(segs[:i], "/")
			if _, ok := b.index[dirPath]; !ok {
				b.addPath(dirPath, &indexEntry{stat: harha.Stat{Kind: harha.KindDir}})
			}
		}
	}

	return b, nil
}

func (b *Backend) addPath(p string, e *indexEntry) {
	idx := uint32(len(b.paths))
	b.paths = append(b.paths, p)
	b.pathIdx[p] = idx
	b.index[p] = e
}

func (b *Backend) Capabilities() harha.Permissions { return b.perms }

func pack(kind uint8, idx uint32, gen uint16) uint32 {
	return uint32(kind)<<31 | (idx&idxMask)<<genBits | uint32(gen)&genMask
}

func unpack(v uint32) (kind uint8, idx uint32, gen uint16) {
	return uint8(v >> 31), (v >> genBits) & idxMask, uint16(v & genMask)
}

func (b *Backend) nextGeneration() uint16 {
	g := b.nextGen
	b.nextGen = (b.nextGen + 1) & genMask
	return g
}

func joinPath(base, rel string) string {
	switch {
	case rel == "":
		return base
	case base == "":
		return rel
	default:
		return base + "/" + rel
	}
}

// directChild reports whether p is a direct child of parent, returning its
// basename tail when so.
func directChild(parent, p string) (string, bool) {
	if p == "" {
		return "", false
	}
	if parent == "" {
		if strings.Contains(p, "/") {
			return "", false
		}
		return p, true
	}
	if !strings.HasPrefix(p, parent) || len(p) <= len(parent) || p[len(parent)] != '/' {
		return "", false
	}
	tail := p[len(parent)+1:]
	if strings.Contains(tail, "/") {
		return "", false
	}
	return tail, true
}

func (b *Backend) OpenDir(parent harha.Dir, sub harha.SafePath, opts harha.DirOpenOptions) (harha.Dir, error) {
	if opts.Create {
		return 0, harha.ErrUnsupported
	}
	_, parentIdx, _ := unpack(uint32(parent))
	candidate := joinPath(b.paths[parentIdx], sub.Relative())

	e, ok := b.index[candidate]
	if !ok {
		return 0, harha.ErrFileNotFound
	}
	if !e.stat.IsDir() {
		return 0, harha.ErrNotDir
	}
	return harha.Dir(pack(0, b.pathIdx[candidate], b.nextGeneration())), nil
}

func (b *Backend) Stat(parent harha.Dir, sub harha.SafePath) (harha.Stat, error) {
	_, parentIdx, _ := unpack(uint32(parent))
	candidate := joinPath(b.paths[parentIdx], sub.Relative())
	e, ok := b.index[candidate]
	if !ok {
		return harha.Stat{}, harha.ErrFileNotFound
	}
	return e.stat, nil
}

func (b *Backend) Iterate(dir harha.Dir) (harha.BackendIterator, error) {
	_, parentIdx, _ := unpack(uint32(dir))
	parentPath := b.paths[parentIdx]

	var entries []harha.Entry
	for _, p := range b.paths {
		tail, ok := directChild(parentPath, p)
		if !ok {
			continue
		}
		entries = append(entries, harha.Entry{Basename: tail, Stat: b.index[p].stat})
	}
	return &iterator{entries: entries}, nil
}

func (b *Backend) OpenFile(parent harha.Dir, sub harha.SafePath, opts harha.FileOpenOptions) (harha.File, error) {
	if opts.Create {
		return 0, harha.ErrUnsupported
	}
	if opts.Mode != harha.ModeReadOnly {
		return 0, harha.ErrPermission
	}

	_, parentIdx, _ := unpack(uint32(parent))
	candidate := joinPath(b.paths[parentIdx], sub.Relative())

	e, ok := b.index[candidate]
	if !ok {
		return 0, harha.ErrFileNotFound
	}
	if e.stat.IsDir() {
		return 0, harha.ErrIsDir
	}

	idx := b.pathIdx[candidate]
	handle := harha.File(pack(1, idx, b.nextGeneration()))
	b.files[handle] = &fileHandleState{pathIndex: idx}
	return handle, nil
}

func (b *Backend) CloseFile(file harha.File) {
	delete(b.files, file)
}

func (b *Backend) Seek(file harha.File, offset uint64, whence harha.Whence) (uint64, error) {
	st, ok := b.files[file]
	if !ok {
		return 0, harha.ErrFileNotFound
	}
	entry := b.index[b.paths[st.pathIndex]]

	var next uint64
	switch whence {
	case harha.WhenceSet:
		next = offset
	case harha.WhenceForward:
		next = saturatingAdd(st.cursor, offset)
	case harha.WhenceBackward:
		next = saturatingSub(st.cursor, offset)
	case harha.WhenceFromEnd:
		next = saturatingSub(entry.stat.Size, offset)
	default:
		return 0, harha.ErrUnsupported
	}
	st.cursor = next
	return next, nil
}

func (b *Backend) Readv(file harha.File, bufs [][]byte) (int, error) {
	st, ok := b.files[file]
	if !ok {
		return 0, harha.ErrFileNotFound
	}
	entry := b.index[b.paths[st.pathIndex]]
	n, err := b.positionalRead(entry, st.cursor, bufs)
	st.cursor += uint64(n)
	return n, err
}

func (b *Backend) Preadv(file harha.File, bufs [][]byte, offset uint64) (int, error) {
	st, ok := b.files[file]
	if !ok {
		return 0, harha.ErrFileNotFound
	}
	entry := b.index[b.paths[st.pathIndex]]
	return b.positionalRead(entry, offset, bufs)
}

// positionalRead clamps bufs so the read never crosses into the next
// entry's region of the shared backing file, then batches iovecs in
// groups of up to maxBatch into preadv calls at entry.offset+cursor.
func (b *Backend) positionalRead(entry *indexEntry, cursor uint64, bufs [][]byte) (int, error) {
	if cursor >= entry.stat.Size {
		return 0, nil
	}
	clamped := clampBufs(bufs, entry.stat.Size-cursor)
	handle := hostfs.Handle{FD: int(b.file.Fd())}

	total := 0
	for i := 0; i < len(clamped); {
		end := min(i+maxBatch, len(clamped))
		batch := clamped[i:end]
		n, err := hostfs.Preadv(handle, batch, int64(entry.offset+cursor+uint64(total)))
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

func clampBufs(bufs [][]byte, remaining uint64) [][]byte {
	if remaining == 0 {
		return nil
	}
	out := make([][]byte, 0, len(bufs))
	var total uint64
	for _, buf := range bufs {
		if total >= remaining {
			break
		}
		room := remaining - total
		if uint64(len(buf)) > room {
			buf = buf[:room]
		}
		out = append(out, buf)
		total += uint64(len(buf))
	}
	return out
}

func bufLen(bufs [][]byte) int {
	n := 0
	for _, b := range bufs {
		n += len(b)
	}
	return n
}

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

func (b *Backend) Deinit() error {
	clear(b.files)
	if b.closeFile {
		return b.file.Close()
	}
	return nil
}

type iterator struct {
	entries []harha.Entry
	pos     int
}

func (it *iterator) Next() (harha.Entry, bool, error) {
	if it.pos >= len(it.entries) {
		return harha.Entry{}, false, nil
	}
	e := it.entries[it.pos]
	it.pos++
	return e, true, nil
}

func (it *iterator) Reset() error {
	it.pos = 0
	return nil
}

func (it *iterator) Deinit() {}
