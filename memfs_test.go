package harha_test

import (
	"sort"
	"strings"

	"github.com/sorvi-platform/harha"
)

// memNode is a tiny in-memory tree node, just enough to exercise VFS's
// facade logic (capability gating, rebinding, walking) without pulling in
// a real backend. It intentionally skips anything passthrough/overlay/
// multiplexer/archive already cover on their own (batched iovecs, bit-
// packed handles, mount routing).
type memNode struct {
	dir      bool
	children map[string]*memNode
	data     []byte
}

func newDir() *memNode { return &memNode{dir: true, children: make(map[string]*memNode)} }

type memFile struct {
	node   *memNode
	cursor uint64
}

type memBackend struct {
	harha.Noop

	perms harha.Permissions
	root  *memNode

	dirs    map[harha.Dir]*memNode
	nextDir harha.Dir

	files    map[harha.File]*memFile
	nextFile harha.File
}

func newMemBackend() *memBackend {
	return &memBackend{
		perms:   harha.AllPermissions(),
		root:    newDir(),
		dirs:    make(map[harha.Dir]*memNode),
		nextDir: 1,
		files:   make(map[harha.File]*memFile),
	}
}

func (b *memBackend) Capabilities() harha.Permissions { return b.perms }

func (b *memBackend) resolve(dir harha.Dir) (*memNode, error) {
	if dir == harha.RootDir {
		return b.root, nil
	}
	n, ok := b.dirs[dir]
	if !ok {
		return nil, harha.ErrFileNotFound
	}
	return n, nil
}

func (b *memBackend) walkTo(base *memNode, rel string) (*memNode, error) {
	if rel == "" {
		return base, nil
	}
	cur := base
	for _, seg := range strings.Split(rel, "/") {
		if !cur.dir {
			return nil, harha.ErrNotDir
		}
		child, ok := cur.children[seg]
		if !ok {
			return nil, harha.ErrFileNotFound
		}
		cur = child
	}
	return cur, nil
}

// splitLast splits rel into its parent portion and final segment.
func splitLast(rel string) (parent, name string) {
	i := strings.LastIndexByte(rel, '/')
	if i < 0 {
		return "", rel
	}
	return rel[:i], rel[i+1:]
}

func (b *memBackend) allocDir() harha.Dir {
	b.nextDir++
	if b.nextDir == harha.RootDir {
		b.nextDir = 1
	}
	return b.nextDir
}

func (b *memBackend) allocFile() harha.File {
	id := b.nextFile
	b.nextFile++
	return id
}

func (b *memBackend) OpenDir(parent harha.Dir, sub harha.SafePath, opts harha.DirOpenOptions) (harha.Dir, error) {
	base, err := b.resolve(parent)
	if err != nil {
		return 0, err
	}

	if sub.IsEmpty() {
		id := b.allocDir()
		b.dirs[id] = base
		return id, nil
	}

	parentRel, name := splitLast(sub.Relative())
	parentNode, err := b.walkTo(base, parentRel)
	if err != nil {
		return 0, err
	}

	child, ok := parentNode.children[name]
	if !ok {
		if !opts.Create {
			return 0, harha.ErrFileNotFound
		}
		child = newDir()
		parentNode.children[name] = child
	}
	if !child.dir {
		return 0, harha.ErrNotDir
	}

	id := b.allocDir()
	b.dirs[id] = child
	return id, nil
}

func (b *memBackend) CloseDir(dir harha.Dir) {
	if dir == harha.RootDir {
		return
	}
	delete(b.dirs, dir)
}

func (b *memBackend) DeleteDir(parent harha.Dir, sub harha.SafePath, opts harha.DirDeleteOptions) error {
	base, err := b.resolve(parent)
	if err != nil {
		return err
	}
	parentRel, name := splitLast(sub.Relative())
	parentNode, err := b.walkTo(base, parentRel)
	if err != nil {
		return err
	}
	target, ok := parentNode.children[name]
	if !ok {
		return harha.ErrFileNotFound
	}
	if !target.dir {
		return harha.ErrNotDir
	}
	if len(target.children) > 0 && !opts.Recursive {
		return harha.ErrDirNotEmpty
	}
	delete(parentNode.children, name)
	return nil
}

func (b *memBackend) Stat(parent harha.Dir, sub harha.SafePath) (harha.Stat, error) {
	base, err := b.resolve(parent)
	if err != nil {
		return harha.Stat{}, err
	}
	node, err := b.walkTo(base, sub.Relative())
	if err != nil {
		return harha.Stat{}, err
	}
	if node.dir {
		return harha.Stat{Kind: harha.KindDir}, nil
	}
	return harha.Stat{Kind: harha.KindFile, Size: uint64(len(node.data))}, nil
}

type memIterator struct {
	names []string
	nodes []*memNode
	pos   int
}

func (it *memIterator) Next() (harha.Entry, bool, error) {
	if it.pos >= len(it.names) {
		return harha.Entry{}, false, nil
	}
	name, node := it.names[it.pos], it.nodes[it.pos]
	it.pos++
	st := harha.Stat{Kind: harha.KindFile, Size: uint64(len(node.data))}
	if node.dir {
		st = harha.Stat{Kind: harha.KindDir}
	}
	return harha.Entry{Basename: name, Stat: st}, true, nil
}

func (it *memIterator) Reset() error { it.pos = 0; return nil }
func (it *memIterator) Deinit()      {}

func (b *memBackend) Iterate(dir harha.Dir) (harha.BackendIterator, error) {
	node, err := b.resolve(dir)
	if err != nil {
		return nil, err
	}
	if !node.dir {
		return nil, harha.ErrNotDir
	}
	names := make([]string, 0, len(node.children))
	for name := range node.children {
		names = append(names, name)
	}
	sort.Strings(names)
	nodes := make([]*memNode, len(names))
	for i, name := range names {
		nodes[i] = node.children[name]
	}
	return &memIterator{names: names, nodes: nodes}, nil
}

func (b *memBackend) OpenFile(parent harha.Dir, sub harha.SafePath, opts harha.FileOpenOptions) (harha.File, error) {
	base, err := b.resolve(parent)
	if err != nil {
		return 0, err
	}
	parentRel, name := splitLast(sub.Relative())
	parentNode, err := b.walkTo(base, parentRel)
	if err != nil {
		return 0, err
	}

	node, ok := parentNode.children[name]
	if !ok {
		if !opts.Create {
			return 0, harha.ErrFileNotFound
		}
		node = &memNode{}
		parentNode.children[name] = node
	}
	if node.dir {
		return 0, harha.ErrIsDir
	}

	id := b.allocFile()
	b.files[id] = &memFile{node: node}
	return id, nil
}

func (b *memBackend) CloseFile(file harha.File) {
	delete(b.files, file)
}

func (b *memBackend) DeleteFile(parent harha.Dir, sub harha.SafePath) error {
	base, err := b.resolve(parent)
	if err != nil {
		return err
	}
	parentRel, name := splitLast(sub.Relative())
	parentNode, err := b.walkTo(base, parentRel)
	if err != nil {
		return err
	}
	node, ok := parentNode.children[name]
	if !ok {
		return harha.ErrFileNotFound
	}
	if node.dir {
		return harha.ErrIsDir
	}
	delete(parentNode.children, name)
	return nil
}

func (b *memBackend) Seek(file harha.File, offset uint64, whence harha.Whence) (uint64, error) {
	f, ok := b.files[file]
	if !ok {
		return 0, harha.ErrFileNotFound
	}
	var next uint64
	switch whence {
	case harha.WhenceSet:
		next = offset
	case harha.WhenceForward:
		next = f.cursor + offset
	case harha.WhenceBackward:
		if offset > f.cursor {
			next = 0
		} else {
			next = f.cursor - offset
		}
	case harha.WhenceFromEnd:
		size := uint64(len(f.node.data))
		if offset > size {
			next = 0
		} else {
			next = size - offset
		}
	default:
		return 0, harha.ErrUnsupported
	}
	f.cursor = next
	return next, nil
}

func (b *memBackend) Readv(file harha.File, bufs [][]byte) (int, error) {
	f, ok := b.files[file]
	if !ok {
		return 0, harha.ErrFileNotFound
	}
	n, err := b.preadv(f.node, bufs, f.cursor)
	f.cursor += uint64(n)
	return n, err
}

func (b *memBackend) Preadv(file harha.File, bufs [][]byte, offset uint64) (int, error) {
	f, ok := b.files[file]
	if !ok {
		return 0, harha.ErrFileNotFound
	}
	return b.preadv(f.node, bufs, offset)
}

func (b *memBackend) preadv(node *memNode, bufs [][]byte, offset uint64) (int, error) {
	if offset >= uint64(len(node.data)) {
		return 0, nil
	}
	total := 0
	src := node.data[offset:]
	for _, buf := range bufs {
		n := copy(buf, src)
		src = src[n:]
		total += n
		if n < len(buf) {
			break
		}
	}
	return total, nil
}

func (b *memBackend) Writev(file harha.File, bufs [][]byte) (int, error) {
	f, ok := b.files[file]
	if !ok {
		return 0, harha.ErrFileNotFound
	}
	n, err := b.pwritev(f.node, bufs, f.cursor)
	f.cursor += uint64(n)
	return n, err
}

func (b *memBackend) Pwritev(file harha.File, bufs [][]byte, offset uint64) (int, error) {
	f, ok := b.files[file]
	if !ok {
		return 0, harha.ErrFileNotFound
	}
	return b.pwritev(f.node, bufs, offset)
}

func (b *memBackend) pwritev(node *memNode, bufs [][]byte, offset uint64) (int, error) {
	total := 0
	for _, buf := range bufs {
		total += len(buf)
	}
	end := offset + uint64(total)
	if end > uint64(len(node.data)) {
		grown := make([]byte, end)
		copy(grown, node.data)
		node.data = grown
	}
	pos := offset
	for _, buf := range bufs {
		copy(node.data[pos:], buf)
		pos += uint64(len(buf))
	}
	return total, nil
}

func (b *memBackend) Deinit() error {
	clear(b.dirs)
	clear(b.files)
	return nil
}
