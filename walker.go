package harha

import "strings"

// WalkEntry is one entry emitted by a Walker or SelectiveWalker: the
// directory it was found in, its Stat, basename, full path relative to the
// walk's starting Dir, and depth (the number of "/" in Path, plus one).
type WalkEntry struct {
	VFS      *VFS
	Dir      Dir
	Stat     Stat
	Basename string
	Path     string
	Depth    int
}

type walkFrame struct {
	iter    *Iterator
	pathLen int
	isRoot  bool
}

// Walker performs depth-first pre-order traversal built on Iterator. It
// holds a stack of open-directory frames and a reusable byte buffer for
// composing the current path; Next automatically descends into every
// directory it yields. Use SelectiveWalker for explicit descent control.
type Walker struct {
	vfs   *VFS
	stack []walkFrame
	buf   []byte
}

func newWalker(vfs *VFS, root *Iterator) *Walker {
	return &Walker{
		vfs:   vfs,
		stack: []walkFrame{{iter: root, pathLen: 0, isRoot: true}},
	}
}

// Next returns the next entry in pre-order, descending automatically into
// directories. It returns ok == false once the walk is exhausted. An
// iterator error does not terminate the walk: the current frame is popped
// and the next call resumes at the parent frame.
func (w *Walker) Next() (WalkEntry, bool, error) {
	return w.next(true)
}

func (w *Walker) next(autoDescend bool) (WalkEntry, bool, error) {
	for len(w.stack) > 0 {
		top := &w.stack[len(w.stack)-1]

		entry, ok, err := top.iter.Next()
		if err != nil {
			w.popFrame()
			return WalkEntry{}, false, err
		}
		if !ok {
			w.popFrame()
			continue
		}

		w.buf = w.buf[:top.pathLen]
		if top.pathLen > 0 {
			w.buf = append(w.buf, '/')
		}
		w.buf = append(w.buf, entry.Basename...)
		fullLen := len(w.buf)

		we := WalkEntry{
			VFS:      w.vfs,
			Dir:      top.iter.Dir(),
			Stat:     entry.Stat,
			Basename: entry.Basename,
			Path:     string(w.buf[:fullLen]),
		}
		we.Depth = strings.Count(we.Path, "/") + 1

		if autoDescend && entry.Stat.IsDir() {
			w.pushChild(top.iter.Dir(), entry.Basename, fullLen)
		}

		return we, true, nil
	}
	return WalkEntry{}, false, nil
}

// pushChild opens and iterates basename under parent, pushing a new frame
// whose directory path is the buffer's current first fullLen bytes. A
// failure to open or iterate the child is treated as "cannot descend" and
// silently leaves the child unvisited below the entry already returned —
// the walker has no channel to report a second error for an entry it
// already yielded successfully.
func (w *Walker) pushChild(parent Dir, basename string, pathLen int) {
	sub, err := Resolve(basename)
	if err != nil {
		return
	}
	childDir, err := w.vfs.OpenDir(parent, sub, DirOpenOptions{})
	if err != nil {
		return
	}
	childIter, err := w.vfs.Iterate(childDir)
	if err != nil {
		w.vfs.CloseDir(childDir)
		return
	}
	w.stack = append(w.stack, walkFrame{iter: childIter, pathLen: pathLen, isRoot: false})
}

// enter pushes a subdirectory frame for a previously-returned directory
// entry, for use by SelectiveWalker.Enter.
func (w *Walker) enter(e WalkEntry) error {
	sub, err := Resolve(e.Basename)
	if err != nil {
		return err
	}
	childDir, err := w.vfs.OpenDir(e.Dir, sub, DirOpenOptions{})
	if err != nil {
		return err
	}
	childIter, err := w.vfs.Iterate(childDir)
	if err != nil {
		w.vfs.CloseDir(childDir)
		return err
	}
	w.stack = append(w.stack, walkFrame{iter: childIter, pathLen: len(e.Path), isRoot: false})
	return nil
}

// Leave pops the current frame, abandoning any remaining siblings in it
// without visiting them.
func (w *Walker) Leave() {
	if len(w.stack) > 0 {
		w.popFrame()
	}
}

func (w *Walker) popFrame() {
	n := len(w.stack)
	top := w.stack[n-1]
	top.iter.Deinit()
	if !top.isRoot {
		w.vfs.CloseDir(top.iter.Dir())
	}
	w.stack = w.stack[:n-1]
}

// Deinit abandons the walk, releasing every open frame. The root Dir
// passed to VFS.Walk is left open — the caller still owns it.
func (w *Walker) Deinit() {
	for len(w.stack) > 0 {
		w.popFrame()
	}
}

// SelectiveWalker is a Walker variant that never descends automatically;
// the caller must call Enter on a directory entry to push a frame for it.
type SelectiveWalker struct {
	w *Walker
}

// Next returns the next entry at the current frame without descending
// into directories automatically.
func (sw *SelectiveWalker) Next() (WalkEntry, bool, error) {
	return sw.w.next(false)
}

// Enter pushes a subdirectory frame for a directory entry previously
// returned by Next.
func (sw *SelectiveWalker) Enter(e WalkEntry) error {
	return sw.w.enter(e)
}

// Leave pops the current frame, abandoning any remaining siblings in it.
func (sw *SelectiveWalker) Leave() {
	sw.w.Leave()
}

// Deinit abandons the walk, releasing every open frame.
func (sw *SelectiveWalker) Deinit() {
	sw.w.Deinit()
}
