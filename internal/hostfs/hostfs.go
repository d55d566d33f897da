// Package hostfs is the small host-OS adapter the passthrough backend is
// built on: directory-fd relative opens, positional reads/writes, and
// syscall error translation into the harha error taxonomy. It deliberately
// knows nothing about handle tables or cursors — that bookkeeping lives in
// backend/passthrough.
package hostfs

import (
	"io"
	"io/fs"
	"os"
	"syscall"
	"time"

	"golang.org/x/sys/unix"

	"github.com/sorvi-platform/harha"
)

// Handle wraps a raw host file descriptor referring to an open directory
// or file. The zero Handle is not valid.
type Handle struct {
	FD int
}

// OpenRoot opens path (an absolute or process-relative host path) as a
// directory handle, the entry point for a passthrough backend rooted at a
// real filesystem location.
func OpenRoot(path string) (Handle, error) {
	fd, err := unix.Open(path, unix.O_DIRECTORY|unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		return Handle{}, translate(err)
	}
	return Handle{FD: fd}, nil
}

// OpenDirAt opens name relative to parent as a directory. If create is set
// and name does not exist, it is created with mkdirat first.
func OpenDirAt(parent Handle, name string, create bool) (Handle, error) {
	fd, err := unix.Openat(parent.FD, name, unix.O_DIRECTORY|unix.O_RDONLY|unix.O_CLOEXEC, 0)
	if err != nil {
		if err == unix.ENOENT && create {
			if mkErr := unix.Mkdirat(parent.FD, name, 0o755); mkErr != nil && mkErr != unix.EEXIST {
				return Handle{}, translate(mkErr)
			}
			fd, err = unix.Openat(parent.FD, name, unix.O_DIRECTORY|unix.O_RDONLY|unix.O_CLOEXEC, 0)
		}
		if err != nil {
			return Handle{}, translate(err)
		}
	}
	return Handle{FD: fd}, nil
}

// OpenFileAt opens name relative to parent with the access mode and create
// flag from opts, returning the handle and whether the opened object turned
// out to be a directory (the caller rejects that with ErrIsDir).
func OpenFileAt(parent Handle, name string, opts harha.FileOpenOptions) (Handle, bool, error) {
	flags := unix.O_CLOEXEC
	switch opts.Mode {
	case harha.ModeReadOnly:
		flags |= unix.O_RDONLY
	case harha.ModeWriteOnly:
		flags |= unix.O_WRONLY
	case harha.ModeReadWrite:
		flags |= unix.O_RDWR
	}
	if opts.Create {
		flags |= unix.O_CREAT
	}

	fd, err := unix.Openat(parent.FD, name, flags, 0o644)
	if err != nil {
		return Handle{}, false, translate(err)
	}

	var st unix.Stat_t
	if err := unix.Fstat(fd, &st); err != nil {
		unix.Close(fd)
		return Handle{}, false, translate(err)
	}
	isDir := st.Mode&unix.S_IFMT == unix.S_IFDIR
	return Handle{FD: fd}, isDir, nil
}

// Dup duplicates h's descriptor, used to mint a second public handle over
// the same underlying directory (e.g. re-"opening" an empty sub-path).
func Dup(h Handle) (Handle, error) {
	fd, err := unix.Dup(h.FD)
	if err != nil {
		return Handle{}, translate(err)
	}
	return Handle{FD: fd}, nil
}

// Close closes h, ignoring EBADF so double-close is a safe no-op.
func Close(h Handle) {
	unix.Close(h.FD)
}

// Stat reports h's kind, size and times.
func Stat(h Handle) (harha.Stat, error) {
	var st unix.Stat_t
	if err := unix.Fstat(h.FD, &st); err != nil {
		return harha.Stat{}, translate(err)
	}
	return statFromRaw(&st), nil
}

// StatAt reports the stat of name relative to parent, without opening it.
func StatAt(parent Handle, name string) (harha.Stat, error) {
	var st unix.Stat_t
	if err := unix.Fstatat(parent.FD, name, &st, 0); err != nil {
		return harha.Stat{}, translate(err)
	}
	return statFromRaw(&st), nil
}

func statFromRaw(st *unix.Stat_t) harha.Stat {
	kind := harha.KindFile
	if st.Mode&unix.S_IFMT == unix.S_IFDIR {
		kind = harha.KindDir
	}
	return harha.Stat{
		Kind:       kind,
		Size:       uint64(st.Size),
		ModTime:    time.Unix(st.Mtim.Sec, st.Mtim.Nsec),
		ChangeTime: time.Unix(st.Ctim.Sec, st.Ctim.Nsec),
	}
}

// DirStream is a rewindable directory-entry stream built from a Handle.
type DirStream struct {
	f *os.File
}

// OpenStream duplicates h's descriptor and wraps it for repeated,
// resettable name iteration. Duplicating means the caller's Handle (and its
// own lifecycle) is untouched by the stream's Close.
func OpenStream(h Handle) (*DirStream, error) {
	dup, err := unix.Dup(h.FD)
	if err != nil {
		return nil, translate(err)
	}
	return &DirStream{f: os.NewFile(uintptr(dup), "")}, nil
}

// Next returns the next entry name, or ok == false at end of stream.
func (d *DirStream) Next() (name string, ok bool, err error) {
	names, err := d.f.Readdirnames(1)
	if err != nil {
		if err == io.EOF {
			return "", false, nil
		}
		return "", false, translate(err)
	}
	if len(names) == 0 {
		return "", false, nil
	}
	return names[0], true, nil
}

// Reset rewinds the stream to its first entry.
func (d *DirStream) Reset() error {
	if _, err := d.f.Seek(0, io.SeekStart); err != nil {
		return translate(err)
	}
	return nil
}

// Close releases the stream's duplicated descriptor. It does not touch the
// Handle it was opened from.
func (d *DirStream) Close() {
	d.f.Close()
}

// Preadv reads into bufs at offset without touching any file position.
func Preadv(h Handle, bufs [][]byte, offset int64) (int, error) {
	n, err := unix.Preadv(h.FD, bufs, offset)
	if err != nil && n == 0 {
		return 0, translate(err)
	}
	return n, nil
}

// Pwritev writes bufs at offset without touching any file position.
func Pwritev(h Handle, bufs [][]byte, offset int64) (int, error) {
	n, err := unix.Pwritev(h.FD, bufs, offset)
	if err != nil && n == 0 {
		return 0, translate(err)
	}
	return n, nil
}

// UnlinkAt removes name relative to parent, as a file or an empty
// directory depending on dir.
func UnlinkAt(parent Handle, name string, dir bool) error {
	flags := 0
	if dir {
		flags = unix.AT_REMOVEDIR
	}
	if err := unix.Unlinkat(parent.FD, name, flags); err != nil {
		return translate(err)
	}
	return nil
}

// RemoveAllAt removes name relative to parent recursively, walking the
// host tree directly (used only by DeleteDir's Recursive option).
func RemoveAllAt(parent Handle, name string) error {
	child, err := OpenDirAt(parent, name, false)
	if err != nil {
		if err == harha.ErrFileNotFound {
			return nil
		}
		return err
	}
	stream, err := OpenStream(child)
	if err != nil {
		Close(child)
		return err
	}
	for {
		entry, ok, nerr := stream.Next()
		if nerr != nil {
			stream.Close()
			Close(child)
			return nerr
		}
		if !ok {
			break
		}
		if entry == "." || entry == ".." {
			continue
		}
		st, serr := StatAt(child, entry)
		if serr != nil {
			continue
		}
		if st.IsDir() {
			if err := RemoveAllAt(child, entry); err != nil {
				stream.Close()
				Close(child)
				return err
			}
		} else if err := UnlinkAt(child, entry, false); err != nil {
			stream.Close()
			Close(child)
			return err
		}
	}
	stream.Close()
	Close(child)
	return UnlinkAt(parent, name, true)
}

// translate maps a syscall-level error to the harha taxonomy, the one
// place host-specific detail is collapsed into the public sentinels.
func translate(err error) error {
	var errno syscall.Errno
	switch {
	case err == nil:
		return nil
	case isErrno(err, &errno):
	default:
		if os.IsNotExist(err) {
			return harha.ErrFileNotFound
		}
		return harha.ErrUnexpected
	}

	switch errno {
	case unix.ENOENT:
		return harha.ErrFileNotFound
	case unix.EEXIST:
		return harha.ErrAlreadyExists
	case unix.ENOTDIR:
		return harha.ErrNotDir
	case unix.EISDIR:
		return harha.ErrIsDir
	case unix.ENOTEMPTY:
		return harha.ErrDirNotEmpty
	case unix.EACCES, unix.EPERM:
		return harha.ErrPermission
	case unix.ENOSPC:
		return harha.ErrNoSpace
	case unix.EMFILE, unix.ENFILE, unix.EDQUOT:
		return harha.ErrResourceLimit
	case unix.ENOMEM:
		return harha.ErrOutOfMemory
	default:
		return harha.ErrUnexpected
	}
}

func isErrno(err error, out *syscall.Errno) bool {
	if errno, ok := err.(syscall.Errno); ok {
		*out = errno
		return true
	}
	if pe, ok := err.(*fs.PathError); ok {
		return isErrno(pe.Err, out)
	}
	return false
}
